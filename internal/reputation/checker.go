package reputation

import (
	"context"

	"github.com/formsentry/formsentry/internal/policy"
	"github.com/formsentry/formsentry/internal/submission"
	log "github.com/sirupsen/logrus"
)

// blockThreshold is the score above which (strictly) a submission is
// blocked. A score equal to the threshold passes.
const blockThreshold = 50

// Block reasons written by the reputation stage.
const (
	ReasonHighConfidence = "high abuse confidence score"
	ReasonCheckError     = "error in reputation check"
)

// Checker runs the IP reputation stage against a stored submission.
//
// The stage fails closed: any oracle failure marks the submission blocked.
// A passing check only records the score; it never writes blocked=false,
// since absence of abuse is not proof of legitimacy.
type Checker struct {
	client *Client
	store  *submission.Store
}

// NewChecker constructs a Checker.
func NewChecker(client *Client, store *submission.Store) *Checker {
	return &Checker{client: client, store: store}
}

// Check queries the oracle for the submission's source IP and updates the
// submission's block state. It returns whether the submission is allowed to
// continue as not-blocked.
func (c *Checker) Check(ctx context.Context, submissionID uint64, ip string, pol policy.FeaturePolicy) bool {
	if !pol.IPReputationCheck {
		return true
	}

	score, errCheck := c.client.Check(ctx, ip)
	if errCheck != nil {
		log.WithError(errCheck).Errorf("reputation: check failed for submission %d (ip=%s)", submissionID, ip)
		if errUpdate := c.store.Update(ctx, submissionID, map[string]any{
			"blocked":      true,
			"block_reason": ReasonCheckError,
		}); errUpdate != nil {
			log.WithError(errUpdate).Errorf("reputation: mark submission %d blocked failed", submissionID)
		}
		return false
	}

	fields := map[string]any{"abuse_confidence_score": score}
	if score > blockThreshold {
		fields["blocked"] = true
		fields["block_reason"] = ReasonHighConfidence
	}
	if errUpdate := c.store.Update(ctx, submissionID, fields); errUpdate != nil {
		log.WithError(errUpdate).Errorf("reputation: record score for submission %d failed", submissionID)
	}

	return score <= blockThreshold
}
