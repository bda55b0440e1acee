package spam

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/formsentry/formsentry/internal/policy"
	"github.com/formsentry/formsentry/internal/submission"
	log "github.com/sirupsen/logrus"
)

// ReasonFlaggedSpam is the block reason written on a positive verdict.
const ReasonFlaggedSpam = "flagged as spam"

// Classifier runs the LLM spam stage against a stored submission.
//
// Unlike the reputation stage this one fails open: a transport or parsing
// failure yields a nil verdict and leaves the submission untouched. An
// unreachable classifier is inconclusive, not suspicious.
type Classifier struct {
	client *Client
	store  *submission.Store
}

// NewClassifier constructs a Classifier.
func NewClassifier(client *Client, store *submission.Store) *Classifier {
	return &Classifier{client: client, store: store}
}

// Classify asks the LLM for a one-word spam verdict and records it. The
// verdict is true only for the exact reply "True"; any other non-empty
// reply is false. nil means the stage was skipped or inconclusive.
func (c *Classifier) Classify(ctx context.Context, submissionID uint64, form map[string]any, pol policy.FeaturePolicy) *bool {
	if !pol.SpamDetection {
		return nil
	}

	reply, errComplete := c.client.Complete(ctx, buildPrompt(form))
	if errComplete != nil {
		log.WithError(errComplete).Errorf("spam: classification failed for submission %d", submissionID)
		return nil
	}

	isSpam := reply == "True"
	fields := map[string]any{"is_llm_flagged_spam": isSpam}
	if isSpam {
		fields["blocked"] = true
		fields["block_reason"] = ReasonFlaggedSpam
	}
	if errUpdate := c.store.Update(ctx, submissionID, fields); errUpdate != nil {
		log.WithError(errUpdate).Errorf("spam: record verdict for submission %d failed", submissionID)
	}
	return &isSpam
}

// buildPrompt embeds the submitted form data verbatim in a single-turn
// classification prompt with a constrained one-word answer.
func buildPrompt(form map[string]any) string {
	encoded, errMarshal := json.MarshalIndent(form, "", "  ")
	if errMarshal != nil {
		encoded = []byte("{}")
	}
	return fmt.Sprintf(`You are an AI trained to detect spam in form submissions.
Please analyze the following form data and determine if it is spam.
Respond with one word only: 'True' if the submission is spam,
or 'False' if it is not spam.

Form Data:
%s

Is this submission spam? Respond with either 'True' or 'False'.`, encoded)
}
