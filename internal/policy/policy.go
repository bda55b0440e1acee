package policy

import "github.com/formsentry/formsentry/internal/models"

// FeaturePolicy is the capability set granted to an account tier. The table
// is fixed at compile time; there is no runtime flag storage.
type FeaturePolicy struct {
	SpamDetection        bool  // Run the LLM spam classifier.
	IPReputationCheck    bool  // Query the IP reputation oracle.
	CaptchaVerification  bool  // Require captcha on the hosted form widget.
	MaxRequestsPerMinute int   // Per-key burst ceiling.
	MaxCallsPerPeriod    int64 // Per-key accounting-period ceiling.
}

var tierPolicies = map[string]FeaturePolicy{
	models.TierFree: {
		SpamDetection:        false,
		IPReputationCheck:    true,
		CaptchaVerification:  false,
		MaxRequestsPerMinute: 10,
		MaxCallsPerPeriod:    100,
	},
	models.TierPaid: {
		SpamDetection:        true,
		IPReputationCheck:    true,
		CaptchaVerification:  true,
		MaxRequestsPerMinute: 100,
		MaxCallsPerPeriod:    10000,
	},
}

// ForTier returns the policy for a tier, falling back to the free tier for
// unknown values.
func ForTier(tier string) FeaturePolicy {
	if pol, ok := tierPolicies[tier]; ok {
		return pol
	}
	return tierPolicies[models.TierFree]
}

// AnyReputationEnabled reports whether any tier performs reputation checks.
func AnyReputationEnabled() bool {
	for _, pol := range tierPolicies {
		if pol.IPReputationCheck {
			return true
		}
	}
	return false
}

// AnySpamDetectionEnabled reports whether any tier runs spam detection.
func AnySpamDetectionEnabled() bool {
	for _, pol := range tierPolicies {
		if pol.SpamDetection {
			return true
		}
	}
	return false
}
