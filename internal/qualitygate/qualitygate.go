// Package qualitygate decides what happens to a generated guide: published
// unseen, published with a review flag, or withheld until a human approves it.
package qualitygate

// Decision is the publish routing outcome for a generated artifact.
type Decision string

const (
	DecisionAutoPublish Decision = "auto_publish"
	DecisionReview      Decision = "review"
	DecisionHold        Decision = "hold"
)

// Thresholds are the confidence cut lines applied by Classify. They are
// resolved fresh per classification from the active stored configuration, so
// an operator change takes effect on the very next job.
type Thresholds struct {
	AutoPublishMinConfidence float64
	ReviewQueueMinConfidence float64
}

// DefaultThresholds is used when no stored configuration is active.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoPublishMinConfidence: 0.90,
		ReviewQueueMinConfidence: 0.70,
	}
}

// Summary counts the severity of issues found by the quality checks.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Result is the output contract of the quality checks.
type Result struct {
	OverallConfidence float64  `json:"overallConfidence"`
	Flags             []string `json:"flags"`
	Summary           Summary  `json:"summary"`
}

// Classify maps a quality result to a publish decision:
//
//   - auto_publish when confidence clears the auto-publish line and no check
//     reported an error
//   - hold when confidence falls below the review-queue line
//   - review otherwise
func Classify(result Result, thresholds Thresholds) Decision {
	if result.OverallConfidence >= thresholds.AutoPublishMinConfidence && result.Summary.Errors == 0 {
		return DecisionAutoPublish
	}
	if result.OverallConfidence < thresholds.ReviewQueueMinConfidence {
		return DecisionHold
	}
	return DecisionReview
}
