package qualitygate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Step is the slice of a generated step the quality checks look at.
type Step struct {
	Title           string
	Instruction     string
	IllustrationURL string
	Tip             string
}

// Checker runs quality checks over a generated artifact's steps. The
// heuristics are policy and deliberately pluggable; only the Result contract
// is relied on by the pipeline.
type Checker interface {
	RunQualityChecks(steps []Step, sourcePageCount int) Result
}

const (
	minInstructionLength = 20
	errorPenalty         = 0.20
	warningPenalty       = 0.05
)

// DefaultChecker applies a small set of deterministic per-step checks.
type DefaultChecker struct{}

var _ Checker = (*DefaultChecker)(nil)

func NewDefaultChecker() *DefaultChecker {
	return &DefaultChecker{}
}

func (c *DefaultChecker) RunQualityChecks(steps []Step, sourcePageCount int) Result {
	var result Result

	if len(steps) == 0 {
		result.Summary.Errors++
		result.Flags = append(result.Flags, "no_steps")
	}

	for i, step := range steps {
		n := i + 1
		if strings.TrimSpace(step.Instruction) == "" {
			result.Summary.Errors++
			result.Flags = append(result.Flags, fmt.Sprintf("step_%d_missing_instruction", n))
		} else if utf8.RuneCountInString(step.Instruction) < minInstructionLength {
			result.Summary.Warnings++
			result.Flags = append(result.Flags, fmt.Sprintf("step_%d_short_instruction", n))
		}
		if strings.TrimSpace(step.Title) == "" {
			result.Summary.Warnings++
			result.Flags = append(result.Flags, fmt.Sprintf("step_%d_missing_title", n))
		}
	}

	// A multi-page document boiled down to a couple of steps usually means
	// the extraction skipped content.
	if sourcePageCount > 0 && len(steps) > 0 && len(steps)*2 < sourcePageCount {
		result.Summary.Warnings++
		result.Flags = append(result.Flags, "step_count_low_for_page_count")
	}

	confidence := 1.0 -
		float64(result.Summary.Errors)*errorPenalty -
		float64(result.Summary.Warnings)*warningPenalty
	if confidence < 0 {
		confidence = 0
	}
	result.OverallConfidence = confidence

	return result
}

// Merge folds the generation provider's own confidence and flags into a
// checks result. The pessimistic confidence wins.
func Merge(providerConfidence float64, providerFlags []string, checks Result) Result {
	merged := checks
	if providerConfidence < merged.OverallConfidence {
		merged.OverallConfidence = providerConfidence
	}
	merged.Flags = append(append([]string{}, providerFlags...), checks.Flags...)
	return merged
}
