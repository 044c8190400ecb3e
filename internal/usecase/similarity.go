// Package usecase contains application business logic services.
package usecase

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinLengthDelta is the default length difference, in characters, that a
// rewrite must reach to count as a real humanization.
const DefaultMinLengthDelta = 25

// SimilarityJudge decides whether an external rewrite is too close to its
// source to count as a humanization. The zero value uses DefaultMinLengthDelta.
type SimilarityJudge struct {
	MinLengthDelta int
}

// NewSimilarityJudge returns a judge with the given threshold; values <= 0 fall
// back to DefaultMinLengthDelta.
func NewSimilarityJudge(minLengthDelta int) SimilarityJudge {
	if minLengthDelta <= 0 {
		minLengthDelta = DefaultMinLengthDelta
	}
	return SimilarityJudge{MinLengthDelta: minLengthDelta}
}

// TooSimilar reports whether rewritten should be rejected as a failed
// humanization of original.
func (j SimilarityJudge) TooSimilar(original, rewritten string) bool {
	if original == "" || rewritten == "" {
		return true
	}
	a := strings.TrimSpace(strings.ToLower(original))
	b := strings.TrimSpace(strings.ToLower(rewritten))
	if a == b {
		return true
	}
	delta := utf8.RuneCountInString(a) - utf8.RuneCountInString(b)
	if delta < 0 {
		delta = -delta
	}
	return delta < j.threshold()
}

func (j SimilarityJudge) threshold() int {
	if j.MinLengthDelta <= 0 {
		return DefaultMinLengthDelta
	}
	return j.MinLengthDelta
}

// IsTooSimilar applies the default judge.
func IsTooSimilar(original, rewritten string) bool {
	return SimilarityJudge{}.TooSimilar(original, rewritten)
}
