package textengine

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Review thresholds.
const (
	MinReviewTextLength = 20
	MinDiffScore        = 75
	MinConfidence       = 70
)

// Similarity is the Jaccard index of the lower-cased whitespace token sets of
// a and b, scaled to 0-100 and rounded. Two empty texts are identical.
func Similarity(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 100
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return int(math.Round(float64(intersection) / float64(union) * 100))
}

// NeedsReview reports whether a page reading is too short, disagrees with
// its second reading, or was recognized with low confidence.
func NeedsReview(text string, diffScore, confidence *int) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinReviewTextLength {
		return true
	}
	if diffScore != nil && *diffScore < MinDiffScore {
		return true
	}
	if confidence != nil && *confidence < MinConfidence {
		return true
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
