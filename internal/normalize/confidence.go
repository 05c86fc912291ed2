package normalize

import (
	"strconv"
	"strings"
)

// Bucket is a three-level severity class for confidence values.
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

const (
	highThreshold   = 0.8
	mediumThreshold = 0.5
)

// ClassifyScore buckets a 0-1 score: [0.8, ∞) high, [0.5, 0.8) medium,
// everything else (NaN included) low.
func ClassifyScore(score float64) Bucket {
	switch {
	case score >= highThreshold:
		return BucketHigh
	case score >= mediumThreshold:
		return BucketMedium
	default:
		return BucketLow
	}
}

// ClassifyConfidence buckets an enum string such as "High" or "medium".
// Numeric strings are classified as scores; anything unrecognised is low.
func ClassifyConfidence(value string) Bucket {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case string(BucketHigh):
		return BucketHigh
	case string(BucketMedium):
		return BucketMedium
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return ClassifyScore(f)
	}
	return BucketLow
}
