package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Bucket
	}{
		{1.0, BucketHigh},
		{0.8, BucketHigh},
		{0.79999, BucketMedium},
		{0.5, BucketMedium},
		{0.49999, BucketLow},
		{0, BucketLow},
		{-1, BucketLow},
		{1.7, BucketHigh},
		{math.NaN(), BucketLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyScore(tt.score), "score %v", tt.score)
	}
}

func TestClassifyConfidence(t *testing.T) {
	tests := map[string]Bucket{
		"high":    BucketHigh,
		"HIGH":    BucketHigh,
		" Medium": BucketMedium,
		"low":     BucketLow,
		"unknown": BucketLow,
		"":        BucketLow,
		"0.8":     BucketHigh,
		"0.5":     BucketMedium,
		"0.49999": BucketLow,
	}

	for in, want := range tests {
		assert.Equal(t, want, ClassifyConfidence(in), "input %q", in)
	}
}
