// Package crowd infers a dominant movement direction from anonymized device
// headings.
package crowd

import (
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

const (
	// MinHeadedSamples is the smallest crowd worth analyzing.
	MinHeadedSamples = 5
	// DirectionToleranceDegrees bounds how far a heading may stray from the
	// anchor and still count as aligned.
	DirectionToleranceDegrees = 30.0
	// AlignmentThreshold is the aligned fraction required for a signal.
	AlignmentThreshold = 0.60
)

// Signal is a detected crowd movement.
type Signal struct {
	Direction   float64 `json:"direction"`
	Confidence  float64 `json:"confidence"`
	DeviceCount int     `json:"device_count"`
}

// Headings extracts the non-null headings of samples in order.
func Headings(samples []domain.LocationSample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Heading != nil {
			out = append(out, *s.Heading)
		}
	}
	return out
}

// Analyze runs single-pass majority clustering over headings. The anchor is
// the heading with the most headings (itself included) within tolerance;
// ties go to the earliest. It reports false when fewer than MinHeadedSamples
// headings are given or the aligned fraction is below AlignmentThreshold.
func Analyze(headings []float64) (Signal, bool) {
	total := len(headings)
	if total < MinHeadedSamples {
		return Signal{}, false
	}

	anchor, support := 0, -1
	for i, hi := range headings {
		n := 0
		for _, hj := range headings {
			if geo.CircularDifference(hi, hj) <= DirectionToleranceDegrees {
				n++
			}
		}
		if n > support {
			anchor, support = i, n
		}
	}

	// Compared as integers so 0.60 boundaries are exact.
	if support*100 < int(AlignmentThreshold*100)*total {
		return Signal{}, false
	}

	aligned := make([]float64, 0, support)
	for _, h := range headings {
		if geo.CircularDifference(headings[anchor], h) <= DirectionToleranceDegrees {
			aligned = append(aligned, h)
		}
	}
	return Signal{
		Direction:   geo.CircularMean(aligned),
		Confidence:  float64(support) / float64(total),
		DeviceCount: len(aligned),
	}, true
}
