package crowd

import (
	"testing"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spread returns n headings around center plus (total-n) headings pointing
// the opposite way, each group spread over less than the tolerance.
func spread(center float64, n, total int) []float64 {
	out := make([]float64, 0, total)
	for i := range n {
		out = append(out, geo.NormalizeDegrees(center+float64(i%5)))
	}
	for i := range total - n {
		out = append(out, geo.NormalizeDegrees(center+180+float64(i%3)*40))
	}
	return out
}

func TestAnalyze_TooFewSamples(t *testing.T) {
	_, ok := Analyze([]float64{10, 10, 10, 10})
	assert.False(t, ok)

	_, ok = Analyze(nil)
	assert.False(t, ok)
}

func TestAnalyze_AlignmentBoundary(t *testing.T) {
	tests := []struct {
		name    string
		aligned int
		total   int
		wantOK  bool
	}{
		{name: "5 of 10 below threshold", aligned: 5, total: 10, wantOK: false},
		{name: "6 of 10 at threshold", aligned: 6, total: 10, wantOK: true},
		{name: "59 of 100", aligned: 59, total: 100, wantOK: false},
		{name: "60 of 100", aligned: 60, total: 100, wantOK: true},
		{name: "all aligned", aligned: 5, total: 5, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ok := Analyze(spread(90, tt.aligned, tt.total))
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.aligned, sig.DeviceCount)
			assert.InDelta(t, float64(tt.aligned)/float64(tt.total), sig.Confidence, 1e-9)
			assert.InDelta(t, 92, sig.Direction, 2.5)
		})
	}
}

func TestAnalyze_WrapsAroundNorth(t *testing.T) {
	sig, ok := Analyze([]float64{350, 355, 0, 5, 10, 2})
	require.True(t, ok)
	assert.Equal(t, 6, sig.DeviceCount)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.InDelta(t, 0, geo.CircularDifference(0.33, sig.Direction), 1)
}

func TestAnalyze_SplitCrowd(t *testing.T) {
	headings := []float64{10, 12, 14, 200, 202, 204}
	_, ok := Analyze(headings)
	assert.False(t, ok, "3 of 6 is below threshold")

	headings = []float64{10, 12, 14, 16, 200, 202}
	sig, ok := Analyze(headings)
	require.True(t, ok)
	assert.InDelta(t, 13, sig.Direction, 0.1)
	assert.Equal(t, 4, sig.DeviceCount)
}

func TestAnalyze_Deterministic(t *testing.T) {
	headings := []float64{40, 45, 50, 70, 75, 230, 235}
	first, ok1 := Analyze(headings)
	second, ok2 := Analyze(headings)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestHeadings_SkipsNil(t *testing.T) {
	h1, h2 := 10.0, 20.0
	samples := []domain.LocationSample{{Heading: &h1}, {}, {Heading: &h2}}
	assert.Equal(t, []float64{10, 20}, Headings(samples))
}
