package bitrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_SixtySecondsUnder32MB(t *testing.T) {
	b, err := Plan(DefaultParams(60, 32))
	require.NoError(t, err)

	assert.InDelta(t, 32*0.85*1024*8/60.0, b.TotalKbps, 1e-9)
	// 32 MB * 0.85 * 8192 / 60 s = 3713.71 kbps, less 128 kbps of audio.
	assert.InDelta(t, 32*0.85*1024*8/60.0-128, b.VideoKbps, 1e-9)
	assert.InDelta(t, 3585.71, b.VideoKbps, 0.01)
	assert.False(t, b.LowQuality)
	assert.Equal(t, "3585k", b.EncoderArg())
}

func TestPlan_LowQualityIsFlaggedNotClamped(t *testing.T) {
	b, err := Plan(DefaultParams(600, 32))
	require.NoError(t, err)

	assert.True(t, b.LowQuality)
	assert.InDelta(t, 32*0.85*1024*8/600.0-128, b.VideoKbps, 1e-9)
}

func TestPlan_NegativeBudgetIsReturnedAsIs(t *testing.T) {
	b, err := Plan(DefaultParams(10000, 1))
	require.NoError(t, err)

	assert.Less(t, b.VideoKbps, 0.0)
	assert.True(t, b.LowQuality)
}

func TestPlan_CustomParams(t *testing.T) {
	b, err := Plan(Params{
		TotalDurationSeconds: 30,
		MaxFileSizeMB:        10,
		SafetyMargin:         1,
		AudioBitrateKbps:     0,
	})
	require.NoError(t, err)

	assert.InDelta(t, 10*1024*8/30.0, b.VideoKbps, 1e-9)
}

func TestPlan_InvalidDuration(t *testing.T) {
	for _, d := range []float64{0, -5} {
		_, err := Plan(DefaultParams(d, 32))
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}
