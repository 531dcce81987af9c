package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLadder_Downgrade(t *testing.T) {
	t.Run("walks the tiers in order", func(t *testing.T) {
		l := NewLadder()
		assert.Equal(t, QualityAuto, l.Tier())

		want := []QualityTier{QualityUltra, QualityHigh, QualityMedium, QualityLow}
		for i, expected := range want {
			tier, ok := l.Downgrade(10)
			assert.True(t, ok)
			assert.Equal(t, expected, tier)
			assert.Equal(t, i+1, l.Downgrades())
		}
	})

	t.Run("refuses at terminal tier", func(t *testing.T) {
		l := NewLadder()
		for i := 0; i < 4; i++ {
			_, ok := l.Downgrade(10)
			assert.True(t, ok)
		}
		assert.Equal(t, QualityLow, l.Tier())

		tier, ok := l.Downgrade(10)
		assert.False(t, ok)
		assert.Equal(t, QualityLow, tier)
		assert.Equal(t, 4, l.Downgrades())
	})

	t.Run("refuses at the caller-supplied bound", func(t *testing.T) {
		l := NewLadder()
		for i := 0; i < 3; i++ {
			_, ok := l.Downgrade(3)
			assert.True(t, ok)
		}

		// Bound reached: refused even though the tier has headroom.
		tier, ok := l.Downgrade(3)
		assert.False(t, ok)
		assert.Equal(t, QualityMedium, tier)

		// A higher bound admits one more.
		tier, ok = l.Downgrade(5)
		assert.True(t, ok)
		assert.Equal(t, QualityLow, tier)
	})

	t.Run("reset restores auto", func(t *testing.T) {
		l := NewLadder()
		l.Downgrade(10)
		l.Downgrade(10)
		l.Reset()
		assert.Equal(t, QualityAuto, l.Tier())
		assert.Equal(t, 0, l.Downgrades())
	})
}

func TestQualityTier_String(t *testing.T) {
	assert.Equal(t, "auto", QualityAuto.String())
	assert.Equal(t, "ultra", QualityUltra.String())
	assert.Equal(t, "high", QualityHigh.String())
	assert.Equal(t, "medium", QualityMedium.String())
	assert.Equal(t, "low", QualityLow.String())
}
