package matching

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Classify(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, TierHigh, p.Classify(100))
	assert.Equal(t, TierHigh, p.Classify(70))
	assert.Equal(t, TierLow, p.Classify(69))
	assert.Equal(t, TierLow, p.Classify(50))
	assert.Equal(t, TierReject, p.Classify(49))
}

func TestLoadPolicy(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		p, err := LoadPolicy("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPolicy(), p)
	})

	t.Run("file overrides only the keys it sets", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("high_confidence: 80\nsignals:\n  representative: 40\n"), 0o600))

		p, err := LoadPolicy(path)
		require.NoError(t, err)
		assert.Equal(t, 80, p.HighConfidence)
		assert.Equal(t, 50, p.LowConfidence)
		assert.Equal(t, 40, p.Signals.Representative)
		assert.Equal(t, 50, p.Signals.AddressExact)
	})

	t.Run("inverted tiers are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("high_confidence: 40\n"), 0o600))

		_, err := LoadPolicy(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestScorer(t *testing.T) {
	s := NewScorer(DefaultPolicy())

	t.Run("address overlap", func(t *testing.T) {
		ok, depth := s.AddressOverlap("東京都千代田区丸の内1-1-1", "千代田区丸の内1-1-1")
		assert.True(t, ok)
		assert.Equal(t, 1.0, depth)

		ok, _ = s.AddressOverlap("東京都千代田区丸の内1-1-1", "東京都千代田区丸の内2-3-4")
		assert.False(t, ok, "seven shared characters is below the prefix length")

		ok, _ = s.AddressOverlap("東京都千代田区丸の内一丁目1-1", "東京都千代田区丸の内一丁目2-2")
		assert.True(t, ok, "shared prefix of ten or more characters")

		ok, _ = s.AddressOverlap("", "東京都")
		assert.False(t, ok)
	})

	t.Run("partial score band", func(t *testing.T) {
		assert.Equal(t, 50, s.PartialAddressScore(0))
		assert.Equal(t, 75, s.PartialAddressScore(1))
		assert.Equal(t, 69, s.PartialAddressScore(0.75))
	})

	t.Run("core match", func(t *testing.T) {
		assert.True(t, s.CoreMatch("テスト工業", "テスト工業"))
		assert.True(t, s.CoreMatch("テスト工業", "テスト工業所"))
		assert.False(t, s.CoreMatch("テスト", "テスト工業所"))
		assert.False(t, s.CoreMatch("", "テスト"))
	})
}

func TestLoadPolicy_ExampleFileMatchesDefaults(t *testing.T) {
	p, err := LoadPolicy("../../config/policy.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}
