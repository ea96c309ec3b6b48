package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperdesk/dedupe/config"
)

func baseAppConfig() *config.Config {
	return &config.Config{
		MatchWeightEmail:   0.35,
		MatchWeightPhone:   0.25,
		MatchWeightName:    0.20,
		MatchWeightCompany: 0.10,
		MatchWeightAddress: 0.10,
		AutoMergeThreshold: 0.92,
		ReviewThreshold:    0.75,
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("valid defaults", func(t *testing.T) {
		c, err := NewConfig(baseAppConfig())
		require.NoError(t, err)
		assert.Equal(t, 0.35, c.WeightEmail)
		assert.Equal(t, 0.92, c.AutoThreshold)
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := baseAppConfig()
		cfg.MatchWeightAddress = 0.30
		_, err := NewConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sum to 1.0")
	})

	t.Run("review threshold below auto threshold", func(t *testing.T) {
		cfg := baseAppConfig()
		cfg.ReviewThreshold = 0.95
		_, err := NewConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "below auto threshold")
	})

	t.Run("weight out of range", func(t *testing.T) {
		cfg := baseAppConfig()
		cfg.MatchWeightEmail = 1.5
		_, err := NewConfig(cfg)
		assert.Error(t, err)
	})

	t.Run("zero threshold rejected", func(t *testing.T) {
		cfg := baseAppConfig()
		cfg.ReviewThreshold = 0
		_, err := NewConfig(cfg)
		assert.Error(t, err)
	})
}
