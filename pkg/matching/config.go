package matching

import (
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/harperdesk/dedupe/config"
)

// Config is the immutable scoring configuration, built once at startup and
// passed to the engine. Weights are over normalized-field similarities and
// must sum to 1.0 so a perfect multi-field match saturates the score.
type Config struct {
	WeightEmail   float64 `validate:"gte=0,lte=1"`
	WeightPhone   float64 `validate:"gte=0,lte=1"`
	WeightName    float64 `validate:"gte=0,lte=1"`
	WeightCompany float64 `validate:"gte=0,lte=1"`
	WeightAddress float64 `validate:"gte=0,lte=1"`

	// AutoThreshold and above auto-approves; ReviewThreshold and above queues
	// for review; below ReviewThreshold discards.
	AutoThreshold   float64 `validate:"gt=0,lte=1"`
	ReviewThreshold float64 `validate:"gt=0,lte=1"`

	// MetaphoneSafetyNet extends the exact-name review fallback to pairs
	// whose only signal is a metaphone match.
	MetaphoneSafetyNet bool
}

const weightSumTolerance = 1e-6

// NewConfig builds and validates the scoring configuration. Any violation is
// fatal at startup; the scorer never runs with undefined weights.
func NewConfig(cfg *config.Config) (Config, error) {
	c := Config{
		WeightEmail:        cfg.MatchWeightEmail,
		WeightPhone:        cfg.MatchWeightPhone,
		WeightName:         cfg.MatchWeightName,
		WeightCompany:      cfg.MatchWeightCompany,
		WeightAddress:      cfg.MatchWeightAddress,
		AutoThreshold:      cfg.AutoMergeThreshold,
		ReviewThreshold:    cfg.ReviewThreshold,
		MetaphoneSafetyNet: cfg.MetaphoneSafetyNet,
	}

	if err := validator.New().Struct(c); err != nil {
		return Config{}, errors.Wrap(err, "invalid matching configuration")
	}

	sum := c.WeightEmail + c.WeightPhone + c.WeightName + c.WeightCompany + c.WeightAddress
	if math.Abs(sum-1.0) > weightSumTolerance {
		return Config{}, errors.Errorf("matching weights must sum to 1.0, got %v", sum)
	}
	if c.ReviewThreshold >= c.AutoThreshold {
		return Config{}, errors.Errorf("review threshold %v must be below auto threshold %v", c.ReviewThreshold, c.AutoThreshold)
	}

	return c, nil
}
