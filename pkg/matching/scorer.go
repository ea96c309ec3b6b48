package matching

import (
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/similarity"
)

// Features are the per-pair similarity signals the scorer consumes. They are
// computed from normalized fields only; raw fields never reach the scorer.
type Features struct {
	EmailSim       float64
	PhoneEqual     bool
	NameSim        float64
	MetaphoneMatch bool
	CompanySim     float64
	AddressSim     float64
	NameExact      bool
}

// ComputeFeatures derives the scoring signals for a pair of contacts.
// EmailSim is the best pairwise similarity across each side's full email set;
// PhoneEqual is exact set overlap.
func ComputeFeatures(a, b *models.Contact) Features {
	f := Features{
		EmailSim:   similarity.BestPairwise(a.EmailSet(), b.EmailSet(), similarity.JaroWinkler),
		PhoneEqual: similarity.Overlap(a.PhoneSet(), b.PhoneSet()),
	}

	if a.FullNameNorm != nil && b.FullNameNorm != nil {
		f.NameSim = similarity.Trigram(*a.FullNameNorm, *b.FullNameNorm)
		f.NameExact = *a.FullNameNorm == *b.FullNameNorm
	}
	if a.MetaphoneLast != nil && b.MetaphoneLast != nil {
		f.MetaphoneMatch = *a.MetaphoneLast == *b.MetaphoneLast
	}
	if a.CompanyNorm != nil && b.CompanyNorm != nil {
		f.CompanySim = similarity.Trigram(*a.CompanyNorm, *b.CompanyNorm)
	}
	if a.AddressNorm != nil && b.AddressNorm != nil {
		f.AddressSim = similarity.Trigram(*a.AddressNorm, *b.AddressNorm)
	}
	return f
}

// Score computes the weighted similarity score for a pair in [0,1]. Bonuses
// are additive on top of the weighted sum and the result is clamped last, so
// strong multi-signal pairs saturate at 1.0.
func (c Config) Score(f Features) float64 {
	nameSim := f.NameSim
	if f.MetaphoneMatch && nameSim < 0.7 {
		nameSim = 0.7
	}

	phone := 0.0
	if f.PhoneEqual {
		phone = 1.0
	}

	score := c.WeightEmail*f.EmailSim +
		c.WeightPhone*phone +
		c.WeightName*nameSim +
		c.WeightCompany*f.CompanySim +
		c.WeightAddress*f.AddressSim

	if f.NameExact {
		score += 0.35
	}
	if f.MetaphoneMatch {
		score += 0.05
	}

	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}

// Decide maps a score to a candidate status. An empty status means the pair
// is discarded. An exact full-name match is never discarded, even with
// otherwise weak signals; a metaphone-only match gets the same fallback when
// the safety net is enabled.
func (c Config) Decide(score float64, f Features) string {
	switch {
	case score >= c.AutoThreshold:
		return models.CandidateStatusApproved
	case score >= c.ReviewThreshold:
		return models.CandidateStatusPending
	case f.NameExact:
		return models.CandidateStatusPending
	case c.MetaphoneSafetyNet && f.MetaphoneMatch:
		return models.CandidateStatusPending
	default:
		return ""
	}
}
