package matching

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/harperdesk/dedupe/internal/repositories/candidate"
	"github.com/harperdesk/dedupe/internal/repositories/contact"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/similarity"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Engine runs candidate generation for a contact: a deterministic pre-pass
// over exact identity signals, then fuzzy scoring over blocked pairs.
type Engine struct {
	cfg        Config
	contacts   *contact.Repository
	candidates *candidate.Repository
	logger     ectologger.Logger
}

func NewEngine(cfg Config, contacts *contact.Repository, candidates *candidate.Repository, logger ectologger.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		contacts:   contacts,
		candidates: candidates,
		logger:     logger,
	}
}

// Run executes the full pipeline for one contact and returns the number of
// candidate rows written or refreshed.
func (e *Engine) Run(ctx context.Context, contactID int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Run")
	defer span.End()

	deterministic, err := e.RunDeterministic(ctx, contactID)
	if err != nil {
		return 0, err
	}

	fuzzy, err := e.RunFuzzy(ctx, contactID)
	if err != nil {
		return deterministic, err
	}
	return deterministic + fuzzy, nil
}

// RunDeterministic creates approved candidates for every contact sharing a
// normalized email or phone with the subject. Exact identity signals bypass
// the weighted scorer entirely.
func (e *Engine) RunDeterministic(ctx context.Context, contactID int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.RunDeterministic")
	defer span.End()

	subject, err := e.contacts.Get(ctx, contactID)
	if err != nil {
		return 0, err
	}

	created := 0

	emailMatches, err := e.contacts.FindExactEmailMatches(ctx, subject)
	if err != nil {
		return created, err
	}
	for i := range emailMatches {
		if _, err := e.candidates.Upsert(ctx, subject.ID, emailMatches[i].ID, 1.0, models.CandidateReasonEmailExact, models.CandidateStatusApproved); err != nil {
			return created, err
		}
		created++
	}

	phoneMatches, err := e.contacts.FindExactPhoneMatches(ctx, subject)
	if err != nil {
		return created, err
	}
	for i := range phoneMatches {
		if similarity.Overlap(subject.EmailSet(), phoneMatches[i].EmailSet()) {
			continue // already recorded as email_exact
		}
		if _, err := e.candidates.Upsert(ctx, subject.ID, phoneMatches[i].ID, 1.0, models.CandidateReasonPhoneExact, models.CandidateStatusApproved); err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}

// RunFuzzy scores every blocked partner of the subject and upserts the
// resulting candidates. Pairs already covered by the deterministic pre-pass
// are skipped so their exact-match rows are not overwritten with a weaker
// fuzzy score.
func (e *Engine) RunFuzzy(ctx context.Context, contactID int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.RunFuzzy")
	defer span.End()

	subject, err := e.contacts.Get(ctx, contactID)
	if err != nil {
		return 0, err
	}

	partners, err := e.contacts.FindBlockingPartners(ctx, subject)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range partners {
		partner := &partners[i]
		if similarity.Overlap(subject.EmailSet(), partner.EmailSet()) || similarity.Overlap(subject.PhoneSet(), partner.PhoneSet()) {
			continue
		}

		features := ComputeFeatures(subject, partner)
		score := e.cfg.Score(features)
		status := e.cfg.Decide(score, features)
		if status == "" {
			continue
		}

		if _, err := e.candidates.Upsert(ctx, subject.ID, partner.ID, score, models.CandidateReasonBlockScore, status); err != nil {
			return created, err
		}
		created++
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{"contact_id": contactID, "partners": len(partners), "candidates": created}).Debug("Scored blocked pairs")
	return created, nil
}
