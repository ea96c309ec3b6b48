package batch

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/harperdesk/dedupe/internal/repositories/candidate"
	"github.com/harperdesk/dedupe/internal/repositories/contact"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/matching"
	"github.com/harperdesk/dedupe/pkg/merging"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/normalize"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Config bounds a batch run.
type Config struct {
	ChunkSize   int
	DefaultDays int
	MaxContacts int // 0 means unbounded

	AutoMergeEnabled   bool
	AutoMergeMaxPerRun int
}

// Orchestrator drives normalization and candidate generation across the
// contact set in fixed-size pages, advancing an id cursor so an interrupted
// run resumes where it left off. Page reprocessing after a crash is safe
// because every stage is idempotent.
type Orchestrator struct {
	cfg        Config
	contacts   *contact.Repository
	candidates *candidate.Repository
	matcher    *matching.Engine
	merger     *merging.Engine
	emitter    *events.Emitter
	logger     ectologger.Logger
}

func NewOrchestrator(
	cfg Config,
	contacts *contact.Repository,
	candidates *candidate.Repository,
	matcher *matching.Engine,
	merger *merging.Engine,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		contacts:   contacts,
		candidates: candidates,
		matcher:    matcher,
		merger:     merger,
		emitter:    emitter,
		logger:     logger,
	}
}

// Run processes contacts page by page. A failure on one contact is logged
// and the run continues; only page-level store failures abort, leaving the
// cursor at the last completed page.
func (o *Orchestrator) Run(ctx context.Context, req *models.BatchRunRequest) (*models.BatchRunResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Orchestrator.Run")
	defer span.End()

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = o.cfg.ChunkSize
	}

	limit := req.Limit
	if limit <= 0 {
		limit = o.cfg.MaxContacts
	}

	var updatedSince *time.Time
	if req.RecentOnly {
		days := req.Days
		if days <= 0 {
			days = o.cfg.DefaultDays
		}
		since := time.Now().UTC().AddDate(0, 0, -days)
		updatedSince = &since
	}

	resp := &models.BatchRunResponse{}
	var lastID int64

	for {
		if err := ctx.Err(); err != nil {
			o.logger.WithContext(ctx).WithFields(map[string]any{"last_id": lastID}).Info("Batch run cancelled at page boundary")
			break
		}

		pageSize := chunkSize
		if limit > 0 && resp.Processed+pageSize > limit {
			pageSize = limit - resp.Processed
		}
		if pageSize <= 0 {
			break
		}

		page, err := o.contacts.ListPage(ctx, lastID, pageSize, updatedSince)
		if err != nil {
			return resp, err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			c := &page[i]
			lastID = c.ID

			created, err := o.processContact(ctx, c)
			if err != nil {
				o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": c.ID}).Error("Failed to process contact, continuing")
				continue
			}
			resp.Processed++
			resp.CandidatesCreated += created
		}

		resp.LastID = lastID
		if len(page) < pageSize {
			break
		}
	}

	if o.cfg.AutoMergeEnabled {
		merges, err := o.autoMergeSweep(ctx)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).Error("Auto-merge sweep aborted")
		}
		resp.MergesExecuted = merges
	}

	return resp, nil
}

func (o *Orchestrator) processContact(ctx context.Context, c *models.Contact) (int, error) {
	normalize.Apply(c)
	if err := o.contacts.UpdateNormalized(ctx, c); err != nil {
		return 0, err
	}
	o.emitter.EmitContactNormalized(ctx, c)

	return o.matcher.Run(ctx, c.ID)
}

// Backfill renormalizes an id range without candidate generation.
func (o *Orchestrator) Backfill(ctx context.Context, req *models.BackfillRequest) (*models.BackfillResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Orchestrator.Backfill")
	defer span.End()

	contacts, err := o.contacts.ListRange(ctx, req.FromID, req.ToID)
	if err != nil {
		return nil, err
	}

	resp := &models.BackfillResponse{}
	for i := range contacts {
		c := &contacts[i]
		normalize.Apply(c)
		if err := o.contacts.UpdateNormalized(ctx, c); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": c.ID}).Error("Failed to renormalize contact, continuing")
			continue
		}
		resp.Processed++
	}
	return resp, nil
}

// autoMergeSweep consumes approved candidates, bounded per run so a single
// batch invocation cannot fan out into unbounded merge transactions.
func (o *Orchestrator) autoMergeSweep(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Orchestrator.autoMergeSweep")
	defer span.End()

	approved, err := o.candidates.ListApproved(ctx, o.cfg.AutoMergeMaxPerRun)
	if err != nil {
		return 0, err
	}

	merges := 0
	for i := range approved {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := o.merger.MergeCandidate(ctx, approved[i].ID, models.MergeModeAuto, nil); err != nil {
			// A candidate consumed or invalidated since listing is expected
			// under concurrency; log and move on.
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": approved[i].ID}).Error("Auto-merge failed for candidate, continuing")
			continue
		}
		merges++
	}
	return merges, nil
}
