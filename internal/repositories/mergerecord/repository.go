package mergerecord

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Repository handles the append-only merge audit trail
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends one merge record. Records are never updated or deleted.
func (r *Repository) Create(ctx context.Context, record *models.MergeRecord) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.PerformedAt = time.Now().UTC()

	sb := database.NewInsertBuilder()
	sb.InsertInto("dedupe_merges")
	sb.Cols("id", "entity_type", "survivor_id", "merged_id", "score", "mode", "details", "performed_by", "performed_at")
	sb.Values(record.ID, record.EntityType, record.SurvivorID, record.MergedID, record.Score, record.Mode, record.Details, record.PerformedBy, record.PerformedAt)

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"survivor_id": record.SurvivorID, "merged_id": record.MergedID}).Error("Failed to create merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}
	return record, nil
}

// ListBySurvivor returns the merge history that produced a contact
func (r *Repository) ListBySurvivor(ctx context.Context, survivorID int64) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListBySurvivor")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_type", "survivor_id", "merged_id", "score", "mode", "details", "performed_by", "performed_at")
	sb.From("dedupe_merges")
	sb.Where(sb.Equal("survivor_id", survivorID))
	sb.OrderBy("performed_at DESC")

	query, args := sb.Build()
	var records []models.MergeRecord
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"survivor_id": survivorID}).Error("Failed to list merge records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge records")
	}
	return records, nil
}
