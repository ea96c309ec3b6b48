package touchpoint

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Repository handles touchpoint persistence
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

// Repoint moves every touchpoint owned by fromID onto toID. This is the only
// mutation of touchpoint ownership after creation and runs inside the merge
// transaction.
func (r *Repository) Repoint(ctx context.Context, fromID, toID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "touchpoint.Repository.Repoint")
	defer span.End()

	exec := database.ExecutorFromContext(ctx, r.db)
	result, err := exec.ExecContext(ctx, "UPDATE touchpoints SET contact_id = $1 WHERE contact_id = $2", toID, fromID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "to_id": toID}).Error("Failed to repoint touchpoints")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint touchpoints")
	}

	moved, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read repoint result")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint touchpoints")
	}
	return moved, nil
}

// ListByContact returns a contact's touchpoints, most recent first
func (r *Repository) ListByContact(ctx context.Context, contactID int64) ([]models.Touchpoint, error) {
	ctx, span := tracing.StartSpan(ctx, "touchpoint.Repository.ListByContact")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "contact_id", "kind", "note", "occurred_at", "created_at")
	sb.From("touchpoints")
	sb.Where(sb.Equal("contact_id", contactID))
	sb.OrderBy("occurred_at DESC")

	query, args := sb.Build()
	var touchpoints []models.Touchpoint
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &touchpoints, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contactID}).Error("Failed to list touchpoints")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list touchpoints")
	}
	return touchpoints, nil
}
