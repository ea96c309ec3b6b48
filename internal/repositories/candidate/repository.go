package candidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Repository handles dedupe candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or updates the candidate row for an unordered pair. The pair
// is canonicalized to (min, max) before the write so callers arriving from
// either side converge on the same row.
func (r *Repository) Upsert(ctx context.Context, idA, idB int64, score float64, reason, status string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Upsert")
	defer span.End()

	id1, id2 := idA, idB
	if id1 > id2 {
		id1, id2 = id2, id1
	}

	now := time.Now().UTC()
	candidate := &models.Candidate{
		ID:         uuid.New().String(),
		EntityType: models.EntityTypeContact,
		ContactID1: id1,
		ContactID2: id2,
		Score:      score,
		Reason:     reason,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Resolved rows are terminal: a merged or rejected pair is not reopened
	// by a re-score.
	query := `
		INSERT INTO dedupe_candidates (id, entity_type, contact_id_1, contact_id_2, score, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity_type, contact_id_1, contact_id_2) DO UPDATE
		SET score = EXCLUDED.score,
		    reason = EXCLUDED.reason,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
		WHERE dedupe_candidates.status IN ($10, $11)
		RETURNING id, status, created_at
	`
	exec := database.ExecutorFromContext(ctx, r.db)
	row := exec.QueryRowxContext(ctx, query,
		candidate.ID, candidate.EntityType, candidate.ContactID1, candidate.ContactID2,
		candidate.Score, candidate.Reason, candidate.Status, candidate.CreatedAt, candidate.UpdatedAt,
		models.CandidateStatusPending, models.CandidateStatusApproved,
	)
	if err := row.Scan(&candidate.ID, &candidate.Status, &candidate.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Existing row is merged or rejected; leave it alone.
			return r.GetByPair(ctx, id1, id2)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id_1": id1, "contact_id_2": id2}).Error("Failed to upsert candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert candidate")
	}
	return candidate, nil
}

// GetByID retrieves a candidate by its id
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_type", "contact_id_1", "contact_id_2", "score", "reason", "status", "created_at", "updated_at", "resolved_at", "resolved_by")
	sb.From("dedupe_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)

	var candidate models.Candidate
	if err := exec.GetContext(ctx, &candidate, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to get candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate")
	}
	return &candidate, nil
}

// GetByPair retrieves the candidate row for an unordered pair
func (r *Repository) GetByPair(ctx context.Context, idA, idB int64) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByPair")
	defer span.End()

	id1, id2 := idA, idB
	if id1 > id2 {
		id1, id2 = id2, id1
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_type", "contact_id_1", "contact_id_2", "score", "reason", "status", "created_at", "updated_at", "resolved_at", "resolved_by")
	sb.From("dedupe_candidates")
	sb.Where(
		sb.Equal("entity_type", models.EntityTypeContact),
		sb.Equal("contact_id_1", id1),
		sb.Equal("contact_id_2", id2),
	)

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)

	var candidate models.Candidate
	if err := exec.GetContext(ctx, &candidate, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("candidate for pair (%d, %d) not found", id1, id2))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id_1": id1, "contact_id_2": id2}).Error("Failed to get candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate")
	}
	return &candidate, nil
}

// List returns candidates with the given status and a minimum score, joined
// with summary fields of both contacts for operator review. Pairs where
// either contact has since been deleted are skipped as stale.
func (r *Repository) List(ctx context.Context, status string, minScore float64, limit int) ([]models.CandidateReview, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT c.id, c.entity_type, c.contact_id_1, c.contact_id_2, c.score, c.reason, c.status, c.created_at, c.updated_at, c.resolved_at, c.resolved_by,
		       a.id AS "contact_a.id", a.name AS "contact_a.name", a.primary_email AS "contact_a.primary_email", a.primary_phone AS "contact_a.primary_phone", a.company AS "contact_a.company",
		       b.id AS "contact_b.id", b.name AS "contact_b.name", b.primary_email AS "contact_b.primary_email", b.primary_phone AS "contact_b.primary_phone", b.company AS "contact_b.company"
		FROM dedupe_candidates c
		JOIN contacts a ON a.id = c.contact_id_1 AND a.deleted_at IS NULL
		JOIN contacts b ON b.id = c.contact_id_2 AND b.deleted_at IS NULL
		WHERE c.status = $1
		  AND c.score >= $2
		ORDER BY c.score DESC, c.created_at ASC
		LIMIT $3
	`
	var reviews []models.CandidateReview
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &reviews, query, status, minScore, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status, "min_score": minScore}).Error("Failed to list candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}
	return reviews, nil
}

// ListApproved returns up to limit approved candidates ordered by score,
// for the auto-merge sweep.
func (r *Repository) ListApproved(ctx context.Context, limit int) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListApproved")
	defer span.End()

	// Pairs citing a deleted contact are stale; listing them would let
	// unresolvable rows occupy sweep slots ahead of mergeable ones.
	sb := database.NewSelectBuilder()
	sb.Select("c.id", "c.entity_type", "c.contact_id_1", "c.contact_id_2", "c.score", "c.reason", "c.status", "c.created_at", "c.updated_at", "c.resolved_at", "c.resolved_by")
	sb.From("dedupe_candidates c")
	sb.Join("contacts a", "a.id = c.contact_id_1", "a.deleted_at IS NULL")
	sb.Join("contacts b", "b.id = c.contact_id_2", "b.deleted_at IS NULL")
	sb.Where(sb.Equal("c.status", models.CandidateStatusApproved))
	sb.OrderBy("c.score DESC", "c.created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.Candidate
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list approved candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approved candidates")
	}
	return candidates, nil
}

// Resolve transitions a candidate to a terminal status and stamps who
// resolved it. Returns NotFound if the candidate was already resolved, so a
// second operator acting on a stale list gets a hard failure rather than a
// silent no-op.
func (r *Repository) Resolve(ctx context.Context, id, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Resolve")
	defer span.End()

	query := `
		UPDATE dedupe_candidates
		SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
		WHERE id = $4
		  AND status IN ($5, $6)
	`
	now := time.Now().UTC()
	exec := database.ExecutorFromContext(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, status, now, resolvedBy, id, models.CandidateStatusPending, models.CandidateStatusApproved)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id, "status": status}).Error("Failed to resolve candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve candidate")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read resolve result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve candidate")
	}
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("candidate %s already resolved", id))
	}
	return nil
}

// MarkPairsMerged resolves every open candidate touching any of the merged
// ids so stale pairs do not linger after a merge.
func (r *Repository) MarkPairsMerged(ctx context.Context, survivorID int64, mergedIDs []int64, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.MarkPairsMerged")
	defer span.End()

	if len(mergedIDs) == 0 {
		return nil
	}

	// Any open pair with a merged contact on either side is closed: the
	// absorbed contact no longer exists, so the pair can never be acted on.
	// The survivor's own open pairs with third parties stay untouched.
	query := `
		UPDATE dedupe_candidates
		SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
		WHERE status IN ($4, $5)
		  AND (contact_id_1 = ANY($6) OR contact_id_2 = ANY($6))
	`
	now := time.Now().UTC()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, models.CandidateStatusMerged, now, resolvedBy,
		models.CandidateStatusPending, models.CandidateStatusApproved, pq.Array(mergedIDs)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"survivor_id": survivorID}).Error("Failed to mark pair candidates merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark candidates merged")
	}
	return nil
}
