package candidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	candidaterepo "github.com/harperdesk/dedupe/internal/repositories/candidate"
	"github.com/harperdesk/dedupe/pkg/appcontext"
	"github.com/harperdesk/dedupe/pkg/merging"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Register registers candidate review routes
func Register(g *echo.Group) {
	g.GET("", ListCandidates)
	g.POST("/:id/merge", MergeCandidate)
	g.POST("/:id/reject", RejectCandidate)
}

func performedBy(ctx echo.Context) *string {
	userID := appcontext.GetUserID(ctx.Request().Context())
	if userID == "" {
		return nil
	}
	return &userID
}

// ListCandidates lists candidates for operator review
func ListCandidates(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "candidate.ListCandidates")
	defer span.End()

	status := c.QueryParam("status")
	if status == "" {
		status = models.CandidateStatusPending
	}
	switch status {
	case models.CandidateStatusPending, models.CandidateStatusApproved, models.CandidateStatusRejected, models.CandidateStatusMerged:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	minScore := 0.0
	if ms := c.QueryParam("min_score"); ms != "" {
		parsed, err := strconv.ParseFloat(ms, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid min_score")
		}
		minScore = parsed
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	ctx, repo, err := ectoinject.GetContext[*candidaterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := repo.List(ctx, status, minScore, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

// MergeCandidate consumes a candidate, merging the pair
func MergeCandidate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "candidate.MergeCandidate")
	defer span.End()

	id := c.Param("id")

	ctx, merger, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := merger.MergeCandidate(ctx, id, models.MergeModeManual, performedBy(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// RejectCandidate dismisses a candidate
func RejectCandidate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "candidate.RejectCandidate")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*candidaterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Resolve(ctx, id, models.CandidateStatusRejected, performedBy(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
