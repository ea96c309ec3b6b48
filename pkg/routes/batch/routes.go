package batch

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	batchpkg "github.com/harperdesk/dedupe/pkg/batch"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Register registers batch routes
func Register(g *echo.Group) {
	g.POST("/run", RunBatch)
}

// RunBatch drives normalization and candidate generation across the contact
// set. Runs synchronously; callers bound the run with limit/chunk_size.
func RunBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.RunBatch")
	defer span.End()

	var req models.BatchRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Days < 0 || req.Limit < 0 || req.ChunkSize < 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "parameters must be non-negative")
	}

	ctx, orchestrator, err := ectoinject.GetContext[*batchpkg.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := orchestrator.Run(ctx, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
