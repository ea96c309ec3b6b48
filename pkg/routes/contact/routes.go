package contact

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	contactrepo "github.com/harperdesk/dedupe/internal/repositories/contact"
	"github.com/harperdesk/dedupe/pkg/appcontext"
	"github.com/harperdesk/dedupe/pkg/batch"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/matching"
	"github.com/harperdesk/dedupe/pkg/merging"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/normalize"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

var validate = validator.New()

// Register registers contact routes
func Register(g *echo.Group) {
	g.POST("", CreateContact)
	g.GET("/:id", GetContact)
	g.POST("/:id/normalize", NormalizeContact)
	g.POST("/:id/dedupe", DedupeContact)
	g.POST("/backfill", BackfillContacts)
	g.POST("/merge", MergeContacts)
}

func contactID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "invalid contact id")
	}
	return id, nil
}

func performedBy(ctx echo.Context) *string {
	userID := appcontext.GetUserID(ctx.Request().Context())
	if userID == "" {
		return nil
	}
	return &userID
}

// CreateContact creates a new contact, normalizes it, and runs candidate
// generation so duplicates surface immediately.
func CreateContact(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.CreateContact")
	defer span.End()

	var contact models.Contact
	if err := c.Bind(&contact); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	contact.ID = 0

	ctx, repo, err := ectoinject.GetContext[*contactrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, matcher, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, &contact)
	if err != nil {
		return err
	}

	normalize.Apply(created)
	if err := repo.UpdateNormalized(ctx, created); err != nil {
		return err
	}
	emitter.EmitContactNormalized(ctx, created)

	if _, err := matcher.Run(ctx, created.ID); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// GetContact gets a contact by id
func GetContact(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.GetContact")
	defer span.End()

	id, err := contactID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*contactrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contact)
}

// NormalizeContact recomputes a contact's derived comparison fields
func NormalizeContact(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.NormalizeContact")
	defer span.End()

	id, err := contactID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*contactrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	normalize.Apply(contact)
	if err := repo.UpdateNormalized(ctx, contact); err != nil {
		return err
	}
	emitter.EmitContactNormalized(ctx, contact)

	return c.JSON(http.StatusOK, contact)
}

// DedupeContact runs candidate generation for one contact
func DedupeContact(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.DedupeContact")
	defer span.End()

	id, err := contactID(c)
	if err != nil {
		return err
	}

	ctx, matcher, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := matcher.Run(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"contact_id": id, "candidates": created})
}

// BackfillContacts renormalizes an id range
func BackfillContacts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.BackfillContacts")
	defer span.End()

	var req models.BackfillRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, orchestrator, err := ectoinject.GetContext[*batch.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := orchestrator.Backfill(ctx, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// MergeContacts merges explicit duplicates into a primary contact
func MergeContacts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "contact.MergeContacts")
	defer span.End()

	var req models.MergeContactsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, merger, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := merger.MergeContacts(ctx, &req, performedBy(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
