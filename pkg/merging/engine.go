package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/harperdesk/dedupe/internal/repositories/candidate"
	"github.com/harperdesk/dedupe/internal/repositories/contact"
	"github.com/harperdesk/dedupe/internal/repositories/mergerecord"
	"github.com/harperdesk/dedupe/internal/repositories/touchpoint"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/normalize"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Engine collapses two or more contacts into one survivor inside a single
// transaction. Both entry points, candidate-driven and operator-driven, run
// through the same merge body and carry the same guarantees.
type Engine struct {
	contacts     *contact.Repository
	candidates   *candidate.Repository
	touchpoints  *touchpoint.Repository
	mergeRecords *mergerecord.Repository
	emitter      *events.Emitter
	defaults     models.MergeOptions
	txTimeout    time.Duration
	logger       ectologger.Logger
}

const defaultTxTimeout = 30 * time.Second

func NewEngine(
	contacts *contact.Repository,
	candidates *candidate.Repository,
	touchpoints *touchpoint.Repository,
	mergeRecords *mergerecord.Repository,
	emitter *events.Emitter,
	defaults models.MergeOptions,
	txTimeout time.Duration,
	logger ectologger.Logger,
) *Engine {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Engine{
		contacts:     contacts,
		candidates:   candidates,
		touchpoints:  touchpoints,
		mergeRecords: mergeRecords,
		emitter:      emitter,
		defaults:     defaults,
		txTimeout:    txTimeout,
		logger:       logger,
	}
}

type scalarField struct {
	name string
	get  func(*models.Contact) *string
	set  func(*models.Contact, *string)
}

// mergeableFields is the explicit list of scalar fields a merge may fill or
// override. Fields outside this list never move between contacts.
var mergeableFields = []scalarField{
	{"name", func(c *models.Contact) *string { return c.Name }, func(c *models.Contact, v *string) { c.Name = v }},
	{"primary_email", func(c *models.Contact) *string { return c.PrimaryEmail }, func(c *models.Contact, v *string) { c.PrimaryEmail = v }},
	{"secondary_email", func(c *models.Contact) *string { return c.SecondaryEmail }, func(c *models.Contact, v *string) { c.SecondaryEmail = v }},
	{"primary_phone", func(c *models.Contact) *string { return c.PrimaryPhone }, func(c *models.Contact, v *string) { c.PrimaryPhone = v }},
	{"secondary_phone", func(c *models.Contact) *string { return c.SecondaryPhone }, func(c *models.Contact, v *string) { c.SecondaryPhone = v }},
	{"company", func(c *models.Contact) *string { return c.Company }, func(c *models.Contact, v *string) { c.Company = v }},
	{"website", func(c *models.Contact) *string { return c.Website }, func(c *models.Contact, v *string) { c.Website = v }},
	{"address", func(c *models.Contact) *string { return c.Address }, func(c *models.Contact, v *string) { c.Address = v }},
	{"notes", func(c *models.Contact) *string { return c.Notes }, func(c *models.Contact, v *string) { c.Notes = v }},
}

func isEmpty(v *string) bool {
	return v == nil || *v == ""
}

// SelectSurvivor picks the contact that remains after a merge: highest
// completeness wins, ties broken by most recent update, then by higher id.
// Deterministic for any input order.
func SelectSurvivor(contacts []*models.Contact) *models.Contact {
	var survivor *models.Contact
	for _, c := range contacts {
		if survivor == nil {
			survivor = c
			continue
		}
		switch {
		case c.Completeness() != survivor.Completeness():
			if c.Completeness() > survivor.Completeness() {
				survivor = c
			}
		case !c.UpdatedAt.Equal(survivor.UpdatedAt):
			if c.UpdatedAt.After(survivor.UpdatedAt) {
				survivor = c
			}
		case c.ID > survivor.ID:
			survivor = c
		}
	}
	return survivor
}

// MergeCandidate consumes one candidate: the survivor is selected
// automatically and the other contact absorbed.
func (e *Engine) MergeCandidate(ctx context.Context, candidateID string, mode models.MergeMode, performedBy *string) (*models.MergeCandidateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeCandidate")
	defer span.End()

	cand, err := e.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if cand.Status != models.CandidateStatusPending && cand.Status != models.CandidateStatusApproved {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("candidate %s already resolved as %s", candidateID, cand.Status))
	}

	a, err := e.contacts.Get(ctx, cand.ContactID1)
	if err != nil {
		return nil, err
	}
	b, err := e.contacts.Get(ctx, cand.ContactID2)
	if err != nil {
		return nil, err
	}

	survivor := SelectSurvivor([]*models.Contact{a, b})
	merged := a
	if survivor == a {
		merged = b
	}

	details, _ := json.Marshal(map[string]any{"candidate_id": cand.ID, "reason": cand.Reason})
	err = e.merge(ctx, survivor.ID, []int64{merged.ID}, mergeParams{
		score:       cand.Score,
		mode:        mode,
		candidateID: &cand.ID,
		details:     details,
		options:     e.defaults,
		performedBy: performedBy,
	})
	if err != nil {
		return nil, err
	}

	return &models.MergeCandidateResponse{SurvivorID: survivor.ID, MergedID: merged.ID}, nil
}

// MergeContacts is the operator-driven entry point: an explicit primary
// absorbs the listed duplicates, with optional field overrides.
func (e *Engine) MergeContacts(ctx context.Context, req *models.MergeContactsRequest, performedBy *string) (*models.MergeContactsResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeContacts")
	defer span.End()

	seen := map[int64]bool{req.PrimaryID: true}
	duplicateIDs := make([]int64, 0, len(req.DuplicateIDs))
	for _, id := range req.DuplicateIDs {
		if id == req.PrimaryID {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "primary contact cannot be merged into itself")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		duplicateIDs = append(duplicateIDs, id)
	}
	if len(duplicateIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no duplicate contacts to merge")
	}

	for field := range req.Overrides {
		if !overridableField(field) {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown override field %q", field))
		}
	}

	options := e.defaults
	if req.Options != nil {
		options = *req.Options
		if options.Retention == "" {
			options.Retention = e.defaults.Retention
		}
	}

	details, _ := json.Marshal(map[string]any{"duplicate_ids": duplicateIDs})
	err := e.merge(ctx, req.PrimaryID, duplicateIDs, mergeParams{
		mode:        models.MergeModeManual,
		details:     details,
		overrides:   req.Overrides,
		options:     options,
		performedBy: performedBy,
	})
	if err != nil {
		return nil, err
	}

	return &models.MergeContactsResponse{PrimaryID: req.PrimaryID, Merged: duplicateIDs}, nil
}

func overridableField(name string) bool {
	for _, f := range mergeableFields {
		if f.name == name {
			return true
		}
	}
	return false
}

type mergeParams struct {
	score       float64
	mode        models.MergeMode
	candidateID *string
	details     json.RawMessage
	overrides   map[string]*string
	options     models.MergeOptions
	performedBy *string
}

// merge is the shared transactional body. Every step runs inside one
// transaction; any failure rolls the whole merge back.
func (e *Engine) merge(ctx context.Context, survivorID int64, mergedIDs []int64, params mergeParams) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.merge")
	defer span.End()

	// A wedged merge (lock contention, slow repoint) rolls back at the
	// deadline instead of holding its row locks until the caller gives up.
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	ctxTx, tx, err := e.contacts.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Load everything fresh inside the transaction; a contact merged away by
	// a concurrent operator surfaces here as NotFound.
	survivor, err := e.contacts.Get(ctxTx, survivorID)
	if err != nil {
		return err
	}

	merged := make([]*models.Contact, 0, len(mergedIDs))
	for _, id := range mergedIDs {
		c, err := e.contacts.Get(ctxTx, id)
		if err != nil {
			return err
		}
		merged = append(merged, c)
	}
	// Ascending id order makes the fill below deterministic.
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })

	for _, m := range merged {
		if _, err := e.touchpoints.Repoint(ctxTx, m.ID, survivor.ID); err != nil {
			return err
		}
	}

	for _, field := range mergeableFields {
		if field.name == "notes" {
			continue // notes follow their own concat semantics below
		}
		if !isEmpty(field.get(survivor)) {
			continue
		}
		for _, m := range merged {
			if v := field.get(m); !isEmpty(v) {
				field.set(survivor, v)
				break
			}
		}
	}

	survivor.OtherEmails = unionStrings(survivor.OtherEmails, merged, func(c *models.Contact) []string { return c.OtherEmails })
	survivor.OtherPhones = unionStrings(survivor.OtherPhones, merged, func(c *models.Contact) []string { return c.OtherPhones })

	if params.options.ConcatNotes {
		notes := ""
		if !isEmpty(survivor.Notes) {
			notes = *survivor.Notes
		}
		for _, m := range merged {
			if isEmpty(m.Notes) {
				continue
			}
			if notes != "" {
				notes += "\n\n"
			}
			notes += *m.Notes
		}
		if notes != "" {
			survivor.Notes = &notes
		}
	}

	for field, value := range params.overrides {
		for _, f := range mergeableFields {
			if f.name == field {
				f.set(survivor, value)
				break
			}
		}
	}

	normalize.Apply(survivor)
	if err := e.contacts.UpdateMerged(ctxTx, survivor); err != nil {
		return err
	}

	for _, m := range merged {
		if params.options.Retention == models.RetentionPurge {
			err = e.contacts.HardDelete(ctxTx, m.ID)
		} else {
			err = e.contacts.SoftDelete(ctxTx, m.ID)
		}
		if err != nil {
			return err
		}
	}

	if params.candidateID != nil {
		if err := e.candidates.Resolve(ctxTx, *params.candidateID, models.CandidateStatusMerged, params.performedBy); err != nil {
			return err
		}
	}
	if err := e.candidates.MarkPairsMerged(ctxTx, survivor.ID, mergedIDs, params.performedBy); err != nil {
		return err
	}

	for _, m := range merged {
		record := &models.MergeRecord{
			EntityType:  models.EntityTypeContact,
			SurvivorID:  survivor.ID,
			MergedID:    m.ID,
			Score:       params.score,
			Mode:        params.mode,
			Details:     params.details,
			PerformedBy: params.performedBy,
		}
		if _, err := e.mergeRecords.Create(ctxTx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"survivor_id": survivor.ID}).Error("Failed to commit merge transaction")
		return httperror.NewHTTPError(http.StatusConflict, "merge transaction failed, retry")
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id": survivor.ID,
		"merged_ids":  mergedIDs,
		"mode":        params.mode,
	}).Info("Merged contacts")

	e.emitter.EmitContactMerged(ctx, survivor.ID, mergedIDs)
	return nil
}

func unionStrings(base []string, merged []*models.Contact, get func(*models.Contact) []string) []string {
	seen := make(map[string]bool, len(base))
	result := make([]string, 0, len(base))
	for _, v := range base {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	for _, m := range merged {
		for _, v := range get(m) {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}
