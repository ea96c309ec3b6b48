package merging

import (
	"context"
	"database/sql/driver"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	candidaterepo "github.com/harperdesk/dedupe/internal/repositories/candidate"
	contactrepo "github.com/harperdesk/dedupe/internal/repositories/contact"
	mergerecordrepo "github.com/harperdesk/dedupe/internal/repositories/mergerecord"
	touchpointrepo "github.com/harperdesk/dedupe/internal/repositories/touchpoint"
	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/models"
)

func strPtr(s string) *string { return &s }

func contactAt(id int64, name string, updatedAt time.Time, fill int) *models.Contact {
	c := &models.Contact{ID: id, Name: strPtr(name), UpdatedAt: updatedAt}
	if fill > 1 {
		c.PrimaryEmail = strPtr("x@example.com")
	}
	if fill > 2 {
		c.Company = strPtr("acme")
	}
	return c
}

func TestSelectSurvivor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("highest completeness wins", func(t *testing.T) {
		sparse := contactAt(9, "a", base.Add(time.Hour), 1)
		rich := contactAt(3, "b", base, 3)
		assert.Equal(t, rich, SelectSurvivor([]*models.Contact{sparse, rich}))
	})

	t.Run("completeness tie broken by most recent update", func(t *testing.T) {
		older := contactAt(9, "a", base, 2)
		newer := contactAt(3, "b", base.Add(time.Hour), 2)
		assert.Equal(t, newer, SelectSurvivor([]*models.Contact{older, newer}))
	})

	t.Run("full tie broken by higher id", func(t *testing.T) {
		low := contactAt(3, "a", base, 2)
		high := contactAt(9, "b", base, 2)
		assert.Equal(t, high, SelectSurvivor([]*models.Contact{low, high}))
	})

	t.Run("independent of input order", func(t *testing.T) {
		a := contactAt(3, "a", base, 1)
		b := contactAt(9, "b", base.Add(time.Minute), 2)
		c := contactAt(12, "c", base, 2)
		assert.Equal(t,
			SelectSurvivor([]*models.Contact{a, b, c}),
			SelectSurvivor([]*models.Contact{c, a, b}),
		)
	})
}

func TestUnionStrings(t *testing.T) {
	merged := []*models.Contact{
		{OtherEmails: []string{"b@y.com", "a@x.com"}},
		{OtherEmails: []string{"c@z.com", "", "b@y.com"}},
	}

	got := unionStrings([]string{"a@x.com"}, merged, func(c *models.Contact) []string { return c.OtherEmails })
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, got)
}

func TestOverridableField(t *testing.T) {
	assert.True(t, overridableField("primary_email"))
	assert.True(t, overridableField("notes"))
	assert.False(t, overridableField("email_norm"))
	assert.False(t, overridableField("id"))
}

func TestMergeContactsValidation(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	engine := NewEngine(nil, nil, nil, nil, nil, models.MergeOptions{}, 0, logger)

	t.Run("self merge rejected", func(t *testing.T) {
		_, err := engine.MergeContacts(context.Background(), &models.MergeContactsRequest{
			PrimaryID:    5,
			DuplicateIDs: []int64{5},
		}, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("no duplicates rejected", func(t *testing.T) {
		_, err := engine.MergeContacts(context.Background(), &models.MergeContactsRequest{
			PrimaryID: 5,
		}, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("unknown override field rejected", func(t *testing.T) {
		_, err := engine.MergeContacts(context.Background(), &models.MergeContactsRequest{
			PrimaryID:    5,
			DuplicateIDs: []int64{6},
			Overrides:    map[string]*string{"nickname": strPtr("Bob")},
		}, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}

// contactRowValues matches the contact repository's column order.
func contactRowValues(id int64, name string, email *string, updatedAt time.Time) []driver.Value {
	var emailVal driver.Value
	if email != nil {
		emailVal = *email
	}
	return []driver.Value{
		id, name, emailVal, nil, nil, nil,
		nil, nil, nil, nil, "{}", "{}",
		nil, nil, name, emailVal, nil, nil,
		nil, nil, nil, nil, nil,
		"{}", "{}", nil, nil,
		updatedAt, updatedAt, nil,
	}
}

var contactColumns = []string{
	"id", "name", "primary_email", "secondary_email", "primary_phone", "secondary_phone",
	"company", "website", "address", "notes", "other_emails", "other_phones",
	"first_name_norm", "last_name_norm", "full_name_norm", "email_norm", "email_local", "email_domain",
	"phone_e164", "company_norm", "website_root", "address_norm", "zip_norm",
	"other_emails_norm", "other_phones_norm", "soundex_last", "metaphone_last",
	"created_at", "updated_at", "deleted_at",
}

var candidateColumns = []string{
	"id", "entity_type", "contact_id_1", "contact_id_2", "score", "reason", "status",
	"created_at", "updated_at", "resolved_at", "resolved_by",
}

func testEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	return testEngineWithTimeout(t, 0)
}

func testEngineWithTimeout(t *testing.T, txTimeout time.Duration) (*Engine, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), logger)

	engine := NewEngine(
		contactrepo.NewRepository(db, logger),
		candidaterepo.NewRepository(db, logger),
		touchpointrepo.NewRepository(db, logger),
		mergerecordrepo.NewRepository(db, logger),
		events.NewEmitter(nil, logger),
		models.MergeOptions{ConcatNotes: true, Retention: models.RetentionKeepHistory},
		txTimeout,
		logger,
	)
	return engine, mock
}

func TestMergeCandidateRunsInOneTransaction(t *testing.T) {
	engine, mock := testEngine(t)
	now := time.Now().UTC()
	candID := "7b0c3d0e-0000-0000-0000-00000000000a"

	mock.ExpectQuery("SELECT (.+) FROM dedupe_candidates").
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow(candID, models.EntityTypeContact, int64(1), int64(2), 0.95, "email_exact", models.CandidateStatusApproved, now, now, nil, nil))

	// Contact 2 is more complete and survives.
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(1, "jane roe", nil, now)...))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(2, "jane roe", strPtr("jane@x.com"), now)...))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(2, "jane roe", strPtr("jane@x.com"), now)...))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(1, "jane roe", nil, now)...))
	mock.ExpectExec("UPDATE touchpoints").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE contacts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE contacts SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE dedupe_candidates").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE dedupe_candidates").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO dedupe_merges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := engine.MergeCandidate(context.Background(), candID, models.MergeModeAuto, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.SurvivorID)
	assert.Equal(t, int64(1), resp.MergedID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeCandidateAlreadyResolvedConflicts(t *testing.T) {
	engine, mock := testEngine(t)
	now := time.Now().UTC()
	candID := "7b0c3d0e-0000-0000-0000-00000000000b"

	mock.ExpectQuery("SELECT (.+) FROM dedupe_candidates").
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow(candID, models.EntityTypeContact, int64(1), int64(2), 0.95, "email_exact", models.CandidateStatusMerged, now, now, now, nil))

	_, err := engine.MergeCandidate(context.Background(), candID, models.MergeModeAuto, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRollsBackOnFailure(t *testing.T) {
	engine, mock := testEngine(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(2, "jane roe", strPtr("jane@x.com"), now)...))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(1, "jane roe", nil, now)...))
	mock.ExpectExec("UPDATE touchpoints").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := engine.MergeContacts(context.Background(), &models.MergeContactsRequest{
		PrimaryID:    2,
		DuplicateIDs: []int64{1},
	}, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The merge body runs under its own deadline so a wedged transaction fails
// instead of holding locks until the caller gives up.
func TestMergeFailsOncePastDeadline(t *testing.T) {
	engine, mock := testEngineWithTimeout(t, time.Nanosecond)
	now := time.Now().UTC()
	candID := "7b0c3d0e-0000-0000-0000-00000000000d"

	// The candidate and contact reads happen before the transaction opens;
	// with the deadline already expired, the transaction never begins.
	mock.ExpectQuery("SELECT (.+) FROM dedupe_candidates").
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow(candID, models.EntityTypeContact, int64(1), int64(2), 0.95, "email_exact", models.CandidateStatusApproved, now, now, nil, nil))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(1, "jane roe", nil, now)...))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(contactRowValues(2, "jane roe", strPtr("jane@x.com"), now)...))

	_, err := engine.MergeCandidate(context.Background(), candID, models.MergeModeAuto, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
