package batch_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	candidaterepo "github.com/harperdesk/dedupe/internal/repositories/candidate"
	contactrepo "github.com/harperdesk/dedupe/internal/repositories/contact"
	"github.com/harperdesk/dedupe/pkg/batch"
	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/matching"
	"github.com/harperdesk/dedupe/pkg/models"
)

var contactColumns = []string{
	"id", "name", "primary_email", "secondary_email", "primary_phone", "secondary_phone",
	"company", "website", "address", "notes", "other_emails", "other_phones",
	"first_name_norm", "last_name_norm", "full_name_norm", "email_norm", "email_local", "email_domain",
	"phone_e164", "company_norm", "website_root", "address_norm", "zip_norm",
	"other_emails_norm", "other_phones_norm", "soundex_last", "metaphone_last",
	"created_at", "updated_at", "deleted_at",
}

// nameOnlyRow is a contact carrying only a name, so the matching pipeline
// exercises the name blocking rules and nothing else.
func nameOnlyRow(id int64, name string, now time.Time) []driver.Value {
	return []driver.Value{
		id, name, nil, nil, nil, nil,
		nil, nil, nil, nil, "{}", "{}",
		nil, nil, name, nil, nil, nil,
		nil, nil, nil, nil, nil,
		"{}", "{}", nil, nil,
		now, now, nil,
	}
}

func testOrchestrator(t *testing.T, cfg batch.Config) (*batch.Orchestrator, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), logger)

	contacts := contactrepo.NewRepository(db, logger)
	candidates := candidaterepo.NewRepository(db, logger)
	matchCfg := matching.Config{
		WeightEmail:     0.35,
		WeightPhone:     0.25,
		WeightName:      0.20,
		WeightCompany:   0.10,
		WeightAddress:   0.10,
		AutoThreshold:   0.92,
		ReviewThreshold: 0.75,
	}
	matcher := matching.NewEngine(matchCfg, contacts, candidates, logger)
	emitter := events.NewEmitter(nil, logger)

	return batch.NewOrchestrator(cfg, contacts, candidates, matcher, nil, emitter, logger), mock
}

func TestRunEmptyDataset(t *testing.T) {
	orch, mock := testOrchestrator(t, batch.Config{ChunkSize: 500, DefaultDays: 30})

	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns))

	resp, err := orch.Run(context.Background(), &models.BatchRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Processed)
	assert.Equal(t, 0, resp.CandidatesCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunNormalizesAndScoresPage(t *testing.T) {
	orch, mock := testOrchestrator(t, batch.Config{ChunkSize: 500, DefaultDays: 30})
	now := time.Now().UTC()

	// One page with a single contact.
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(nameOnlyRow(1, "jane roe", now)...))

	// Normalized fields written back.
	mock.ExpectExec("UPDATE contacts").WillReturnResult(sqlmock.NewResult(0, 1))

	// Deterministic pass reloads the subject; no emails or phones, so no
	// exact-match queries follow.
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(nameOnlyRow(1, "jane roe", now)...))

	// Fuzzy pass reloads the subject and finds one partner with the same name.
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(nameOnlyRow(1, "jane roe", now)...))
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).AddRow(nameOnlyRow(2, "jane roe", now)...))

	// Exact name match lands in the review queue.
	mock.ExpectQuery("INSERT INTO dedupe_candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}).
			AddRow("7b0c3d0e-0000-0000-0000-000000000001", models.CandidateStatusPending, now))

	resp, err := orch.Run(context.Background(), &models.BatchRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)
	assert.Equal(t, 1, resp.CandidatesCreated)
	assert.Equal(t, int64(1), resp.LastID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillContinuesPastFailures(t *testing.T) {
	orch, mock := testOrchestrator(t, batch.Config{ChunkSize: 500, DefaultDays: 30})
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns).
			AddRow(nameOnlyRow(1, "jane roe", now)...).
			AddRow(nameOnlyRow(2, "john roe", now)...))

	mock.ExpectExec("UPDATE contacts").WillReturnError(assert.AnError)
	mock.ExpectExec("UPDATE contacts").WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := orch.Backfill(context.Background(), &models.BackfillRequest{FromID: 1, ToID: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
