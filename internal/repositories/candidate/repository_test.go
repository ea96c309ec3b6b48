package candidate_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperdesk/dedupe/internal/repositories/candidate"
	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/models"
)

func testRepository(t *testing.T) (*candidate.Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), logger)
	return candidate.NewRepository(db, logger), mock
}

func TestUpsertCanonicalizesPair(t *testing.T) {
	repo, mock := testRepository(t)

	// Caller passes (9, 4); the row is written as (4, 9).
	mock.ExpectQuery("INSERT INTO dedupe_candidates").
		WithArgs(
			sqlmock.AnyArg(), models.EntityTypeContact, int64(4), int64(9),
			0.81, "block+score", models.CandidateStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg(),
			models.CandidateStatusPending, models.CandidateStatusApproved,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}).
			AddRow("7b0c3d0e-0000-0000-0000-000000000001", models.CandidateStatusPending, time.Now().UTC()))

	cand, err := repo.Upsert(context.Background(), 9, 4, 0.81, "block+score", models.CandidateStatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cand.ContactID1)
	assert.Equal(t, int64(9), cand.ContactID2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLeavesResolvedRowAlone(t *testing.T) {
	repo, mock := testRepository(t)

	// Conflict on a merged row: the guarded upsert returns nothing and the
	// existing row is fetched instead.
	mock.ExpectQuery("INSERT INTO dedupe_candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}))

	columns := []string{"id", "entity_type", "contact_id_1", "contact_id_2", "score", "reason", "status", "created_at", "updated_at", "resolved_at", "resolved_by"}
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM dedupe_candidates").
		WithArgs(models.EntityTypeContact, int64(4), int64(9)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("7b0c3d0e-0000-0000-0000-000000000002", models.EntityTypeContact, int64(4), int64(9), 0.95, "email_exact", models.CandidateStatusMerged, now, now, now, "ops@harperdesk.com"))

	cand, err := repo.Upsert(context.Background(), 4, 9, 0.81, "block+score", models.CandidateStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.CandidateStatusMerged, cand.Status)
	assert.Equal(t, "email_exact", cand.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlreadyResolvedConflicts(t *testing.T) {
	repo, mock := testRepository(t)

	mock.ExpectExec("UPDATE dedupe_candidates").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Resolve(context.Background(), "7b0c3d0e-0000-0000-0000-000000000003", models.CandidateStatusRejected, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPairsMergedSweepsOpenRows(t *testing.T) {
	repo, mock := testRepository(t)

	// The sweep matches merged ids on either side of the pair, so a pair an
	// absorbed contact had with some third contact is closed too. The
	// survivor id is not in the array: its remaining pairs stay open.
	mock.ExpectExec(`UPDATE dedupe_candidates(.|\n)+contact_id_1 = ANY\(\$6\) OR contact_id_2 = ANY\(\$6\)`).
		WithArgs(
			models.CandidateStatusMerged, sqlmock.AnyArg(), nil,
			models.CandidateStatusPending, models.CandidateStatusApproved,
			pq.Array([]int64{7, 12}),
		).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.MarkPairsMerged(context.Background(), 3, []int64{7, 12}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListApprovedSkipsDeletedContacts(t *testing.T) {
	repo, mock := testRepository(t)

	// Approved rows only surface while both contacts are live; a pair whose
	// contact was merged away must not occupy an auto-merge slot.
	rows := sqlmock.NewRows([]string{
		"id", "entity_type", "contact_id_1", "contact_id_2", "score", "reason",
		"status", "created_at", "updated_at", "resolved_at", "resolved_by",
	}).AddRow(
		"7b0c3d0e-0000-0000-0000-000000000009", models.EntityTypeContact, int64(4), int64(9),
		0.97, "email_exact", models.CandidateStatusApproved, time.Now().UTC(), time.Now().UTC(), nil, nil,
	)
	mock.ExpectQuery(`SELECT (.+) FROM dedupe_candidates c JOIN contacts a ON a.id = c.contact_id_1 AND a.deleted_at IS NULL JOIN contacts b ON b.id = c.contact_id_2 AND b.deleted_at IS NULL`).
		WillReturnRows(rows)

	approved, err := repo.ListApproved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, int64(4), approved[0].ContactID1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPairsMergedNoMergedIDs(t *testing.T) {
	repo, mock := testRepository(t)

	err := repo.MarkPairsMerged(context.Background(), 3, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := testRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM dedupe_candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "7b0c3d0e-0000-0000-0000-000000000004")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
