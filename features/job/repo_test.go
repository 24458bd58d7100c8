package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepo(db), mock
}

var jobColumns = []string{"id", "job_id", "handler", "status", "payload", "error", "attempts", "retries", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	j := &Job{
		JobID:    "6f1c0f64-6b7a-4a53-9d1f-0f2b8a7c1e11",
		Handler:  "ingestion-worker",
		Status:   "failed_extraction",
		Payload:  json.RawMessage(`{"job_id":"6f1c"}`),
		Error:    "corrupt document",
		Attempts: 1,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO failed_jobs (job_id, handler, status, payload, error, attempts)`)).
		WithArgs(j.JobID, j.Handler, j.Status, []byte(j.Payload), j.Error, j.Attempts).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "retries"}).AddRow("f-1", now, 0))

	require.NoError(t, repo.Save(context.Background(), j))
	assert.Equal(t, "f-1", j.ID)
	assert.Equal(t, now, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, job_id, handler, status, payload, error, attempts, retries, created_at FROM failed_jobs ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("f-2", "j-2", "ingestion-worker", "failed_upload", []byte(`{"n":2}`), "s3 down", 5, 1, now).
			AddRow("f-1", "j-1", "ingestion-worker", "failed_extraction", []byte(`{"n":1}`), "corrupt", 1, 0, now.Add(-time.Minute)))

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "f-2", jobs[0].ID)
	assert.Equal(t, 5, jobs[0].Attempts)
	assert.JSONEq(t, `{"n":1}`, string(jobs[1].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	repo, mock := newMockRepo(t)

	query := regexp.QuoteMeta(`FROM failed_jobs WHERE id = $1`)
	mock.ExpectQuery(query).WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("f-1", "j-1", "ingestion-worker", "failed_download", []byte(`{}`), "missing", 5, 0, time.Now()))
	mock.ExpectQuery(query).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	j, err := repo.Get(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "failed_download", j.Status)

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeleteAndCount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM failed_jobs WHERE id = $1`)).WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM failed_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, repo.Delete(context.Background(), "f-1"))
	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
