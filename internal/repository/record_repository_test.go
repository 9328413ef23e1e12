package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbj-app/pbj-api/internal/models"
)

func sampleBehaviorJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(models.Behavior{
		Category:    models.CategoryDisruption,
		Description: "Talking over the teacher during algebra.",
		Severity:    models.SeverityModerate,
		Tags:        []string{"talking"},
	})
	require.NoError(t, err)
	return raw
}

func recordRows(t *testing.T, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "original_text", "student_name", "student_id", "recording_timestamp", "behavior_date", "source", "behavior", "context", "intervention", "created_by", "created_at"}).
		AddRow("r1", "Maria was disruptive.", "Maria", nil, now, nil, "teacher_note", sampleBehaviorJSON(t), nil, nil, "u1", now)
}

func TestInsertManyPartialFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO behavior_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO behavior_records").WillReturnError(sql.ErrConnDone)
	mock.ExpectExec("INSERT INTO behavior_records").WillReturnResult(sqlmock.NewResult(1, 1))

	records := []models.BehaviorRecord{
		{StudentName: "Maria", RecordingTimestamp: time.Now(), Source: models.SourceTeacherNote},
		{StudentName: "Jimmy", RecordingTimestamp: time.Now(), Source: models.SourceTeacherNote},
		{StudentName: "Ana", RecordingTimestamp: time.Now(), Source: models.SourceTeacherNote},
	}
	outcome := repo.InsertMany(context.Background(), records)

	assert.Len(t, outcome.Saved, 2)
	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, 1, outcome.Failed[0].Index)
	assert.Equal(t, models.BatchPartial, outcome.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertManyAllFailed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO behavior_records").WillReturnError(sql.ErrConnDone)

	outcome := repo.InsertMany(context.Background(), []models.BehaviorRecord{{StudentName: "Maria"}})
	assert.Empty(t, outcome.Saved)
	assert.Equal(t, models.BatchFailed, outcome.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM behavior_records WHERE 1=1 AND student_name ILIKE '%' || $1 || '%' AND behavior->>'category' = $2 AND created_by = $3")).
		WithArgs("mar", "disruption", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recording_timestamp DESC, id LIMIT 20 OFFSET 0")).
		WithArgs("mar", "disruption", "u1").
		WillReturnRows(recordRows(t, now))

	records, total, err := repo.List(context.Background(), models.RecordFilter{
		StudentName: "mar",
		Category:    models.CategoryDisruption,
		CreatedBy:   "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "Maria", records[0].StudentName)
	assert.Equal(t, models.CategoryDisruption, records[0].Behavior.Category)
	assert.Nil(t, records[0].Context)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsEscapesLikeWildcards(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	now := time.Now()

	// "%" and "_" in the search term match literally, not as wildcards.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(`100\% m\_r`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recording_timestamp DESC, id")).
		WithArgs(`100\% m\_r`).
		WillReturnRows(recordRows(t, now))

	_, _, err := repo.List(context.Background(), models.RecordFilter{StudentName: "100% m_r"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsUnpaginated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM behavior_records WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recording_timestamp DESC, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "original_text", "student_name", "student_id", "recording_timestamp", "behavior_date", "source", "behavior", "context", "intervention", "created_by", "created_at"}))

	records, total, err := repo.List(context.Background(), models.RecordFilter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_records WHERE id = $1 AND created_by = $2")).
		WithArgs("r1", "u1").
		WillReturnRows(recordRows(t, now))

	rec, err := repo.FindByID(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDOutsideScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_records WHERE id = $1 AND created_by = $2")).
		WithArgs("r1", "other").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "r1", "other")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecordNoMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE behavior_records SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.BehaviorRecord{ID: "missing", StudentName: "Maria"})
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRecordScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM behavior_records WHERE id = $1 AND created_by = $2")).
		WithArgs("r1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "r1", "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total_count").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"total_count", "positive_count", "followup_count"}).AddRow(5, 2, 1))
	mock.ExpectQuery("GROUP BY 1 ORDER BY count DESC, category").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).AddRow("disruption", 3).AddRow("prosocial", 2))
	mock.ExpectQuery("GROUP BY 1 ORDER BY count DESC, severity").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}).AddRow("moderate", 4).AddRow("high", 1))

	summary, err := repo.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalCount)
	assert.Equal(t, 2, summary.PositiveCount)
	assert.Len(t, summary.ByCategory, 2)
	assert.Len(t, summary.BySeverity, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
