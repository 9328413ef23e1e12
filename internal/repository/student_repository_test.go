package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbj-app/pbj-api/internal/models"
)

func TestListStudentsScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND created_by = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{"id", "student_id", "full_name", "first_name", "last_name", "nick_name", "grade", "gender", "created_by", "created_at", "updated_at"}).
		AddRow("s1", 1000123, "Maria Lopez", "Maria", "Lopez", "", 9, "F", "u1", now, now).
		AddRow("s2", 1000124, "Jimmy Park", "Jimmy", "Park", "", 9, "M", "u1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY last_name, first_name LIMIT 50 OFFSET 0")).
		WithArgs("u1").
		WillReturnRows(rows)

	students, total, err := repo.List(context.Background(), models.StudentFilter{CreatedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, students, 2)
	assert.Equal(t, "Lopez", students[0].LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStudentsSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND created_by = $1 AND (LOWER(full_name) LIKE $2 OR LOWER(nick_name) LIKE $2)")).
		WithArgs("u1", "%mar%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("ORDER BY last_name, first_name").
		WithArgs("u1", "%mar%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "full_name", "first_name", "last_name", "nick_name", "grade", "gender", "created_by", "created_at", "updated_at"}))

	_, total, err := repo.List(context.Background(), models.StudentFilter{CreatedBy: "u1", Search: "Mar"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("(?s)INSERT INTO students.*ON CONFLICT \\(created_by, student_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))

	grade := 9
	student := &models.Student{
		StudentID: 1000123,
		FullName:  "Maria Lopez",
		FirstName: "Maria",
		LastName:  "Lopez",
		Grade:     &grade,
		Gender:    "F",
		CreatedBy: "u1",
	}
	require.NoError(t, repo.Upsert(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
