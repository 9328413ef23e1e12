package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/pkg/config"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
)

type mockStudentRepo struct {
	listFilter models.StudentFilter
	students   []models.Student
	upserted   []models.Student
	failFor    map[int]string
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.listFilter = filter
	return m.students, len(m.students), nil
}

func (m *mockStudentRepo) Upsert(ctx context.Context, student *models.Student) error {
	if msg, ok := m.failFor[student.StudentID]; ok {
		return appErrors.New("DB", 500, msg)
	}
	m.upserted = append(m.upserted, *student)
	return nil
}

func newStudentService(repo *mockStudentRepo) *StudentService {
	return NewStudentService(repo, &mockAuditRepo{}, zap.NewNop(), config.RosterConfig{
		SkipLines:   2,
		MaxRowCount: 100,
	})
}

const rosterFixture = `District Export,,,
Generated 2026-03-01,,,
First Middle Last,Student ID,Grade,Gender
Maria J. Lopez,1000123,9,F
"Jimmy ""JP"" Park",1000124,9,M
Ana Silva,not-a-number,9,F
,,,
Devon Brooks,1000126,,M
`

func TestStudentListScoped(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)

	_, pagination, err := svc.List(context.Background(), teacherClaims(), models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.listFilter.CreatedBy)
	assert.Equal(t, 1, pagination.Page)
}

func TestImportRosterUpsertsRows(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)

	result, err := svc.ImportRoster(context.Background(), teacherClaims(), strings.NewReader(rosterFixture))
	require.NoError(t, err)

	// Three valid rows; the bad student id fails alone and the blank row is
	// skipped entirely.
	require.Len(t, result.Imported, 3)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 6, result.Failed[0].Line)

	first := result.Imported[0]
	assert.Equal(t, 1000123, first.StudentID)
	assert.Equal(t, "Maria", first.FirstName)
	assert.Equal(t, "Lopez", first.LastName)
	assert.Equal(t, "t1", first.CreatedBy)
	require.NotNil(t, first.Grade)
	assert.Equal(t, 9, *first.Grade)

	second := result.Imported[1]
	assert.Equal(t, "JP", second.NickName)
	assert.Equal(t, "Jimmy", second.FirstName)
	assert.Equal(t, "Park", second.LastName)

	third := result.Imported[2]
	assert.Equal(t, 1000126, third.StudentID)
	assert.Nil(t, third.Grade)
}

func TestImportRosterRejectsOutOfRangeValues(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)

	csv := "preamble,,,\npreamble,,,\nFirst Middle Last,Student ID,Grade,Gender\n" +
		"Maria Lopez,42,9,F\n" +
		"Ana Silva,12345678,9,F\n" +
		"Devon Brooks,1000126,7,M\n"
	result, err := svc.ImportRoster(context.Background(), teacherClaims(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Empty(t, result.Imported)
	assert.Empty(t, repo.upserted)
	require.Len(t, result.Failed, 3)
	assert.Contains(t, result.Failed[0].Error, "student id 42 is out of range")
	assert.Contains(t, result.Failed[1].Error, "student id 12345678 is out of range")
	assert.Contains(t, result.Failed[2].Error, "grade 7 is out of range")
}

func TestImportRosterMissingHeader(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{})

	csv := "preamble,,\npreamble,,\nName,Grade,Gender\nMaria Lopez,7,F\n"
	_, err := svc.ImportRoster(context.Background(), teacherClaims(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportRosterTruncatedFile(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{})

	_, err := svc.ImportRoster(context.Background(), teacherClaims(), strings.NewReader("only one line\n"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportRosterRowFailureDoesNotAbort(t *testing.T) {
	repo := &mockStudentRepo{failFor: map[int]string{1000123: "connection reset"}}
	svc := newStudentService(repo)

	result, err := svc.ImportRoster(context.Background(), teacherClaims(), strings.NewReader(rosterFixture))
	require.NoError(t, err)
	assert.Len(t, result.Imported, 2)
	assert.Len(t, result.Failed, 2)
}

func TestSplitFullName(t *testing.T) {
	cases := []struct {
		in    string
		first string
		last  string
		nick  string
	}{
		{"Maria J. Lopez", "Maria", "Lopez", ""},
		{"Ana Silva", "Ana", "Silva", ""},
		{"Cher", "Cher", "", ""},
		{`Jimmy "JP" Park`, "Jimmy", "Park", "JP"},
		{"Maria (Mia) Lopez", "Maria", "Lopez", "Mia"},
	}
	for _, tc := range cases {
		first, last, nick := splitFullName(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
		assert.Equal(t, tc.nick, nick, tc.in)
	}
}
