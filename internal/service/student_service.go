package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/pkg/config"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Upsert(ctx context.Context, student *models.Student) error
}

// Roster CSV header labels as emitted by the SIS export.
const (
	rosterHeaderName      = "first middle last"
	rosterHeaderStudentID = "student id"
	rosterHeaderGrade     = "grade"
	rosterHeaderGender    = "gender"
)

// District student numbers are seven digits; the roster covers grades 9-12.
const (
	minStudentID = 1000000
	maxStudentID = 9999999
	minGrade     = 9
	maxGrade     = 12
)

// StudentService manages the per-user roster. Rosters exist so note
// submissions can be matched against known students; they are owned by the
// uploading user and scoped like behavior records.
type StudentService struct {
	repo   studentRepository
	audit  noteAuditRepository
	logger *zap.Logger
	cfg    config.RosterConfig
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, audit noteAuditRepository, logger *zap.Logger, cfg config.RosterConfig) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRowCount <= 0 {
		cfg.MaxRowCount = 5000
	}
	return &StudentService{repo: repo, audit: audit, logger: logger, cfg: cfg}
}

// List returns roster entries within the caller's scope.
func (s *StudentService) List(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter) ([]models.Student, models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	scopeToCaller(claims, &filter.CreatedBy)

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ImportRoster ingests a SIS roster CSV for the caller. The export carries a
// preamble of metadata lines before the header row, which is skipped per
// configuration. Rows are upserted independently; a malformed row is reported
// with its line number and never aborts the rest of the file.
func (s *StudentService) ImportRoster(ctx context.Context, claims *models.JWTClaims, r io.Reader) (*models.RosterImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for i := 0; i < s.cfg.SkipLines; i++ {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, appErrors.Clone(appErrors.ErrValidation, "roster file is shorter than the expected preamble")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read roster preamble")
		}
		line++
	}

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster file has no header row")
	}
	line++

	columns := map[string]int{}
	for i, label := range header {
		columns[strings.ToLower(strings.TrimSpace(label))] = i
	}
	for _, required := range []string{rosterHeaderName, rosterHeaderStudentID} {
		if _, ok := columns[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster header is missing the %q column", required))
		}
	}

	result := &models.RosterImportResult{}
	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Failed = append(result.Failed, models.RosterRowFailure{Line: line, Error: err.Error()})
			continue
		}
		if isEmptyRow(row) {
			continue
		}
		rows++
		if rows > s.cfg.MaxRowCount {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster exceeds the maximum of %d rows", s.cfg.MaxRowCount))
		}

		student, err := s.parseRow(row, columns)
		if err != nil {
			result.Failed = append(result.Failed, models.RosterRowFailure{Line: line, Error: err.Error()})
			continue
		}
		student.CreatedBy = claims.UserID

		if err := s.repo.Upsert(ctx, student); err != nil {
			result.Failed = append(result.Failed, models.RosterRowFailure{Line: line, Error: err.Error()})
			continue
		}
		result.Imported = append(result.Imported, *student)
	}

	s.logger.Info("roster imported",
		zap.String("user_id", claims.UserID),
		zap.Int("imported", len(result.Imported)),
		zap.Int("failed", len(result.Failed)),
	)

	if s.audit != nil {
		counts := fmt.Sprintf(`{"imported":%d,"failed":%d}`, len(result.Imported), len(result.Failed))
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &claims.UserID,
			Action:    models.AuditActionRosterImport,
			Resource:  "students",
			NewValues: []byte(counts),
		}); err != nil {
			s.logger.Warn("failed to record roster import audit log", zap.Error(err))
		}
	}

	return result, nil
}

func (s *StudentService) parseRow(row []string, columns map[string]int) (*models.Student, error) {
	fullName := cell(row, columns, rosterHeaderName)
	if fullName == "" {
		return nil, fmt.Errorf("name is required")
	}

	rawID := cell(row, columns, rosterHeaderStudentID)
	studentID, err := strconv.Atoi(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid student id %q", rawID)
	}
	if studentID < minStudentID || studentID > maxStudentID {
		return nil, fmt.Errorf("student id %d is out of range (%d-%d)", studentID, minStudentID, maxStudentID)
	}

	first, last, nick := splitFullName(fullName)
	student := &models.Student{
		StudentID: studentID,
		FullName:  fullName,
		FirstName: first,
		LastName:  last,
		NickName:  nick,
		Gender:    cell(row, columns, rosterHeaderGender),
	}

	if rawGrade := cell(row, columns, rosterHeaderGrade); rawGrade != "" {
		grade, err := strconv.Atoi(rawGrade)
		if err != nil {
			return nil, fmt.Errorf("invalid grade %q", rawGrade)
		}
		if grade < minGrade || grade > maxGrade {
			return nil, fmt.Errorf("grade %d is out of range (%d-%d)", grade, minGrade, maxGrade)
		}
		student.Grade = &grade
	}

	return student, nil
}

// splitFullName breaks a "First Middle Last" name into first and last parts.
// A quoted or parenthesized token is treated as a nickname, e.g.
// `Maria "Mia" Lopez` or `Maria (Mia) Lopez`.
func splitFullName(fullName string) (first, last, nick string) {
	tokens := strings.Fields(fullName)
	names := tokens[:0]
	for _, tok := range tokens {
		trimmed := strings.Trim(tok, `"'()`)
		if trimmed != tok && trimmed != "" {
			nick = trimmed
			continue
		}
		names = append(names, tok)
	}
	if len(names) == 0 {
		return "", "", nick
	}
	first = names[0]
	if len(names) > 1 {
		last = names[len(names)-1]
	}
	return first, last, nick
}

func cell(row []string, columns map[string]int, label string) string {
	idx, ok := columns[label]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
