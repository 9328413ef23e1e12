package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/models"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
	"github.com/pbj-app/pbj-api/pkg/storage"
)

func exportFixtureRecords() []models.BehaviorRecord {
	return []models.BehaviorRecord{
		{
			ID:                 "r1",
			StudentName:        "Maria Lopez",
			RecordingTimestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Behavior: models.Behavior{
				Category:    models.CategoryDisruption,
				Description: "Talking over the teacher.",
				Severity:    models.SeverityModerate,
				Tags:        []string{"talking", "repeated"},
			},
			CreatedBy: "t1",
		},
	}
}

func TestExportGeneratesCSVWithinScope(t *testing.T) {
	repo := &mockRecordRepo{listRecords: exportFixtureRecords(), listTotal: 1}
	svc := NewExportService(repo, nil, nil, nil, nil, zap.NewNop())

	file, err := svc.Generate(context.Background(), teacherClaims(), models.RecordFilter{}, ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "t1", repo.listFilter.CreatedBy)
	assert.True(t, repo.listFilter.All)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Payload)
	assert.Contains(t, body, "Maria Lopez")
	assert.Contains(t, body, "disruption")
	assert.Contains(t, body, "talking; repeated")
}

func TestExportGeneratesPDF(t *testing.T) {
	repo := &mockRecordRepo{listRecords: exportFixtureRecords(), listTotal: 1}
	svc := NewExportService(repo, nil, nil, nil, nil, zap.NewNop())

	file, err := svc.Generate(context.Background(), adminClaims(), models.RecordFilter{}, ExportFormatPDF)
	require.NoError(t, err)

	assert.Empty(t, repo.listFilter.CreatedBy)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Payload), "%PDF"))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&mockRecordRepo{}, nil, nil, nil, nil, zap.NewNop())

	_, err := svc.Generate(context.Background(), teacherClaims(), models.RecordFilter{}, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

type memoryArchive struct {
	files map[string][]byte
}

func (m *memoryArchive) Save(filename string, data []byte) (string, error) {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[filename] = data
	return filename, nil
}

func (m *memoryArchive) Open(filename string) (io.ReadCloser, error) {
	data, ok := m.files[filename]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestExportArchivesAndRedownloads(t *testing.T) {
	repo := &mockRecordRepo{listRecords: exportFixtureRecords(), listTotal: 1}
	archive := &memoryArchive{}
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(repo, nil, nil, archive, signer, zap.NewNop())

	file, err := svc.Generate(context.Background(), teacherClaims(), models.RecordFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	require.NotEmpty(t, file.DownloadToken)
	assert.Contains(t, archive.files, "t1/"+file.Filename)

	again, err := svc.Download(teacherClaims(), file.DownloadToken)
	require.NoError(t, err)
	assert.Equal(t, file.Payload, again.Payload)
	assert.Equal(t, "text/csv", again.ContentType)
}

func TestExportDownloadRejectsForeignToken(t *testing.T) {
	repo := &mockRecordRepo{listRecords: exportFixtureRecords(), listTotal: 1}
	archive := &memoryArchive{}
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(repo, nil, nil, archive, signer, zap.NewNop())

	file, err := svc.Generate(context.Background(), teacherClaims(), models.RecordFilter{}, ExportFormatCSV)
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher}
	_, err = svc.Download(other, file.DownloadToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// Admins may fetch any archived export.
	_, err = svc.Download(adminClaims(), file.DownloadToken)
	assert.NoError(t, err)
}
