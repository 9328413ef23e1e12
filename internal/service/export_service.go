package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/pkg/export"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
	"github.com/pbj-app/pbj-api/pkg/storage"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to stream to the client. When an
// archive is configured, DownloadToken allows re-fetching the same file
// without regenerating it.
type ExportFile struct {
	Filename      string
	ContentType   string
	Payload       []byte
	DownloadToken string
	TokenExpires  time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportArchive interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
}

// ExportService renders behavior records into downloadable files. Exports run
// through the same scoped listing path as the records API, so a teacher's
// export only ever contains their own records.
type ExportService struct {
	records noteRecordRepository
	csv     csvRenderer
	pdf     pdfRenderer
	archive exportArchive
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
}

// NewExportService constructs an ExportService. Archive and signer are
// optional; without them exports stream inline only.
func NewExportService(records noteRecordRepository, csv csvRenderer, pdf pdfRenderer, archive exportArchive, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{records: records, csv: csv, pdf: pdf, archive: archive, signer: signer, logger: logger}
}

// Generate renders all records matching the filter within the caller's scope.
func (s *ExportService) Generate(ctx context.Context, claims *models.JWTClaims, filter models.RecordFilter, format ExportFormat) (*ExportFile, error) {
	filter.All = true
	scopeToCaller(claims, &filter.CreatedBy)

	records, _, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records for export")
	}

	dataset := buildRecordDataset(records)
	timestamp := time.Now().UTC().Format("20060102_150405")

	var file *ExportFile
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		file = &ExportFile{
			Filename:    fmt.Sprintf("behavior_records_%s.csv", timestamp),
			ContentType: "text/csv",
			Payload:     payload,
		}
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, "Behavior Records")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		file = &ExportFile{
			Filename:    fmt.Sprintf("behavior_records_%s.pdf", timestamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	s.archiveFile(claims, file)
	return file, nil
}

// archiveFile keeps a copy of the rendered export and mints a signed
// re-download token. Archiving is best-effort; a failure never blocks the
// inline download.
func (s *ExportService) archiveFile(claims *models.JWTClaims, file *ExportFile) {
	if s.archive == nil {
		return
	}

	relPath := path.Join(claims.UserID, file.Filename)
	if _, err := s.archive.Save(relPath, file.Payload); err != nil {
		s.logger.Warn("failed to archive export", zap.String("path", relPath), zap.Error(err))
		return
	}

	if s.signer == nil {
		return
	}
	token, expires, err := s.signer.Generate(claims.UserID, relPath)
	if err != nil {
		s.logger.Warn("failed to sign export token", zap.String("path", relPath), zap.Error(err))
		return
	}
	file.DownloadToken = token
	file.TokenExpires = expires
}

// Download re-serves a previously archived export. The token binds the file
// to the user who generated it; admins may fetch any archived export.
func (s *ExportService) Download(claims *models.JWTClaims, token string) (*ExportFile, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export archive is not enabled")
	}

	ownerID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid download token")
	}
	if !claims.IsAdmin() && ownerID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}

	reader, err := s.archive.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read archived export")
	}

	filename := path.Base(relPath)
	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	return &ExportFile{Filename: filename, ContentType: contentType, Payload: payload}, nil
}

func buildRecordDataset(records []models.BehaviorRecord) export.Dataset {
	headers := []string{"Student", "Date", "Category", "Severity", "Positive", "Needs Followup", "Description", "Tags", "Recorded At"}
	rows := make([]map[string]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		rows = append(rows, map[string]string{
			"Student":        rec.StudentName,
			"Date":           rec.EffectiveDate().UTC().Format("2006-01-02"),
			"Category":       string(rec.Behavior.Category),
			"Severity":       string(rec.Behavior.Severity),
			"Positive":       fmt.Sprintf("%t", rec.Behavior.IsPositive),
			"Needs Followup": fmt.Sprintf("%t", rec.Behavior.NeedsFollowup),
			"Description":    rec.Behavior.Description,
			"Tags":           strings.Join(rec.Behavior.Tags, "; "),
			"Recorded At":    rec.RecordingTimestamp.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
