package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/extraction"
	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/internal/redaction"
	"github.com/pbj-app/pbj-api/pkg/config"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
)

type noteRecordRepository interface {
	InsertMany(ctx context.Context, records []models.BehaviorRecord) models.BatchOutcome
	List(ctx context.Context, filter models.RecordFilter) ([]models.BehaviorRecord, int, error)
	FindByID(ctx context.Context, id, createdBy string) (*models.BehaviorRecord, error)
	Update(ctx context.Context, rec *models.BehaviorRecord) error
	Delete(ctx context.Context, id, createdBy string) error
	Summary(ctx context.Context, createdBy string) (*models.RecordSummary, error)
}

type noteAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const summaryCachePattern = "records:summary:*"

// NoteService runs the note ingestion pipeline and serves behavior record
// retrieval. All read and write paths are scoped to the caller before any
// query is built, so a teacher can never observe another teacher's records.
type NoteService struct {
	records   noteRecordRepository
	audit     noteAuditRepository
	redactor  redaction.Redactor
	extractor extraction.Client
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       config.RecordsConfig
}

// NewNoteService constructs a NoteService.
func NewNoteService(
	records noteRecordRepository,
	audit noteAuditRepository,
	redactor redaction.Redactor,
	extractor extraction.Client,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.RecordsConfig,
) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if redactor == nil {
		redactor = redaction.Passthrough{}
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &NoteService{
		records:   records,
		audit:     audit,
		redactor:  redactor,
		extractor: extractor,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// scopeToCaller narrows queries to the caller's own records unless the caller
// is an admin. Applied where filters are constructed so every downstream
// lookup carries the same restriction and an out-of-scope record reads the
// same as a missing one.
func scopeToCaller(claims *models.JWTClaims, createdBy *string) {
	if claims.IsAdmin() {
		return
	}
	*createdBy = claims.UserID
}

// Ingest runs the full pipeline for one submitted note: redact, extract,
// normalize, persist. The verbatim note text is stored on every resulting
// record. Persistence is per record, so the returned outcome may be a partial
// success.
func (s *NoteService) Ingest(ctx context.Context, claims *models.JWTClaims, teacherNotes string) (*models.BatchOutcome, error) {
	text := strings.TrimSpace(teacherNotes)
	if text == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherNotes is required")
	}

	recordingTimestamp := time.Now().UTC()

	redacted, err := s.redactor.Redact(ctx, text)
	if err != nil {
		// Failing open here would send raw student names to the external
		// reasoning service, so a broken redactor aborts the ingest.
		return nil, appErrors.Wrap(err, appErrors.ErrExtraction.Code, appErrors.ErrExtraction.Status, "redaction failed")
	}

	extractStart := time.Now()
	result, err := s.extractor.Extract(ctx, redacted.RedactedText, recordingTimestamp)
	s.metrics.ObserveExtraction(time.Since(extractStart))
	if err != nil {
		s.logger.Error("note extraction failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrExtraction.Code, appErrors.ErrExtraction.Status, "note extraction failed")
	}

	if len(result.Records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyExtraction, "no behavior records found in note")
	}

	records := make([]models.BehaviorRecord, 0, len(result.Records))
	for _, structured := range result.Records {
		records = append(records, normalizeRecord(structured, redacted, text, recordingTimestamp, claims.UserID))
	}

	outcome := s.records.InsertMany(ctx, records)
	s.metrics.ObserveIngest(outcome)

	s.logger.Info("note ingested",
		zap.String("user_id", claims.UserID),
		zap.Int("saved", len(outcome.Saved)),
		zap.Int("failed", len(outcome.Failed)),
	)

	s.invalidateSummary(ctx)
	s.writeAudit(ctx, claims.UserID, models.AuditActionNoteIngest, "behavior_records", nil, map[string]int{
		"saved":  len(outcome.Saved),
		"failed": len(outcome.Failed),
	})

	return &outcome, nil
}

// normalizeRecord converts one validated extraction payload into a persistable
// record. The server-assigned recording timestamp is authoritative; the value
// echoed by the reasoning service is ignored. Alias tokens introduced by
// redaction are swapped back to real names before storage.
func normalizeRecord(structured extraction.StructuredRecord, redacted *redaction.Result, originalText string, recordingTimestamp time.Time, userID string) models.BehaviorRecord {
	rec := models.BehaviorRecord{
		OriginalText:       originalText,
		StudentName:        strings.TrimSpace(redacted.Restore(derefString(structured.StudentName))),
		StudentID:          structured.StudentID,
		RecordingTimestamp: recordingTimestamp,
		Source:             models.SourceTeacherNote,
		Behavior: models.Behavior{
			Category:      models.BehaviorCategory(structured.Behavior.Category),
			Description:   redacted.Restore(structured.Behavior.Description),
			Severity:      models.BehaviorSeverity(structured.Behavior.Severity),
			IsPositive:    derefBool(structured.Behavior.IsPositive),
			NeedsFollowup: derefBool(structured.Behavior.NeedsFollowup),
			Tags:          structured.Behavior.Tags,
		},
		CreatedBy: userID,
	}

	if structured.BehaviorDate != "" {
		if parsed, err := time.Parse(time.RFC3339, structured.BehaviorDate); err == nil {
			parsed = parsed.UTC()
			rec.BehaviorDate = &parsed
		}
	}

	if structured.Context != nil {
		rec.Context = &models.BehaviorContext{
			ClassName: structured.Context.ClassName,
			Teacher:   redacted.Restore(structured.Context.Teacher),
			Activity:  structured.Context.Activity,
			GroupIDs:  structured.Context.GroupIDs,
			Location:  structured.Context.Location,
		}
	}

	if structured.Intervention != nil {
		rec.Intervention = &models.Intervention{
			Status: models.InterventionStatus(structured.Intervention.Status),
			Type:   structured.Intervention.Type,
			Notes:  redacted.Restore(structured.Intervention.Notes),
			Tier:   models.InterventionTier(structured.Intervention.Tier),
		}
	}

	return rec
}

// List returns behavior records matching the filter within the caller's scope.
func (s *NoteService) List(ctx context.Context, claims *models.JWTClaims, filter models.RecordFilter) ([]models.BehaviorRecord, models.Pagination, error) {
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, models.Pagination{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid category %q", filter.Category))
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, models.Pagination{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid severity %q", filter.Severity))
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.cfg.DefaultPageSize
	}
	if filter.PageSize > s.cfg.MaxPageSize {
		filter.PageSize = s.cfg.MaxPageSize
	}

	scopeToCaller(claims, &filter.CreatedBy)

	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}

	page := models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	if filter.All {
		// The whole result set came back as one page; the configured page
		// size would misreport limit and totalPages.
		page = models.Pagination{Page: 1, PageSize: len(records), TotalCount: total}
	}
	return records, page, nil
}

// Get returns one record within the caller's scope. A record owned by someone
// else reports not found, never forbidden.
func (s *NoteService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.BehaviorRecord, error) {
	var scope string
	scopeToCaller(claims, &scope)

	rec, err := s.records.FindByID(ctx, id, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return rec, nil
}

// Update applies whitelisted edits to a record within the caller's scope.
// Identity, original text, source, authorship and creation time cannot be
// changed through this path.
func (s *NoteService) Update(ctx context.Context, claims *models.JWTClaims, id string, update models.RecordUpdate) (*models.BehaviorRecord, error) {
	if update.Behavior != nil {
		if !update.Behavior.Category.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid category %q", update.Behavior.Category))
		}
		if !update.Behavior.Severity.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid severity %q", update.Behavior.Severity))
		}
		if strings.TrimSpace(update.Behavior.Description) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "behavior description is required")
		}
	}
	if update.Intervention != nil {
		if update.Intervention.Status != "" && !update.Intervention.Status.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid intervention status %q", update.Intervention.Status))
		}
		if update.Intervention.Tier != "" && !update.Intervention.Tier.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid intervention tier %q", update.Intervention.Tier))
		}
	}

	rec, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	before, _ := json.Marshal(rec)

	if update.StudentName != nil {
		rec.StudentName = strings.TrimSpace(*update.StudentName)
	}
	if update.StudentID != nil {
		rec.StudentID = *update.StudentID
	}
	if update.BehaviorDate != nil {
		date := update.BehaviorDate.UTC()
		rec.BehaviorDate = &date
	}
	if update.Behavior != nil {
		rec.Behavior = *update.Behavior
	}
	if update.Context != nil {
		rec.Context = update.Context
	}
	if update.Intervention != nil {
		rec.Intervention = update.Intervention
	}

	if err := s.records.Update(ctx, rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}

	s.invalidateSummary(ctx)
	after, _ := json.Marshal(rec)
	s.writeAuditRaw(ctx, claims.UserID, models.AuditActionRecordUpdate, "behavior_records", &rec.ID, before, after)

	return rec, nil
}

// Delete removes a record within the caller's scope.
func (s *NoteService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	var scope string
	scopeToCaller(claims, &scope)

	if err := s.records.Delete(ctx, id, scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}

	s.invalidateSummary(ctx)
	s.writeAudit(ctx, claims.UserID, models.AuditActionRecordDelete, "behavior_records", &id, nil)

	return nil
}

// Summary returns aggregate counts within the caller's scope, served from
// cache when fresh.
func (s *NoteService) Summary(ctx context.Context, claims *models.JWTClaims) (*models.RecordSummary, error) {
	var scope string
	scopeToCaller(claims, &scope)

	key := summaryCacheKey(scope)
	var cached models.RecordSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	summary, err := s.records.Summary(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build summary")
	}

	_ = s.cache.Set(ctx, key, summary, s.cfg.SummaryCacheTTL)
	return summary, nil
}

func summaryCacheKey(scope string) string {
	if scope == "" {
		return "records:summary:all"
	}
	return "records:summary:" + scope
}

func (s *NoteService) invalidateSummary(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, summaryCachePattern)
}

func (s *NoteService) writeAudit(ctx context.Context, userID, action, resource string, resourceID *string, newValues interface{}) {
	var encoded []byte
	if newValues != nil {
		encoded, _ = json.Marshal(newValues)
	}
	s.writeAuditRaw(ctx, userID, action, resource, resourceID, nil, encoded)
}

func (s *NoteService) writeAuditRaw(ctx context.Context, userID, action, resource string, resourceID *string, oldValues, newValues []byte) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
