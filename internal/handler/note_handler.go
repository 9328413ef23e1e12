package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pbj-app/pbj-api/internal/dto"
	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/internal/service"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
	"github.com/pbj-app/pbj-api/pkg/response"
)

type noteService interface {
	Ingest(ctx context.Context, claims *models.JWTClaims, note string) (*models.BatchOutcome, error)
	List(ctx context.Context, claims *models.JWTClaims, filter models.RecordFilter) ([]models.BehaviorRecord, models.Pagination, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.BehaviorRecord, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, update models.RecordUpdate) (*models.BehaviorRecord, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	Summary(ctx context.Context, claims *models.JWTClaims) (*models.RecordSummary, error)
}

type exportService interface {
	Generate(ctx context.Context, claims *models.JWTClaims, filter models.RecordFilter, format service.ExportFormat) (*service.ExportFile, error)
	Download(claims *models.JWTClaims, token string) (*service.ExportFile, error)
}

// NoteHandler wires the note ingestion pipeline and behavior record endpoints.
type NoteHandler struct {
	notes  noteService
	export exportService
}

// NewNoteHandler creates a new handler.
func NewNoteHandler(notes noteService, export exportService) *NoteHandler {
	return &NoteHandler{notes: notes, export: export}
}

// Ingest godoc
// @Summary Submit a teacher note
// @Description Extracts structured behavior records from a free-text note and persists them
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body dto.IngestRequest true "Note payload"
// @Success 201 {object} dto.IngestResponse
// @Success 207 {object} dto.IngestPartialResponse
// @Failure 400 {object} dto.IngestFailedResponse
// @Failure 502 {object} response.Envelope
// @Router /notes/parse [post]
func (h *NoteHandler) Ingest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacherNotes is required"))
		return
	}

	outcome, err := h.notes.Ingest(c.Request.Context(), claims, req.TeacherNotes)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The batch body shape is part of the public contract: clients branch on
	// 201 vs 207 vs 400 and on the successful/failed partition.
	switch outcome.Status() {
	case models.BatchAllSaved:
		c.JSON(http.StatusCreated, dto.IngestResponse{
			Message:    fmt.Sprintf("Saved %d behavior record(s)", len(outcome.Saved)),
			Successful: outcome.Saved,
		})
	case models.BatchPartial:
		c.JSON(http.StatusMultiStatus, dto.IngestPartialResponse{
			Message:    fmt.Sprintf("Saved %d of %d behavior record(s)", len(outcome.Saved), len(outcome.Saved)+len(outcome.Failed)),
			Successful: outcome.Saved,
			Failed:     outcome.Failed,
		})
	default:
		c.JSON(http.StatusBadRequest, dto.IngestFailedResponse{
			Error:  "No behavior records could be saved",
			Failed: outcome.Failed,
		})
	}
}

// ListRecords godoc
// @Summary List behavior records
// @Description Returns records within the caller's scope, filtered and paginated
// @Tags Records
// @Produce json
// @Param student_name query string false "Partial, case-insensitive student name"
// @Param category query string false "Exact category"
// @Param severity query string false "Exact severity"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param all query bool false "Return all records without pagination"
// @Success 200 {object} dto.RecordsResponse
// @Failure 400 {object} response.Envelope
// @Router /records [get]
func (h *NoteHandler) ListRecords(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := recordFilterFromQuery(c)
	records, pagination, err := h.notes.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	if records == nil {
		records = []models.BehaviorRecord{}
	}
	c.JSON(http.StatusOK, dto.RecordsResponse{
		Records:    records,
		Pagination: dto.NewPaginationMeta(pagination),
	})
}

// GetRecord godoc
// @Summary Get one behavior record
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [get]
func (h *NoteHandler) GetRecord(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rec, err := h.notes.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rec, nil)
}

// UpdateRecord godoc
// @Summary Edit a behavior record
// @Description Applies whitelisted edits; identity, note text and authorship are immutable
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body models.RecordUpdate true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [patch]
func (h *NoteHandler) UpdateRecord(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var update models.RecordUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	rec, err := h.notes.Update(c.Request.Context(), claims, c.Param("id"), update)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rec, nil)
}

// DeleteRecord godoc
// @Summary Delete a behavior record
// @Tags Records
// @Param id path string true "Record ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [delete]
func (h *NoteHandler) DeleteRecord(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.notes.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Summary godoc
// @Summary Aggregate record counts
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /records/summary [get]
func (h *NoteHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.notes.Summary(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export behavior records
// @Description Streams all matching records within the caller's scope as CSV or PDF
// @Tags Records
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Success 200
// @Failure 400 {object} response.Envelope
// @Router /records/export [get]
func (h *NoteHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	filter := recordFilterFromQuery(c)

	file, err := h.export.Generate(c.Request.Context(), claims, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	if file.DownloadToken != "" {
		c.Header("X-Export-Token", file.DownloadToken)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

// ExportDownload godoc
// @Summary Re-download an archived export
// @Description Serves a previously generated export by its signed token
// @Tags Records
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/export/download [get]
func (h *NoteHandler) ExportDownload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, err := h.export.Download(claims, token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

func recordFilterFromQuery(c *gin.Context) models.RecordFilter {
	filter := models.RecordFilter{
		StudentName: c.Query("student_name"),
		Category:    models.BehaviorCategory(c.Query("category")),
		Severity:    models.BehaviorSeverity(c.Query("severity")),
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.PageSize = limit
	}
	filter.All = c.Query("all") == "true"
	return filter
}
