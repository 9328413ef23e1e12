package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pbj-app/pbj-api/internal/dto"
	"github.com/pbj-app/pbj-api/internal/models"
	appErrors "github.com/pbj-app/pbj-api/pkg/errors"
	"github.com/pbj-app/pbj-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter) ([]models.Student, models.Pagination, error)
	ImportRoster(ctx context.Context, claims *models.JWTClaims, r io.Reader) (*models.RosterImportResult, error)
}

// StudentHandler exposes roster endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List roster students
// @Description Returns roster entries within the caller's scope
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or nickname"
// @Param grade query int false "Filter by grade"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.StudentsResponse
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("grade"); raw != "" {
		grade, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid grade %q", raw)))
			return
		}
		filter.Grade = &grade
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	students, pagination, err := h.students.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	if students == nil {
		students = []models.Student{}
	}
	c.JSON(http.StatusOK, dto.StudentsResponse{
		Students:   students,
		Pagination: dto.NewPaginationMeta(pagination),
	})
}

// ImportRoster godoc
// @Summary Import a roster CSV
// @Description Upserts students from an SIS roster export; malformed rows are reported per line
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster CSV"
// @Success 200 {object} dto.RosterImportResponse
// @Failure 400 {object} response.Envelope
// @Router /students/import [post]
func (h *StudentHandler) ImportRoster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "roster file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to open roster file"))
		return
	}
	defer file.Close()

	result, err := h.students.ImportRoster(c.Request.Context(), claims, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RosterImportResponse{
		Message:  fmt.Sprintf("Imported %d student(s)", len(result.Imported)),
		Imported: len(result.Imported),
		Failed:   result.Failed,
	})
}
