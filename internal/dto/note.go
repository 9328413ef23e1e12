package dto

import "github.com/pbj-app/pbj-api/internal/models"

// IngestRequest is the body for submitting a teacher note.
type IngestRequest struct {
	TeacherNotes string `json:"teacherNotes" binding:"required"`
}

// IngestResponse is returned when every record in the batch persisted.
type IngestResponse struct {
	Message    string                  `json:"message"`
	Successful []models.BehaviorRecord `json:"successful"`
}

// IngestPartialResponse is returned when only part of the batch persisted.
type IngestPartialResponse struct {
	Message    string                  `json:"message"`
	Successful []models.BehaviorRecord `json:"successful"`
	Failed     []models.BatchFailure   `json:"failed"`
}

// IngestFailedResponse is returned when no record in the batch persisted.
type IngestFailedResponse struct {
	Error  string                `json:"error"`
	Failed []models.BatchFailure `json:"failed"`
}

// PaginationMeta describes the page window of a list response.
type PaginationMeta struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// NewPaginationMeta derives page metadata from a pagination summary.
func NewPaginationMeta(p models.Pagination) PaginationMeta {
	totalPages := 0
	if p.PageSize > 0 {
		totalPages = (p.TotalCount + p.PageSize - 1) / p.PageSize
	}
	return PaginationMeta{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalCount:  p.TotalCount,
		Limit:       p.PageSize,
		HasNextPage: p.Page < totalPages,
		HasPrevPage: p.Page > 1 && p.TotalCount > 0,
	}
}

// RecordsResponse is the paginated behavior record listing.
type RecordsResponse struct {
	Records    []models.BehaviorRecord `json:"records"`
	Pagination PaginationMeta          `json:"pagination"`
}
