package dto

import "github.com/pbj-app/pbj-api/internal/models"

// StudentsResponse is the paginated roster listing.
type StudentsResponse struct {
	Students   []models.Student `json:"students"`
	Pagination PaginationMeta   `json:"pagination"`
}

// RosterImportResponse summarizes a roster CSV upload.
type RosterImportResponse struct {
	Message  string                    `json:"message"`
	Imported int                       `json:"imported"`
	Failed   []models.RosterRowFailure `json:"failed,omitempty"`
}
