package models

import "time"

// Student is a roster entry owned by the uploading user. Behavior records
// reference students by name only; the roster exists so note submissions can
// be matched against known students.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentID int       `db:"student_id" json:"student_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	NickName  string    `db:"nick_name" json:"nick_name,omitempty"`
	Grade     *int      `db:"grade" json:"grade,omitempty"`
	Gender    string    `db:"gender" json:"gender,omitempty"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
// CreatedBy is populated by the ownership-scoping policy.
type StudentFilter struct {
	Search    string
	Grade     *int
	CreatedBy string
	Page      int
	PageSize  int
}

// RosterImportResult partitions a CSV upload into upserted students and
// per-row failures.
type RosterImportResult struct {
	Imported []Student          `json:"imported"`
	Failed   []RosterRowFailure `json:"failed"`
}

// RosterRowFailure reports a row that did not validate, keyed by its CSV line.
type RosterRowFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}
