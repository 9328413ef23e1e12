package extraction

// Result is the complete output of one extraction call. An empty Records
// slice is surfaced as an error by the ingestion pipeline, never treated as
// a valid empty success.
type Result struct {
	Records []StructuredRecord `json:"records" validate:"required,dive"`
}

// StructuredRecord is the wire contract the reasoning service must satisfy,
// one per student mentioned in the note. Field names mirror the tool-call
// JSON exactly. StudentName may be an empty string when the note does not
// name the student, and may be an alias token (PERSON_1, ...) when redaction
// was applied upstream; it is never guessed.
type StructuredRecord struct {
	StudentName        *string              `json:"student_name" validate:"required"`
	StudentID          string               `json:"student_id,omitempty"`
	RecordingTimestamp string               `json:"recording_timestamp" validate:"required,iso8601"`
	BehaviorDate       string               `json:"behavior_date,omitempty" validate:"omitempty,iso8601"`
	Source             string               `json:"source,omitempty" validate:"omitempty,eq=teacher_note"`
	Behavior           *BehaviorPayload     `json:"behavior" validate:"required"`
	Context            *ContextPayload      `json:"context,omitempty"`
	Intervention       *InterventionPayload `json:"intervention,omitempty"`
}

// BehaviorPayload is the required sub-record; all six fields are mandatory.
// Booleans are pointers so that an omitted field is distinguishable from an
// explicit false.
type BehaviorPayload struct {
	Category      string   `json:"category" validate:"required,behavior_category"`
	Description   string   `json:"description" validate:"required"`
	Severity      string   `json:"severity" validate:"required,oneof=low moderate high"`
	IsPositive    *bool    `json:"is_positive" validate:"required"`
	NeedsFollowup *bool    `json:"needs_followup" validate:"required"`
	Tags          []string `json:"tags" validate:"required"`
}

// ContextPayload carries optional situational detail.
type ContextPayload struct {
	ClassName string   `json:"class_name,omitempty"`
	Teacher   string   `json:"teacher,omitempty"`
	Activity  string   `json:"activity,omitempty"`
	GroupIDs  []string `json:"group_ids,omitempty"`
	Location  string   `json:"location,omitempty"`
}

// InterventionPayload carries optional follow-up detail.
type InterventionPayload struct {
	Status string `json:"status,omitempty" validate:"omitempty,oneof=none recommended in_progress completed"`
	Type   string `json:"type,omitempty"`
	Notes  string `json:"notes,omitempty"`
	Tier   string `json:"tier,omitempty" validate:"omitempty,oneof=universal tier_1 tier_2 tier_3"`
}
