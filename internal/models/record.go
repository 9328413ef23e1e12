package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecordSource identifies how a behavior record entered the system.
type RecordSource string

const (
	// SourceTeacherNote marks records extracted from a free-text teacher note.
	// Extensible for future origins such as migrated data.
	SourceTeacherNote RecordSource = "teacher_note"
)

// BehaviorCategory classifies an observed behavior.
type BehaviorCategory string

const (
	CategoryOffTask             BehaviorCategory = "off-task"
	CategoryDisruption          BehaviorCategory = "disruption"
	CategoryNonParticipation    BehaviorCategory = "non-participation"
	CategoryTardy               BehaviorCategory = "tardy"
	CategoryAbsence             BehaviorCategory = "absence"
	CategoryPeerDisruption      BehaviorCategory = "peer-disruption"
	CategoryTechnologyViolation BehaviorCategory = "technology-violation"
	CategoryProsocial           BehaviorCategory = "prosocial"
	CategoryDefiance            BehaviorCategory = "defiance"
	CategoryAggression          BehaviorCategory = "aggression"
	CategorySelfManagement      BehaviorCategory = "self-management"
	CategoryRespect             BehaviorCategory = "respect"
	CategoryOther               BehaviorCategory = "other"
)

// BehaviorCategories is the closed set of accepted categories.
var BehaviorCategories = []BehaviorCategory{
	CategoryOffTask, CategoryDisruption, CategoryNonParticipation,
	CategoryTardy, CategoryAbsence, CategoryPeerDisruption,
	CategoryTechnologyViolation, CategoryProsocial, CategoryDefiance,
	CategoryAggression, CategorySelfManagement, CategoryRespect, CategoryOther,
}

// IsValid reports closed-set membership.
func (c BehaviorCategory) IsValid() bool {
	for _, v := range BehaviorCategories {
		if c == v {
			return true
		}
	}
	return false
}

// BehaviorSeverity grades the intensity of an observation.
type BehaviorSeverity string

const (
	SeverityLow      BehaviorSeverity = "low"
	SeverityModerate BehaviorSeverity = "moderate"
	SeverityHigh     BehaviorSeverity = "high"
)

// IsValid reports closed-set membership.
func (s BehaviorSeverity) IsValid() bool {
	return s == SeverityLow || s == SeverityModerate || s == SeverityHigh
}

// InterventionStatus tracks follow-up progress on a record.
type InterventionStatus string

const (
	InterventionNone        InterventionStatus = "none"
	InterventionRecommended InterventionStatus = "recommended"
	InterventionInProgress  InterventionStatus = "in_progress"
	InterventionCompleted   InterventionStatus = "completed"
)

// IsValid reports closed-set membership.
func (s InterventionStatus) IsValid() bool {
	switch s {
	case InterventionNone, InterventionRecommended, InterventionInProgress, InterventionCompleted:
		return true
	}
	return false
}

// InterventionTier maps to the MTSS support tiers.
type InterventionTier string

const (
	TierUniversal InterventionTier = "universal"
	Tier1         InterventionTier = "tier_1"
	Tier2         InterventionTier = "tier_2"
	Tier3         InterventionTier = "tier_3"
)

// IsValid reports closed-set membership.
func (t InterventionTier) IsValid() bool {
	switch t {
	case TierUniversal, Tier1, Tier2, Tier3:
		return true
	}
	return false
}

// Behavior is the required sub-record describing the observation itself.
// All six fields are mandatory; a record failing any is invalid.
type Behavior struct {
	Category      BehaviorCategory `json:"category"`
	Description   string           `json:"description"`
	Severity      BehaviorSeverity `json:"severity"`
	IsPositive    bool             `json:"is_positive"`
	NeedsFollowup bool             `json:"needs_followup"`
	Tags          []string         `json:"tags"`
}

// Value implements driver.Valuer so the sub-record persists as JSONB.
func (b Behavior) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner for JSONB columns.
func (b *Behavior) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// BehaviorContext is the optional situational sub-record.
type BehaviorContext struct {
	ClassName string   `json:"class_name,omitempty"`
	Teacher   string   `json:"teacher,omitempty"`
	Activity  string   `json:"activity,omitempty"`
	GroupIDs  []string `json:"group_ids,omitempty"`
	Location  string   `json:"location,omitempty"`
}

// Intervention is the optional follow-up sub-record.
type Intervention struct {
	Status InterventionStatus `json:"status,omitempty"`
	Type   string             `json:"type,omitempty"`
	Notes  string             `json:"notes,omitempty"`
	Tier   InterventionTier   `json:"tier,omitempty"`
}

// BehaviorRecord is the persisted unit: one structured observation about one
// student, extracted from a single submitted note. The verbatim note text is
// retained for audit and reprocessing and is never overwritten.
type BehaviorRecord struct {
	ID                 string           `json:"id"`
	OriginalText       string           `json:"originalText"`
	StudentName        string           `json:"student_name"`
	StudentID          string           `json:"student_id,omitempty"`
	RecordingTimestamp time.Time        `json:"recording_timestamp"`
	BehaviorDate       *time.Time       `json:"behavior_date,omitempty"`
	Source             RecordSource     `json:"source"`
	Behavior           Behavior         `json:"behavior"`
	Context            *BehaviorContext `json:"context,omitempty"`
	Intervention       *Intervention    `json:"intervention,omitempty"`
	CreatedBy          string           `json:"createdBy"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// EffectiveDate is the incident date: the explicit behavior date when the
// note stated one, otherwise the server-assigned recording timestamp.
func (r *BehaviorRecord) EffectiveDate() time.Time {
	if r.BehaviorDate != nil {
		return *r.BehaviorDate
	}
	return r.RecordingTimestamp
}

// RecordFilter captures retrieval criteria for behavior records. CreatedBy is
// populated by the ownership-scoping policy, never directly from the caller.
type RecordFilter struct {
	StudentName string
	Category    BehaviorCategory
	Severity    BehaviorSeverity
	CreatedBy   string
	Page        int
	PageSize    int
	All         bool
}

// RecordUpdate holds the whitelisted mutable fields for an edit. Identity,
// original text, source, authorship and creation time are not editable.
type RecordUpdate struct {
	StudentName  *string          `json:"student_name"`
	StudentID    *string          `json:"student_id"`
	BehaviorDate *time.Time       `json:"behavior_date"`
	Behavior     *Behavior        `json:"behavior"`
	Context      *BehaviorContext `json:"context"`
	Intervention *Intervention    `json:"intervention"`
}

// BatchFailure describes one record that could not be persisted, keyed by its
// position in the submitted batch.
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchStatus classifies the outcome of a bulk insert.
type BatchStatus int

const (
	BatchAllSaved BatchStatus = iota
	BatchPartial
	BatchFailed
)

// BatchOutcome partitions a bulk insert into persisted records and itemized
// failures. Each record is inserted independently so one malformed student's
// data never blocks the rest of the batch.
type BatchOutcome struct {
	Saved  []BehaviorRecord
	Failed []BatchFailure
}

// Status derives the discriminated outcome from the partition.
func (o BatchOutcome) Status() BatchStatus {
	switch {
	case len(o.Failed) == 0:
		return BatchAllSaved
	case len(o.Saved) > 0:
		return BatchPartial
	default:
		return BatchFailed
	}
}

// CategoryCount aggregates records per category for dashboard views.
type CategoryCount struct {
	Category BehaviorCategory `db:"category" json:"category"`
	Count    int              `db:"count" json:"count"`
}

// SeverityCount aggregates records per severity.
type SeverityCount struct {
	Severity BehaviorSeverity `db:"severity" json:"severity"`
	Count    int              `db:"count" json:"count"`
}

// RecordSummary is the cached aggregate served to dashboards.
type RecordSummary struct {
	TotalCount    int             `json:"total_count"`
	PositiveCount int             `json:"positive_count"`
	FollowupCount int             `json:"followup_count"`
	ByCategory    []CategoryCount `json:"by_category"`
	BySeverity    []SeverityCount `json:"by_severity"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}
