package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pbj-app/pbj-api/internal/models"
)

// RecordRepository manages persistence for behavior records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a new repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = "id, original_text, student_name, student_id, recording_timestamp, behavior_date, source, behavior, context, intervention, created_by, created_at"

// escapeLike neutralizes LIKE metacharacters in caller-supplied match text so
// a search for "100%" does not act as a wildcard.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// recordRow mirrors the behavior_records table. The optional JSONB sub-records
// come back as raw bytes because their model counterparts are pointers.
type recordRow struct {
	ID                 string          `db:"id"`
	OriginalText       string          `db:"original_text"`
	StudentName        string          `db:"student_name"`
	StudentID          sql.NullString  `db:"student_id"`
	RecordingTimestamp time.Time       `db:"recording_timestamp"`
	BehaviorDate       sql.NullTime    `db:"behavior_date"`
	Source             string          `db:"source"`
	Behavior           models.Behavior `db:"behavior"`
	Context            []byte          `db:"context"`
	Intervention       []byte          `db:"intervention"`
	CreatedBy          string          `db:"created_by"`
	CreatedAt          time.Time       `db:"created_at"`
}

func (row *recordRow) toModel() (*models.BehaviorRecord, error) {
	rec := models.BehaviorRecord{
		ID:                 row.ID,
		OriginalText:       row.OriginalText,
		StudentName:        row.StudentName,
		RecordingTimestamp: row.RecordingTimestamp,
		Source:             models.RecordSource(row.Source),
		Behavior:           row.Behavior,
		CreatedBy:          row.CreatedBy,
		CreatedAt:          row.CreatedAt,
	}
	if row.StudentID.Valid {
		rec.StudentID = row.StudentID.String
	}
	if row.BehaviorDate.Valid {
		date := row.BehaviorDate.Time
		rec.BehaviorDate = &date
	}
	if len(row.Context) > 0 {
		var c models.BehaviorContext
		if err := json.Unmarshal(row.Context, &c); err != nil {
			return nil, fmt.Errorf("decode record context: %w", err)
		}
		rec.Context = &c
	}
	if len(row.Intervention) > 0 {
		var i models.Intervention
		if err := json.Unmarshal(row.Intervention, &i); err != nil {
			return nil, fmt.Errorf("decode record intervention: %w", err)
		}
		rec.Intervention = &i
	}
	return &rec, nil
}

func rowFromModel(rec *models.BehaviorRecord) (*recordRow, error) {
	row := recordRow{
		ID:                 rec.ID,
		OriginalText:       rec.OriginalText,
		StudentName:        rec.StudentName,
		RecordingTimestamp: rec.RecordingTimestamp,
		Source:             string(rec.Source),
		Behavior:           rec.Behavior,
		CreatedBy:          rec.CreatedBy,
		CreatedAt:          rec.CreatedAt,
	}
	if rec.StudentID != "" {
		row.StudentID = sql.NullString{String: rec.StudentID, Valid: true}
	}
	if rec.BehaviorDate != nil {
		row.BehaviorDate = sql.NullTime{Time: *rec.BehaviorDate, Valid: true}
	}
	if rec.Context != nil {
		encoded, err := json.Marshal(rec.Context)
		if err != nil {
			return nil, fmt.Errorf("encode record context: %w", err)
		}
		row.Context = encoded
	}
	if rec.Intervention != nil {
		encoded, err := json.Marshal(rec.Intervention)
		if err != nil {
			return nil, fmt.Errorf("encode record intervention: %w", err)
		}
		row.Intervention = encoded
	}
	return &row, nil
}

// Create inserts a single behavior record.
func (r *RecordRepository) Create(ctx context.Context, rec *models.BehaviorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row, err := rowFromModel(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO behavior_records (id, original_text, student_name, student_id, recording_timestamp, behavior_date, source, behavior, context, intervention, created_by, created_at)
VALUES (:id, :original_text, :student_name, :student_id, :recording_timestamp, :behavior_date, :source, :behavior, :context, :intervention, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create behavior record: %w", err)
	}
	return nil
}

// InsertMany persists each record independently and partitions the batch into
// saved records and itemized failures. One bad record never aborts the rest.
func (r *RecordRepository) InsertMany(ctx context.Context, records []models.BehaviorRecord) models.BatchOutcome {
	outcome := models.BatchOutcome{}
	for i := range records {
		rec := records[i]
		if err := r.Create(ctx, &rec); err != nil {
			outcome.Failed = append(outcome.Failed, models.BatchFailure{Index: i, Error: err.Error()})
			continue
		}
		outcome.Saved = append(outcome.Saved, rec)
	}
	return outcome
}

// List returns behavior records per provided filter with a total count.
// Ordered newest first by recording timestamp, with id as a stable tiebreak.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.BehaviorRecord, int, error) {
	base := "FROM behavior_records"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentName != "" {
		where = append(where, fmt.Sprintf("student_name ILIKE '%%' || $%d || '%%'", len(args)+1))
		args = append(args, escapeLike(filter.StudentName))
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("behavior->>'category' = $%d", len(args)+1))
		args = append(args, string(filter.Category))
	}
	if filter.Severity != "" {
		where = append(where, fmt.Sprintf("behavior->>'severity' = $%d", len(args)+1))
		args = append(args, string(filter.Severity))
	}
	if filter.CreatedBy != "" {
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}
	whereClause := strings.Join(where, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count behavior records: %w", err)
	}

	limitClause := ""
	if !filter.All {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		size := filter.PageSize
		if size <= 0 {
			size = 20
		}
		offset := (page - 1) * size
		limitClause = fmt.Sprintf(" LIMIT %d OFFSET %d", size, offset)
	}

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY recording_timestamp DESC, id%s", recordColumns, base, whereClause, limitClause)
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list behavior records: %w", err)
	}

	records := make([]models.BehaviorRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toModel()
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, total, nil
}

// FindByID returns a record by identifier. A non-empty createdBy narrows the
// lookup to that owner; a record outside the scope reads as absent.
func (r *RecordRepository) FindByID(ctx context.Context, id, createdBy string) (*models.BehaviorRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM behavior_records WHERE id = $1", recordColumns)
	args := []interface{}{id}
	if createdBy != "" {
		query += " AND created_by = $2"
		args = append(args, createdBy)
	}
	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find behavior record: %w", err)
	}
	return row.toModel()
}

// Update rewrites the mutable columns of an existing record. Identity, note
// text, source, authorship and creation time are left untouched.
func (r *RecordRepository) Update(ctx context.Context, rec *models.BehaviorRecord) error {
	row, err := rowFromModel(rec)
	if err != nil {
		return err
	}
	query := `UPDATE behavior_records SET student_name = :student_name, student_id = :student_id, behavior_date = :behavior_date, behavior = :behavior, context = :context, intervention = :intervention
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update behavior record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update behavior record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a record. A non-empty createdBy restricts deletion to the
// owner; no match reports sql.ErrNoRows.
func (r *RecordRepository) Delete(ctx context.Context, id, createdBy string) error {
	query := "DELETE FROM behavior_records WHERE id = $1"
	args := []interface{}{id}
	if createdBy != "" {
		query += " AND created_by = $2"
		args = append(args, createdBy)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete behavior record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete behavior record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summary aggregates record counts, optionally scoped to one owner.
func (r *RecordRepository) Summary(ctx context.Context, createdBy string) (*models.RecordSummary, error) {
	whereClause := "1=1"
	args := []interface{}{}
	if createdBy != "" {
		whereClause = "created_by = $1"
		args = append(args, createdBy)
	}

	totalsQuery := fmt.Sprintf(`SELECT COUNT(*) AS total_count,
        COALESCE(SUM(CASE WHEN (behavior->>'is_positive')::boolean THEN 1 ELSE 0 END),0) AS positive_count,
        COALESCE(SUM(CASE WHEN (behavior->>'needs_followup')::boolean THEN 1 ELSE 0 END),0) AS followup_count
FROM behavior_records WHERE %s`, whereClause)
	summary := models.RecordSummary{GeneratedAt: time.Now().UTC()}
	if err := r.db.QueryRowxContext(ctx, totalsQuery, args...).Scan(&summary.TotalCount, &summary.PositiveCount, &summary.FollowupCount); err != nil {
		return nil, fmt.Errorf("record summary totals: %w", err)
	}

	categoryQuery := fmt.Sprintf(`SELECT behavior->>'category' AS category, COUNT(*) AS count
FROM behavior_records WHERE %s GROUP BY 1 ORDER BY count DESC, category`, whereClause)
	if err := r.db.SelectContext(ctx, &summary.ByCategory, categoryQuery, args...); err != nil {
		return nil, fmt.Errorf("record summary by category: %w", err)
	}

	severityQuery := fmt.Sprintf(`SELECT behavior->>'severity' AS severity, COUNT(*) AS count
FROM behavior_records WHERE %s GROUP BY 1 ORDER BY count DESC, severity`, whereClause)
	if err := r.db.SelectContext(ctx, &summary.BySeverity, severityQuery, args...); err != nil {
		return nil, fmt.Errorf("record summary by severity: %w", err)
	}
	return &summary, nil
}
