package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aicompass/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the row changed since it was read.
	ErrConflict = errors.New("conflict")
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const assessmentColumns = `id,owner_id,invite_token,invite_expires_at,status,company_name,company_industry,company_size,exec_profile_json,selections_json,scores_json,progress_json,version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (domain.Assessment, error) {
	var (
		a                                 domain.Assessment
		status, expires, created, updated string
		execProfile, progress             sql.NullString
		selections, scores                string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.InviteToken, &expires, &status, &a.CompanyName, &a.CompanyIndustry, &a.CompanySize,
		&execProfile, &selections, &scores, &progress, &a.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.Status(status)
	if a.InviteExpiresAt, err = parseTime(expires); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return a, err
	}
	if execProfile.Valid {
		var p domain.ExecProfile
		if err := json.Unmarshal([]byte(execProfile.String), &p); err != nil {
			return a, fmt.Errorf("decode exec_profile: %w", err)
		}
		a.ExecProfile = &p
	}
	if err := json.Unmarshal([]byte(selections), &a.Selections); err != nil {
		return a, fmt.Errorf("decode selections: %w", err)
	}
	if err := json.Unmarshal([]byte(scores), &a.Scores); err != nil {
		return a, fmt.Errorf("decode scores: %w", err)
	}
	if a.Selections == nil {
		a.Selections = []domain.Selection{}
	}
	if a.Scores == nil {
		a.Scores = domain.Scores{}
	}
	if progress.Valid {
		var p domain.Progress
		if err := json.Unmarshal([]byte(progress.String), &p); err != nil {
			return a, fmt.Errorf("decode progress: %w", err)
		}
		a.Progress = &p
	}
	return a, nil
}

type encodedAssessment struct {
	execProfile, progress any
	selections, scores    string
}

func encodeAssessment(a domain.Assessment) (encodedAssessment, error) {
	var enc encodedAssessment
	if a.ExecProfile != nil {
		data, err := json.Marshal(a.ExecProfile)
		if err != nil {
			return enc, fmt.Errorf("encode exec_profile: %w", err)
		}
		enc.execProfile = string(data)
	}
	if a.Progress != nil {
		data, err := json.Marshal(a.Progress)
		if err != nil {
			return enc, fmt.Errorf("encode progress: %w", err)
		}
		enc.progress = string(data)
	}
	selections := a.Selections
	if selections == nil {
		selections = []domain.Selection{}
	}
	data, err := json.Marshal(selections)
	if err != nil {
		return enc, fmt.Errorf("encode selections: %w", err)
	}
	enc.selections = string(data)
	scores := a.Scores
	if scores == nil {
		scores = domain.Scores{}
	}
	data, err = json.Marshal(scores)
	if err != nil {
		return enc, fmt.Errorf("encode scores: %w", err)
	}
	enc.scores = string(data)
	return enc, nil
}

// InsertAssessmentTx stores a new record at version 1.
func (r Repo) InsertAssessmentTx(ctx context.Context, tx *sql.Tx, a domain.Assessment) error {
	enc, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assessments(`+assessmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.OwnerID, a.InviteToken, formatTime(a.InviteExpiresAt), string(a.Status), a.CompanyName, a.CompanyIndustry, a.CompanySize,
		enc.execProfile, enc.selections, enc.scores, enc.progress, 1, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r Repo) GetAssessment(ctx context.Context, id string) (domain.Assessment, error) {
	return getAssessment(ctx, r.DB, `id=?`, id)
}

func (r Repo) GetAssessmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assessment, error) {
	return getAssessment(ctx, tx, `id=?`, id)
}

func (r Repo) GetAssessmentByToken(ctx context.Context, token string) (domain.Assessment, error) {
	return getAssessment(ctx, r.DB, `invite_token=?`, token)
}

func (r Repo) GetAssessmentByTokenTx(ctx context.Context, tx *sql.Tx, token string) (domain.Assessment, error) {
	return getAssessment(ctx, tx, `invite_token=?`, token)
}

func getAssessment(ctx context.Context, q queryer, where string, arg string) (domain.Assessment, error) {
	if arg == "" {
		return domain.Assessment{}, ErrNotFound
	}
	return scanAssessment(q.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE `+where, arg))
}

// ListAssessmentsByOwner returns the owner's records, newest first.
func (r Repo) ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]domain.Assessment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE owner_id=? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAssessmentTx writes every mutable column if the stored version still
// equals a.Version, and returns the new version.
func (r Repo) UpdateAssessmentTx(ctx context.Context, tx *sql.Tx, a domain.Assessment) (int64, error) {
	enc, err := encodeAssessment(a)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE assessments SET invite_expires_at=?,status=?,company_name=?,company_industry=?,company_size=?,exec_profile_json=?,selections_json=?,scores_json=?,progress_json=?,version=version+1,updated_at=? WHERE id=? AND version=?`,
		formatTime(a.InviteExpiresAt), string(a.Status), a.CompanyName, a.CompanyIndustry, a.CompanySize,
		enc.execProfile, enc.selections, enc.scores, enc.progress, formatTime(a.UpdatedAt), a.ID, a.Version)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM assessments WHERE id=?`, a.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		return 0, ErrConflict
	}
	return a.Version + 1, nil
}

// ListEvents returns the audit log of an assessment in ascending order, after the cursor.
func (r Repo) ListEvents(ctx context.Context, assessmentID string, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"assessment_id=?"}
	args := []any{assessmentID}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,assessment_id,channel,COALESCE(actor_id,''),payload_json FROM assessment_events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AssessmentID, &e.Channel, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}
