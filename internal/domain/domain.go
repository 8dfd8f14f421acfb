package domain

import "time"

// Status is the lifecycle state of an assessment.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type ExecProfile struct {
	Name  string `json:"name" required:"false"`
	Title string `json:"title" required:"false"`
	Email string `json:"email" required:"false"`
}

// Selection marks whether a catalog metric counts toward scoring.
type Selection struct {
	PillarID string `json:"pillar_id"`
	MetricID string `json:"metric_id"`
	Selected bool   `json:"selected"`
}

// MetricScore holds the respondent's answers for one metric.
type MetricScore struct {
	PillarID  string  `json:"pillar_id" required:"false"`
	Responses []int   `json:"responses"`
	Score     float64 `json:"score" required:"false"`
	Completed bool    `json:"completed" required:"false"`
}

// Scores maps metric ids to their recorded responses.
type Scores map[string]MetricScore

// Clone returns a deep copy so a patch can be applied without aliasing the stored record.
func (s Scores) Clone() Scores {
	if s == nil {
		return nil
	}
	out := make(Scores, len(s))
	for k, v := range s {
		v.Responses = append([]int(nil), v.Responses...)
		out[k] = v
	}
	return out
}

type Progress struct {
	CompletedMetrics int       `json:"completed_metrics"`
	TotalMetrics     int       `json:"total_metrics"`
	Percent          int       `json:"percent"`
	UpdatedAt        time.Time `json:"updated_at" format:"date-time" required:"false"`
}

// Assessment is the persisted assessment record.
type Assessment struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"owner_id"`
	InviteToken     string       `json:"invite_token"`
	InviteExpiresAt time.Time    `json:"invite_expires_at" format:"date-time"`
	Status          Status       `json:"status" enum:"active,cancelled,completed"`
	CompanyName     string       `json:"company_name"`
	CompanyIndustry string       `json:"company_industry,omitempty"`
	CompanySize     string       `json:"company_size,omitempty"`
	ExecProfile     *ExecProfile `json:"exec_profile,omitempty"`
	Selections      []Selection  `json:"selections"`
	Scores          Scores       `json:"scores"`
	Progress        *Progress    `json:"progress,omitempty"`
	Version         int64        `json:"-"`
	CreatedAt       time.Time    `json:"created_at" format:"date-time"`
	UpdatedAt       time.Time    `json:"updated_at" format:"date-time"`
}

// Clone returns a copy safe to mutate independently of a.
func (a Assessment) Clone() Assessment {
	out := a
	if a.ExecProfile != nil {
		p := *a.ExecProfile
		out.ExecProfile = &p
	}
	if a.Selections != nil {
		out.Selections = append([]Selection(nil), a.Selections...)
	}
	out.Scores = a.Scores.Clone()
	if a.Progress != nil {
		p := *a.Progress
		out.Progress = &p
	}
	return out
}

// Event is an audit log entry for an assessment.
type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessment_id"`
	Channel      string `json:"channel" enum:"owner,respondent"`
	ActorID      string `json:"actor_id,omitempty"`
	Payload      string `json:"payload_json"`
}

// PillarScore is the 0-100 score of one evaluated pillar.
type PillarScore struct {
	PillarID   string  `json:"pillar_id"`
	PillarName string  `json:"pillar_name"`
	Score      float64 `json:"score"`
}

// ScoreSummary is the aggregated result of an assessment.
type ScoreSummary struct {
	CompositeScore float64       `json:"composite_score"`
	PillarScores   []PillarScore `json:"pillar_scores"`
	MaturityBand   string        `json:"maturity_band" enum:"Emerging,Developing,Scaling,Leading"`
}

// InviteSnapshot is the respondent's view of an assessment. It never carries the owner.
type InviteSnapshot struct {
	ID              string       `json:"id"`
	Status          Status       `json:"status" enum:"active,cancelled,completed"`
	InviteExpiresAt time.Time    `json:"invite_expires_at" format:"date-time"`
	CompanyName     string       `json:"company_name"`
	CompanyIndustry string       `json:"company_industry,omitempty"`
	CompanySize     string       `json:"company_size,omitempty"`
	ExecProfile     *ExecProfile `json:"exec_profile,omitempty"`
	Selections      []Selection  `json:"selections"`
	Scores          Scores       `json:"scores"`
	Progress        *Progress    `json:"progress,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at" format:"date-time"`
}

// Snapshot projects a for the invite channel.
func (a Assessment) Snapshot() InviteSnapshot {
	c := a.Clone()
	return InviteSnapshot{
		ID:              c.ID,
		Status:          c.Status,
		InviteExpiresAt: c.InviteExpiresAt,
		CompanyName:     c.CompanyName,
		CompanyIndustry: c.CompanyIndustry,
		CompanySize:     c.CompanySize,
		ExecProfile:     c.ExecProfile,
		Selections:      c.Selections,
		Scores:          c.Scores,
		Progress:        c.Progress,
		UpdatedAt:       c.UpdatedAt,
	}
}
