package server

import (
	"time"

	"aicompass/internal/catalog"
	"aicompass/internal/domain"
	"aicompass/internal/selection"
)

// Request payloads

type QualificationAnswer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

type CreateAssessmentRequest struct {
	CompanyName     string                `json:"company_name"`
	CompanyIndustry *string               `json:"company_industry,omitempty"`
	CompanySize     *string               `json:"company_size,omitempty"`
	InviteDays      *int                  `json:"invite_days,omitempty" minimum:"1" maximum:"365"`
	Qualification   []QualificationAnswer `json:"qualification,omitempty"`
}

type UpdateAssessmentRequest struct {
	Status          *string `json:"status,omitempty" doc:"active, cancelled or completed"`
	InviteDays      *int    `json:"invite_days,omitempty" doc:"1 to 365, recomputed from now"`
	CompanyName     *string `json:"company_name,omitempty"`
	CompanyIndustry *string `json:"company_industry,omitempty"`
	CompanySize     *string `json:"company_size,omitempty"`
}

type UpdateInviteRequest struct {
	Status          *string             `json:"status,omitempty"`
	CompanyName     *string             `json:"company_name,omitempty"`
	CompanyIndustry *string             `json:"company_industry,omitempty"`
	CompanySize     *string             `json:"company_size,omitempty"`
	ExecProfile     *domain.ExecProfile `json:"exec_profile,omitempty"`
	Selections      *[]domain.Selection `json:"selections,omitempty"`
	Scores          *domain.Scores      `json:"scores,omitempty"`
	Progress        *domain.Progress    `json:"progress,omitempty"`
}

// Ranges on invite bodies are checked by the engine after the invite guards.
type QualifyRequest struct {
	Answers []QualificationAnswer `json:"answers"`
}

type RecordResponseRequest struct {
	MetricID      string `json:"metric_id" required:"false"`
	QuestionIndex int    `json:"question_index" required:"false"`
	Value         int    `json:"value" required:"false" doc:"1 to 5"`
}

// Response payloads

type AssessmentResponse struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"owner_id"`
	InviteToken     string              `json:"invite_token"`
	InviteExpiresAt time.Time           `json:"invite_expires_at" format:"date-time"`
	Status          string              `json:"status" enum:"active,cancelled,completed"`
	CompanyName     string              `json:"company_name"`
	CompanyIndustry string              `json:"company_industry,omitempty"`
	CompanySize     string              `json:"company_size,omitempty"`
	ExecProfile     *domain.ExecProfile `json:"exec_profile,omitempty"`
	Selections      []domain.Selection  `json:"selections"`
	Scores          domain.Scores       `json:"scores"`
	Progress        *domain.Progress    `json:"progress,omitempty"`
	CreatedAt       time.Time           `json:"created_at" format:"date-time"`
	UpdatedAt       time.Time           `json:"updated_at" format:"date-time"`
}

type CreatedAssessmentResponse struct {
	ID              string    `json:"id"`
	InviteToken     string    `json:"invite_token"`
	InviteExpiresAt time.Time `json:"invite_expires_at" format:"date-time"`
}

type AssessmentSummaryResponse struct {
	ID              string           `json:"id"`
	InviteToken     string           `json:"invite_token"`
	InviteExpiresAt time.Time        `json:"invite_expires_at" format:"date-time"`
	Status          string           `json:"status" enum:"active,cancelled,completed"`
	CompanyName     string           `json:"company_name"`
	CompanyIndustry string           `json:"company_industry,omitempty"`
	CompanySize     string           `json:"company_size,omitempty"`
	Progress        *domain.Progress `json:"progress,omitempty"`
	CreatedAt       time.Time        `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessment_id"`
	Channel      string `json:"channel" enum:"owner,respondent"`
	ActorID      string `json:"actor_id,omitempty"`
	Payload      string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type QualificationResponse struct {
	Questions []catalog.QualificationQuestion `json:"questions"`
}

func assessmentResponse(a domain.Assessment) AssessmentResponse {
	a = a.Clone()
	return AssessmentResponse{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		InviteToken:     a.InviteToken,
		InviteExpiresAt: a.InviteExpiresAt,
		Status:          string(a.Status),
		CompanyName:     a.CompanyName,
		CompanyIndustry: a.CompanyIndustry,
		CompanySize:     a.CompanySize,
		ExecProfile:     a.ExecProfile,
		Selections:      nonNilSelections(a.Selections),
		Scores:          nonNilScores(a.Scores),
		Progress:        a.Progress,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func assessmentSummary(a domain.Assessment) AssessmentSummaryResponse {
	return AssessmentSummaryResponse{
		ID:              a.ID,
		InviteToken:     a.InviteToken,
		InviteExpiresAt: a.InviteExpiresAt,
		Status:          string(a.Status),
		CompanyName:     a.CompanyName,
		CompanyIndustry: a.CompanyIndustry,
		CompanySize:     a.CompanySize,
		Progress:        a.Progress,
		CreatedAt:       a.CreatedAt,
	}
}

func mapAssessments(items []domain.Assessment) []AssessmentSummaryResponse {
	out := make([]AssessmentSummaryResponse, 0, len(items))
	for _, a := range items {
		out = append(out, assessmentSummary(a))
	}
	return out
}

func inviteResponse(s domain.InviteSnapshot) domain.InviteSnapshot {
	s.Selections = nonNilSelections(s.Selections)
	s.Scores = nonNilScores(s.Scores)
	return s
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:           e.ID,
		TS:           e.TS,
		Type:         e.Type,
		AssessmentID: e.AssessmentID,
		Channel:      e.Channel,
		ActorID:      e.ActorID,
		Payload:      e.Payload,
	}
}

func toAnswers(in []QualificationAnswer) []selection.Answer {
	out := make([]selection.Answer, 0, len(in))
	for _, a := range in {
		out = append(out, selection.Answer{QuestionID: a.QuestionID, Value: a.Value})
	}
	return out
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func nonNilSelections(s []domain.Selection) []domain.Selection {
	if s == nil {
		return []domain.Selection{}
	}
	return s
}

func nonNilScores(s domain.Scores) domain.Scores {
	if s == nil {
		return domain.Scores{}
	}
	return s
}
