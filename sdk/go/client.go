package compasssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal AI Compass HTTP API client.
// Owner calls need BearerToken; invite calls only need the invite token.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Answer is one qualification answer.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

type Selection struct {
	PillarID string `json:"pillar_id"`
	MetricID string `json:"metric_id"`
	Selected bool   `json:"selected"`
}

type MetricScore struct {
	PillarID  string  `json:"pillar_id,omitempty"`
	Responses []int   `json:"responses"`
	Score     float64 `json:"score,omitempty"`
	Completed bool    `json:"completed,omitempty"`
}

type Progress struct {
	CompletedMetrics int    `json:"completed_metrics"`
	TotalMetrics     int    `json:"total_metrics"`
	Percent          int    `json:"percent"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

type ExecProfile struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
}

// CreatedAssessment is returned by CreateAssessment.
type CreatedAssessment struct {
	ID              string `json:"id"`
	InviteToken     string `json:"invite_token"`
	InviteExpiresAt string `json:"invite_expires_at"`
}

// Assessment represents the owner's view of an assessment (partial on list).
type Assessment struct {
	ID              string                 `json:"id"`
	OwnerID         string                 `json:"owner_id,omitempty"`
	InviteToken     string                 `json:"invite_token"`
	InviteExpiresAt string                 `json:"invite_expires_at"`
	Status          string                 `json:"status"`
	CompanyName     string                 `json:"company_name"`
	CompanyIndustry string                 `json:"company_industry,omitempty"`
	CompanySize     string                 `json:"company_size,omitempty"`
	ExecProfile     *ExecProfile           `json:"exec_profile,omitempty"`
	Selections      []Selection            `json:"selections,omitempty"`
	Scores          map[string]MetricScore `json:"scores,omitempty"`
	Progress        *Progress              `json:"progress,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
}

// Invite is the respondent's view of an assessment.
type Invite struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	InviteExpiresAt string                 `json:"invite_expires_at"`
	CompanyName     string                 `json:"company_name"`
	CompanyIndustry string                 `json:"company_industry,omitempty"`
	CompanySize     string                 `json:"company_size,omitempty"`
	ExecProfile     *ExecProfile           `json:"exec_profile,omitempty"`
	Selections      []Selection            `json:"selections"`
	Scores          map[string]MetricScore `json:"scores"`
	Progress        *Progress              `json:"progress,omitempty"`
	UpdatedAt       string                 `json:"updated_at"`
}

type PillarScore struct {
	PillarID   string  `json:"pillar_id"`
	PillarName string  `json:"pillar_name"`
	Score      float64 `json:"score"`
}

// ScoreSummary is the aggregated result of an assessment.
type ScoreSummary struct {
	CompositeScore float64       `json:"composite_score"`
	PillarScores   []PillarScore `json:"pillar_scores"`
	MaturityBand   string        `json:"maturity_band"`
}

// Event represents a log entry.
type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessment_id"`
	Channel      string `json:"channel"`
	ActorID      string `json:"actor_id,omitempty"`
	Payload      string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateOptions are the optional fields of CreateAssessment.
type CreateOptions struct {
	CompanyIndustry string
	CompanySize     string
	InviteDays      int
	Qualification   []Answer
}

// UpdateAssessment fields left nil are not sent.
type UpdateAssessment struct {
	Status          *string `json:"status,omitempty"`
	InviteDays      *int    `json:"invite_days,omitempty"`
	CompanyName     *string `json:"company_name,omitempty"`
	CompanyIndustry *string `json:"company_industry,omitempty"`
	CompanySize     *string `json:"company_size,omitempty"`
}

// UpdateInvite fields left nil are not sent; slices and maps replace the stored value.
type UpdateInvite struct {
	Status          *string                 `json:"status,omitempty"`
	CompanyName     *string                 `json:"company_name,omitempty"`
	CompanyIndustry *string                 `json:"company_industry,omitempty"`
	CompanySize     *string                 `json:"company_size,omitempty"`
	ExecProfile     *ExecProfile            `json:"exec_profile,omitempty"`
	Selections      *[]Selection            `json:"selections,omitempty"`
	Scores          *map[string]MetricScore `json:"scores,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAssessment creates an assessment owned by the bearer.
func (c *Client) CreateAssessment(ctx context.Context, companyName string, opts CreateOptions) (CreatedAssessment, error) {
	body := map[string]any{"company_name": companyName}
	if opts.CompanyIndustry != "" {
		body["company_industry"] = opts.CompanyIndustry
	}
	if opts.CompanySize != "" {
		body["company_size"] = opts.CompanySize
	}
	if opts.InviteDays > 0 {
		body["invite_days"] = opts.InviteDays
	}
	if len(opts.Qualification) > 0 {
		body["qualification"] = opts.Qualification
	}
	var resp CreatedAssessment
	err := c.do(ctx, http.MethodPost, "assessments", body, &resp)
	return resp, err
}

// ListAssessments returns the bearer's assessments, newest first.
func (c *Client) ListAssessments(ctx context.Context) ([]Assessment, error) {
	var resp struct {
		Items []Assessment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "assessments", nil, &resp)
	return resp.Items, err
}

// GetAssessment fetches one of the bearer's assessments.
func (c *Client) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	var resp Assessment
	err := c.do(ctx, http.MethodGet, "assessments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateAssessment patches, cancels or completes an assessment.
func (c *Client) UpdateAssessment(ctx context.Context, id string, patch UpdateAssessment) (Assessment, error) {
	var resp Assessment
	err := c.do(ctx, http.MethodPatch, "assessments/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// Results scores an assessment for its owner.
func (c *Client) Results(ctx context.Context, id string) (ScoreSummary, error) {
	var resp ScoreSummary
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("assessments/%s/results", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, id string, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := fmt.Sprintf("assessments/%s/events", url.PathEscape(id))
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetInvite opens an invite.
func (c *Client) GetInvite(ctx context.Context, token string) (Invite, error) {
	var resp Invite
	err := c.do(ctx, http.MethodGet, invitePath(token, ""), nil, &resp)
	return resp, err
}

// PatchInvite saves respondent progress. Status may only be "completed".
func (c *Client) PatchInvite(ctx context.Context, token string, patch UpdateInvite) (Invite, error) {
	var resp Invite
	err := c.do(ctx, http.MethodPatch, invitePath(token, ""), patch, &resp)
	return resp, err
}

// Qualify replaces the invite's selections with the ones the answers recommend.
func (c *Client) Qualify(ctx context.Context, token string, answers []Answer) (Invite, error) {
	if answers == nil {
		answers = []Answer{}
	}
	var resp Invite
	err := c.do(ctx, http.MethodPost, invitePath(token, "qualify"), map[string]any{"answers": answers}, &resp)
	return resp, err
}

// RecordResponse stores one 1-5 answer.
func (c *Client) RecordResponse(ctx context.Context, token, metricID string, questionIndex, value int) (Invite, error) {
	body := map[string]any{
		"metric_id":      metricID,
		"question_index": questionIndex,
		"value":          value,
	}
	var resp Invite
	err := c.do(ctx, http.MethodPost, invitePath(token, "responses"), body, &resp)
	return resp, err
}

// CompleteMetric marks a metric as finished.
func (c *Client) CompleteMetric(ctx context.Context, token, metricID string) (Invite, error) {
	var resp Invite
	err := c.do(ctx, http.MethodPost, invitePath(token, "metrics/"+url.PathEscape(metricID)+"/complete"), nil, &resp)
	return resp, err
}

// InviteResults scores the invite's assessment.
func (c *Client) InviteResults(ctx context.Context, token string) (ScoreSummary, error) {
	var resp ScoreSummary
	err := c.do(ctx, http.MethodGet, invitePath(token, "results"), nil, &resp)
	return resp, err
}

func invitePath(token, suffix string) string {
	p := "invite/" + url.PathEscape(token)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
