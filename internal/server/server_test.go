package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aicompass/internal/catalog"
	"aicompass/internal/db"
	"aicompass/internal/domain"
	"aicompass/internal/engine"
	"aicompass/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, opts ...func(*engine.Engine)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, catalog.Default())
	for _, opt := range opts {
		opt(&e)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func ownerHeaders(t *testing.T, ownerID string) map[string]string {
	t.Helper()
	token, err := SignOwnerToken(testSecret, ownerID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func createAssessment(t *testing.T, srv *testServer, headers map[string]string, body map[string]any) CreatedAssessmentResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assessments", body, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created CreatedAssessmentResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" || created.InviteToken == "" {
		t.Fatalf("expected id and invite token, got %+v", created)
	}
	return created
}

func TestAssessmentFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := ownerHeaders(t, "owner-1")

	created := createAssessment(t, srv, owner, map[string]any{
		"company_name": "Acme",
		"qualification": []map[string]string{
			{"question_id": "ai-maturity", "value": "exploring"},
		},
	})

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments", nil, owner)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listBody))
	}
	var list struct {
		Items []AssessmentSummaryResponse `json:"items"`
	}
	if err := json.Unmarshal(listBody, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list.Items)
	}

	inviteURL := srv.URL + "/v1/invite/" + created.InviteToken
	snapRes, snapBody := doJSON(t, client, http.MethodGet, inviteURL, nil, nil)
	if snapRes.StatusCode != http.StatusOK {
		t.Fatalf("invite status %d: %s", snapRes.StatusCode, string(snapBody))
	}
	if strings.Contains(string(snapBody), "owner-1") {
		t.Fatalf("invite projection leaked owner: %s", string(snapBody))
	}
	var snap domain.InviteSnapshot
	if err := json.Unmarshal(snapBody, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Selections) != 24 {
		t.Fatalf("expected 24 selections, got %d", len(snap.Selections))
	}

	for i := 0; i < 3; i++ {
		res, body := doJSON(t, client, http.MethodPost, inviteURL+"/responses", map[string]any{
			"metric_id":      "adoption-coverage",
			"question_index": i,
			"value":          5,
		}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("response %d status %d: %s", i, res.StatusCode, string(body))
		}
	}
	completeRes, completeBody := doJSON(t, client, http.MethodPost, inviteURL+"/metrics/adoption-coverage/complete", nil, nil)
	if completeRes.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", completeRes.StatusCode, string(completeBody))
	}
	if err := json.Unmarshal(completeBody, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	entry := snap.Scores["adoption-coverage"]
	if !entry.Completed || entry.Score != 5 || entry.PillarID != "internal-adoption" {
		t.Fatalf("unexpected metric entry: %+v", entry)
	}
	if snap.Progress == nil || snap.Progress.CompletedMetrics != 1 {
		t.Fatalf("expected derived progress, got %+v", snap.Progress)
	}

	resultsRes, resultsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments/"+created.ID+"/results", nil, owner)
	if resultsRes.StatusCode != http.StatusOK {
		t.Fatalf("results status %d: %s", resultsRes.StatusCode, string(resultsBody))
	}
	var summary domain.ScoreSummary
	if err := json.Unmarshal(resultsBody, &summary); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if summary.CompositeScore != 100 || summary.MaturityBand != "Leading" || len(summary.PillarScores) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	doneRes, doneBody := doJSON(t, client, http.MethodPatch, inviteURL, map[string]any{"status": "completed"}, nil)
	if doneRes.StatusCode != http.StatusOK {
		t.Fatalf("complete invite status %d: %s", doneRes.StatusCode, string(doneBody))
	}
	closedRes, closedBody := doJSON(t, client, http.MethodGet, inviteURL, nil, nil)
	if closedRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after completion, got %d: %s", closedRes.StatusCode, string(closedBody))
	}
	if got := decodeError(t, closedBody); got.Code != "assessment_completed" || got.Message != "Assessment completed" {
		t.Fatalf("unexpected error: %+v", got)
	}

	ownerRes, ownerBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments/"+created.ID, nil, owner)
	if ownerRes.StatusCode != http.StatusOK {
		t.Fatalf("owner get status %d: %s", ownerRes.StatusCode, string(ownerBody))
	}
	var full AssessmentResponse
	if err := json.Unmarshal(ownerBody, &full); err != nil {
		t.Fatalf("unmarshal assessment: %v", err)
	}
	if full.Status != "completed" || full.OwnerID != "owner-1" {
		t.Fatalf("unexpected assessment: %+v", full)
	}
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(body))
	}
	if got := decodeError(t, body); got.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", got.Code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(body))
	}

	forged, err := SignOwnerToken("other-secret", "owner-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments", nil, map[string]string{"Authorization": "Bearer " + forged})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d: %s", res.StatusCode, string(body))
	}

	for _, p := range []string{"/v1/health", "/v1/catalog", "/v1/catalog/qualification"} {
		res, body := doJSON(t, client, http.MethodGet, srv.URL+p, nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", p, res.StatusCode, string(body))
		}
	}
}

func TestOwnerIsolation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createAssessment(t, srv, ownerHeaders(t, "owner-1"), map[string]any{"company_name": "Acme"})
	intruder := ownerHeaders(t, "owner-2")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments/"+created.ID, nil, intruder)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(body))
	}
	if got := decodeError(t, body); got.Code != "owner_mismatch" {
		t.Fatalf("unexpected code %q", got.Code)
	}

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+created.ID, map[string]any{"status": "cancelled"}, intruder)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on patch, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assessments/missing", nil, intruder)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/invite/not-a-token", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown invite, got %d: %s", res.StatusCode, string(body))
	}
}

func TestCancelledInviteIsClosed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := ownerHeaders(t, "owner-1")
	created := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme"})

	res, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+created.ID, map[string]any{"status": "cancelled"}, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/invite/"+created.InviteToken+"/responses", map[string]any{
		"metric_id":      "adoption-coverage",
		"question_index": 0,
		"value":          3,
	}, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(body))
	}
	if got := decodeError(t, body); got.Code != "assessment_cancelled" || got.Message != "Assessment cancelled" {
		t.Fatalf("unexpected error: %+v", got)
	}

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+created.ID, map[string]any{"company_name": "Renamed"}, owner)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on terminal patch, got %d: %s", res.StatusCode, string(body))
	}
}

func TestValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := ownerHeaders(t, "owner-1")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assessments", map[string]any{"company_name": "  "}, owner)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(body))
	}
	got := decodeError(t, body)
	if got.Code != "validation_error" || got.Details["field"] != "company_name" {
		t.Fatalf("unexpected error: %+v", got)
	}

	created := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme"})
	inviteURL := srv.URL + "/v1/invite/" + created.InviteToken

	res, body = doJSON(t, client, http.MethodPost, inviteURL+"/responses", map[string]any{
		"metric_id":      "adoption-coverage",
		"question_index": 0,
		"value":          7,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range value, got %d: %s", res.StatusCode, string(body))
	}
	if got := decodeError(t, body); got.Code != "validation_error" {
		t.Fatalf("unexpected code %q", got.Code)
	}

	res, body = doJSON(t, client, http.MethodPatch, inviteURL, map[string]any{"status": "cancelled"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for respondent cancel, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, inviteURL+"/qualify", map[string]any{
		"answers": []map[string]string{{"question_id": "ai-maturity", "value": "bogus"}},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown answer, got %d: %s", res.StatusCode, string(body))
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := ownerHeaders(t, "owner-1")
	created := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme"})

	res, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+created.ID, map[string]any{"company_size": "51-200"}, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(body))
	}

	eventsURL := srv.URL + "/v1/assessments/" + created.ID + "/events"
	res, body = doJSON(t, client, http.MethodGet, eventsURL+"?limit=1", nil, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(body))
	}
	var page paginatedEvents
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "assessment.created" || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	res, body = doJSON(t, client, http.MethodGet, eventsURL+"?limit=1&cursor="+page.NextCursor, nil, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(body))
	}
	page = paginatedEvents{}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "assessment.updated" || page.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	res, body = doJSON(t, client, http.MethodGet, eventsURL+"?cursor=abc", nil, owner)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d: %s", res.StatusCode, string(body))
	}
}

func TestOpenAPIMarksOwnerRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(body))
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if ops := doc.Paths["/v1/assessments"]; len(ops["post"].Security) != 1 {
		t.Fatalf("expected bearer security on create, got %+v", ops["post"])
	}
	if ops := doc.Paths["/v1/invite/{token}"]; len(ops["get"].Security) != 0 {
		t.Fatalf("expected invite route to be public, got %+v", ops["get"])
	}
}

func TestClosedInviteReportsGuardBeforeBody(t *testing.T) {
	var skew atomic.Int64
	srv, cleanup := newTestServer(t, func(e *engine.Engine) {
		e.Now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	})
	defer cleanup()
	client := srv.Client()
	owner := ownerHeaders(t, "owner-1")

	cancelled := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme"})
	res, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+cancelled.ID, map[string]any{"status": "cancelled"}, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(body))
	}
	completed := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme"})
	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/invite/"+completed.InviteToken, map[string]any{"status": "completed"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(body))
	}
	expiring := createAssessment(t, srv, owner, map[string]any{"company_name": "Acme", "invite_days": 1})

	requests := []struct {
		name   string
		method string
		suffix string
		body   any
	}{
		{"patch", http.MethodPatch, "", map[string]any{"status": "cancelled", "company_name": " "}},
		{"responses", http.MethodPost, "/responses", map[string]any{"metric_id": "nope", "question_index": -1, "value": 9}},
		{"qualify", http.MethodPost, "/qualify", map[string]any{"answers": []map[string]string{{"question_id": "ai-maturity", "value": "bogus"}}}},
		{"complete metric", http.MethodPost, "/metrics/nope/complete", nil},
	}
	states := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"unknown", "no-such-token", http.StatusNotFound, "not_found"},
		{"cancelled", cancelled.InviteToken, http.StatusForbidden, "assessment_cancelled"},
		{"completed", completed.InviteToken, http.StatusForbidden, "assessment_completed"},
		{"expired", expiring.InviteToken, http.StatusForbidden, "invite_expired"},
	}

	skew.Store(int64(48 * time.Hour))
	for _, st := range states {
		for _, rq := range requests {
			t.Run(st.name+"/"+rq.name, func(t *testing.T) {
				res, body := doJSON(t, client, rq.method, srv.URL+"/v1/invite/"+st.token+rq.suffix, rq.body, nil)
				if res.StatusCode != st.status {
					t.Fatalf("expected %d, got %d: %s", st.status, res.StatusCode, string(body))
				}
				if got := decodeError(t, body); got.Code != st.code {
					t.Fatalf("expected code %s, got %+v", st.code, got)
				}
			})
		}
	}
}

func TestOwnerMismatchBeforeBody(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createAssessment(t, srv, ownerHeaders(t, "owner-1"), map[string]any{"company_name": "Acme"})

	res, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/"+created.ID, map[string]any{
		"status":      "bogus",
		"invite_days": 0,
	}, ownerHeaders(t, "intruder"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(body))
	}
	if got := decodeError(t, body); got.Code != "owner_mismatch" {
		t.Fatalf("unexpected error: %+v", got)
	}

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assessments/missing", map[string]any{"status": "bogus"}, ownerHeaders(t, "intruder"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(body))
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var wg sync.WaitGroup
	bodies := make([][]byte, 8)
	for i := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}()
	}
	wg.Wait()
	for i, b := range bodies {
		if len(b) == 0 || !bytes.Equal(b, bodies[0]) {
			t.Fatalf("document %d differs from the first", i)
		}
	}
}
