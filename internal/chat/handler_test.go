package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/niranjanbala/agency-10x/internal/domain"
	"github.com/niranjanbala/agency-10x/internal/scoping"
)

func TestHandleMessageStreamsTurn(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, nil)

	rec := postMessage(t, env.router, "  A booking app for salons  ")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected SSE content type, got %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	want := []string{eventAck, eventMessage, eventMessage, eventDone}
	if got := eventNames(events); !slices.Equal(got, want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	if events[0].Data.Text != "A booking app for salons" {
		t.Errorf("Expected trimmed ack text, got %q", events[0].Data.Text)
	}
	if events[1].Data.Message.Role != domain.RoleUser {
		t.Errorf("Expected user message first, got %q", events[1].Data.Message.Role)
	}
	reply := events[2].Data.Message
	if reply.Role != domain.RoleAssistant || !strings.Contains(reply.Content, scoping.DefaultQuestions[0]) {
		t.Errorf("Expected greeting with the first question, got %q", reply.Content)
	}

	done := events[3].Data.State
	if done == nil || len(done.Transcript) != 2 || done.State != scoping.StateScoping || done.Processing {
		t.Fatalf("Unexpected done state: %+v", done)
	}
	if done.SessionID != testSession {
		t.Errorf("Expected session %q, got %q", testSession, done.SessionID)
	}
}

func TestHandleMessageAssessmentRecordsLead(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, nil)

	answers := []string{"A todo app", "Web only", "Two weeks"}
	var last []sseEvent
	for _, a := range answers {
		rec := postMessage(t, env.router, a)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		last = parseSSE(t, rec.Body.String())
	}

	want := []string{eventAck, eventMessage, eventMessage, eventAssessment, eventSchedule, eventDone}
	if got := eventNames(last); !slices.Equal(got, want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	a := last[3].Data.Assessment
	if a == nil || a.Complexity != domain.ComplexitySimple || !a.CanBuild || a.Timeline != "1 week" {
		t.Fatalf("Unexpected assessment: %+v", a)
	}
	if last[4].Data.SchedulingURL != testScheduling {
		t.Errorf("Expected scheduling URL, got %q", last[4].Data.SchedulingURL)
	}
	if state := last[5].Data.State; state.State != scoping.StateAssessed || state.SchedulingURL != testScheduling {
		t.Errorf("Unexpected final state: %+v", state)
	}

	leads := env.leads.all()
	if len(leads) != 1 {
		t.Fatalf("Expected 1 lead, got %d", len(leads))
	}
	if !slices.Equal(leads[0].Answers, answers) {
		t.Errorf("Expected answers %v, got %v", answers, leads[0].Answers)
	}
	if leads[0].VisitorID != testVisitor || leads[0].SessionID != testSession {
		t.Errorf("Unexpected lead identity: %+v", leads[0])
	}

	rec := postMessage(t, env.router, "one more thing")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 after assessment, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["code"] != "assessed" {
		t.Errorf("Expected code assessed, got %v", body)
	}
}

func TestHandleMessageLeadStoreFailureKeepsTurn(t *testing.T) {
	env := newTestEnv(t, domain.ComplexityMedium, nil)
	env.leads.createErr = errors.New("database is locked")

	var last []sseEvent
	for _, a := range []string{"A CRM", "Web", "A month"} {
		rec := postMessage(t, env.router, a)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		last = parseSSE(t, rec.Body.String())
	}

	want := []string{eventAck, eventMessage, eventMessage, eventAssessment, eventSchedule, eventDone}
	if got := eventNames(last); !slices.Equal(got, want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	if state := last[5].Data.State; state == nil || state.State != scoping.StateAssessed {
		t.Fatalf("Unexpected final state: %+v", last[5].Data.State)
	}

	snap := env.mgr.Get(testKey()).Snapshot()
	if len(snap.Transcript) != 6 || snap.Assessment == nil {
		t.Fatalf("Expected 6 entries and an assessment, got %d entries %+v", len(snap.Transcript), snap.Assessment)
	}
	env.leads.mu.Lock()
	defer env.leads.mu.Unlock()
	if env.leads.createCalls != 1 || len(env.leads.leads) != 0 {
		t.Errorf("Expected one failed write, got %d calls %d leads", env.leads.createCalls, len(env.leads.leads))
	}
}

func TestHandleMessageComplexOffersNoSchedule(t *testing.T) {
	env := newTestEnv(t, domain.ComplexityComplex, nil)

	var last []sseEvent
	for _, a := range []string{"An ERP", "Everything", "ASAP"} {
		last = parseSSE(t, postMessage(t, env.router, a).Body.String())
	}
	want := []string{eventAck, eventMessage, eventMessage, eventAssessment, eventDone}
	if got := eventNames(last); !slices.Equal(got, want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	if last[3].Data.Assessment.CanBuild {
		t.Error("Expected complex project to be out of scope")
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/schedule", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for complex assessment, got %d", rec.Code)
	}
}

func TestHandleMessageValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		anon   bool
		mutate func(*HandlerConfig)
		want   int
	}{
		{name: "unauthorized", body: `{"message":"hi"}`, anon: true, want: http.StatusUnauthorized},
		{name: "invalid json", body: `{`, want: http.StatusBadRequest},
		{name: "blank message", body: `{"message":"   "}`, want: http.StatusBadRequest},
		{
			name:   "too large",
			body:   `{"message":"` + strings.Repeat("x", 256) + `"}`,
			mutate: func(c *HandlerConfig) { c.MaxRequestBodySize = 64 },
			want:   http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, domain.ComplexitySimple, tt.mutate)
			req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(tt.body))
			if tt.anon {
				req.Header.Set("X-Test-Anonymous", "1")
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("Expected %d, got %d", tt.want, rec.Code)
			}
			if snap := env.mgr.Get(testKey()).Snapshot(); len(snap.Transcript) != 0 {
				t.Errorf("Expected empty transcript, got %d entries", len(snap.Transcript))
			}
		})
	}
}

func TestHandleMessageRateLimited(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, func(c *HandlerConfig) {
		c.RateLimitRequests = 1
	})

	if rec := postMessage(t, env.router, "first"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := postMessage(t, env.router, "second"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
}

func TestHandleMessageBusy(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, nil)
	// Hold the reply in flight until cancelled.
	env.mgr.delay = time.Hour
	session := env.mgr.Get(testKey())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := session.Submit(ctx, "first")
		errCh <- err
	}()
	waitFor(t, func() bool { return session.Snapshot().Processing })

	rec := postMessage(t, env.router, "second")
	cancel()
	<-errCh

	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
}

func TestHandleStateAndReset(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, nil)
	postMessage(t, env.router, "A marketplace")

	get := func() stateResponse {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var got stateResponse
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return got
	}

	if got := get(); len(got.Transcript) != 2 || got.State != scoping.StateScoping {
		t.Fatalf("Unexpected state before reset: %+v", got)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	got := get()
	if len(got.Transcript) != 0 || got.State != scoping.StateGreeting || got.Assessment != nil {
		t.Fatalf("Unexpected state after reset: %+v", got)
	}
}

func TestSessionsAreIsolatedPerTab(t *testing.T) {
	env := newTestEnv(t, domain.ComplexitySimple, nil)
	postMessage(t, env.router, "tab one idea")

	other, ok := env.mgr.Lookup(Key{VisitorID: testVisitor, SessionID: "tab-2"})
	if ok && len(other.Snapshot().Transcript) != 0 {
		t.Fatal("Expected the second tab to start empty")
	}
	if env.mgr.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", env.mgr.Len())
	}
}

func TestHandleSchedule(t *testing.T) {
	env := newTestEnv(t, domain.ComplexityMedium, nil)

	schedule := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/schedule", nil))
		return rec
	}

	if rec := schedule(); rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 before assessment, got %d", rec.Code)
	}
	for _, a := range []string{"A CRM", "Web", "A month"} {
		postMessage(t, env.router, a)
	}
	rec := schedule()
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302 after buildable assessment, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != testScheduling {
		t.Errorf("Expected redirect to %q, got %q", testScheduling, loc)
	}
}

func TestSubmitErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantName string
	}{
		{scoping.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
		{scoping.ErrBusy, http.StatusConflict, "busy"},
		{scoping.ErrAssessed, http.StatusConflict, "assessed"},
		{scoping.ErrDiscarded, http.StatusConflict, "discarded"},
		{errors.New("boom"), http.StatusInternalServerError, "generation_failed"},
	}
	for _, tt := range tests {
		status, code := submitErrorStatus(tt.err)
		if status != tt.wantCode || code != tt.wantName {
			t.Errorf("submitErrorStatus(%v) = %d %q, want %d %q", tt.err, status, code, tt.wantCode, tt.wantName)
		}
	}
	if got := publicError(errors.New("internal detail")); strings.Contains(got, "internal detail") {
		t.Errorf("Expected internal errors to be hidden, got %q", got)
	}
}
