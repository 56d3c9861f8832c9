//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/niranjanbala/agency-10x/internal/config"
	"github.com/niranjanbala/agency-10x/internal/domain"
	"github.com/niranjanbala/agency-10x/internal/identity"
	"github.com/niranjanbala/agency-10x/internal/store"
)

type fakeRepo struct {
	store.Repository

	mu      sync.Mutex
	leads   []*domain.Lead
	pingErr error
	limit   int
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

func (f *fakeRepo) ListLeads(_ context.Context, limit int) ([]*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return f.leads, nil
}

func (f *fakeRepo) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func newTestRouter(repo store.Repository, adminToken string) http.Handler {
	cfg := &config.Config{
		AdminToken: adminToken,
		Scoping:    config.ScopingConfig{ThinkingDelay: 1500 * time.Millisecond},
		Chat:       config.ChatConfig{SessionTTL: time.Hour},
	}
	r := chi.NewRouter()
	NewHandler(repo, cfg).RegisterRoutes(r)
	return r
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHealth(t *testing.T) {
	repo := &fakeRepo{}
	rec := httptest.NewRecorder()
	newTestRouter(repo, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	repo.pingErr = errors.New("disk gone")
	rec = httptest.NewRecorder()
	newTestRouter(repo, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "degraded" || body.Checks["database"] != "unreachable" {
		t.Errorf("Unexpected health body: %+v", body)
	}
}

func TestGetMe(t *testing.T) {
	router := newTestRouter(&fakeRepo{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without identity, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "anon_0123456789abcdef0123456789abcdef", "tab-1"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["session_id"] != "tab-1" || got["display_name"] != "visitor-89abcdef" {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestGetConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var got struct {
		AssessAfter     int                `json:"assess_after"`
		QuestionCount   int                `json:"question_count"`
		ThinkingDelayMs int64              `json:"thinking_delay_ms"`
		Speech          map[string]float64 `json:"speech"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.AssessAfter != 2 || got.QuestionCount != 8 || got.ThinkingDelayMs != 1500 {
		t.Errorf("Unexpected config: %+v", got)
	}
	if got.Speech["rate"] != 0.8 || got.Speech["volume"] != 0.8 {
		t.Errorf("Unexpected speech settings: %v", got.Speech)
	}
}

func TestLeadsRequireAdminToken(t *testing.T) {
	repo := &fakeRepo{leads: []*domain.Lead{{ID: "lead-1", Complexity: domain.ComplexitySimple}}}

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled without token", "", "Bearer anything", http.StatusNotFound},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "secret", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			newTestRouter(repo, tt.token).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestListAndGetLead(t *testing.T) {
	repo := &fakeRepo{leads: []*domain.Lead{{ID: "lead-1", Complexity: domain.ComplexityMedium, Timeline: "2-4 weeks"}}}
	router := newTestRouter(repo, "secret")

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/api/leads?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if repo.limit != 5 {
		t.Errorf("Expected limit 5 to reach the store, got %d", repo.limit)
	}
	var list struct {
		Count int            `json:"count"`
		Leads []*domain.Lead `json:"leads"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if list.Count != 1 || list.Leads[0].ID != "lead-1" {
		t.Errorf("Unexpected list: %+v", list)
	}

	if rec := do("/api/leads?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := do("/api/leads/lead-1"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for known lead, got %d", rec.Code)
	}
	if rec := do("/api/leads/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown lead, got %d", rec.Code)
	}
}
