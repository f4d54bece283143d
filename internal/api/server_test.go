package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/signals"
	"github.com/EckmanTechLLC/nyx-sub001/internal/store"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/config"
)

type apiFixture struct {
	db      *store.Store
	states  *motivation.StateManager
	engine  *motivation.Engine
	handler http.Handler
}

func newAPIFixture(t *testing.T, authTokenHash string) *apiFixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Server.AuthTokenHash = authTokenHash

	tracker := signals.NewActivityTracker()
	states := motivation.NewStateManager(db)
	arb := motivation.NewArbitrationEngine(db, states, tracker, true, 0)
	spawner := motivation.NewTaskSpawner(db, states, arb)
	feedback := motivation.NewFeedbackLoop(db, states)
	engine := motivation.NewEngine(db, states, arb, spawner, feedback, tracker, motivation.EngineConfig{
		EvaluationInterval:          time.Second,
		MaxConcurrentMotivatedTasks: 3,
		MinArbitrationThreshold:     0.3,
		FastIteration:               true,
	})

	if err := states.InitializeDefaultStates(context.Background()); err != nil {
		t.Fatalf("initialize states: %v", err)
	}

	server := NewServer(cfg, db, engine, states, feedback)
	return &apiFixture{
		db:      db,
		states:  states,
		engine:  engine,
		handler: server.SetupRoutes(),
	}
}

func (f *apiFixture) do(method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthUnauthenticated(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	f := newAPIFixture(t, string(hash))

	rec := f.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestAuthEnforced(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	f := newAPIFixture(t, string(hash))

	if rec := f.do(http.MethodGet, "/api/v1/system/status", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/system/status", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/system/status", "secret", nil); rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWithEmptyHash(t *testing.T) {
	f := newAPIFixture(t, "")

	rec := f.do(http.MethodGet, "/api/v1/system/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["engine"]; !ok {
		t.Errorf("payload missing engine status: %v", payload)
	}
}

func TestMotivationSummaryEndpoint(t *testing.T) {
	f := newAPIFixture(t, "")

	rec := f.do(http.MethodGet, "/api/v1/motivation/summary", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var summary struct {
		TotalActiveStates int `json:"total_active_states"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalActiveStates != 6 {
		t.Errorf("active states = %d, want 6", summary.TotalActiveStates)
	}
}

func TestBoostEndpoint(t *testing.T) {
	f := newAPIFixture(t, "")
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/api/v1/motivation/boost", "", map[string]interface{}{
		"motivation_type":  motivation.TypeMaximizeCoverage,
		"urgency_increase": 0.4,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	state, err := f.states.GetStateByType(ctx, motivation.TypeMaximizeCoverage)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	// Default maximize_coverage: urgency 0.1 + 0.4*1.0 boost factor.
	if state.Urgency < 0.45 || state.Urgency > 0.55 {
		t.Errorf("urgency = %v, want about 0.5", state.Urgency)
	}
	trigger, ok := state.Metadata["last_trigger"].(map[string]interface{})
	if !ok || trigger["manual_boost"] != true {
		t.Errorf("metadata = %v, want manual_boost trigger marker", state.Metadata)
	}
}

func TestBoostEndpointValidation(t *testing.T) {
	f := newAPIFixture(t, "")

	cases := []map[string]interface{}{
		{"urgency_increase": 0.4},                             // missing type
		{"motivation_type": "x", "urgency_increase": 0.0},     // zero
		{"motivation_type": "x", "urgency_increase": 1.5},     // above 1
	}
	for _, payload := range cases {
		if rec := f.do(http.MethodPost, "/api/v1/motivation/boost", "", payload); rec.Code != http.StatusBadRequest {
			t.Errorf("payload %v: status = %d, want 400", payload, rec.Code)
		}
	}

	if rec := f.do(http.MethodGet, "/api/v1/motivation/boost", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestOutcomeEndpointUnknownTask(t *testing.T) {
	f := newAPIFixture(t, "")

	rec := f.do(http.MethodPost, "/api/v1/motivation/outcome", "", map[string]interface{}{
		"task_id": "no-such-task",
		"success": true,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOutcomeEndpointRequiresSuccessField(t *testing.T) {
	f := newAPIFixture(t, "")

	rec := f.do(http.MethodPost, "/api/v1/motivation/outcome", "", map[string]interface{}{
		"task_id": "task-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing success", rec.Code)
	}
}

func TestTasksEndpoint(t *testing.T) {
	f := newAPIFixture(t, "")

	rec := f.do(http.MethodGet, "/api/v1/motivation/tasks", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 0 {
		t.Errorf("count = %d, want 0 with empty queue", payload.Count)
	}

	if rec := f.do(http.MethodGet, "/api/v1/motivation/tasks?status=abandoned", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d, want 400", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/motivation/tasks?limit=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d, want 400", rec.Code)
	}
}

func TestWorkItemCompletionEndpoint(t *testing.T) {
	f := newAPIFixture(t, "")

	// Unknown handles are acknowledged: the work item just isn't ours.
	rec := f.do(http.MethodPost, "/api/v1/work-items/completion", "", map[string]interface{}{
		"work_item_id": "foreign-item",
		"success":      true,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for foreign work item", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/v1/work-items/completion", "", map[string]interface{}{
		"success": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing work_item_id", rec.Code)
	}
}
