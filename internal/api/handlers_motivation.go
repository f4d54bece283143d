package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/observability"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// handleSystemStatus handles GET /api/v1/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	inFlight, err := s.db.CountInFlightTasks(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"engine":          s.engine.GetStatus(),
		"in_flight_tasks": inFlight,
	})
}

// handleMotivationSummary handles GET /api/v1/motivation/summary
func (s *Server) handleMotivationSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	summary, err := s.states.MotivationSummary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

// handleTasks handles GET /api/v1/motivation/tasks?status=queued|completed&limit=N
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		tasks []*models.MotivationalTask
		err   error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "queued":
		tasks, err = s.db.QueuedTasks(r.Context(), limit)
	case "completed":
		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
				days = n
			}
		}
		tasks, err = s.db.CompletedTasksSince(r.Context(), time.Now().UTC().AddDate(0, 0, -days))
	default:
		s.respondError(w, http.StatusBadRequest, "status must be queued or completed")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// handleFeedbackSummary handles GET /api/v1/motivation/feedback?days=N
func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	summary, err := s.feedback.Summary(r.Context(), days)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

type boostRequest struct {
	MotivationType  string                 `json:"motivation_type"`
	UrgencyIncrease float64                `json:"urgency_increase"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// handleBoost handles POST /api/v1/motivation/boost
func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req boostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MotivationType == "" {
		s.respondError(w, http.StatusBadRequest, "motivation_type is required")
		return
	}
	if req.UrgencyIncrease <= 0 || req.UrgencyIncrease > 1 {
		s.respondError(w, http.StatusBadRequest, "urgency_increase must be in (0,1]")
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["manual_boost"] = true

	if err := s.engine.ManualBoost(r.Context(), req.MotivationType, req.UrgencyIncrease, metadata); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observability.Info("api.manual_boost", map[string]interface{}{
		"motivation_type":  req.MotivationType,
		"urgency_increase": req.UrgencyIncrease,
	})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "boosted"})
}

type outcomeRequest struct {
	TaskID       string                 `json:"task_id"`
	Success      *bool                  `json:"success"`
	OutcomeScore float64                `json:"outcome_score"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// handleOutcome handles POST /api/v1/motivation/outcome
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TaskID == "" || req.Success == nil {
		s.respondError(w, http.StatusBadRequest, "task_id and success are required")
		return
	}

	err := s.engine.ProcessTaskOutcome(r.Context(), req.TaskID, *req.Success, req.OutcomeScore, req.Metadata)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

type completionRequest struct {
	WorkItemID     string             `json:"work_item_id"`
	Success        *bool              `json:"success"`
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
}

// handleWorkItemCompletion handles POST /api/v1/work-items/completion, the
// callback the orchestrator hits when a dispatched work item finishes.
func (s *Server) handleWorkItemCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WorkItemID == "" || req.Success == nil {
		s.respondError(w, http.StatusBadRequest, "work_item_id and success are required")
		return
	}

	err := s.engine.ProcessWorkItemCompletion(r.Context(), req.WorkItemID, *req.Success, req.QualityMetrics)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func isNotFound(err error) bool {
	return errors.Is(err, motivation.ErrNotFound)
}
