package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/observability"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/config"
)

// Server is the HTTP API for inspecting and steering the motivation engine.
type Server struct {
	cfg      *config.Config
	db       motivation.Storage
	engine   *motivation.Engine
	states   *motivation.StateManager
	feedback *motivation.FeedbackLoop
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, db motivation.Storage, engine *motivation.Engine, states *motivation.StateManager, feedback *motivation.FeedbackLoop) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		engine:   engine,
		states:   states,
		feedback: feedback,
	}
}

// SetupRoutes builds the HTTP handler with authentication applied to every
// route except the health check.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/system/status", s.requireAuth(s.handleSystemStatus))
	mux.HandleFunc("/api/v1/motivation/summary", s.requireAuth(s.handleMotivationSummary))
	mux.HandleFunc("/api/v1/motivation/tasks", s.requireAuth(s.handleTasks))
	mux.HandleFunc("/api/v1/motivation/feedback", s.requireAuth(s.handleFeedbackSummary))
	mux.HandleFunc("/api/v1/motivation/boost", s.requireAuth(s.handleBoost))
	mux.HandleFunc("/api/v1/motivation/outcome", s.requireAuth(s.handleOutcome))
	mux.HandleFunc("/api/v1/work-items/completion", s.requireAuth(s.handleWorkItemCompletion))

	return mux
}

// requireAuth enforces the bearer token when an auth hash is configured. The
// config stores a bcrypt hash, never the token itself.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := s.cfg.Server.AuthTokenHash
		if hash == "" {
			next(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			s.respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			observability.Warn("api.auth_failed", map[string]interface{}{
				"remote_addr": r.RemoteAddr,
				"path":        r.URL.Path,
			})
			s.respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
