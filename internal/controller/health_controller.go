package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/cassiomorais/paybridge/internal/config"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db  Pinger
	app config.AppConfig
}

func NewHealthController(db Pinger, app config.AppConfig) *HealthController {
	return &HealthController{db: db, app: app}
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type indexResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Index handles GET /
func (h *HealthController) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Success: true,
		Message: h.app.Name + " payment bridge",
		Version: h.app.Version,
		Endpoints: map[string]string{
			"health":   "/api/health",
			"pay":      "/api/pay",
			"callback": "/api/notify",
		},
	})
}

// Health handles GET /api/health
func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "API is running",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Response{Success: false, Message: "Endpoint not found"})
}
