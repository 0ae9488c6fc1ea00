package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/l0lsec/XRayViewer/internal/database"
)

type HealthHandler struct {
	client *database.Client
}

func NewHealthHandler(client *database.Client) *HealthHandler {
	return &HealthHandler{client: client}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	// Check storage engine
	if err := h.client.Ping(r.Context()); err != nil {
		response.Services["storage"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["storage"] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	// Check if service is ready to accept requests
	if err := h.client.Ping(r.Context()); err != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
