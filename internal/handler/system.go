package handler

import (
	"net/http"
	"time"

	"github.com/gatehouseio/gatehouse/internal/storage"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// SystemHandler serves the public health endpoint.
type SystemHandler struct {
	store       *store.Store
	objects     storage.ObjectStore
	version     string
	environment string
}

func NewSystemHandler(st *store.Store, objects storage.ObjectStore, version, environment string) *SystemHandler {
	return &SystemHandler{store: st, objects: objects, version: version, environment: environment}
}

// Health handles GET /api/health. Dependency failures degrade the status but
// never change the 200: the endpoint reports that the process is alive and
// lets monitoring read the per-check detail.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string)

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "ok"
	}

	if h.objects != nil {
		if err := h.objects.Check(r.Context()); err != nil {
			checks["storage"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not configured"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"version":     h.version,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": h.environment,
		"checks":      checks,
	})
}
