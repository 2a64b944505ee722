package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// OrganizationHandler serves the per-user business profile used on invoices.
type OrganizationHandler struct {
	store      *store.Store
	logger     *slog.Logger
	production bool
}

func NewOrganizationHandler(st *store.Store, logger *slog.Logger, production bool) *OrganizationHandler {
	return &OrganizationHandler{store: st, logger: logger, production: production}
}

// loadOrCreate returns the user's settings row, inserting an empty one on
// first access.
func (h *OrganizationHandler) loadOrCreate(r *http.Request, userID string) (*model.OrganizationSettings, error) {
	org, err := h.store.GetOrganizationSettings(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		org = &model.OrganizationSettings{UserID: userID}
		if err := h.store.CreateOrganizationSettings(r.Context(), org); err != nil {
			return nil, err
		}
		return org, nil
	}
	return org, err
}

// Get handles GET /api/organization.
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	org, err := h.loadOrCreate(r, p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to load organization settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organization": org})
}

// orgFields maps JSON keys to setters plus a length cap. All fields are
// nullable strings; an explicit null clears the value.
var orgFields = map[string]struct {
	set func(*model.OrganizationSettings, *string)
	max int
}{
	"businessName":    {func(o *model.OrganizationSettings, v *string) { o.BusinessName = v }, 200},
	"businessEmail":   {func(o *model.OrganizationSettings, v *string) { o.BusinessEmail = v }, 254},
	"businessPhone":   {func(o *model.OrganizationSettings, v *string) { o.BusinessPhone = v }, 50},
	"businessWebsite": {func(o *model.OrganizationSettings, v *string) { o.BusinessWebsite = v }, 500},
	"addressLine1":    {func(o *model.OrganizationSettings, v *string) { o.AddressLine1 = v }, 200},
	"addressLine2":    {func(o *model.OrganizationSettings, v *string) { o.AddressLine2 = v }, 200},
	"city":            {func(o *model.OrganizationSettings, v *string) { o.City = v }, 100},
	"state":           {func(o *model.OrganizationSettings, v *string) { o.State = v }, 100},
	"postcode":        {func(o *model.OrganizationSettings, v *string) { o.Postcode = v }, 20},
	"country":         {func(o *model.OrganizationSettings, v *string) { o.Country = v }, 100},
	"timezone":        {func(o *model.OrganizationSettings, v *string) { o.Timezone = v }, 100},
	"abn":             {func(o *model.OrganizationSettings, v *string) { o.ABN = v }, 20},
	"taxId":           {func(o *model.OrganizationSettings, v *string) { o.TaxID = v }, 50},
}

// Update handles PATCH /api/organization. Only keys present in the body are
// touched; unknown keys are ignored.
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var raw map[string]json.RawMessage
	if err := readJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	org, err := h.loadOrCreate(r, p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to load organization settings", err)
		return
	}

	for key, field := range orgFields {
		rawVal, ok := raw[key]
		if !ok {
			continue
		}
		var val *string
		if err := json.Unmarshal(rawVal, &val); err != nil {
			writeError(w, http.StatusBadRequest, key+" must be a string or null")
			return
		}
		if val != nil {
			trimmed := strings.TrimSpace(*val)
			if len(trimmed) > field.max {
				writeError(w, http.StatusBadRequest, key+" is too long")
				return
			}
			if trimmed == "" {
				val = nil
			} else {
				val = &trimmed
			}
		}
		field.set(org, val)
	}

	if err := h.store.UpdateOrganizationSettings(r.Context(), org); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to save organization settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Organization settings updated",
		"organization": org,
	})
}
