package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the flat error envelope used by every API endpoint.
// Additional machine-readable fields can be supplied via extra.
func writeError(w http.ResponseWriter, code int, message string, extra ...map[string]interface{}) {
	body := map[string]interface{}{"error": message}
	if len(extra) > 0 {
		for k, v := range extra[0] {
			body[k] = v
		}
	}
	writeJSON(w, code, body)
}

// writeServerError logs the underlying error and answers with a generic
// message. In non-production environments the real error is included to make
// local debugging less painful.
func writeServerError(w http.ResponseWriter, logger *slog.Logger, production bool, msg string, err error) {
	logger.Error(msg, "error", err)
	if production {
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	writeError(w, http.StatusInternalServerError, msg, map[string]interface{}{
		"detail": err.Error(),
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// msTime formats a timestamp as Unix milliseconds, the representation the
// web client expects. Returns nil for zero times so optional fields render
// as JSON null.
func msTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// msTimePtr is msTime for nullable columns.
func msTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// validEmail applies the same light-touch check the sign-up form does.
// Deliverability is proven by the verification mail, not the syntax.
func validEmail(s string) bool {
	if len(s) > 254 {
		return false
	}
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1
}

// userPayload is the projection of a user returned by auth and settings
// endpoints.
func userPayload(u *model.User) map[string]interface{} {
	p := u.Projection()
	return map[string]interface{}{
		"id":    p.ID,
		"email": p.Email,
		"name":  p.Name,
		"image": p.Image,
	}
}
