package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/storage"
	"github.com/gatehouseio/gatehouse/internal/store"
)

const maxAvatarSize = 5 << 20 // 5 MiB

// avatarTypes maps accepted content types to the file extension used for the
// object key.
var avatarTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// avatarExtensions is the probe order for serving and deleting, since the
// stored extension is not recorded anywhere but the object key.
var avatarExtensions = []string{"jpg", "png", "webp"}

// AvatarHandler stores profile pictures in object storage and serves them
// back on a public URL.
type AvatarHandler struct {
	store      *store.Store
	objects    storage.ObjectStore
	logger     *slog.Logger
	production bool
}

func NewAvatarHandler(st *store.Store, objects storage.ObjectStore, logger *slog.Logger, production bool) *AvatarHandler {
	return &AvatarHandler{store: st, objects: objects, logger: logger, production: production}
}

func avatarKey(userID, ext string) string {
	return fmt.Sprintf("avatars/%s.%s", userID, ext)
}

// Upload handles POST /api/settings/avatar with a multipart "avatar" part.
// A new upload overwrites any previous avatar regardless of extension.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Avatar must be smaller than 5MB")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing avatar file")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read avatar file")
		return
	}

	// Sniff the real type rather than trusting the client-declared one.
	contentType := http.DetectContentType(body)
	ext, ok := avatarTypes[contentType]
	if !ok {
		writeError(w, http.StatusBadRequest, "Avatar must be a JPEG, PNG or WebP image")
		return
	}

	// Clear other-extension leftovers so a PNG upload does not leave a stale
	// JPEG behind.
	for _, other := range avatarExtensions {
		if other == ext {
			continue
		}
		if err := h.objects.Delete(r.Context(), avatarKey(p.UserID, other)); err != nil {
			h.logger.Warn("stale avatar cleanup failed", "error", err)
		}
	}
	if err := h.objects.Put(r.Context(), avatarKey(p.UserID, ext), contentType, body); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to store avatar", err)
		return
	}

	// Cache-busting timestamp; the serve route is immutable-cached.
	url := fmt.Sprintf("/api/avatar/%s?t=%d", p.UserID, time.Now().UnixMilli())
	if err := h.store.UpdateUserImage(r.Context(), p.UserID, &url); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to update profile image", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Avatar updated",
		"avatarUrl": url,
	})
}

// Remove handles DELETE /api/settings/avatar.
func (h *AvatarHandler) Remove(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	for _, ext := range avatarExtensions {
		if err := h.objects.Delete(r.Context(), avatarKey(p.UserID, ext)); err != nil {
			h.logger.Warn("avatar delete failed", "key", avatarKey(p.UserID, ext), "error", err)
		}
	}
	if err := h.store.UpdateUserImage(r.Context(), p.UserID, nil); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to update profile image", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Avatar removed"})
}

// Serve handles GET /api/avatar/{userID}. The route is public: avatar URLs
// are embedded in pages shown to other users. Responses are cached hard
// because uploads rotate the query-string timestamp.
func (h *AvatarHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	for _, ext := range avatarExtensions {
		obj, err := h.objects.Get(r.Context(), avatarKey(userID, ext))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			writeServerError(w, h.logger, h.production, "Failed to load avatar", err)
			return
		}
		defer obj.Body.Close()
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		io.Copy(w, obj.Body)
		return
	}
	writeError(w, http.StatusNotFound, "Avatar not found")
}
