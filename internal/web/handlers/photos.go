package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// PhotosHandler handles photo listing, per-photo faces and face lookups.
type PhotosHandler struct {
	config  *config.Config
	session *queue.Session
	logger  *zap.Logger
}

// NewPhotosHandler creates a new photos handler.
func NewPhotosHandler(cfg *config.Config, session *queue.Session, logger *zap.Logger) *PhotosHandler {
	return &PhotosHandler{
		config:  cfg,
		session: session,
		logger:  logger,
	}
}

// PriorityRequest represents the request body for setting a photo priority.
type PriorityRequest struct {
	Priority string `json:"priority"`
}

// StatusRequest represents the request body for marking a photo done.
type StatusRequest struct {
	Done bool `json:"done"`
}

// List returns one page of photos.
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cursor, err := queryInt(r, "cursor", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	minConf, err := queryFloat(r, "min_confidence", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.session.ListPhotos(queue.PhotoQuery{
		Cursor:        cursor,
		Limit:         limit,
		Priority:      database.Priority(query.Get("priority")),
		MinConfidence: minConf,
		Mode:          query.Get("mode"),
		IncludeDone:   query.Get("include_done") == "true",
	})
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Faces returns the detected faces and manual boxes of a photo.
func (h *PhotosHandler) Faces(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	if bucketID == "" {
		respondError(w, http.StatusBadRequest, "bucket id is required")
		return
	}
	faces, err := h.session.GetPhotoFaces(bucketID, r.URL.Query().Get("variant"))
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, faces)
}

// SetPriority sets the review priority of a photo.
func (h *PhotosHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	var req PriorityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.session.SetPriority(bucketID, req.Priority)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bucket_id": bucketID, "priority": p})
}

// SetStatus marks a photo done or open again.
func (h *PhotosHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.session.SetPhotoDone(bucketID, req.Done); err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bucket_id": bucketID, "done": req.Done})
}

// Unlabeled lists open faces by detector confidence.
func (h *PhotosHandler) Unlabeled(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	minConf, err := queryFloat(r, "min_confidence", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.session.ListUnlabeled(limit, minConf))
}

// FaceContext returns a face with the other faces of its photo.
func (h *PhotosHandler) FaceContext(w http.ResponseWriter, r *http.Request) {
	ctx, err := h.session.FaceContext(chi.URLParam(r, "faceID"))
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}
