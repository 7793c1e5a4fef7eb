package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// ManualBoxesHandler handles reviewer-drawn face regions.
type ManualBoxesHandler struct {
	config  *config.Config
	session *queue.Session
	logger  *zap.Logger
}

// NewManualBoxesHandler creates a new manual boxes handler.
func NewManualBoxesHandler(cfg *config.Config, session *queue.Session, logger *zap.Logger) *ManualBoxesHandler {
	return &ManualBoxesHandler{
		config:  cfg,
		session: session,
		logger:  logger,
	}
}

// CreateBoxRequest represents the request body for drawing a box.
type CreateBoxRequest struct {
	Side string         `json:"side"`
	BBox facematch.BBox `json:"bbox"`
}

// LabelBoxRequest represents the request body for labeling a box. An empty
// label clears it.
type LabelBoxRequest struct {
	Label string `json:"label"`
}

// Create stores a new box on a photo.
func (h *ManualBoxesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.session.CreateManualBox(chi.URLParam(r, "bucketID"), req.Side, req.BBox)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Label assigns a label to a box.
func (h *ManualBoxesHandler) Label(w http.ResponseWriter, r *http.Request) {
	var req LabelBoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	box, err := h.session.LabelManualBox(chi.URLParam(r, "boxID"), req.Label)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, box)
}

// Delete removes a box.
func (h *ManualBoxesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "boxID")
	if err := h.session.DeleteManualBox(boxID); err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "box_id": boxID})
}
