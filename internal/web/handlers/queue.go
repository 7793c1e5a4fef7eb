package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/constants"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// QueueHandler handles the labeling queue endpoints.
type QueueHandler struct {
	config  *config.Config
	session *queue.Session
	logger  *zap.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(cfg *config.Config, session *queue.Session, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{
		config:  cfg,
		session: session,
		logger:  logger,
	}
}

// CandidateResponse is returned by the single-candidate endpoints. Done is
// true when the queue has nothing left to offer.
type CandidateResponse struct {
	Candidate *facematch.Candidate `json:"candidate"`
	Done      bool                 `json:"done"`
}

// BatchResponse is returned by the ranked batch endpoint.
type BatchResponse struct {
	Candidates []facematch.Candidate `json:"candidates"`
	Done       bool                  `json:"done"`
}

// DecisionRequest identifies a face and the label a decision is made for.
type DecisionRequest struct {
	FaceID string `json:"face_id"`
	Label  string `json:"label"`
}

// IgnoreRequest represents the request body for ignoring a face or a whole photo.
type IgnoreRequest struct {
	FaceID   string `json:"face_id"`
	BucketID string `json:"bucket_id"`
	Reason   string `json:"reason"`
}

// CommitBatchRequest represents the request body for a batch commit.
type CommitBatchRequest struct {
	Label  string   `json:"label"`
	Accept []string `json:"accept"`
	Reject []string `json:"reject"`
}

// UndoResponse describes what an undo restored. Restored is null when the
// history was empty.
type UndoResponse struct {
	Restored  *queue.RestoredContext `json:"restored"`
	UndoDepth int                    `json:"undo_depth"`
}

func (h *QueueHandler) minSimilarity(r *http.Request) (float64, error) {
	return queryFloat(r, "min_similarity", h.session.Options().MinSimilarity)
}

// Next returns the best candidate for a label.
func (h *QueueHandler) Next(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	minSim, err := h.minSimilarity(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.session.NextCandidate(r.Context(), label, minSim)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CandidateResponse{Candidate: c, Done: c == nil})
}

// Batch returns a ranked batch of candidates for a label.
func (h *QueueHandler) Batch(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	minSim, err := h.minSimilarity(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := h.session.RankedBatch(r.Context(), label, limit, minSim)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, BatchResponse{Candidates: candidates, Done: len(candidates) == 0})
}

// Seed returns the most confident face nobody has decided on.
func (h *QueueHandler) Seed(w http.ResponseWriter, r *http.Request) {
	c := h.session.SeedCandidate()
	respondJSON(w, http.StatusOK, CandidateResponse{Candidate: c, Done: c == nil})
}

func (h *QueueHandler) decision(w http.ResponseWriter, r *http.Request, requireLabel bool, apply func(faceID, label string) error) {
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FaceID == "" {
		respondError(w, http.StatusBadRequest, "face_id is required")
		return
	}
	if requireLabel && req.Label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	if err := apply(req.FaceID, req.Label); err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "face_id": req.FaceID})
}

// Accept assigns the label to the face.
func (h *QueueHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, true, h.session.Accept)
}

// Reject records that the face is not the person.
func (h *QueueHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, true, h.session.Reject)
}

// Skip hides the face from the label's queue for this session. An empty
// label skips in seed mode.
func (h *QueueHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, false, h.session.Skip)
}

// Unignore restores an ignored face.
func (h *QueueHandler) Unignore(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, false, func(faceID, _ string) error { return h.session.Unignore(faceID) })
}

// Ignore excludes a face from every queue.
func (h *QueueHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	var req IgnoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FaceID == "" {
		respondError(w, http.StatusBadRequest, "face_id is required")
		return
	}
	if err := h.session.Ignore(req.FaceID, req.Reason); err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "face_id": req.FaceID})
}

// IgnoreBucket ignores every open face of a photo.
func (h *QueueHandler) IgnoreBucket(w http.ResponseWriter, r *http.Request) {
	var req IgnoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BucketID == "" {
		respondError(w, http.StatusBadRequest, "bucket_id is required")
		return
	}
	n, err := h.session.IgnoreBucket(req.BucketID, req.Reason)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": n})
}

// CommitBatch accepts and rejects many faces as one undo step. A partial
// failure answers 207 with the per-id detail.
func (h *QueueHandler) CommitBatch(w http.ResponseWriter, r *http.Request) {
	var req CommitBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	if n := len(req.Accept) + len(req.Reject); n == 0 {
		respondError(w, http.StatusBadRequest, "accept or reject ids are required")
		return
	} else if n > constants.MaxBatchIDs {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d ids per batch", constants.MaxBatchIDs))
		return
	}

	result, err := h.session.CommitBatch(req.Label, req.Accept, req.Reject)
	var partial *queue.PartialBatchFailure
	switch {
	case errors.As(err, &partial):
		respondJSON(w, http.StatusMultiStatus, result)
	case err != nil:
		respondSessionError(w, r, h.logger, err)
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

// Undo reverts the newest decision.
func (h *QueueHandler) Undo(w http.ResponseWriter, r *http.Request) {
	restored, err := h.session.Undo()
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, UndoResponse{Restored: restored, UndoDepth: h.session.UndoDepth()})
}

// Summary returns the queue totals.
func (h *QueueHandler) Summary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Summary())
}
