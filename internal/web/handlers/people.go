package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// PeopleHandler handles the people list and label maintenance endpoints.
type PeopleHandler struct {
	config  *config.Config
	session *queue.Session
	logger  *zap.Logger
}

// NewPeopleHandler creates a new people handler.
func NewPeopleHandler(cfg *config.Config, session *queue.Session, logger *zap.Logger) *PeopleHandler {
	return &PeopleHandler{
		config:  cfg,
		session: session,
		logger:  logger,
	}
}

// MergeRequest represents the request body for merging or renaming a label.
type MergeRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// List returns every label with its counts and metadata.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.session.ListPeople(r.Context())
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, people)
}

// Update changes the pinned, group or ignored metadata of a label.
func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}

	var update queue.PersonUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	person, err := h.session.UpdatePerson(r.Context(), label, update)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// Merge renames source to target, or merges it into target when target exists.
func (h *PeopleHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	people, err := h.session.MergeLabels(r.Context(), req.Source, req.Target)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, people)
}

// Remove takes a face off a label and records a reject for the pair.
func (h *PeopleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.faceLabel(w, r, h.session.RemoveFromLabel)
}

// Seed starts or extends a label from a face or a manual box.
func (h *PeopleHandler) Seed(w http.ResponseWriter, r *http.Request) {
	h.faceLabel(w, r, h.session.SeedLabel)
}

func (h *PeopleHandler) faceLabel(w http.ResponseWriter, r *http.Request, apply func(faceID, label string) error) {
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FaceID == "" || req.Label == "" {
		respondError(w, http.StatusBadRequest, "face_id and label are required")
		return
	}
	if err := apply(req.FaceID, req.Label); err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "face_id": req.FaceID})
}

// Faces lists the faces and manual boxes of the label given in the query.
func (h *PeopleHandler) Faces(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	detail, err := h.session.LabelFaces(label)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// Photos returns one page of the photos holding the label given in the query.
func (h *PeopleHandler) Photos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	label := query.Get("label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
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

	page, err := h.session.LabelPhotos(queue.LabelPhotoQuery{
		Label:         label,
		Cursor:        cursor,
		Limit:         limit,
		MinConfidence: minConf,
		IncludeDone:   query.Get("include_done") == "true",
	})
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}
