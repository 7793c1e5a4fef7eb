package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// ClustersHandler handles the face cluster endpoints.
type ClustersHandler struct {
	config  *config.Config
	session *queue.Session
	logger  *zap.Logger
}

// NewClustersHandler creates a new clusters handler.
func NewClustersHandler(cfg *config.Config, session *queue.Session, logger *zap.Logger) *ClustersHandler {
	return &ClustersHandler{
		config:  cfg,
		session: session,
		logger:  logger,
	}
}

// ClusterLabelRequest represents the request body for labeling a cluster.
type ClusterLabelRequest struct {
	Label string `json:"label"`
}

// List returns one page of clusters. refresh=true recomputes them.
func (h *ClustersHandler) List(w http.ResponseWriter, r *http.Request) {
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
	minFaces, err := queryInt(r, "min_faces", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.session.ListClusters(r.Context(), queue.ClusterQuery{
		Cursor:   cursor,
		Limit:    limit,
		MinFaces: minFaces,
		Refresh:  r.URL.Query().Get("refresh") == "true",
	})
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Get returns one cluster with the state of its members.
func (h *ClustersHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.session.GetCluster(r.Context(), chi.URLParam(r, "clusterID"))
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// Label assigns a label to every unlabeled member of a cluster.
func (h *ClustersHandler) Label(w http.ResponseWriter, r *http.Request) {
	var req ClusterLabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	res, err := h.session.LabelCluster(r.Context(), chi.URLParam(r, "clusterID"), req.Label)
	if err != nil {
		respondSessionError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
