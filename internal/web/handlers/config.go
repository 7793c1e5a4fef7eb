package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse carries the settings a client needs to drive the queue.
type ConfigResponse struct {
	MinSimilarity  float64             `json:"min_similarity"`
	BatchSize      int                 `json:"batch_size"`
	PageSize       int                 `json:"page_size"`
	Priorities     []database.Priority `json:"priorities"`
	Modes          []string            `json:"modes"`
	StoreBackend   string              `json:"store_backend"`
	CatalogSource  string              `json:"catalog_source"`
	IndexEnabled   bool                `json:"index_enabled"`
	ImagesRequired bool                `json:"images_required"`
}

// Get returns the public part of the configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		MinSimilarity:  h.config.Queue.MinSimilarity,
		BatchSize:      h.config.Queue.BatchSize,
		PageSize:       h.config.Queue.PageSize,
		Priorities:     []database.Priority{database.PriorityHigh, database.PriorityNormal, database.PriorityLow},
		Modes:          []string{queue.ModeUnlabeled, queue.ModeReview},
		StoreBackend:   h.config.Store.Backend,
		CatalogSource:  h.config.Catalog.Source,
		IndexEnabled:   h.config.Matcher.HNSW,
		ImagesRequired: h.config.Archive.RequireImages,
	})
}
