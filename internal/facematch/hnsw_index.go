package facematch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

// HNSW index constants
const (
	// HNSWMaxNeighbors is the M parameter (max connections per node)
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the ef parameter for search (higher = better recall, slower)
	HNSWEfSearch = 100

	// HNSWSearchMultiplier oversizes the shortlist so that filtering out
	// decided faces still leaves enough candidates.
	HNSWSearchMultiplier = 4
)

const indexMetadataVersion = 2

// IndexMetadata is stored next to a persisted index and used to detect stale files.
type IndexMetadata struct {
	FaceCount int `json:"face_count"`
	Dim       int `json:"dim"`
	// FaceIDsHash fingerprints the set of indexed face IDs (see FaceIDsHash).
	FaceIDsHash string    `json:"face_ids_hash"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

// FaceIDsHash returns an order-independent fingerprint of the face IDs of
// detections that carry an embedding.
func FaceIDsHash(detections []Detection) string {
	ids := make([]string, 0, len(detections))
	for i := range detections {
		if len(detections[i].Embedding) > 0 {
			ids = append(ids, detections[i].FaceID)
		}
	}
	sort.Strings(ids)
	h := xxhash.New()
	for _, id := range ids {
		_, _ = h.WriteString(id)
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Index wraps an HNSW graph keyed by face ID.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	saved *hnsw.SavedGraph[string]
	count int
	dim   int
	hash  string
}

// NewIndex creates a new empty index.
func NewIndex() *Index {
	return &Index{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given detections. Embeddings
// must already be normalized and share one dimension.
func (x *Index) Build(detections []Detection, progress func()) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.saved = nil
	x.count = 0
	x.dim = 0
	x.hash = FaceIDsHash(detections)
	if len(detections) == 0 {
		x.graph = nil
		return
	}

	g := newGraph()
	for i := range detections {
		d := &detections[i]
		if len(d.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(d.FaceID, d.Embedding))
		x.count++
		x.dim = len(d.Embedding)
		if progress != nil {
			progress()
		}
	}
	x.graph = g
}

// Search returns the face IDs of the k nearest neighbours of query.
func (x *Index) Search(query []float32, k int) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || x.count == 0 || (x.dim != 0 && len(query) != x.dim) {
		return nil
	}

	var neighbors []hnsw.Node[string]
	if x.saved != nil {
		neighbors = x.saved.Search(query, k)
	} else if x.graph != nil {
		neighbors = x.graph.Search(query, k)
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids
}

// Len returns the number of indexed faces.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Matches reports whether the index was built over faceCount faces of
// dimension dim whose IDs hash to faceIDsHash.
func (m IndexMetadata) Matches(faceCount, dim int, faceIDsHash string) bool {
	return m.Version == indexMetadataVersion && m.FaceCount == faceCount && m.Dim == dim &&
		m.FaceIDsHash == faceIDsHash
}

// Save writes the graph and its metadata to path and path+".meta".
// Both files are replaced atomically.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.saved == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer t.Cleanup()

	if x.saved != nil {
		err = x.saved.Export(t)
	} else {
		err = x.graph.Export(t)
	}
	if err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing index file: %w", err)
	}

	meta, err := json.Marshal(IndexMetadata{
		FaceCount:   x.count,
		Dim:         x.dim,
		FaceIDsHash: x.hash,
		BuildTime:   time.Now().UTC(),
		Version:     indexMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal index metadata: %w", err)
	}
	if err := renameio.WriteFile(path+".meta", meta, 0o600); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	return nil
}

// ErrIndexNotFound is returned by LoadIndex when no index was persisted yet.
var ErrIndexNotFound = errors.New("index file not found")

// LoadIndex reads a persisted index and its metadata.
func LoadIndex(path string) (*Index, IndexMetadata, error) {
	var meta IndexMetadata

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, meta, ErrIndexNotFound
	}

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, meta, fmt.Errorf("reading index metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, meta, fmt.Errorf("decoding index metadata: %w", err)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return nil, meta, fmt.Errorf("loading HNSW index: %w", err)
	}

	return &Index{saved: saved, count: meta.FaceCount, dim: meta.Dim, hash: meta.FaceIDsHash}, meta, nil
}
