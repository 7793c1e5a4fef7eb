package facematch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Cluster defaults
const (
	DefaultClusterSimilarity    = 0.83
	DefaultClusterMinFaces      = 4
	DefaultClusterBitsPerBand   = 12
	DefaultClusterBands         = 6
	DefaultClusterMaxBucketSize = 800
	DefaultClusterMinConfidence = 0.75
	DefaultClusterMinArea       = 0.003
	DefaultClusterSeed          = 1337
)

// ClusterOptions tunes the grouping of unlabeled faces. Zero values take the defaults.
type ClusterOptions struct {
	// Similarity is the cosine similarity two faces need to be linked.
	Similarity float64 `json:"similarity"`
	// MinFaces drops smaller groups.
	MinFaces int `json:"min_faces"`
	// BitsPerBand and Bands shape the random-projection hash.
	BitsPerBand int `json:"bits_per_band"`
	Bands       int `json:"bands"`
	// MaxBucketSize skips hash buckets too crowded to compare pairwise.
	MaxBucketSize int     `json:"max_bucket_size"`
	MinConfidence float64 `json:"min_confidence"`
	// MinArea is the smallest bbox area (relative) a face needs.
	MinArea float64 `json:"min_area"`
	Seed    uint64  `json:"seed"`
}

// WithDefaults fills zero fields.
func (o ClusterOptions) WithDefaults() ClusterOptions {
	if o.Similarity == 0 {
		o.Similarity = DefaultClusterSimilarity
	}
	if o.MinFaces == 0 {
		o.MinFaces = DefaultClusterMinFaces
	}
	if o.BitsPerBand == 0 {
		o.BitsPerBand = DefaultClusterBitsPerBand
	}
	if o.Bands == 0 {
		o.Bands = DefaultClusterBands
	}
	if o.MaxBucketSize == 0 {
		o.MaxBucketSize = DefaultClusterMaxBucketSize
	}
	if o.MinConfidence == 0 {
		o.MinConfidence = DefaultClusterMinConfidence
	}
	if o.MinArea == 0 {
		o.MinArea = DefaultClusterMinArea
	}
	if o.Seed == 0 {
		o.Seed = DefaultClusterSeed
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o ClusterOptions) Validate() error {
	var errs []error
	if o.Similarity <= 0 || o.Similarity > 1 {
		errs = append(errs, fmt.Errorf("similarity must be in (0, 1], got %v", o.Similarity))
	}
	if o.MinFaces < 2 {
		errs = append(errs, fmt.Errorf("min faces must be at least 2, got %d", o.MinFaces))
	}
	if o.BitsPerBand < 1 || o.BitsPerBand > 24 {
		errs = append(errs, fmt.Errorf("bits per band must be between 1 and 24, got %d", o.BitsPerBand))
	}
	if o.Bands < 1 || o.Bands > 32 {
		errs = append(errs, fmt.Errorf("bands must be between 1 and 32, got %d", o.Bands))
	}
	if o.MaxBucketSize < 2 {
		errs = append(errs, fmt.Errorf("max bucket size must be at least 2, got %d", o.MaxBucketSize))
	}
	return errors.Join(errs...)
}

// ClusterSummary describes the members of one cluster.
type ClusterSummary struct {
	MaxConfidence float64 `json:"max_confidence"`
	MinConfidence float64 `json:"min_confidence"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// Cluster is a group of faces that likely show the same person.
type Cluster struct {
	ID string `json:"cluster_id"`
	// FaceIDs are ordered by bucket prefix, face index and face ID.
	FaceIDs        []string       `json:"face_ids"`
	BucketIDs      []string       `json:"bucket_ids"`
	Representative Candidate      `json:"representative"`
	Summary        ClusterSummary `json:"summary"`
}

// ClusterStats counts the work of one clustering run.
type ClusterStats struct {
	EligibleFaces  int `json:"eligible_faces"`
	PairsCompared  int `json:"pairs_compared"`
	PairsLinked    int `json:"pairs_linked"`
	BucketsSkipped int `json:"buckets_skipped"`
	Clusters       int `json:"clusters"`
	ClusteredFaces int `json:"clustered_faces"`
}

// Clusters groups the rankable detections accepted by eligible (nil accepts
// all) into clusters of near-duplicate embeddings. Candidate pairs come from
// random-projection hashing, so a pair above the threshold can still be
// missed when it never shares a hash bucket. The result is deterministic for
// a given seed.
func (m *Matcher) Clusters(ctx context.Context, eligible func(*Detection) bool, opts ClusterOptions) ([]Cluster, ClusterStats, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, ClusterStats{}, err
	}

	var members []*Detection
	for i := range m.detections {
		d := &m.detections[i]
		if d.Confidence < opts.MinConfidence || d.BBox.Width*d.BBox.Height < opts.MinArea {
			continue
		}
		if eligible != nil && !eligible(d) {
			continue
		}
		members = append(members, d)
	}
	stats := ClusterStats{EligibleFaces: len(members)}
	if len(members) < opts.MinFaces {
		return []Cluster{}, stats, nil
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	uf := newUnionFind(len(members))
	seen := make(map[uint64]struct{})
	threshold := opts.Similarity

	for band := 0; band < opts.Bands; band++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		planes := make([][]float32, opts.BitsPerBand)
		for b := range planes {
			planes[b] = make([]float32, m.dim)
			for k := range planes[b] {
				planes[b][k] = float32(rng.NormFloat64())
			}
		}
		buckets := make(map[uint32][]int)
		for i, d := range members {
			var code uint32
			for b, p := range planes {
				if dot(d.Embedding, p) >= 0 {
					code |= 1 << b
				}
			}
			buckets[code] = append(buckets[code], i)
		}
		for _, idx := range buckets {
			if len(idx) < 2 {
				continue
			}
			if len(idx) > opts.MaxBucketSize {
				stats.BucketsSkipped++
				continue
			}
			for x := 0; x < len(idx); x++ {
				for y := x + 1; y < len(idx); y++ {
					lo, hi := idx[x], idx[y]
					key := uint64(lo)<<32 | uint64(hi)
					if _, ok := seen[key]; ok {
						continue
					}
					seen[key] = struct{}{}
					stats.PairsCompared++
					if dot(members[lo].Embedding, members[hi].Embedding) >= threshold {
						uf.union(lo, hi)
						stats.PairsLinked++
					}
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := range members {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}
	clusters := make([]Cluster, 0)
	for _, idx := range groups {
		if len(idx) < opts.MinFaces {
			continue
		}
		group := make([]*Detection, len(idx))
		for i, j := range idx {
			group[i] = members[j]
		}
		clusters = append(clusters, newCluster(group))
		stats.ClusteredFaces += len(idx)
	}
	sort.Slice(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if len(a.FaceIDs) != len(b.FaceIDs) {
			return len(a.FaceIDs) > len(b.FaceIDs)
		}
		if len(a.BucketIDs) != len(b.BucketIDs) {
			return len(a.BucketIDs) > len(b.BucketIDs)
		}
		return a.ID < b.ID
	})
	stats.Clusters = len(clusters)

	m.logger.Info("faces clustered",
		zap.Int("eligible", stats.EligibleFaces),
		zap.Int("pairs_compared", stats.PairsCompared),
		zap.Int("clusters", stats.Clusters))
	return clusters, stats, nil
}

func newCluster(group []*Detection) Cluster {
	sort.Slice(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if a.BucketPrefix != b.BucketPrefix {
			return a.BucketPrefix < b.BucketPrefix
		}
		if a.FaceIndex != b.FaceIndex {
			return a.FaceIndex < b.FaceIndex
		}
		return a.FaceID < b.FaceID
	})

	c := Cluster{FaceIDs: make([]string, len(group)), BucketIDs: []string{}}
	buckets := make(map[string]struct{})
	rowSums := make([]float64, len(group))
	var pairSum, confSum float64
	for i, d := range group {
		c.FaceIDs[i] = d.FaceID
		if _, ok := buckets[d.BucketID]; !ok {
			buckets[d.BucketID] = struct{}{}
			c.BucketIDs = append(c.BucketIDs, d.BucketID)
		}
		confSum += d.Confidence
		if i == 0 || d.Confidence > c.Summary.MaxConfidence {
			c.Summary.MaxConfidence = d.Confidence
		}
		if i == 0 || d.Confidence < c.Summary.MinConfidence {
			c.Summary.MinConfidence = d.Confidence
		}
		for j := i + 1; j < len(group); j++ {
			sim := dot(d.Embedding, group[j].Embedding)
			rowSums[i] += sim
			rowSums[j] += sim
			pairSum += sim
		}
	}
	sort.Strings(c.BucketIDs)

	best := 0
	for i := range rowSums {
		if rowSums[i] > rowSums[best] {
			best = i
		}
	}
	c.Representative = NewCandidate(group[best], nil)
	c.Summary.AvgConfidence = confSum / float64(len(group))
	if n := len(group); n > 1 {
		c.Summary.AvgSimilarity = pairSum / float64(n*(n-1)/2)
	}

	sorted := append([]string(nil), c.FaceIDs...)
	sort.Strings(sorted)
	sum := xxhash.Sum64String(strings.Join(sorted, "|"))
	c.ID = fmt.Sprintf("%016x", sum)[:12]
	return c
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
