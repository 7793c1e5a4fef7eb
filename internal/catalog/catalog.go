// Package catalog holds the read-only set of face detections the queue works on.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// Source loads detections from a catalog backend.
type Source interface {
	LoadDetections(ctx context.Context) ([]facematch.Detection, error)
}

// HintSource loads person name hints keyed by bucket prefix.
type HintSource interface {
	LoadHints(ctx context.Context, prefixes []string) (map[string][]string, error)
}

// Catalog indexes detections by face ID and by bucket. It is never mutated
// after construction.
type Catalog struct {
	detections []facematch.Detection
	byID       map[string]int
	byBucket   map[string][]int
	buckets    []string
}

// New builds a catalog. Duplicate face IDs keep the first detection.
// Detections are ordered by bucket ID, then face index.
func New(detections []facematch.Detection) *Catalog {
	c := &Catalog{
		byID:     make(map[string]int, len(detections)),
		byBucket: make(map[string][]int),
	}
	for _, d := range detections {
		if _, dup := c.byID[d.FaceID]; dup || d.FaceID == "" {
			continue
		}
		c.byID[d.FaceID] = -1
		c.detections = append(c.detections, d)
	}
	sort.SliceStable(c.detections, func(i, j int) bool {
		a, b := c.detections[i], c.detections[j]
		if a.BucketID != b.BucketID {
			return a.BucketID < b.BucketID
		}
		return a.FaceIndex < b.FaceIndex
	})
	for i, d := range c.detections {
		c.byID[d.FaceID] = i
		if _, ok := c.byBucket[d.BucketID]; !ok {
			c.buckets = append(c.buckets, d.BucketID)
		}
		c.byBucket[d.BucketID] = append(c.byBucket[d.BucketID], i)
	}
	return c
}

// Load reads detections from src and attaches name hints from every hint
// source. Hint sources run concurrently; a failing hint source is logged
// and ignored.
func Load(ctx context.Context, src Source, hints []HintSource, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detections, err := src.LoadDetections(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading detections: %w", err)
	}

	if len(hints) > 0 && len(detections) > 0 {
		seen := make(map[string]struct{})
		var prefixes []string
		for _, d := range detections {
			if _, ok := seen[d.BucketPrefix]; !ok && d.BucketPrefix != "" {
				seen[d.BucketPrefix] = struct{}{}
				prefixes = append(prefixes, d.BucketPrefix)
			}
		}

		results := make([]map[string][]string, len(hints))
		g, gctx := errgroup.WithContext(ctx)
		for i, h := range hints {
			g.Go(func() error {
				res, err := h.LoadHints(gctx, prefixes)
				if err != nil {
					logger.Warn("name hint source failed", zap.Int("source", i), zap.Error(err))
					return nil
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i := range detections {
			d := &detections[i]
			lists := [][]string{d.Hints}
			for _, res := range results {
				lists = append(lists, res[d.BucketPrefix])
			}
			d.Hints = facematch.MergeHints(lists...)
		}
	}

	c := New(detections)
	logger.Info("catalog loaded", zap.Int("detections", c.Len()), zap.Int("buckets", len(c.buckets)))
	return c, nil
}

// Filter returns a catalog with the detections keep accepts.
func (c *Catalog) Filter(keep func(d *facematch.Detection) bool) *Catalog {
	var kept []facematch.Detection
	for i := range c.detections {
		if keep(&c.detections[i]) {
			kept = append(kept, c.detections[i])
		}
	}
	return New(kept)
}

// Len returns the number of detections.
func (c *Catalog) Len() int { return len(c.detections) }

// Detections returns every detection. The slice must not be modified.
func (c *Catalog) Detections() []facematch.Detection { return c.detections }

// Get returns the detection with the given face ID.
func (c *Catalog) Get(faceID string) (facematch.Detection, bool) {
	i, ok := c.byID[faceID]
	if !ok {
		return facematch.Detection{}, false
	}
	return c.detections[i], true
}

// Bucket returns the detections of one bucket ordered by face index.
func (c *Catalog) Bucket(bucketID string) []facematch.Detection {
	idx := c.byBucket[bucketID]
	out := make([]facematch.Detection, len(idx))
	for i, j := range idx {
		out[i] = c.detections[j]
	}
	return out
}

// HasBucket reports whether any detection belongs to bucketID.
func (c *Catalog) HasBucket(bucketID string) bool {
	_, ok := c.byBucket[bucketID]
	return ok
}

// Buckets returns the bucket IDs in ascending order.
func (c *Catalog) Buckets() []string { return c.buckets }

// BucketPrefix returns the prefix of a bucket, or "" when it is unknown.
func (c *Catalog) BucketPrefix(bucketID string) string {
	if idx := c.byBucket[bucketID]; len(idx) > 0 {
		return c.detections[idx[0]].BucketPrefix
	}
	return ""
}
