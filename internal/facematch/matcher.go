package facematch

import (
	"context"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// minPartitionSize keeps small catalogs on a single goroutine.
const minPartitionSize = 2048

// State answers eligibility questions about the current decisions.
// Labels passed to IsRejected and Exemplars are normalized (see NormalizeLabel).
type State interface {
	IsLabeled(faceID string) bool
	IsIgnored(faceID string) bool
	IsRejected(faceID, label string) bool
	Exemplars(label string) []string
}

// Options configures a Matcher.
type Options struct {
	// Dim is the expected embedding length. Zero takes the length of the first detection.
	Dim int
	// MinConfidence drops low-confidence detections before any similarity work.
	MinConfidence float64
	// Workers bounds the parallel scan. Zero means GOMAXPROCS.
	Workers int
	// Index optionally shortlists candidates before exact scoring.
	Index *Index
}

// Matcher ranks detections by cosine similarity to a label's reference vector.
// It never mutates state; all decisions are read through State.
type Matcher struct {
	detections    []Detection
	byID          map[string]int
	dim           int
	minConfidence float64
	workers       int
	index         *Index
	logger        *zap.Logger
}

type scored struct {
	det *Detection
	sim float64
}

// NewMatcher normalizes the embeddings of the given detections and keeps the
// ones usable for ranking. Detections with a mismatching dimension or a zero
// embedding are logged and skipped.
func NewMatcher(detections []Detection, opts Options, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m := &Matcher{
		detections:    make([]Detection, 0, len(detections)),
		byID:          make(map[string]int, len(detections)),
		dim:           opts.Dim,
		minConfidence: opts.MinConfidence,
		workers:       workers,
		index:         opts.Index,
		logger:        logger,
	}

	skipped := 0
	for i := range detections {
		d := detections[i]
		if len(d.Embedding) == 0 {
			skipped++
			continue
		}
		if m.dim == 0 {
			m.dim = len(d.Embedding)
		}
		if len(d.Embedding) != m.dim {
			logger.Warn("skipping detection with unexpected embedding dimension",
				zap.String("face_id", d.FaceID),
				zap.Int("dim", len(d.Embedding)),
				zap.Int("expected", m.dim))
			skipped++
			continue
		}
		emb, ok := Normalize(d.Embedding)
		if !ok {
			logger.Warn("skipping detection with zero embedding", zap.String("face_id", d.FaceID))
			skipped++
			continue
		}
		d.Embedding = emb
		m.byID[d.FaceID] = len(m.detections)
		m.detections = append(m.detections, d)
	}

	if skipped > 0 {
		logger.Info("matcher skipped detections", zap.Int("skipped", skipped), zap.Int("kept", len(m.detections)))
	}
	return m
}

// Dim returns the embedding dimension the matcher ranks with.
func (m *Matcher) Dim() int { return m.dim }

// Len returns the number of rankable detections.
func (m *Matcher) Len() int { return len(m.detections) }

// Detections returns the rankable detections with normalized embeddings.
func (m *Matcher) Detections() []Detection { return m.detections }

// FaceIDsHash fingerprints the rankable face IDs. A persisted index is only
// reused when its metadata carries the same value.
func (m *Matcher) FaceIDsHash() string { return FaceIDsHash(m.detections) }

// SetIndex attaches (or detaches, with nil) the approximate shortlist index.
func (m *Matcher) SetIndex(idx *Index) { m.index = idx }

// Index returns the attached shortlist index, if any.
func (m *Matcher) Index() *Index { return m.index }

// BuildIndex builds an HNSW index over the rankable detections and attaches it.
// progress, when non-nil, is called once per added detection.
func (m *Matcher) BuildIndex(progress func()) *Index {
	idx := NewIndex()
	idx.Build(m.detections, progress)
	m.index = idx
	return idx
}

// Reference computes the reference vector of a label: the normalized mean of
// the embeddings of every face currently assigned to it. The second return is
// false when the label has no rankable exemplar.
func (m *Matcher) Reference(state State, label string) ([]float32, bool) {
	ids := state.Exemplars(NormalizeLabel(label))
	vectors := make([][]float32, 0, len(ids))
	for _, id := range ids {
		if i, ok := m.byID[id]; ok {
			vectors = append(vectors, m.detections[i].Embedding)
		}
	}
	return Centroid(vectors)
}

// NextCandidate returns the best candidate for label whose similarity is at
// least minSimilarity, or nil when none qualifies.
func (m *Matcher) NextCandidate(ctx context.Context, state State, label string, minSimilarity float64, excluded map[string]struct{}) (*Candidate, error) {
	ranked, err := m.RankedCandidates(ctx, state, label, 1, minSimilarity, excluded)
	if err != nil || len(ranked) == 0 {
		return nil, err
	}
	return &ranked[0], nil
}

// RankedCandidates returns at most limit candidates for label ordered by
// similarity desc, confidence desc, face ID asc.
func (m *Matcher) RankedCandidates(ctx context.Context, state State, label string, limit int, minSimilarity float64, excluded map[string]struct{}) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	norm := NormalizeLabel(label)
	ref, ok := m.Reference(state, norm)
	if !ok {
		return nil, nil
	}

	results, err := m.rank(ctx, state, norm, ref, minSimilarity, excluded, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, len(results))
	for i, r := range results {
		sim := r.sim
		out[i] = NewCandidate(r.det, &sim)
	}
	return out, nil
}

// CountCandidates returns how many faces would be offered for label at minSimilarity.
func (m *Matcher) CountCandidates(ctx context.Context, state State, label string, minSimilarity float64, excluded map[string]struct{}) (int, error) {
	norm := NormalizeLabel(label)
	ref, ok := m.Reference(state, norm)
	if !ok {
		return 0, nil
	}
	results, err := m.scan(ctx, m.detections, state, norm, ref, minSimilarity, excluded, 0)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// SeedCandidate returns the highest-confidence face that has no label and is
// not ignored, or nil when every face has been decided.
func (m *Matcher) SeedCandidate(state State, excluded map[string]struct{}) *Candidate {
	var best *Detection
	for i := range m.detections {
		d := &m.detections[i]
		if !m.eligible(d, state, "", excluded) {
			continue
		}
		if best == nil || d.Confidence > best.Confidence ||
			(d.Confidence == best.Confidence && d.FaceID < best.FaceID) {
			best = d
		}
	}
	if best == nil {
		return nil
	}
	c := NewCandidate(best, nil)
	return &c
}

func (m *Matcher) eligible(d *Detection, state State, label string, excluded map[string]struct{}) bool {
	if d.Confidence < m.minConfidence {
		return false
	}
	if _, skip := excluded[d.FaceID]; skip {
		return false
	}
	if state.IsLabeled(d.FaceID) || state.IsIgnored(d.FaceID) {
		return false
	}
	return label == "" || !state.IsRejected(d.FaceID, label)
}

// rank tries the index shortlist first and falls back to the exhaustive scan
// when the shortlist cannot fill the requested limit. A filled shortlist is
// approximate: a face the graph search missed is not ranked.
func (m *Matcher) rank(ctx context.Context, state State, label string, ref []float32, minSimilarity float64, excluded map[string]struct{}, limit int) ([]scored, error) {
	if m.index != nil && m.index.Len() > 0 {
		k := limit*HNSWSearchMultiplier + len(state.Exemplars(label)) + len(excluded)
		if k < len(m.detections) {
			shortlist := make([]Detection, 0, k)
			for _, id := range m.index.Search(ref, k) {
				if i, ok := m.byID[id]; ok {
					shortlist = append(shortlist, m.detections[i])
				}
			}
			results, err := m.scan(ctx, shortlist, state, label, ref, minSimilarity, excluded, limit)
			if err != nil {
				return nil, err
			}
			if len(results) >= limit {
				return results, nil
			}
			m.logger.Debug("index shortlist too small, scanning all detections",
				zap.String("label", label), zap.Int("shortlist", len(shortlist)))
		}
	}
	return m.scan(ctx, m.detections, state, label, ref, minSimilarity, excluded, limit)
}

// scan scores detections in parallel partitions. A limit of zero keeps every match.
func (m *Matcher) scan(ctx context.Context, detections []Detection, state State, label string, ref []float32, minSimilarity float64, excluded map[string]struct{}, limit int) ([]scored, error) {
	size := max(minPartitionSize, (len(detections)+m.workers-1)/m.workers)
	var parts [][]Detection
	for start := 0; start < len(detections); start += size {
		parts = append(parts, detections[start:min(start+size, len(detections))])
	}

	partials := make([][]scored, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for p, part := range parts {
		g.Go(func() error {
			var local []scored
			for i := range part {
				if i%512 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				d := &part[i]
				if !m.eligible(d, state, label, excluded) {
					continue
				}
				sim := dot(ref, d.Embedding)
				if sim < minSimilarity {
					continue
				}
				local = append(local, scored{det: d, sim: sim})
			}
			sortScored(local)
			if limit > 0 && len(local) > limit {
				local = local[:limit]
			}
			partials[p] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []scored
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sortScored(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.sim != b.sim {
			return a.sim > b.sim
		}
		if a.det.Confidence != b.det.Confidence {
			return a.det.Confidence > b.det.Confidence
		}
		return a.det.FaceID < b.det.FaceID
	})
}
