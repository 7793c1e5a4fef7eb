package queue

import (
	"context"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// NextCandidate returns the best unlabeled face for label with a similarity
// of at least minSimilarity. A nil candidate means the queue is exhausted.
func (s *Session) NextCandidate(ctx context.Context, label string, minSimilarity float64) (*facematch.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm, err := s.knownLabel(label)
	if err != nil {
		return nil, err
	}
	return s.matcher.NextCandidate(ctx, s.view, norm, minSimilarity, s.skips[norm])
}

// RankedBatch returns up to limit candidates for label in ranking order.
// A non-positive limit takes the configured batch size.
func (s *Session) RankedBatch(ctx context.Context, label string, limit int, minSimilarity float64) ([]facematch.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm, err := s.knownLabel(label)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.BatchSize
	}
	limit = min(limit, MaxBatchSize)

	out, err := s.matcher.RankedCandidates(ctx, s.view, norm, limit, minSimilarity, s.skips[norm])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []facematch.Candidate{}
	}
	return out, nil
}

// SeedCandidate returns the highest-confidence face nobody decided on yet,
// or nil when every face is labeled, ignored or skipped in seed mode.
func (s *Session) SeedCandidate() *facematch.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matcher.SeedCandidate(s.view, s.skips[""])
}

// Skip hides a face from the queue of label for the rest of the session.
// An empty label skips the face in seed mode. Skips are not persisted.
func (s *Session) Skip(faceID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog.Get(faceID); !ok {
		return notFound(KindFace, faceID)
	}
	norm := facematch.NormalizeLabel(label)
	if s.skips[norm] == nil {
		s.skips[norm] = make(map[string]struct{})
	}
	s.skips[norm][faceID] = struct{}{}
	return nil
}

// knownLabel normalizes label and checks that it exists.
func (s *Session) knownLabel(label string) (string, error) {
	norm := facematch.NormalizeLabel(label)
	if norm == "" {
		return "", invalid("label is required")
	}
	if !s.registry.Exists(norm) {
		return "", notFound(KindLabel, facematch.CleanLabel(label))
	}
	return norm, nil
}
