package queue

import (
	"errors"
	"slices"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

// Accept assigns label to a face. An existing reject vote for the same pair
// and an ignore on the face are cleared in the same undo step. Manual box IDs
// are labeled like LabelManualBox does.
func (s *Session) Accept(faceID, label string) error {
	return s.assign(history.OpAccept, faceID, label)
}

// SeedLabel starts (or extends) a label from a face or a manual box.
func (s *Session) SeedLabel(faceID, label string) error {
	return s.assign(history.OpSeedLabel, faceID, label)
}

func (s *Session) assign(op history.Op, faceID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if facematch.NormalizeLabel(label) == "" {
		return invalid("label is required")
	}
	display := s.registry.Display(label)

	t := s.begin()
	var err error
	if database.IsManualID(faceID) {
		err = s.labelBox(t, faceID, display)
		op = history.OpManualLabel
	} else {
		d, ok := s.catalog.Get(faceID)
		if !ok {
			return notFound(KindFace, faceID)
		}
		err = s.acceptFace(t, d, display)
	}
	t.commit(op, display, []string{faceID})
	return err
}

func (s *Session) acceptFace(t *txn, d facematch.Detection, display string) error {
	if err := t.setTag(database.Tag{
		FaceID:       d.FaceID,
		BucketPrefix: d.BucketPrefix,
		FaceIndex:    d.FaceIndex,
		Label:        display,
		UpdatedAt:    s.now(),
	}); err != nil {
		return err
	}
	key := database.NewVoteKey(d.FaceID, display)
	if v, ok := s.votes.Get(key); ok && v.Verdict == database.VerdictReject {
		if err := t.deleteVote(key); err != nil {
			return err
		}
	}
	return t.deleteIgnore(d.FaceID)
}

func (s *Session) labelBox(t *txn, boxID, display string) error {
	box, ok := s.manualBoxes.Get(boxID)
	if !ok {
		return notFound(KindBox, boxID)
	}
	box.Label = display
	box.UpdatedAt = s.now()
	return t.setBox(box)
}

// Reject records that a face is not label. The face is never offered for
// label again until the vote is undone.
func (s *Session) Reject(faceID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm, err := s.knownLabel(label)
	if err != nil {
		return err
	}
	if _, ok := s.catalog.Get(faceID); !ok {
		return notFound(KindFace, faceID)
	}
	display := s.registry.Display(norm)

	t := s.begin()
	err = t.setVote(database.Vote{FaceID: faceID, Label: display, Verdict: database.VerdictReject, UpdatedAt: s.now()})
	t.commit(history.OpReject, display, []string{faceID})
	return err
}

// Ignore excludes a face from every queue. An empty reason is "background".
func (s *Session) Ignore(faceID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if database.IsManualID(faceID) {
		return invalid("manual boxes cannot be ignored, delete them instead")
	}
	if _, ok := s.catalog.Get(faceID); !ok {
		return notFound(KindFace, faceID)
	}
	if reason == "" {
		reason = database.IgnoreReasonBackground
	}

	t := s.begin()
	err := t.setIgnore(database.Ignore{FaceID: faceID, Reason: reason, UpdatedAt: s.now()})
	t.commit(history.OpIgnore, "", []string{faceID})
	return err
}

// IgnoreBucket ignores every detection of a bucket in one undo step and
// returns how many faces were newly ignored. An empty reason is "crowd".
func (s *Session) IgnoreBucket(bucketID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.catalog.HasBucket(bucketID) {
		return 0, notFound(KindBucket, bucketID)
	}
	if reason == "" {
		reason = database.IgnoreReasonCrowd
	}

	t := s.begin()
	var ignored []string
	var err error
	for _, d := range s.catalog.Bucket(bucketID) {
		if s.view.IsIgnored(d.FaceID) {
			continue
		}
		if err = t.setIgnore(database.Ignore{FaceID: d.FaceID, Reason: reason, UpdatedAt: s.now()}); err != nil {
			break
		}
		ignored = append(ignored, d.FaceID)
	}
	t.commit(history.OpIgnoreBucket, "", ignored)
	return len(ignored), err
}

// Unignore puts an ignored face back into the queues.
func (s *Session) Unignore(faceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.view.IsIgnored(faceID) {
		return notFound(KindIgnore, faceID)
	}
	t := s.begin()
	err := t.deleteIgnore(faceID)
	t.commit(history.OpUnignore, "", []string{faceID})
	return err
}

// RemoveFromLabel takes a face (or manual box) out of label. For detector
// faces a reject vote is recorded so the face is not offered for the label again.
func (s *Session) RemoveFromLabel(faceID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := facematch.NormalizeLabel(label)
	if norm == "" {
		return invalid("label is required")
	}

	t := s.begin()
	var err error
	if database.IsManualID(faceID) {
		box, ok := s.manualBoxes.Get(faceID)
		if !ok || facematch.NormalizeLabel(box.Label) != norm {
			return notFound(KindTag, faceID)
		}
		box.Label = ""
		box.UpdatedAt = s.now()
		err = t.setBox(box)
	} else {
		tag, ok := s.tags.Get(faceID)
		if !ok || facematch.NormalizeLabel(tag.Label) != norm {
			return notFound(KindTag, faceID)
		}
		if err = t.deleteTag(faceID); err == nil {
			err = t.setVote(database.Vote{
				FaceID:    faceID,
				Label:     tag.Label,
				Verdict:   database.VerdictReject,
				Note:      "removed",
				UpdatedAt: s.now(),
			})
		}
	}
	t.commit(history.OpRemove, s.registry.Display(norm), []string{faceID})
	return err
}

// BatchResult reports what CommitBatch applied.
type BatchResult struct {
	Accepted []string       `json:"accepted"`
	Rejected []string       `json:"rejected"`
	Failures []BatchFailure `json:"failures"`
}

// CommitBatch accepts and rejects many faces for one label as a single undo
// step. Ids that fail are reported in a *PartialBatchFailure; ids already
// written stay written.
func (s *Session) CommitBatch(label string, acceptIDs, rejectIDs []string) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := BatchResult{Accepted: []string{}, Rejected: []string{}, Failures: []BatchFailure{}}
	norm := facematch.NormalizeLabel(label)
	if norm == "" {
		return res, invalid("label is required")
	}
	if len(acceptIDs) == 0 && !s.registry.Exists(norm) {
		return res, notFound(KindLabel, facematch.CleanLabel(label))
	}
	display := s.registry.Display(label)

	fail := func(id string, store database.StoreKind, err error) {
		var se *StoreError
		if errors.As(err, &se) {
			store = se.Store
		}
		res.Failures = append(res.Failures, BatchFailure{FaceID: id, Store: store, Error: err.Error()})
	}

	accepted := make(map[string]struct{}, len(acceptIDs))
	t := s.begin()
	for _, id := range dedupe(acceptIDs) {
		accepted[id] = struct{}{}
		var err error
		if database.IsManualID(id) {
			err = s.labelBox(t, id, display)
		} else if d, ok := s.catalog.Get(id); ok {
			err = s.acceptFace(t, d, display)
		} else {
			err = notFound(KindFace, id)
		}
		if err != nil {
			fail(id, database.StoreCatalog, err)
			continue
		}
		res.Accepted = append(res.Accepted, id)
	}
	for _, id := range dedupe(rejectIDs) {
		if _, dup := accepted[id]; dup {
			fail(id, database.StoreVotes, invalid("face is listed for both accept and reject"))
			continue
		}
		if database.IsManualID(id) {
			fail(id, database.StoreManualBoxes, invalid("manual boxes cannot be rejected"))
			continue
		}
		if _, ok := s.catalog.Get(id); !ok {
			fail(id, database.StoreCatalog, notFound(KindFace, id))
			continue
		}
		if err := t.setVote(database.Vote{FaceID: id, Label: display, Verdict: database.VerdictReject, UpdatedAt: s.now()}); err != nil {
			fail(id, database.StoreVotes, err)
			continue
		}
		res.Rejected = append(res.Rejected, id)
	}

	t.commit(history.OpBatch, display, append(slices.Clone(res.Accepted), res.Rejected...))
	if len(res.Failures) > 0 {
		return res, &PartialBatchFailure{Failures: res.Failures}
	}
	return res, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
