package queue

import (
	"errors"
	"testing"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/mock"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

func TestSession_AcceptClearsRejectAndIgnore(t *testing.T) {
	s, stores := aliceSession(t)

	if err := s.Reject("p2:0", "Alice"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if err := s.Ignore("p2:0", ""); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	if err := s.Accept("p2:0", "alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	tag, ok := stores.Tags.Get("p2:0")
	if !ok || tag.Label != "Alice" {
		t.Errorf("expected tag with the existing spelling, got %+v", tag)
	}
	if _, ok := stores.Votes.Get(database.NewVoteKey("p2:0", "Alice")); ok {
		t.Error("expected the reject vote to be cleared")
	}
	if _, ok := stores.Ignores.Get("p2:0"); ok {
		t.Error("expected the ignore to be cleared")
	}

	// One undo step brings both back.
	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if _, ok := stores.Tags.Get("p2:0"); ok {
		t.Error("expected tag removed by undo")
	}
	if _, ok := stores.Votes.Get(database.NewVoteKey("p2:0", "alice")); !ok {
		t.Error("expected reject vote restored by undo")
	}
	if ig, ok := stores.Ignores.Get("p2:0"); !ok || ig.Reason != database.IgnoreReasonBackground {
		t.Errorf("expected ignore restored by undo, got %+v", ig)
	}
}

func TestSession_DecisionErrors(t *testing.T) {
	s, _ := aliceSession(t)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"accept unknown face", func() error { return s.Accept("nope:0", "Alice") }, ErrNotFound},
		{"accept empty label", func() error { return s.Accept("p1:0", " ") }, ErrInvalidInput},
		{"reject unknown label", func() error { return s.Reject("p1:0", "Bob") }, ErrNotFound},
		{"reject unknown face", func() error { return s.Reject("nope:0", "Alice") }, ErrNotFound},
		{"ignore manual box", func() error { return s.Ignore("manual:x", "") }, ErrInvalidInput},
		{"unignore open face", func() error { return s.Unignore("p1:0") }, ErrNotFound},
		{"remove untagged face", func() error { return s.RemoveFromLabel("p1:0", "Alice") }, ErrNotFound},
		{"seed unknown box", func() error { return s.SeedLabel("manual:x", "Eva") }, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if s.UndoDepth() != 0 {
		t.Errorf("failed operations must not create history, got %d", s.UndoDepth())
	}
}

func TestSession_IgnoreBucket(t *testing.T) {
	stores := mock.NewStores()
	s := newSession(t, stores,
		face("b1", 0, 0.9, 1, 0),
		face("b1", 1, 0.9, 0.9, 0.1),
		face("b1", 2, 0.8, 0.8, 0.2),
		face("b1", 3, 0.7, 0.7, 0.3),
		face("b1", 4, 0.6, 0.6, 0.4),
		face("b2", 0, 0.5, 0, 1),
	)
	if err := s.Ignore("b1:2", "blurry"); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}

	n, err := s.IgnoreBucket("b1", "crowd")
	if err != nil {
		t.Fatalf("ignore bucket failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 newly ignored faces, got %d", n)
	}
	groups := s.UnlabeledPhotoGroups(0)
	if len(groups) != 1 || groups[0].BucketID != "b2" {
		t.Fatalf("expected only b2 left, got %+v", groups)
	}
	if ig, _ := stores.Ignores.Get("b1:2"); ig.Reason != "blurry" {
		t.Errorf("expected the earlier ignore to be kept, got %q", ig.Reason)
	}

	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	groups = s.UnlabeledPhotoGroups(0)
	if len(groups) != 2 || groups[0].BucketID != "b1" || groups[0].UnlabeledCount != 4 {
		t.Errorf("expected b1 back with 4 open faces, got %+v", groups)
	}

	if _, err := s.IgnoreBucket("b9", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for unknown bucket, got %v", err)
	}
}

func TestSession_IgnoreBucket_CrowdPhoto(t *testing.T) {
	stores := mock.NewStores()
	var dets []facematch.Detection
	for i := range 5 {
		dets = append(dets, face("b1", i, 0.9, 1, float32(i)))
	}
	dets = append(dets, face("b2", 0, 0.9, 0, 1))
	s := newSession(t, stores, dets...)

	n, err := s.IgnoreBucket("b1", "crowd")
	if err != nil {
		t.Fatalf("ignore bucket failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 ignored faces, got %d", n)
	}
	for _, minConf := range []float64{0, 0.5, 0.95} {
		for _, g := range s.UnlabeledPhotoGroups(minConf) {
			if g.BucketID == "b1" {
				t.Errorf("b1 still listed at min confidence %v", minConf)
			}
		}
	}
	for id, ig := range stores.Ignores.All() {
		if ig.Reason != database.IgnoreReasonCrowd {
			t.Errorf("%s: expected crowd reason, got %q", id, ig.Reason)
		}
	}
}

func TestSession_Unignore(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.Ignore("p1:0", database.IgnoreReasonCrowd); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	if err := s.Unignore("p1:0"); err != nil {
		t.Fatalf("unignore failed: %v", err)
	}
	if _, ok := stores.Ignores.Get("p1:0"); ok {
		t.Error("expected ignore removed")
	}
	if s.UndoDepth() != 2 {
		t.Errorf("expected 2 history entries, got %d", s.UndoDepth())
	}
	restored, err := s.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if restored.Op != "unignore" {
		t.Errorf("expected unignore undone, got %s", restored.Op)
	}
	if _, ok := stores.Ignores.Get("p1:0"); !ok {
		t.Error("expected ignore back after undo")
	}
}

func TestSession_RemoveFromLabel(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := s.RemoveFromLabel("p1:0", "ALICE"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, ok := stores.Tags.Get("p1:0"); ok {
		t.Error("expected tag deleted")
	}
	v, ok := stores.Votes.Get(database.NewVoteKey("p1:0", "alice"))
	if !ok || v.Verdict != database.VerdictReject || v.Note != "removed" {
		t.Errorf("expected a reject vote, got %+v", v)
	}

	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if _, ok := stores.Tags.Get("p1:0"); !ok {
		t.Error("expected tag restored")
	}
	if _, ok := stores.Votes.Get(database.NewVoteKey("p1:0", "alice")); ok {
		t.Error("expected vote removed by undo")
	}
}

func TestSession_SeedLabel(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.SeedLabel("p3:0", "  Carol "); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	tag, ok := stores.Tags.Get("p3:0")
	if !ok || tag.Label != "Carol" || tag.BucketPrefix != "p3" {
		t.Errorf("unexpected tag %+v", tag)
	}
	if s.Summary().Labels != 2 {
		t.Errorf("expected the new label to be registered")
	}
}

func TestSession_CommitBatch(t *testing.T) {
	s, stores := aliceSession(t)

	res, err := s.CommitBatch("alice", []string{"p1:0", "p2:0", "p1:0"}, []string{"p3:0"})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(res.Accepted) != 2 || len(res.Rejected) != 1 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if s.UndoDepth() != 1 {
		t.Fatalf("expected one history entry, got %d", s.UndoDepth())
	}

	restored, err := s.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if restored.Op != "batch" || len(restored.FaceIDs) != 3 {
		t.Errorf("unexpected restored context %+v", restored)
	}
	if n := len(stores.Tags.All()); n != 1 {
		t.Errorf("expected only the exemplar tag left, got %d", n)
	}
	if n := len(stores.Votes.All()); n != 0 {
		t.Errorf("expected no votes left, got %d", n)
	}
}

func TestSession_CommitBatch_PartialFailure(t *testing.T) {
	s, stores := aliceSession(t)
	stores.Votes.FailSet = func(key database.VoteKey) error {
		if key.FaceID == "p3:0" {
			return errBoom
		}
		return nil
	}

	res, err := s.CommitBatch("Alice", []string{"p1:0"}, []string{"p3:0", "nope:9", "p1:0"})
	var partial *PartialBatchFailure
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if len(partial.Failures) != 3 {
		t.Fatalf("expected 3 failures, got %+v", partial.Failures)
	}
	want := []struct {
		id    string
		store database.StoreKind
	}{
		{"p3:0", database.StoreVotes},
		{"nope:9", database.StoreCatalog},
		{"p1:0", database.StoreVotes},
	}
	for i, w := range want {
		f := partial.Failures[i]
		if f.FaceID != w.id || f.Store != w.store {
			t.Errorf("failure %d: expected %s/%s, got %s/%s", i, w.id, w.store, f.FaceID, f.Store)
		}
	}

	// Applied ids stay applied and are undoable as one step.
	if len(res.Accepted) != 1 {
		t.Errorf("expected p1:0 accepted, got %v", res.Accepted)
	}
	if _, ok := stores.Tags.Get("p1:0"); !ok {
		t.Error("expected p1:0 tagged")
	}
	if s.UndoDepth() != 1 {
		t.Fatalf("expected one history entry, got %d", s.UndoDepth())
	}
	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if _, ok := stores.Tags.Get("p1:0"); ok {
		t.Error("expected p1:0 tag removed by undo")
	}
}

func TestSession_CommitBatch_UnknownLabel(t *testing.T) {
	s, _ := aliceSession(t)
	if _, err := s.CommitBatch("Zed", nil, []string{"p1:0"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	// Accepting creates the label.
	if _, err := s.CommitBatch("Zed", []string{"p3:0"}, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
