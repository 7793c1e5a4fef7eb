package queue

import (
	"errors"
	"testing"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/mock"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

func TestSession_Undo_Empty(t *testing.T) {
	s := newSession(t, mock.NewStores())
	restored, err := s.Undo()
	if err != nil || restored != nil {
		t.Errorf("expected nil, nil on empty history, got %+v, %v", restored, err)
	}
}

func TestSession_Undo_AfterAccept(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	before := s.RemainingUnlabeled()

	restored, err := s.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if restored.Op != "accept" || restored.Label != "Alice" {
		t.Errorf("unexpected restored context %+v", restored)
	}
	if _, ok := stores.Tags.Get("p1:0"); ok {
		t.Error("expected tag removed")
	}
	if got := s.RemainingUnlabeled(); got != before+1 {
		t.Errorf("expected remaining %d, got %d", before+1, got)
	}
}

func TestSession_Undo_ReassignmentRestoresPriorLabel(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := s.Accept("p1:0", "Bob"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if tag, _ := stores.Tags.Get("p1:0"); tag.Label != "Alice" {
		t.Errorf("expected Alice restored, got %q", tag.Label)
	}
}

func TestSession_Undo_RestoreFailureKeepsEntry(t *testing.T) {
	s, stores := aliceSession(t)
	if _, err := s.CommitBatch("Alice", []string{"p1:0"}, []string{"p3:0"}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// The vote is restored first and succeeds, the tag delete then fails.
	stores.Tags.DeleteError = errBoom
	_, err := s.Undo()
	var se *StoreError
	if !errors.As(err, &se) || se.Store != database.StoreTags {
		t.Fatalf("expected a tags store error, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected the cause to be kept, got %v", err)
	}
	if s.UndoDepth() != 1 {
		t.Fatalf("expected the unrestored changes back on the stack, got depth %d", s.UndoDepth())
	}
	if _, ok := stores.Votes.Get(database.NewVoteKey("p3:0", "Alice")); ok {
		t.Error("expected the vote restore to have happened")
	}

	stores.Tags.DeleteError = nil
	if _, err := s.Undo(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if _, ok := stores.Tags.Get("p1:0"); ok {
		t.Error("expected tag removed on retry")
	}
	if s.UndoDepth() != 0 {
		t.Errorf("expected empty history, got %d", s.UndoDepth())
	}
}

func TestSession_Undo_HistoryLimit(t *testing.T) {
	stores := mock.NewStores()
	cat := catalog.New([]facematch.Detection{face("b", 0, 0.9, 1, 0), face("b", 1, 0.9, 0, 1)})
	s, err := New(Deps{
		Catalog:   cat,
		Matcher:   facematch.NewMatcher(cat.Detections(), facematch.Options{}, nil),
		Decisions: stores.Decisions(),
		Side:      stores.Side(),
	}, Options{HistoryLimit: 3}, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	for range 3 {
		for _, id := range []string{"b:0", "b:1"} {
			if err := s.Ignore(id, ""); err != nil {
				t.Fatalf("ignore failed: %v", err)
			}
			if err := s.Unignore(id); err != nil {
				t.Fatalf("unignore failed: %v", err)
			}
		}
	}
	if s.UndoDepth() != 3 {
		t.Errorf("expected history capped at 3, got %d", s.UndoDepth())
	}
}
