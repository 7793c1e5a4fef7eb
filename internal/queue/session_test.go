package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/mock"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

var (
	t0      = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	errBoom = errors.New("disk full")
)

func face(bucket string, idx int, conf float64, emb ...float32) facematch.Detection {
	return facematch.Detection{
		FaceID:       fmt.Sprintf("%s:%d", bucket, idx),
		BucketID:     bucket,
		BucketPrefix: bucket,
		Variant:      "raw_front",
		FaceIndex:    idx,
		Embedding:    emb,
		BBox:         facematch.BBox{Left: 0.1 * float64(idx), Top: 0.1, Width: 0.1, Height: 0.1},
		Confidence:   conf,
	}
}

func newSession(t *testing.T, stores *mock.Stores, dets ...facematch.Detection) *Session {
	t.Helper()
	cat := catalog.New(dets)
	m := facematch.NewMatcher(cat.Detections(), facematch.Options{}, zap.NewNop())
	s, err := New(Deps{
		Catalog:   cat,
		Matcher:   m,
		Decisions: stores.Decisions(),
		Side:      stores.Side(),
	}, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	clock := t0
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func seedTag(t *testing.T, stores *mock.Stores, faceID, label string) {
	t.Helper()
	if err := stores.Tags.Set(faceID, database.Tag{FaceID: faceID, Label: label, UpdatedAt: t0}); err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}
}

// aliceSession has one exemplar e:0 labeled Alice and three open faces.
func aliceSession(t *testing.T) (*Session, *mock.Stores) {
	t.Helper()
	stores := mock.NewStores()
	seedTag(t, stores, "e:0", "Alice")
	s := newSession(t, stores,
		face("e", 0, 0.99, 1, 0),
		face("p1", 0, 0.95, 1, 0),
		face("p2", 0, 0.90, 0.99, 0.01),
		face("p3", 0, 0.80, 0, 1),
	)
	return s, stores
}

func TestNew_RequiresStores(t *testing.T) {
	stores := mock.NewStores()
	cat := catalog.New(nil)
	m := facematch.NewMatcher(nil, facematch.Options{}, nil)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no catalog", Deps{Matcher: m, Decisions: stores.Decisions(), Side: stores.Side()}},
		{"no matcher", Deps{Catalog: cat, Decisions: stores.Decisions(), Side: stores.Side()}},
		{"no decisions", Deps{Catalog: cat, Matcher: m, Side: stores.Side()}},
		{"no side stores", Deps{Catalog: cat, Matcher: m, Decisions: stores.Decisions()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps, Options{}, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSession_Reload(t *testing.T) {
	s, stores := aliceSession(t)
	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// An external edit only shows up after Reload.
	seedTag(t, stores, "p3:0", "Carol")
	if err := s.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if s.UndoDepth() != 0 {
		t.Errorf("expected reload to clear history, got depth %d", s.UndoDepth())
	}
	if got := s.Summary().Labels; got != 2 {
		t.Errorf("expected 2 labels after reload, got %d", got)
	}

	stores.Votes.ReloadError = errBoom
	if err := s.Reload(); !errors.Is(err, errBoom) {
		t.Errorf("expected reload error, got %v", err)
	}
}

func TestSession_Summary(t *testing.T) {
	s, _ := aliceSession(t)
	if err := s.Ignore("p3:0", ""); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}

	got := s.Summary()
	want := Summary{Detections: 4, Labeled: 1, Ignored: 1, Remaining: 2, Labels: 1, Photos: 4, UndoDepth: 1, LastOp: history.OpIgnore}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if got := s.Summary(); got.LastOp != history.OpAccept || got.LastLabel != "Alice" {
		t.Errorf("expected the accept to be next to undo, got %s %q", got.LastOp, got.LastLabel)
	}
	if _, err := s.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if got := s.Summary(); got.LastOp != history.OpIgnore {
		t.Errorf("expected the ignore to be next after undo, got %s", got.LastOp)
	}
	if s.RemainingUnlabeled() != 2 {
		t.Errorf("expected 2 remaining, got %d", s.RemainingUnlabeled())
	}
}
