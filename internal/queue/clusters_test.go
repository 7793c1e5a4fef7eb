package queue

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/mock"
	"github.com/kozaktomas/face-queue/internal/history"
)

// clusterSession holds two groups of four identical embeddings (x and y
// buckets) and one outlier.
func clusterSession(t *testing.T, stores *mock.Stores) *Session {
	t.Helper()
	return newSession(t, stores,
		face("x1", 0, 0.9, 1, 0, 0),
		face("x2", 0, 0.9, 1, 0, 0),
		face("x3", 0, 0.9, 1, 0, 0),
		face("x4", 0, 0.9, 1, 0, 0),
		face("y1", 0, 0.9, 0, 1, 0),
		face("y2", 0, 0.9, 0, 1, 0),
		face("y3", 0, 0.9, 0, 1, 0),
		face("y4", 0, 0.9, 0, 1, 0),
		face("z1", 0, 0.9, 0, 0, 1),
	)
}

func clusterWith(t *testing.T, s *Session, faceID string) ClusterEntry {
	t.Helper()
	page, err := s.ListClusters(context.Background(), ClusterQuery{})
	if err != nil {
		t.Fatalf("listing clusters failed: %v", err)
	}
	for _, c := range page.Clusters {
		if slices.Contains(c.FaceIDs, faceID) {
			return c
		}
	}
	t.Fatalf("no cluster holds %s", faceID)
	return ClusterEntry{}
}

func TestSession_ListClusters(t *testing.T) {
	s := clusterSession(t, mock.NewStores())
	ctx := context.Background()

	page, err := s.ListClusters(ctx, ClusterQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 2 || len(page.Clusters) != 2 || page.HasMore {
		t.Fatalf("expected one page with 2 clusters, got %+v", page)
	}
	for _, c := range page.Clusters {
		if c.FaceCount != 4 || c.OpenCount != 4 {
			t.Errorf("expected 4 open faces in %s, got %d/%d", c.ID, c.OpenCount, c.FaceCount)
		}
	}
	if page.Info.Stats.EligibleFaces != 9 {
		t.Errorf("expected 9 eligible faces, got %d", page.Info.Stats.EligibleFaces)
	}

	first, err := s.ListClusters(ctx, ClusterQuery{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.HasMore || first.NextCursor == nil || *first.NextCursor != 1 {
		t.Fatalf("expected a second page, got %+v", first)
	}
	second, err := s.ListClusters(ctx, ClusterQuery{Cursor: *first.NextCursor, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.HasMore || len(second.Clusters) != 1 || second.Clusters[0].ID == first.Clusters[0].ID {
		t.Errorf("unexpected second page %+v", second)
	}

	if big, _ := s.ListClusters(ctx, ClusterQuery{MinFaces: 5}); big.Total != 0 {
		t.Errorf("expected no cluster with 5 faces, got %d", big.Total)
	}
	if _, err := s.ListClusters(ctx, ClusterQuery{Cursor: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a negative cursor, got %v", err)
	}
}

func TestSession_ListClusters_SkipsDecidedFaces(t *testing.T) {
	stores := mock.NewStores()
	seedTag(t, stores, "x1:0", "Alice")
	if err := stores.PhotoStatus.Set("y1", database.PhotoStatus{Done: true}); err != nil {
		t.Fatalf("failed to seed photo status: %v", err)
	}
	s := clusterSession(t, stores)

	page, err := s.ListClusters(context.Background(), ClusterQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expected both groups to fall below four faces, got %+v", page.Clusters)
	}
}

func TestSession_ListClusters_CachedUntilRefresh(t *testing.T) {
	s := clusterSession(t, mock.NewStores())
	ctx := context.Background()
	c := clusterWith(t, s, "x1:0")

	if err := s.Ignore("x1:0", "blurry"); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	cached := clusterWith(t, s, "x1:0")
	if cached.ID != c.ID || cached.OpenCount != 3 {
		t.Errorf("expected the cached cluster with 3 open faces, got %+v", cached)
	}

	page, err := s.ListClusters(ctx, ClusterQuery{Refresh: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected only the y cluster after refresh, got %d", page.Total)
	}
}

func TestSession_GetCluster(t *testing.T) {
	s := clusterSession(t, mock.NewStores())
	ctx := context.Background()
	c := clusterWith(t, s, "y2:0")

	if err := s.Accept("y2:0", "Bob"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	detail, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detail.Faces) != 4 || detail.OpenCount != 3 {
		t.Fatalf("expected 4 faces with 3 open, got %d faces and %d open", len(detail.Faces), detail.OpenCount)
	}
	for _, f := range detail.Faces {
		if f.FaceID == "y2:0" && f.State.Label != "Bob" {
			t.Errorf("expected y2:0 labeled Bob, got %q", f.State.Label)
		}
	}

	var nf *NotFoundError
	if _, err := s.GetCluster(ctx, "000000000000"); !errors.As(err, &nf) || nf.Kind != KindCluster {
		t.Errorf("expected cluster not found, got %v", err)
	}
}

func TestSession_LabelCluster(t *testing.T) {
	stores := mock.NewStores()
	s := clusterSession(t, stores)
	ctx := context.Background()
	c := clusterWith(t, s, "x1:0")

	if err := s.Accept("x2:0", "Bob"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := s.Ignore("x3:0", "blurry"); err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	depth := s.UndoDepth()

	res, err := s.LabelCluster(ctx, c.ID, " alice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"x1:0", "x3:0", "x4:0"}; !slices.Equal(res.Accepted, want) {
		t.Errorf("expected accepted %v, got %v", want, res.Accepted)
	}
	if want := []string{"x2:0"}; !slices.Equal(res.AlreadyLabeled, want) {
		t.Errorf("expected already labeled %v, got %v", want, res.AlreadyLabeled)
	}
	if res.Label != "alice" {
		t.Errorf("expected label alice, got %q", res.Label)
	}
	if _, ok := stores.Ignores.Get("x3:0"); ok {
		t.Error("expected the ignore on x3:0 cleared")
	}
	if got := s.UndoDepth(); got != depth+1 {
		t.Fatalf("expected one undo step, got depth %d (was %d)", got, depth)
	}

	restored, err := s.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if restored.Op != history.OpClusterLabel {
		t.Errorf("expected op %s, got %s", history.OpClusterLabel, restored.Op)
	}
	for _, id := range res.Accepted {
		if _, ok := stores.Tags.Get(id); ok {
			t.Errorf("expected tag on %s removed by undo", id)
		}
	}
	if tag, _ := stores.Tags.Get("x2:0"); tag.Label != "Bob" {
		t.Errorf("expected x2:0 to keep Bob, got %q", tag.Label)
	}
	if _, ok := stores.Ignores.Get("x3:0"); !ok {
		t.Error("expected the ignore on x3:0 restored")
	}
}

func TestSession_LabelCluster_Errors(t *testing.T) {
	stores := mock.NewStores()
	s := clusterSession(t, stores)
	ctx := context.Background()
	c := clusterWith(t, s, "x1:0")

	if _, err := s.LabelCluster(ctx, c.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an empty label, got %v", err)
	}
	if _, err := s.LabelCluster(ctx, "missing", "Alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown cluster, got %v", err)
	}

	stores.Tags.SetError = errBoom
	res, err := s.LabelCluster(ctx, c.ID, "Alice")
	var se *StoreError
	if !errors.As(err, &se) || se.Store != database.StoreTags || se.Key != "x1:0" {
		t.Fatalf("expected a tags store error on x1:0, got %v", err)
	}
	if len(res.Accepted) != 0 || s.UndoDepth() != 0 {
		t.Errorf("expected nothing applied, got %+v with depth %d", res, s.UndoDepth())
	}
}
