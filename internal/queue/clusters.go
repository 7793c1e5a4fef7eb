package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

type clusterSet struct {
	clusters []facematch.Cluster
	byID     map[string]int
	info     ClusterInfo
}

// ClusterInfo describes the clustering run the listing comes from.
type ClusterInfo struct {
	BuiltAt time.Time                `json:"built_at"`
	Options facematch.ClusterOptions `json:"options"`
	Stats   facematch.ClusterStats   `json:"stats"`
}

// ClusterEntry is a cluster with its current progress. Members keep their
// place after they are labeled; OpenCount tells how many still need a decision.
type ClusterEntry struct {
	facematch.Cluster
	FaceCount int `json:"face_count"`
	OpenCount int `json:"open_count"`
}

// ClusterQuery pages the cluster listing.
type ClusterQuery struct {
	Cursor   int
	Limit    int
	MinFaces int  // zero keeps every cluster
	Refresh  bool // recompute from the current decisions
}

// ClusterPage is one page of clusters. NextCursor is nil on the last page.
type ClusterPage struct {
	Clusters   []ClusterEntry `json:"clusters"`
	NextCursor *int           `json:"next_cursor"`
	HasMore    bool           `json:"has_more"`
	Total      int            `json:"total"`
	Info       ClusterInfo    `json:"info"`
}

// ClusterDetail is a cluster with the state of every member.
type ClusterDetail struct {
	ClusterEntry
	Faces []PhotoFace `json:"faces"`
	Info  ClusterInfo `json:"info"`
}

// ClusterLabelResult reports which members LabelCluster assigned.
type ClusterLabelResult struct {
	ClusterID      string   `json:"cluster_id"`
	Label          string   `json:"label"`
	Accepted       []string `json:"accepted"`
	AlreadyLabeled []string `json:"already_labeled"`
}

// defaultClusterPage is the cluster page size when none is given.
const defaultClusterPage = 20

// loadClusters returns the cached clusters, computing them when missing or
// when refresh is set. Faces that are labeled, ignored or in a done photo
// are left out. Callers hold s.mu.
func (s *Session) loadClusters(ctx context.Context, refresh bool) (*clusterSet, error) {
	if s.clusters != nil && !refresh {
		return s.clusters, nil
	}
	eligible := func(d *facematch.Detection) bool {
		if s.view.IsLabeled(d.FaceID) || s.view.IsIgnored(d.FaceID) {
			return false
		}
		st, ok := s.photoStatus.Get(d.BucketID)
		return !ok || !st.Done
	}
	clusters, stats, err := s.matcher.Clusters(ctx, eligible, s.opts.Clusters)
	if err != nil {
		return nil, err
	}
	set := &clusterSet{
		clusters: clusters,
		byID:     make(map[string]int, len(clusters)),
		info:     ClusterInfo{BuiltAt: s.now(), Options: s.opts.Clusters, Stats: stats},
	}
	for i, c := range clusters {
		set.byID[c.ID] = i
	}
	s.clusters = set
	s.logger.Info("clusters built",
		zap.Int("clusters", stats.Clusters),
		zap.Int("faces", stats.ClusteredFaces))
	return set, nil
}

func (s *Session) clusterEntry(c facematch.Cluster) ClusterEntry {
	e := ClusterEntry{Cluster: c, FaceCount: len(c.FaceIDs)}
	for _, id := range c.FaceIDs {
		if !s.view.IsLabeled(id) && !s.view.IsIgnored(id) {
			e.OpenCount++
		}
	}
	return e
}

// ListClusters returns one page of face clusters, largest first. Clusters are
// computed on first use and kept until Refresh is set or the stores are reloaded.
func (s *Session) ListClusters(ctx context.Context, q ClusterQuery) (ClusterPage, error) {
	if q.Cursor < 0 {
		return ClusterPage{}, invalid("cursor must not be negative")
	}
	if q.MinFaces < 0 {
		return ClusterPage{}, invalid("min faces must not be negative")
	}
	if q.Limit <= 0 {
		q.Limit = defaultClusterPage
	}
	q.Limit = min(q.Limit, MaxPageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.loadClusters(ctx, q.Refresh)
	if err != nil {
		return ClusterPage{}, err
	}
	var matched []facematch.Cluster
	for _, c := range set.clusters {
		if len(c.FaceIDs) >= q.MinFaces {
			matched = append(matched, c)
		}
	}

	page := ClusterPage{Clusters: []ClusterEntry{}, Total: len(matched), Info: set.info}
	if q.Cursor >= len(matched) {
		return page, nil
	}
	end := min(q.Cursor+q.Limit, len(matched))
	for _, c := range matched[q.Cursor:end] {
		page.Clusters = append(page.Clusters, s.clusterEntry(c))
	}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = &end
	}
	return page, nil
}

// GetCluster returns one cluster with the decision state of its members.
func (s *Session) GetCluster(ctx context.Context, clusterID string) (ClusterDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.loadClusters(ctx, false)
	if err != nil {
		return ClusterDetail{}, err
	}
	i, ok := set.byID[clusterID]
	if !ok {
		return ClusterDetail{}, notFound(KindCluster, clusterID)
	}
	c := set.clusters[i]
	out := ClusterDetail{ClusterEntry: s.clusterEntry(c), Faces: make([]PhotoFace, 0, len(c.FaceIDs)), Info: set.info}
	for _, id := range c.FaceIDs {
		if d, ok := s.catalog.Get(id); ok {
			out.Faces = append(out.Faces, s.photoFace(&d))
		}
	}
	return out, nil
}

// LabelCluster assigns label to every member of a cluster that has no label
// yet, as one undo step. Members that already carry a label are reported and
// left alone.
func (s *Session) LabelCluster(ctx context.Context, clusterID, label string) (ClusterLabelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if facematch.NormalizeLabel(label) == "" {
		return ClusterLabelResult{}, invalid("label is required")
	}
	set, err := s.loadClusters(ctx, false)
	if err != nil {
		return ClusterLabelResult{}, err
	}
	i, ok := set.byID[clusterID]
	if !ok {
		return ClusterLabelResult{}, notFound(KindCluster, clusterID)
	}
	display := s.registry.Display(label)

	res := ClusterLabelResult{ClusterID: clusterID, Label: display, Accepted: []string{}, AlreadyLabeled: []string{}}
	t := s.begin()
	for _, id := range set.clusters[i].FaceIDs {
		if s.view.IsLabeled(id) {
			res.AlreadyLabeled = append(res.AlreadyLabeled, id)
			continue
		}
		d, ok := s.catalog.Get(id)
		if !ok {
			continue
		}
		if err := s.acceptFace(t, d, display); err != nil {
			t.commit(history.OpClusterLabel, display, res.Accepted)
			return res, err
		}
		res.Accepted = append(res.Accepted, id)
	}
	t.commit(history.OpClusterLabel, display, res.Accepted)
	s.logger.Info("cluster labeled",
		zap.String("cluster_id", clusterID),
		zap.String("label", display),
		zap.Int("accepted", len(res.Accepted)))
	return res, nil
}
