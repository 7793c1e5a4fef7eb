// Package queue orchestrates the labeling workflow: it combines the decision
// stores, the detection catalog and the matcher, and records every mutation
// in the undo history.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
	"github.com/kozaktomas/face-queue/internal/labels"
)

// Page and batch bounds
const (
	MaxPageSize  = 500
	MaxBatchSize = 200
)

// Deps are the collaborators a session works on.
type Deps struct {
	Catalog   *catalog.Catalog
	Matcher   *facematch.Matcher
	Decisions database.DecisionStores
	Side      database.SideStores
	Images    *catalog.Images
}

// Options tunes a session. Zero values take the defaults.
type Options struct {
	HistoryLimit   int
	MinSimilarity  float64
	BatchSize      int
	PageSize       int
	UnlabeledLimit int
	Clusters       facematch.ClusterOptions
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = history.DefaultLimit
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 12
	}
	if o.PageSize <= 0 {
		o.PageSize = 60
	}
	if o.UnlabeledLimit <= 0 {
		o.UnlabeledLimit = 200
	}
	o.Clusters = o.Clusters.WithDefaults()
	return o
}

// Session owns every store of one archive. All methods are safe for
// concurrent use; they are serialized by one mutex.
type Session struct {
	mu sync.Mutex

	catalog *catalog.Catalog
	matcher *facematch.Matcher
	images  *catalog.Images

	tags        database.TagStore
	votes       database.VoteStore
	ignores     database.IgnoreStore
	people      database.PeopleStore
	priorities  database.PriorityStore
	manualBoxes database.ManualBoxStore
	photoStatus database.PhotoStatusStore

	opts    Options
	history *history.Stack
	// skips holds in-memory skips per normalized label; "" is seed mode.
	skips map[string]map[string]struct{}

	view     *view
	registry *labels.Registry
	// clusters is built on first use and dropped by Reload.
	clusters *clusterSet

	logger *zap.Logger
	now    func() time.Time
}

// New creates a session and derives its initial view.
func New(deps Deps, opts Options, logger *zap.Logger) (*Session, error) {
	if deps.Catalog == nil || deps.Matcher == nil {
		return nil, errors.New("queue: catalog and matcher are required")
	}
	d, side := deps.Decisions, deps.Side
	if d.Tags == nil || d.Votes == nil || d.Ignores == nil {
		return nil, errors.New("queue: decision stores are required")
	}
	if side.People == nil || side.Priorities == nil || side.ManualBoxes == nil || side.PhotoStatus == nil {
		return nil, errors.New("queue: side stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	if err := opts.Clusters.Validate(); err != nil {
		return nil, fmt.Errorf("queue: cluster options: %w", err)
	}

	s := &Session{
		catalog:     deps.Catalog,
		matcher:     deps.Matcher,
		images:      deps.Images,
		tags:        d.Tags,
		votes:       d.Votes,
		ignores:     d.Ignores,
		people:      side.People,
		priorities:  side.Priorities,
		manualBoxes: side.ManualBoxes,
		photoStatus: side.PhotoStatus,
		opts:        opts,
		history:     history.NewStack(opts.HistoryLimit),
		skips:       make(map[string]map[string]struct{}),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	s.rebuild()
	return s, nil
}

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Catalog returns the detection catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Reload re-reads every store from its backing storage. The undo history is
// cleared because its prior values may no longer match.
func (s *Session) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range map[string]interface{ Reload() error }{
		"tags":         s.tags,
		"votes":        s.votes,
		"ignores":      s.ignores,
		"people":       s.people,
		"priorities":   s.priorities,
		"manual_boxes": s.manualBoxes,
		"photo_status": s.photoStatus,
	} {
		if err := r.Reload(); err != nil {
			return fmt.Errorf("reloading %s: %w", name, err)
		}
	}
	s.history.Clear()
	s.clusters = nil
	s.rebuild()
	s.logger.Info("stores reloaded")
	return nil
}

// view is the derived decision state. It implements facematch.State.
type view struct {
	labeled   map[string]string // face ID -> normalized label
	ignored   map[string]database.Ignore
	rejected  map[string]map[string]struct{} // normalized label -> face IDs
	exemplars map[string][]string            // normalized label -> face IDs
	votes     map[string][]database.Vote     // face ID -> votes
	boxes     map[string][]database.ManualBox
}

func (v *view) IsLabeled(faceID string) bool {
	_, ok := v.labeled[faceID]
	return ok
}

func (v *view) IsIgnored(faceID string) bool {
	_, ok := v.ignored[faceID]
	return ok
}

func (v *view) IsRejected(faceID, label string) bool {
	_, ok := v.rejected[label][faceID]
	return ok
}

func (v *view) Exemplars(label string) []string { return v.exemplars[label] }

// rebuild derives the view and the label registry from the stores.
// Callers hold s.mu (or own s exclusively).
func (s *Session) rebuild() {
	tags := s.tags.All()
	votes := s.votes.All()
	ignores := s.ignores.All()
	boxes := s.manualBoxes.All()

	v := &view{
		labeled:   make(map[string]string, len(tags)),
		ignored:   ignores,
		rejected:  make(map[string]map[string]struct{}),
		exemplars: make(map[string][]string),
		votes:     make(map[string][]database.Vote),
		boxes:     make(map[string][]database.ManualBox),
	}
	for id, t := range tags {
		label := facematch.NormalizeLabel(t.Label)
		if label == "" {
			continue
		}
		v.labeled[id] = label
		v.exemplars[label] = append(v.exemplars[label], id)
	}
	for key, vote := range votes {
		v.votes[key.FaceID] = append(v.votes[key.FaceID], vote)
		if vote.Verdict != database.VerdictReject {
			continue
		}
		if v.rejected[key.Label] == nil {
			v.rejected[key.Label] = make(map[string]struct{})
		}
		v.rejected[key.Label][key.FaceID] = struct{}{}
	}
	for _, b := range boxes {
		v.boxes[b.BucketID] = append(v.boxes[b.BucketID], b)
	}

	s.view = v
	s.registry = labels.Build(tags, boxes)
}

// txn collects the prior values of every key it writes so that one history
// entry can restore them. Writes are applied immediately.
type txn struct {
	s       *Session
	changes []history.Change
}

func (s *Session) begin() *txn { return &txn{s: s} }

func storeErr(store database.StoreKind, key string, err error) error {
	return &StoreError{Store: store, Key: key, Err: err}
}

func (t *txn) setTag(tag database.Tag) error {
	prior, ok := t.s.tags.Get(tag.FaceID)
	if err := t.s.tags.Set(tag.FaceID, tag); err != nil {
		return storeErr(database.StoreTags, tag.FaceID, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreTags, Key: tag.FaceID, Tag: ptr(prior, ok)})
	return nil
}

func (t *txn) deleteTag(faceID string) error {
	prior, ok := t.s.tags.Get(faceID)
	if !ok {
		return nil
	}
	if err := t.s.tags.Delete(faceID); err != nil {
		return storeErr(database.StoreTags, faceID, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreTags, Key: faceID, Tag: &prior})
	return nil
}

func (t *txn) setVote(vote database.Vote) error {
	key := vote.Key()
	prior, ok := t.s.votes.Get(key)
	if err := t.s.votes.Set(key, vote); err != nil {
		return storeErr(database.StoreVotes, key.String(), err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreVotes, VoteKey: key, Vote: ptr(prior, ok)})
	return nil
}

func (t *txn) deleteVote(key database.VoteKey) error {
	prior, ok := t.s.votes.Get(key)
	if !ok {
		return nil
	}
	if err := t.s.votes.Delete(key); err != nil {
		return storeErr(database.StoreVotes, key.String(), err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreVotes, VoteKey: key, Vote: &prior})
	return nil
}

func (t *txn) setIgnore(ig database.Ignore) error {
	prior, ok := t.s.ignores.Get(ig.FaceID)
	if err := t.s.ignores.Set(ig.FaceID, ig); err != nil {
		return storeErr(database.StoreIgnores, ig.FaceID, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreIgnores, Key: ig.FaceID, Ignore: ptr(prior, ok)})
	return nil
}

func (t *txn) deleteIgnore(faceID string) error {
	prior, ok := t.s.ignores.Get(faceID)
	if !ok {
		return nil
	}
	if err := t.s.ignores.Delete(faceID); err != nil {
		return storeErr(database.StoreIgnores, faceID, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreIgnores, Key: faceID, Ignore: &prior})
	return nil
}

func (t *txn) setBox(box database.ManualBox) error {
	prior, ok := t.s.manualBoxes.Get(box.ID)
	if err := t.s.manualBoxes.Set(box.ID, box); err != nil {
		return storeErr(database.StoreManualBoxes, box.ID, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreManualBoxes, Key: box.ID, Box: ptr(prior, ok)})
	return nil
}

func (t *txn) deleteBox(id string) error {
	prior, ok := t.s.manualBoxes.Get(id)
	if !ok {
		return nil
	}
	if err := t.s.manualBoxes.Delete(id); err != nil {
		return storeErr(database.StoreManualBoxes, id, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StoreManualBoxes, Key: id, Box: &prior})
	return nil
}

func (t *txn) setPerson(key string, meta database.PersonMeta) error {
	prior, ok := t.s.people.Get(key)
	if err := t.s.people.Set(key, meta); err != nil {
		return storeErr(database.StorePeople, key, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StorePeople, Key: key, Person: ptr(prior, ok)})
	return nil
}

func (t *txn) deletePerson(key string) error {
	prior, ok := t.s.people.Get(key)
	if !ok {
		return nil
	}
	if err := t.s.people.Delete(key); err != nil {
		return storeErr(database.StorePeople, key, err)
	}
	t.changes = append(t.changes, history.Change{Store: database.StorePeople, Key: key, Person: &prior})
	return nil
}

// commit pushes one history entry holding every applied change and rebuilds
// the view. It runs even when the operation failed half way, so that the
// writes that did happen can still be undone.
func (t *txn) commit(op history.Op, label string, faceIDs []string) {
	if len(t.changes) == 0 {
		return
	}
	t.s.history.Push(history.Entry{
		Op:      op,
		Label:   label,
		FaceIDs: faceIDs,
		Changes: t.changes,
		At:      t.s.now(),
	})
	t.s.rebuild()
}

func ptr[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}
