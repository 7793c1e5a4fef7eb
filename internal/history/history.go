// Package history keeps the bounded undo stack of labeling operations.
package history

import (
	"sync"
	"time"

	"github.com/kozaktomas/face-queue/internal/database"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 200

// Op names the operation an entry undoes.
type Op string

const (
	OpAccept       Op = "accept"
	OpReject       Op = "reject"
	OpIgnore       Op = "ignore"
	OpIgnoreBucket Op = "ignore_bucket"
	OpUnignore     Op = "unignore"
	OpSeedLabel    Op = "seed_label"
	OpBatch        Op = "batch"
	OpMerge        Op = "merge"
	OpRename       Op = "rename"
	OpRemove       Op = "remove"
	OpManualLabel  Op = "manual_label"
	OpManualCreate Op = "manual_create"
	OpManualDelete Op = "manual_delete"
	OpClusterLabel Op = "cluster_label"
)

// Change is the prior value of one key. Exactly one of the value pointers
// matches Store; a nil pointer means the key was absent.
type Change struct {
	Store   database.StoreKind
	Key     string
	VoteKey database.VoteKey

	Tag    *database.Tag
	Vote   *database.Vote
	Ignore *database.Ignore
	Box    *database.ManualBox
	Person *database.PersonMeta
}

// Entry is one undo step. Changes are in the order they were applied.
type Entry struct {
	Op      Op
	Label   string
	FaceIDs []string
	Changes []Change
	At      time.Time
}

// Stack is a bounded LIFO of entries. Pushing past the limit evicts the oldest entry.
type Stack struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

// NewStack creates a stack holding at most limit entries.
func NewStack(limit int) *Stack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack{limit: limit}
}

// Push adds an entry. Entries without changes are dropped.
func (s *Stack) Push(e Entry) {
	if len(e.Changes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
}

// Pop removes and returns the newest entry.
func (s *Stack) Pop() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// Peek returns the newest entry without removing it.
func (s *Stack) Peek() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Len returns the number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
