package queue

import (
	"fmt"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

// RestoredContext tells the caller what an undo reverted so it can show the
// item again.
type RestoredContext struct {
	Op        history.Op                 `json:"op"`
	Label     string                     `json:"label,omitempty"`
	FaceIDs   []string                   `json:"face_ids"`
	Candidate *facematch.Candidate       `json:"candidate,omitempty"`
	Manual    *facematch.ManualCandidate `json:"manual,omitempty"`
}

// Undo reverts the newest history entry. Every key the entry changed is
// written back to its prior value, newest change first. A nil context means
// there was nothing to undo.
//
// If a restore write fails, the changes that were not restored yet are
// pushed back as a new entry so the undo can be retried.
func (s *Session) Undo() (*RestoredContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.history.Pop()
	if !ok {
		return nil, nil
	}

	for i := len(entry.Changes) - 1; i >= 0; i-- {
		if err := s.restore(entry.Changes[i]); err != nil {
			remaining := entry
			remaining.Changes = entry.Changes[:i+1]
			s.history.Push(remaining)
			s.rebuild()
			return nil, fmt.Errorf("undo %s: %w", entry.Op, err)
		}
	}
	s.rebuild()

	restored := &RestoredContext{Op: entry.Op, Label: entry.Label, FaceIDs: entry.FaceIDs}
	if len(entry.FaceIDs) > 0 {
		id := entry.FaceIDs[0]
		if d, ok := s.catalog.Get(id); ok {
			c := facematch.NewCandidate(&d, nil)
			restored.Candidate = &c
		} else if b, ok := s.manualBoxes.Get(id); ok {
			m := b.Candidate()
			restored.Manual = &m
		}
	}
	s.logger.Debug("undo applied")
	return restored, nil
}

// UndoDepth returns the number of undoable entries.
func (s *Session) UndoDepth() int { return s.history.Len() }

func (s *Session) restore(c history.Change) error {
	var err error
	switch c.Store {
	case database.StoreTags:
		if c.Tag != nil {
			err = s.tags.Set(c.Key, *c.Tag)
		} else {
			err = s.tags.Delete(c.Key)
		}
	case database.StoreVotes:
		if c.Vote != nil {
			err = s.votes.Set(c.VoteKey, *c.Vote)
		} else {
			err = s.votes.Delete(c.VoteKey)
		}
	case database.StoreIgnores:
		if c.Ignore != nil {
			err = s.ignores.Set(c.Key, *c.Ignore)
		} else {
			err = s.ignores.Delete(c.Key)
		}
	case database.StoreManualBoxes:
		if c.Box != nil {
			err = s.manualBoxes.Set(c.Key, *c.Box)
		} else {
			err = s.manualBoxes.Delete(c.Key)
		}
	case database.StorePeople:
		if c.Person != nil {
			err = s.people.Set(c.Key, *c.Person)
		} else {
			err = s.people.Delete(c.Key)
		}
	default:
		return fmt.Errorf("unknown store %q in history", c.Store)
	}
	if err != nil {
		key := c.Key
		if c.Store == database.StoreVotes {
			key = c.VoteKey.String()
		}
		return storeErr(c.Store, key, err)
	}
	return nil
}
