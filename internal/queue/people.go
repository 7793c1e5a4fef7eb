package queue

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
	"github.com/kozaktomas/face-queue/internal/labels"
)

// Person is one row of the people list.
type Person struct {
	Label        string     `json:"label"`
	FaceCount    int        `json:"face_count"`
	PendingCount int        `json:"pending_count"`
	LastSeen     *time.Time `json:"last_seen"`
	Pinned       bool       `json:"pinned"`
	Group        string     `json:"group,omitempty"`
	Ignored      bool       `json:"ignored"`
}

// PersonUpdate changes people metadata. Nil fields are left alone.
type PersonUpdate struct {
	Pinned  *bool   `json:"pinned"`
	Group   *string `json:"group"`
	Ignored *bool   `json:"ignored"`
}

// ListPeople returns every label with its face count, the number of pending
// candidates at the default similarity and its metadata. Pinned labels come
// first, then labels in alphabetical order.
func (s *Session) ListPeople(ctx context.Context) ([]Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPeople(ctx)
}

func (s *Session) listPeople(ctx context.Context) ([]Person, error) {
	infos := s.registry.Labels()
	out := make([]Person, 0, len(infos))
	for _, info := range infos {
		norm := facematch.NormalizeLabel(info.Label)
		pending, err := s.matcher.CountCandidates(ctx, s.view, norm, s.opts.MinSimilarity, s.skips[norm])
		if err != nil {
			return nil, err
		}
		p := Person{Label: info.Label, FaceCount: info.FaceCount, PendingCount: pending}
		if !info.LastSeen.IsZero() {
			seen := info.LastSeen
			p.LastSeen = &seen
		}
		if meta, ok := s.people.Get(norm); ok {
			p.Pinned, p.Group, p.Ignored = meta.Pinned, meta.Group, meta.Ignored
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return false
	})
	return out, nil
}

// UpdatePerson changes the metadata of an existing label.
func (s *Session) UpdatePerson(ctx context.Context, label string, update PersonUpdate) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm, err := s.knownLabel(label)
	if err != nil {
		return Person{}, err
	}
	meta, _ := s.people.Get(norm)
	meta.Label = s.registry.Display(norm)
	if update.Pinned != nil {
		meta.Pinned = *update.Pinned
	}
	if update.Group != nil {
		meta.Group = facematch.CleanLabel(*update.Group)
	}
	if update.Ignored != nil {
		meta.Ignored = *update.Ignored
	}
	if err := s.people.Set(norm, meta); err != nil {
		return Person{}, storeErr(database.StorePeople, norm, err)
	}

	people, err := s.listPeople(ctx)
	if err != nil {
		return Person{}, err
	}
	for _, p := range people {
		if facematch.NormalizeLabel(p.Label) == norm {
			return p, nil
		}
	}
	return Person{}, notFound(KindLabel, label)
}

// MergeLabels moves every face of source to target. When target does not
// exist yet this is a rename and the reject votes of source follow it; when
// it exists the votes of source are dropped. Either way one undo step
// restores tags, manual box labels, votes and people metadata.
func (s *Session) MergeLabels(ctx context.Context, source, target string) ([]Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.registry.Plan(source, target, s.votes.All())
	switch {
	case errors.Is(err, labels.ErrSelfMerge), errors.Is(err, labels.ErrEmptyLabel):
		return nil, &InvalidMergeError{Source: source, Target: target, Reason: err.Error()}
	case errors.Is(err, labels.ErrUnknownLabel):
		return nil, notFound(KindLabel, facematch.CleanLabel(source))
	case err != nil:
		return nil, err
	}

	op := history.OpMerge
	if plan.Rename {
		op = history.OpRename
	}
	t := s.begin()
	err = s.applyMerge(t, plan)
	t.commit(op, plan.Target, plan.FaceIDs)
	if err != nil {
		return nil, err
	}

	if !plan.DisplayOnly {
		delete(s.skips, facematch.NormalizeLabel(plan.Source))
	}
	s.logger.Info("labels merged",
		zap.String("source", plan.Source),
		zap.String("target", plan.Target),
		zap.Bool("rename", plan.Rename),
		zap.Int("faces", len(plan.FaceIDs)+len(plan.BoxIDs)))
	return s.listPeople(ctx)
}

func (s *Session) applyMerge(t *txn, plan labels.MergePlan) error {
	now := s.now()
	for _, id := range plan.FaceIDs {
		tag, ok := s.tags.Get(id)
		if !ok {
			continue
		}
		tag.Label = plan.Target
		tag.UpdatedAt = now
		if err := t.setTag(tag); err != nil {
			return err
		}
	}
	for _, id := range plan.BoxIDs {
		box, ok := s.manualBoxes.Get(id)
		if !ok {
			continue
		}
		box.Label = plan.Target
		box.UpdatedAt = now
		if err := t.setBox(box); err != nil {
			return err
		}
	}
	for _, v := range plan.SourceVotes {
		if err := t.deleteVote(v.Key()); err != nil {
			return err
		}
		if !plan.Rename {
			continue
		}
		v.Label = plan.Target
		if err := t.setVote(v); err != nil {
			return err
		}
	}

	srcKey := facematch.NormalizeLabel(plan.Source)
	dstKey := facematch.NormalizeLabel(plan.Target)
	meta, ok := s.people.Get(srcKey)
	if !ok {
		return nil
	}
	if plan.DisplayOnly {
		meta.Label = plan.Target
		return t.setPerson(dstKey, meta)
	}
	if _, exists := s.people.Get(dstKey); !exists {
		meta.Label = plan.Target
		if err := t.setPerson(dstKey, meta); err != nil {
			return err
		}
	}
	return t.deletePerson(srcKey)
}
