// Package labels derives the set of person labels from tags and manual boxes
// and plans label renames and merges.
package labels

import (
	"errors"
	"sort"
	"time"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

var (
	ErrEmptyLabel   = errors.New("label is empty")
	ErrSelfMerge    = errors.New("source and target are the same label")
	ErrUnknownLabel = errors.New("unknown label")
)

// Info summarizes one label.
type Info struct {
	Label     string    // display form
	FaceCount int       // detector faces plus manual boxes
	LastSeen  time.Time // most recent tag or box update
}

type entry struct {
	display   string
	displayAt time.Time
	faceIDs   []string
	boxIDs    []string
	lastSeen  time.Time
}

// Registry is an immutable snapshot of the known labels keyed by normalized form.
type Registry struct {
	entries map[string]*entry
}

// Build derives a registry from every tag and every labeled manual box.
func Build(tags map[string]database.Tag, boxes map[string]database.ManualBox) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for id, t := range tags {
		e := r.touch(t.Label, t.UpdatedAt)
		if e != nil {
			e.faceIDs = append(e.faceIDs, id)
		}
	}
	for id, b := range boxes {
		e := r.touch(b.Label, b.UpdatedAt)
		if e != nil {
			e.boxIDs = append(e.boxIDs, id)
		}
	}
	for _, e := range r.entries {
		sort.Strings(e.faceIDs)
		sort.Strings(e.boxIDs)
	}
	return r
}

// touch returns the entry for label, updating its display form with the
// spelling of the most recent write.
func (r *Registry) touch(label string, at time.Time) *entry {
	key := facematch.NormalizeLabel(label)
	if key == "" {
		return nil
	}
	display := facematch.CleanLabel(label)
	e, ok := r.entries[key]
	if !ok {
		e = &entry{display: display, displayAt: at}
		r.entries[key] = e
	}
	if at.After(e.displayAt) || (at.Equal(e.displayAt) && display < e.display) {
		e.display = display
		e.displayAt = at
	}
	if at.After(e.lastSeen) {
		e.lastSeen = at
	}
	return e
}

func (r *Registry) get(label string) (*entry, bool) {
	e, ok := r.entries[facematch.NormalizeLabel(label)]
	return e, ok
}

// Exists reports whether any tag or manual box carries label.
func (r *Registry) Exists(label string) bool {
	_, ok := r.get(label)
	return ok
}

// Display returns the display form of a known label, or the cleaned input.
func (r *Registry) Display(label string) string {
	if e, ok := r.get(label); ok {
		return e.display
	}
	return facematch.CleanLabel(label)
}

// Lookup returns the summary of one label.
func (r *Registry) Lookup(label string) (Info, bool) {
	e, ok := r.get(label)
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// FaceIDs returns the detector faces tagged with label.
func (r *Registry) FaceIDs(label string) []string {
	if e, ok := r.get(label); ok {
		return e.faceIDs
	}
	return nil
}

// BoxIDs returns the manual boxes labeled with label.
func (r *Registry) BoxIDs(label string) []string {
	if e, ok := r.get(label); ok {
		return e.boxIDs
	}
	return nil
}

// Count returns the number of faces and boxes carrying label.
func (r *Registry) Count(label string) int {
	if e, ok := r.get(label); ok {
		return len(e.faceIDs) + len(e.boxIDs)
	}
	return 0
}

// LastSeen returns the time of the latest write carrying label.
func (r *Registry) LastSeen(label string) time.Time {
	if e, ok := r.get(label); ok {
		return e.lastSeen
	}
	return time.Time{}
}

// Len returns the number of labels.
func (r *Registry) Len() int { return len(r.entries) }

// Labels returns every label ordered by normalized form.
func (r *Registry) Labels() []Info {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Info, len(keys))
	for i, k := range keys {
		out[i] = r.entries[k].info()
	}
	return out
}

func (e *entry) info() Info {
	return Info{Label: e.display, FaceCount: len(e.faceIDs) + len(e.boxIDs), LastSeen: e.lastSeen}
}

// MergePlan lists every write a rename or merge performs.
type MergePlan struct {
	Source string // display form of the source label
	Target string // display form the faces end up with
	// Rename is true when the target did not exist yet.
	Rename bool
	// DisplayOnly is a rename that keeps the normalized label and only
	// changes its spelling ("alice" to "Alice").
	DisplayOnly bool
	// FaceIDs and BoxIDs are retagged to Target.
	FaceIDs []string
	BoxIDs  []string
	// SourceVotes are the votes recorded against the source label. A rename
	// re-keys them to the target, a merge drops them.
	SourceVotes []database.Vote
}

// Plan validates a rename or merge of source into target.
func (r *Registry) Plan(source, target string, votes map[database.VoteKey]database.Vote) (MergePlan, error) {
	srcKey := facematch.NormalizeLabel(source)
	dstKey := facematch.NormalizeLabel(target)
	if srcKey == "" || dstKey == "" {
		return MergePlan{}, ErrEmptyLabel
	}
	src, ok := r.entries[srcKey]
	if srcKey == dstKey && (!ok || src.display == facematch.CleanLabel(target)) {
		return MergePlan{}, ErrSelfMerge
	}
	if !ok {
		return MergePlan{}, ErrUnknownLabel
	}

	plan := MergePlan{
		Source:  src.display,
		Target:  facematch.CleanLabel(target),
		FaceIDs: src.faceIDs,
		BoxIDs:  src.boxIDs,
	}
	switch dst, exists := r.entries[dstKey]; {
	case srcKey == dstKey:
		plan.Rename = true
		plan.DisplayOnly = true
	case exists:
		plan.Target = dst.display
	default:
		plan.Rename = true
	}

	for key, v := range votes {
		if key.Label == srcKey {
			plan.SourceVotes = append(plan.SourceVotes, v)
		}
	}
	sort.Slice(plan.SourceVotes, func(i, j int) bool { return plan.SourceVotes[i].FaceID < plan.SourceVotes[j].FaceID })
	return plan, nil
}
