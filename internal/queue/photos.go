package queue

import (
	"slices"
	"sort"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

// Photo listing modes
const (
	ModeUnlabeled = "unlabeled"
	ModeReview    = "review"
)

// PhotoGroup aggregates the unlabeled detections of one bucket.
type PhotoGroup struct {
	BucketID       string  `json:"bucket_id"`
	UnlabeledCount int     `json:"unlabeled_count"`
	MaxConfidence  float64 `json:"max_confidence"`
}

// Photo is one entry of the photo listing.
type Photo struct {
	PhotoGroup
	BucketPrefix string            `json:"bucket_prefix"`
	FaceCount    int               `json:"face_count"`
	LabeledCount int               `json:"labeled_count"`
	ManualCount  int               `json:"manual_count"`
	Priority     database.Priority `json:"priority"`
	Done         bool              `json:"done"`
	Images       catalog.ImageRefs `json:"images"`
}

// PhotoQuery filters and pages the photo listing.
type PhotoQuery struct {
	Cursor        int
	Limit         int
	Priority      database.Priority // empty matches every priority
	MinConfidence float64
	Mode          string // ModeUnlabeled (default) or ModeReview
	IncludeDone   bool
}

// PhotoPage is one page of the photo listing. NextCursor is nil on the last page.
type PhotoPage struct {
	Photos     []Photo `json:"photos"`
	NextCursor *int    `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
	Total      int     `json:"total"`
}

// unlabeled reports whether a detection counts as open work.
func (s *Session) unlabeled(d *facematch.Detection, minConfidence float64) bool {
	return d.Confidence >= minConfidence && !s.view.IsLabeled(d.FaceID) && !s.view.IsIgnored(d.FaceID)
}

// UnlabeledIDs returns the detections with no tag and no ignore whose
// confidence is at least minConfidence, in catalog order.
func (s *Session) UnlabeledIDs(minConfidence float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	dets := s.catalog.Detections()
	for i := range dets {
		if s.unlabeled(&dets[i], minConfidence) {
			ids = append(ids, dets[i].FaceID)
		}
	}
	return ids
}

// UnlabeledPhotoGroups groups the unlabeled detections by bucket. Buckets
// without unlabeled detections are left out. Groups are in bucket order.
func (s *Session) UnlabeledPhotoGroups(minConfidence float64) []PhotoGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []PhotoGroup
	for _, p := range s.photos(minConfidence) {
		if p.UnlabeledCount > 0 {
			groups = append(groups, p.PhotoGroup)
		}
	}
	return groups
}

// photos aggregates every bucket of the catalog.
func (s *Session) photos(minConfidence float64) []Photo {
	buckets := s.catalog.Buckets()
	out := make([]Photo, 0, len(buckets))
	for _, bucketID := range buckets {
		p := Photo{
			PhotoGroup:   PhotoGroup{BucketID: bucketID},
			BucketPrefix: s.catalog.BucketPrefix(bucketID),
			Priority:     database.PriorityNormal,
		}
		for _, d := range s.catalog.Bucket(bucketID) {
			p.FaceCount++
			if s.view.IsLabeled(d.FaceID) {
				p.LabeledCount++
			}
			if !s.unlabeled(&d, minConfidence) {
				continue
			}
			if p.UnlabeledCount == 0 || d.Confidence > p.MaxConfidence {
				p.MaxConfidence = d.Confidence
			}
			p.UnlabeledCount++
		}
		for _, b := range s.view.boxes[bucketID] {
			p.ManualCount++
			if b.Label != "" {
				p.LabeledCount++
			}
		}
		if prio, ok := s.priorities.Get(bucketID); ok {
			p.Priority = prio
		}
		if st, ok := s.photoStatus.Get(bucketID); ok {
			p.Done = st.Done
		}
		out = append(out, p)
	}
	return out
}

// ListPhotos returns one page of photos ordered by priority (high first),
// unlabeled count desc, max confidence desc and bucket ID. The cursor is an
// offset into that ordering and is recomputed on every call, so pages are
// only consistent while no decision is made in between.
func (s *Session) ListPhotos(q PhotoQuery) (PhotoPage, error) {
	if q.Cursor < 0 {
		return PhotoPage{}, invalid("cursor must not be negative")
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.PageSize
	}
	q.Limit = min(q.Limit, MaxPageSize)
	switch q.Mode {
	case "":
		q.Mode = ModeUnlabeled
	case ModeUnlabeled, ModeReview:
	default:
		return PhotoPage{}, invalid("unknown mode %q (want %s or %s)", q.Mode, ModeUnlabeled, ModeReview)
	}
	if q.Priority != "" {
		prio, err := database.ParsePriority(string(q.Priority))
		if err != nil {
			return PhotoPage{}, invalid("%v", err)
		}
		q.Priority = prio
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Photo
	for _, p := range s.photos(q.MinConfidence) {
		if q.Priority != "" && p.Priority != q.Priority {
			continue
		}
		if p.Done && !q.IncludeDone {
			continue
		}
		if q.Mode == ModeReview && p.LabeledCount == 0 {
			continue
		}
		if q.Mode == ModeUnlabeled && p.UnlabeledCount == 0 {
			continue
		}
		matched = append(matched, p)
	}
	sortPhotos(matched)
	return s.photoPage(matched, q.Cursor, q.Limit), nil
}

func sortPhotos(photos []Photo) {
	sort.Slice(photos, func(i, j int) bool {
		a, b := photos[i], photos[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if a.UnlabeledCount != b.UnlabeledCount {
			return a.UnlabeledCount > b.UnlabeledCount
		}
		if a.MaxConfidence != b.MaxConfidence {
			return a.MaxConfidence > b.MaxConfidence
		}
		return a.BucketID < b.BucketID
	})
}

// RemainingUnlabeled returns how many detections have neither a tag nor an ignore.
func (s *Session) RemainingUnlabeled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining()
}

func (s *Session) remaining() int {
	n := 0
	dets := s.catalog.Detections()
	for i := range dets {
		if s.unlabeled(&dets[i], 0) {
			n++
		}
	}
	return n
}

// FaceState is the decision state of one detected face.
type FaceState struct {
	Label        string          `json:"label,omitempty"`
	Votes        []database.Vote `json:"votes"`
	Ignored      bool            `json:"ignored"`
	IgnoreReason string          `json:"ignore_reason,omitempty"`
}

// PhotoFace is a detected face with its state.
type PhotoFace struct {
	facematch.Candidate
	FaceIndex int       `json:"face_index"`
	State     FaceState `json:"state"`
}

// PhotoFaces is everything the photo view needs about one bucket.
type PhotoFaces struct {
	BucketID    string                      `json:"bucket_id"`
	Faces       []PhotoFace                 `json:"faces"`
	ManualBoxes []facematch.ManualCandidate `json:"manual_boxes"`
	Images      catalog.ImageRefs           `json:"images"`
	Priority    database.Priority           `json:"priority"`
	Done        bool                        `json:"done"`
}

// GetPhotoFaces returns the faces and manual boxes of one bucket. A non-empty
// variant keeps only detections of that variant.
func (s *Session) GetPhotoFaces(bucketID, variant string) (PhotoFaces, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.catalog.HasBucket(bucketID) && len(s.view.boxes[bucketID]) == 0 {
		return PhotoFaces{}, notFound(KindBucket, bucketID)
	}

	out := PhotoFaces{
		BucketID:    bucketID,
		Faces:       []PhotoFace{},
		ManualBoxes: []facematch.ManualCandidate{},
		Priority:    database.PriorityNormal,
	}
	for _, d := range s.catalog.Bucket(bucketID) {
		if variant != "" && d.Variant != variant {
			continue
		}
		out.Faces = append(out.Faces, s.photoFace(&d))
	}
	boxes := slices.Clone(s.view.boxes[bucketID])
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].CreatedAt.Before(boxes[j].CreatedAt) })
	for _, b := range boxes {
		out.ManualBoxes = append(out.ManualBoxes, b.Candidate())
	}
	if s.images != nil {
		out.Images = s.images.Resolve(s.catalog.BucketPrefix(bucketID))
	}
	if prio, ok := s.priorities.Get(bucketID); ok {
		out.Priority = prio
	}
	if st, ok := s.photoStatus.Get(bucketID); ok {
		out.Done = st.Done
	}
	return out, nil
}

func (s *Session) photoFace(d *facematch.Detection) PhotoFace {
	f := PhotoFace{
		Candidate: facematch.NewCandidate(d, nil),
		FaceIndex: d.FaceIndex,
		State:     FaceState{Votes: []database.Vote{}},
	}
	if tag, ok := s.tags.Get(d.FaceID); ok {
		f.State.Label = tag.Label
	}
	votes := slices.Clone(s.view.votes[d.FaceID])
	sort.Slice(votes, func(i, j int) bool { return votes[i].Label < votes[j].Label })
	f.State.Votes = append(f.State.Votes, votes...)
	if ig, ok := s.view.ignored[d.FaceID]; ok {
		f.State.Ignored = true
		f.State.IgnoreReason = ig.Reason
	}
	return f
}

// SetPriority sets the triage priority of a bucket. Normal removes the entry.
func (s *Session) SetPriority(bucketID, priority string) (database.Priority, error) {
	prio, err := database.ParsePriority(priority)
	if err != nil {
		return "", invalid("%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.catalog.HasBucket(bucketID) {
		return "", notFound(KindBucket, bucketID)
	}
	if prio == database.PriorityNormal {
		err = s.priorities.Delete(bucketID)
	} else {
		err = s.priorities.Set(bucketID, prio)
	}
	if err != nil {
		return "", storeErr(database.StorePriorities, bucketID, err)
	}
	return prio, nil
}

// SetPhotoDone marks a bucket as reviewed, or back as open.
func (s *Session) SetPhotoDone(bucketID string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.catalog.HasBucket(bucketID) {
		return notFound(KindBucket, bucketID)
	}
	var err error
	if done {
		err = s.photoStatus.Set(bucketID, database.PhotoStatus{Done: true, UpdatedAt: s.now()})
	} else {
		err = s.photoStatus.Delete(bucketID)
	}
	if err != nil {
		return storeErr(database.StorePhotoStatus, bucketID, err)
	}
	return nil
}

// FaceContext is a face together with the other faces of its photo.
type FaceContext struct {
	Face     PhotoFace         `json:"face"`
	Siblings []PhotoFace       `json:"siblings"`
	Images   catalog.ImageRefs `json:"images"`
}

// FaceContext returns a detected face and its siblings in the same bucket.
func (s *Session) FaceContext(faceID string) (FaceContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.catalog.Get(faceID)
	if !ok {
		return FaceContext{}, notFound(KindFace, faceID)
	}
	out := FaceContext{Face: s.photoFace(&d), Siblings: []PhotoFace{}}
	for _, sib := range s.catalog.Bucket(d.BucketID) {
		if sib.FaceID != faceID {
			out.Siblings = append(out.Siblings, s.photoFace(&sib))
		}
	}
	if s.images != nil {
		out.Images = s.images.Resolve(d.BucketPrefix)
	}
	return out, nil
}

// ListUnlabeled returns up to limit unlabeled faces ordered by confidence
// desc, then face ID. A limit of zero takes the configured default.
func (s *Session) ListUnlabeled(limit int, minConfidence float64) []facematch.Candidate {
	if limit <= 0 {
		limit = s.opts.UnlabeledLimit
	}
	limit = min(limit, MaxPageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	var open []*facematch.Detection
	dets := s.catalog.Detections()
	for i := range dets {
		if s.unlabeled(&dets[i], minConfidence) {
			open = append(open, &dets[i])
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Confidence != open[j].Confidence {
			return open[i].Confidence > open[j].Confidence
		}
		return open[i].FaceID < open[j].FaceID
	})
	out := make([]facematch.Candidate, 0, min(limit, len(open)))
	for _, d := range open[:min(limit, len(open))] {
		out = append(out, facematch.NewCandidate(d, nil))
	}
	return out
}

// Summary is the queue overview shown in the UI header and by the CLI.
type Summary struct {
	Detections  int `json:"detections"`
	Labeled     int `json:"labeled"`
	Ignored     int `json:"ignored"`
	Remaining   int `json:"remaining"`
	Labels      int `json:"labels"`
	Photos      int `json:"photos"`
	ManualBoxes int `json:"manual_boxes"`
	UndoDepth   int `json:"undo_depth"`
	// LastOp is what Undo would revert next, empty when there is nothing to undo.
	LastOp    history.Op `json:"last_op,omitempty"`
	LastLabel string     `json:"last_label,omitempty"`
}

// Summary counts the current state.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Detections:  s.catalog.Len(),
		Remaining:   s.remaining(),
		Labels:      s.registry.Len(),
		Photos:      len(s.catalog.Buckets()),
		ManualBoxes: len(s.manualBoxes.All()),
		UndoDepth:   s.history.Len(),
	}
	if last, ok := s.history.Peek(); ok {
		sum.LastOp = last.Op
		sum.LastLabel = last.Label
	}
	dets := s.catalog.Detections()
	for i := range dets {
		switch {
		case s.view.IsLabeled(dets[i].FaceID):
			sum.Labeled++
		case s.view.IsIgnored(dets[i].FaceID):
			sum.Ignored++
		}
	}
	return sum
}
