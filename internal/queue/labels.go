package queue

import (
	"sort"
	"time"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// LabelFace is one face or manual box carrying a label.
type LabelFace struct {
	FaceID     string         `json:"face_id"`
	BucketID   string         `json:"bucket_id"`
	Manual     bool           `json:"manual"`
	BBox       facematch.BBox `json:"bbox"`
	Confidence float64        `json:"confidence"`
	Note       string         `json:"note,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// LabelDetail lists everything assigned to one label.
type LabelDetail struct {
	Label    string      `json:"label"`
	Count    int         `json:"count"`
	LastSeen *time.Time  `json:"last_seen"`
	Faces    []LabelFace `json:"faces"`
}

// LabelFaces returns the faces and manual boxes of a label, newest first.
// Tags whose detection is no longer in the catalog are still listed, with
// the bucket taken from the tag.
func (s *Session) LabelFaces(label string) (LabelDetail, error) {
	norm := facematch.NormalizeLabel(label)
	if norm == "" {
		return LabelDetail{}, invalid("label is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.registry.Lookup(norm)
	if !ok {
		return LabelDetail{}, notFound(KindLabel, facematch.CleanLabel(label))
	}
	out := LabelDetail{Label: info.Label, Count: info.FaceCount, Faces: []LabelFace{}}
	if !info.LastSeen.IsZero() {
		out.LastSeen = &info.LastSeen
	}
	for _, id := range s.registry.FaceIDs(norm) {
		tag, _ := s.tags.Get(id)
		f := LabelFace{FaceID: id, BucketID: tag.BucketPrefix, Note: tag.Note, UpdatedAt: tag.UpdatedAt}
		if d, ok := s.catalog.Get(id); ok {
			f.BucketID = d.BucketID
			f.BBox = d.BBox
			f.Confidence = d.Confidence
		}
		out.Faces = append(out.Faces, f)
	}
	for _, id := range s.registry.BoxIDs(norm) {
		b, ok := s.manualBoxes.Get(id)
		if !ok {
			continue
		}
		out.Faces = append(out.Faces, LabelFace{FaceID: b.ID, BucketID: b.BucketID, Manual: true, BBox: b.BBox, UpdatedAt: b.UpdatedAt})
	}
	sort.SliceStable(out.Faces, func(i, j int) bool {
		a, b := out.Faces[i], out.Faces[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.FaceID < b.FaceID
	})
	return out, nil
}

// LabelPhotoQuery pages the photos of one label.
type LabelPhotoQuery struct {
	Label         string
	Cursor        int
	Limit         int
	MinConfidence float64
	IncludeDone   bool
}

// LabelPhotos returns one page of the photos that hold a face or manual box
// of a label. Photos are ordered by priority, unlabeled count desc, labeled
// count desc, max confidence desc and bucket ID.
func (s *Session) LabelPhotos(q LabelPhotoQuery) (PhotoPage, error) {
	norm := facematch.NormalizeLabel(q.Label)
	if norm == "" {
		return PhotoPage{}, invalid("label is required")
	}
	if q.Cursor < 0 {
		return PhotoPage{}, invalid("cursor must not be negative")
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.PageSize
	}
	q.Limit = min(q.Limit, MaxPageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Exists(norm) {
		return PhotoPage{}, notFound(KindLabel, facematch.CleanLabel(q.Label))
	}
	buckets := make(map[string]struct{})
	for _, id := range s.registry.FaceIDs(norm) {
		if d, ok := s.catalog.Get(id); ok {
			buckets[d.BucketID] = struct{}{}
		}
	}
	for _, id := range s.registry.BoxIDs(norm) {
		if b, ok := s.manualBoxes.Get(id); ok {
			buckets[b.BucketID] = struct{}{}
		}
	}

	var matched []Photo
	for _, p := range s.photos(q.MinConfidence) {
		if _, ok := buckets[p.BucketID]; !ok {
			continue
		}
		if p.Done && !q.IncludeDone {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if a.UnlabeledCount != b.UnlabeledCount {
			return a.UnlabeledCount > b.UnlabeledCount
		}
		if a.LabeledCount != b.LabeledCount {
			return a.LabeledCount > b.LabeledCount
		}
		if a.MaxConfidence != b.MaxConfidence {
			return a.MaxConfidence > b.MaxConfidence
		}
		return a.BucketID < b.BucketID
	})
	return s.photoPage(matched, q.Cursor, q.Limit), nil
}

// photoPage cuts one page out of sorted photos and resolves its images.
func (s *Session) photoPage(matched []Photo, cursor, limit int) PhotoPage {
	page := PhotoPage{Photos: []Photo{}, Total: len(matched)}
	if cursor >= len(matched) {
		return page
	}
	end := min(cursor+limit, len(matched))
	page.Photos = matched[cursor:end]
	if s.images != nil {
		for i := range page.Photos {
			page.Photos[i].Images = s.images.Resolve(page.Photos[i].BucketPrefix)
		}
	}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = &end
	}
	return page
}
