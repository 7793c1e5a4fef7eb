package queue

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/history"
)

// overlapIoU is the IoU from which a manual box is reported as covering a detected face.
const overlapIoU = 0.5

// CreatedBox is the result of CreateManualBox.
type CreatedBox struct {
	Box facematch.ManualCandidate `json:"box"`
	// Overlaps lists detected faces the new box covers.
	Overlaps []string `json:"overlaps"`
}

// CreateManualBox stores a reviewer-drawn region. The box is normalized
// (clamped into the image); boxes without a positive area are rejected.
// Manual boxes have no embedding, so they are never offered by the matcher.
func (s *Session) CreateManualBox(bucketID, side string, bbox facematch.BBox) (CreatedBox, error) {
	bucketID = strings.TrimSpace(bucketID)
	if bucketID == "" {
		return CreatedBox{}, invalid("bucket_id is required")
	}
	switch side {
	case "":
		side = database.SideFront
	case database.SideFront, database.SideBack:
	default:
		return CreatedBox{}, invalid("side must be %s or %s", database.SideFront, database.SideBack)
	}
	norm, ok := facematch.NormalizeBBox(bbox)
	if !ok {
		return CreatedBox{}, invalid("bbox must have a positive width and height inside the image")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	box := database.ManualBox{
		ID:        database.ManualBoxPrefix + uuid.NewString(),
		BucketID:  bucketID,
		Side:      side,
		BBox:      norm,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t := s.begin()
	err := t.setBox(box)
	t.commit(history.OpManualCreate, "", []string{box.ID})
	if err != nil {
		return CreatedBox{}, err
	}

	out := CreatedBox{Box: box.Candidate(), Overlaps: []string{}}
	if side == database.SideFront {
		for _, d := range s.catalog.Bucket(bucketID) {
			if facematch.ComputeIoU(d.BBox, norm) >= overlapIoU {
				out.Overlaps = append(out.Overlaps, d.FaceID)
			}
		}
	}
	s.logger.Debug("manual box created",
		zap.String("box_id", box.ID),
		zap.String("bucket_id", bucketID),
		zap.Int("overlaps", len(out.Overlaps)))
	return out, nil
}

// LabelManualBox sets the label of a manual box. An empty label clears it.
func (s *Session) LabelManualBox(boxID, label string) (facematch.ManualCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.manualBoxes.Get(boxID)
	if !ok {
		return facematch.ManualCandidate{}, notFound(KindBox, boxID)
	}
	display := ""
	if facematch.NormalizeLabel(label) != "" {
		display = s.registry.Display(label)
	}
	box.Label = display
	box.UpdatedAt = s.now()

	t := s.begin()
	err := t.setBox(box)
	t.commit(history.OpManualLabel, display, []string{boxID})
	if err != nil {
		return facematch.ManualCandidate{}, err
	}
	return box.Candidate(), nil
}

// DeleteManualBox removes a manual box. Undo brings it back with its label.
func (s *Session) DeleteManualBox(boxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.manualBoxes.Get(boxID)
	if !ok {
		return notFound(KindBox, boxID)
	}
	t := s.begin()
	err := t.deleteBox(boxID)
	t.commit(history.OpManualDelete, box.Label, []string{boxID})
	return err
}
