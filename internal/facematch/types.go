// Package facematch ranks face detections against person labels.
// It owns the detection and candidate types shared by the queue, the web handlers and the CLI.
package facematch

// BBox is a bounding box in relative image coordinates. Every field lies in [0, 1].
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one face found by the upstream detector. Detections are read-only.
type Detection struct {
	FaceID       string
	BucketID     string
	BucketPrefix string
	Variant      string
	FaceIndex    int
	Embedding    []float32
	BBox         BBox
	Confidence   float64
	Hints        []string
}

// HasBBox is implemented by anything that is drawn as a region on a photo.
type HasBBox interface {
	Box() BBox
}

// Labelable is implemented by anything a reviewer can attach a person label to.
type Labelable interface {
	ItemID() string
	Bucket() string
}

// Candidate is a detector-produced face offered to the reviewer.
type Candidate struct {
	FaceID     string   `json:"face_id"`
	BucketID   string   `json:"bucket_id"`
	Variant    string   `json:"variant"`
	Similarity *float64 `json:"similarity,omitempty"`
	Confidence float64  `json:"confidence"`
	BBox       BBox     `json:"bbox"`
	LabelHints []string `json:"label_hints"`
}

func (c Candidate) Box() BBox { return c.BBox }
func (c Candidate) ItemID() string { return c.FaceID }
func (c Candidate) Bucket() string { return c.BucketID }

// ManualCandidate is a reviewer-drawn region. It never carries an embedding,
// so the matcher never produces one.
type ManualCandidate struct {
	BoxID    string `json:"box_id"`
	BucketID string `json:"bucket_id"`
	Side     string `json:"side"`
	BBox     BBox   `json:"bbox"`
	Label    string `json:"label,omitempty"`
}

func (m ManualCandidate) Box() BBox { return m.BBox }
func (m ManualCandidate) ItemID() string { return m.BoxID }
func (m ManualCandidate) Bucket() string { return m.BucketID }

// NewCandidate builds a Candidate from a detection. similarity may be nil (seed mode).
func NewCandidate(d *Detection, similarity *float64) Candidate {
	hints := d.Hints
	if hints == nil {
		hints = []string{}
	}
	return Candidate{
		FaceID:     d.FaceID,
		BucketID:   d.BucketID,
		Variant:    d.Variant,
		Similarity: similarity,
		Confidence: d.Confidence,
		BBox:       d.BBox,
		LabelHints: hints,
	}
}
