package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// StoreKind names a persisted store. Used in history entries and failure reports.
type StoreKind string

const (
	StoreTags        StoreKind = "tags"
	StoreVotes       StoreKind = "votes"
	StoreIgnores     StoreKind = "ignores"
	StoreManualBoxes StoreKind = "manual_boxes"
	StorePeople      StoreKind = "people"
	StorePriorities  StoreKind = "priorities"
	StorePhotoStatus StoreKind = "photo_status"
	StoreCatalog     StoreKind = "catalog"
)

// Tag assigns a person label to one detected face.
type Tag struct {
	FaceID       string    `json:"face_id"`
	BucketPrefix string    `json:"bucket_prefix"`
	FaceIndex    int       `json:"face_index"`
	Label        string    `json:"label"`
	Note         string    `json:"note,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Verdict is the decision recorded by a vote.
type Verdict string

const (
	VerdictReject Verdict = "reject"
	// VerdictAccept is only read from older logs. Accepts are stored as tags.
	VerdictAccept Verdict = "accept"
)

// VoteKey identifies a vote: one face against one normalized label.
type VoteKey struct {
	FaceID string
	Label  string
}

// String renders the key as "face_id|label".
func (k VoteKey) String() string {
	return k.FaceID + "|" + k.Label
}

// Vote records a reviewer decision about a face for a label.
type Vote struct {
	FaceID    string    `json:"face_id"`
	Label     string    `json:"label"`
	Verdict   Verdict   `json:"verdict"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the store key of the vote.
func (v Vote) Key() VoteKey {
	return NewVoteKey(v.FaceID, v.Label)
}

// NewVoteKey builds a vote key, normalizing the label.
func NewVoteKey(faceID, label string) VoteKey {
	return VoteKey{FaceID: faceID, Label: facematch.NormalizeLabel(label)}
}

// Ignore marks a face as not worth labeling.
type Ignore struct {
	FaceID    string    `json:"face_id"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ignore reasons
const (
	IgnoreReasonBackground = "background"
	IgnoreReasonCrowd      = "crowd"
)

// Priority is the triage priority of a photo bucket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority parses a priority name. The empty string is normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityNormal, "":
		return PriorityNormal, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q (want low, normal or high)", s)
}

// Rank orders priorities for listing: high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Manual box sides
const (
	SideFront = "front"
	SideBack  = "back"
)

// ManualBoxPrefix starts every manual box ID so they never collide with detector face IDs.
const ManualBoxPrefix = "manual:"

// IsManualID reports whether id belongs to a manual box.
func IsManualID(id string) bool {
	return strings.HasPrefix(id, ManualBoxPrefix)
}

// ManualBox is a reviewer-drawn face region without an embedding.
type ManualBox struct {
	ID        string         `json:"id"`
	BucketID  string         `json:"bucket_id"`
	Side      string         `json:"side"`
	BBox      facematch.BBox `json:"bbox"`
	Label     string         `json:"label,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Candidate converts the box into its candidate form.
func (b ManualBox) Candidate() facematch.ManualCandidate {
	return facematch.ManualCandidate{BoxID: b.ID, BucketID: b.BucketID, Side: b.Side, BBox: b.BBox, Label: b.Label}
}

// PersonMeta holds reviewer metadata about a label.
type PersonMeta struct {
	Label   string `json:"label"`
	Pinned  bool   `json:"pinned"`
	Group   string `json:"group,omitempty"`
	Ignored bool   `json:"ignored"`
}

// PhotoStatus tracks whether a reviewer finished a photo.
type PhotoStatus struct {
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}
