package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-queue/internal/database"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks caller mistakes (empty label, bad bbox, unknown priority).
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyQueue signals that no candidate is left. Session methods return
	// nil candidates instead; the CLI uses this sentinel for its exit path.
	ErrEmptyQueue = errors.New("no more candidates")
)

// Kinds of things a NotFoundError refers to.
const (
	KindFace    = "face"
	KindLabel   = "label"
	KindBox     = "manual box"
	KindBucket  = "bucket"
	KindTag     = "tag"
	KindIgnore  = "ignore"
	KindCluster = "cluster"
)

// NotFoundError reports an unknown face, label, box or bucket.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// InvalidMergeError reports a rename or merge that cannot be performed.
type InvalidMergeError struct {
	Source string
	Target string
	Reason string
}

func (e *InvalidMergeError) Error() string {
	return fmt.Sprintf("cannot merge %q into %q: %s", e.Source, e.Target, e.Reason)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// StoreError wraps a failed store write with the store it went to.
type StoreError struct {
	Store database.StoreKind
	Key   string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: write %s: %v", e.Store, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BatchFailure describes one id of a batch that could not be applied.
type BatchFailure struct {
	FaceID string             `json:"face_id"`
	Store  database.StoreKind `json:"store"`
	Error  string             `json:"error"`
}

// PartialBatchFailure is returned by CommitBatch when some ids failed.
// Ids already applied stay applied.
type PartialBatchFailure struct {
	Failures []BatchFailure
}

func (e *PartialBatchFailure) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.FaceID
	}
	return fmt.Sprintf("batch partially failed for %d id(s): %s", len(e.Failures), strings.Join(ids, ", "))
}
