package csvlog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
)

// File names inside the store directory.
const (
	TagsFile    = "face_tags.csv"
	VotesFile   = "face_votes.csv"
	IgnoresFile = "face_ignores.csv"
)

// TagCodec maps tags to face_tags.csv rows.
var TagCodec = Codec[string, database.Tag]{
	Name:   "tags",
	Header: []string{"face_id", "bucket_prefix", "face_index", "label", "note", "updated_at_utc"},
	Decode: decodeTag,
	Encode: func(t database.Tag) []string {
		return []string{t.FaceID, t.BucketPrefix, strconv.Itoa(t.FaceIndex), t.Label, t.Note, formatTime(t.UpdatedAt)}
	},
	Key: func(t database.Tag) string { return t.FaceID },
}

// VoteCodec maps votes to face_votes.csv rows.
var VoteCodec = Codec[database.VoteKey, database.Vote]{
	Name:   "votes",
	Header: []string{"face_id", "label", "verdict", "note", "updated_at_utc"},
	Decode: decodeVote,
	Encode: func(v database.Vote) []string {
		return []string{v.FaceID, v.Label, string(v.Verdict), v.Note, formatTime(v.UpdatedAt)}
	},
	Key: func(v database.Vote) database.VoteKey { return v.Key() },
}

// IgnoreCodec maps ignores to face_ignores.csv rows.
var IgnoreCodec = Codec[string, database.Ignore]{
	Name:   "ignores",
	Header: []string{"face_id", "reason", "note", "updated_at_utc"},
	Decode: decodeIgnore,
	Encode: func(i database.Ignore) []string {
		return []string{i.FaceID, i.Reason, i.Note, formatTime(i.UpdatedAt)}
	},
	Key: func(i database.Ignore) string { return i.FaceID },
}

// OpenDecisionStores opens the three decision logs inside dir.
func OpenDecisionStores(dir string, logger *zap.Logger) (database.DecisionStores, error) {
	tags, err := Open(filepath.Join(dir, TagsFile), TagCodec, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	votes, err := Open(filepath.Join(dir, VotesFile), VoteCodec, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	ignores, err := Open(filepath.Join(dir, IgnoresFile), IgnoreCodec, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	return database.DecisionStores{Tags: tags, Votes: votes, Ignores: ignores}, nil
}

func decodeTag(row map[string]string) (database.Tag, error) {
	faceID := strings.TrimSpace(row["face_id"])
	if faceID == "" {
		return database.Tag{}, errors.New("missing face_id")
	}
	label := strings.TrimSpace(row["label"])
	if label == "" {
		return database.Tag{}, errors.New("missing label")
	}

	prefix, index, err := splitFaceID(faceID)
	if err != nil {
		return database.Tag{}, err
	}
	if p := strings.TrimSpace(row["bucket_prefix"]); p != "" {
		prefix = p
	}
	if s := strings.TrimSpace(row["face_index"]); s != "" {
		if index, err = strconv.Atoi(s); err != nil {
			return database.Tag{}, fmt.Errorf("invalid face_index %q", s)
		}
	}

	return database.Tag{
		FaceID:       faceID,
		BucketPrefix: prefix,
		FaceIndex:    index,
		Label:        label,
		Note:         row["note"],
		UpdatedAt:    parseTime(row["updated_at_utc"]),
	}, nil
}

func decodeVote(row map[string]string) (database.Vote, error) {
	faceID := strings.TrimSpace(row["face_id"])
	label := strings.TrimSpace(row["label"])
	if faceID == "" || label == "" {
		return database.Vote{}, errors.New("missing face_id or label")
	}
	verdict := database.Verdict(strings.ToLower(strings.TrimSpace(row["verdict"])))
	if verdict != database.VerdictReject && verdict != database.VerdictAccept {
		return database.Vote{}, fmt.Errorf("unknown verdict %q", row["verdict"])
	}
	return database.Vote{
		FaceID:    faceID,
		Label:     label,
		Verdict:   verdict,
		Note:      row["note"],
		UpdatedAt: parseTime(row["updated_at_utc"]),
	}, nil
}

func decodeIgnore(row map[string]string) (database.Ignore, error) {
	faceID := strings.TrimSpace(row["face_id"])
	if faceID == "" {
		return database.Ignore{}, errors.New("missing face_id")
	}
	reason := strings.TrimSpace(row["reason"])
	if reason == "" {
		reason = database.IgnoreReasonBackground
	}
	return database.Ignore{
		FaceID:    faceID,
		Reason:    reason,
		Note:      row["note"],
		UpdatedAt: parseTime(row["updated_at_utc"]),
	}, nil
}

// splitFaceID splits "<bucket_prefix>:<face_index>". Manual box IDs carry no index.
func splitFaceID(faceID string) (string, int, error) {
	if database.IsManualID(faceID) {
		return "", 0, nil
	}
	i := strings.LastIndex(faceID, ":")
	if i <= 0 {
		return faceID, 0, nil
	}
	index, err := strconv.Atoi(faceID[i+1:])
	if err != nil {
		return faceID, 0, nil
	}
	return faceID[:i], index, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 timestamps with or without a zone. Unparseable
// values yield the zero time; a bad timestamp does not invalidate a decision.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
