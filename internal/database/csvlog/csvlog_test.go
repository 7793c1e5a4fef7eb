package csvlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/face-queue/internal/database"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	tags, err := Open(filepath.Join(t.TempDir(), TagsFile), TagCodec, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tags.All()) != 0 {
		t.Errorf("expected empty store")
	}
}

func TestLog_SetPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), TagsFile)
	tags, err := Open(path, TagCodec, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := tags.Set("abc:0", database.Tag{FaceID: "abc:0", BucketPrefix: "abc", Label: "Alice", UpdatedAt: ts}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tags.Set("abc:1", database.Tag{FaceID: "abc:1", BucketPrefix: "abc", FaceIndex: 1, Label: "Bob, Jr."}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tags.Set("abc:0", database.Tag{FaceID: "abc:0", BucketPrefix: "abc", Label: "Alicia", UpdatedAt: ts}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "face_id,bucket_prefix,face_index,label,note,updated_at_utc" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "abc:0,abc,0,Alicia,,2025-01-02T03:04:05Z") {
		t.Errorf("overwrite should keep the row position, got %q", lines[1])
	}

	reopened, err := Open(path, TagCodec, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tag, ok := reopened.Get("abc:1")
	if !ok || tag.Label != "Bob, Jr." || tag.FaceIndex != 1 {
		t.Errorf("unexpected tag after reload: %+v", tag)
	}
	tag, _ = reopened.Get("abc:0")
	if !tag.UpdatedAt.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, tag.UpdatedAt)
	}
}

func TestLog_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), IgnoresFile)
	ignores, err := Open(path, IgnoreCodec, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = ignores.Set("a:0", database.Ignore{FaceID: "a:0", Reason: "crowd"})
	_ = ignores.Set("a:1", database.Ignore{FaceID: "a:1", Reason: "crowd"})

	if err := ignores.Delete("a:0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ignores.Delete("missing"); err != nil {
		t.Fatalf("deleting an absent key should be a no-op: %v", err)
	}
	if err := ignores.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	all := ignores.All()
	if len(all) != 1 || all["a:1"].Reason != "crowd" {
		t.Errorf("unexpected contents %+v", all)
	}
}

func TestLog_SkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), VotesFile)
	writeFile(t, path, strings.Join([]string{
		"face_id,label,verdict,note,updated_at_utc",
		"abc:0,Alice,reject,,2025-01-01T10:00:00.123456+00:00",
		",Alice,reject,,",
		"abc:1,Alice,maybe,,",
		"abc:2,Bob,accept,legacy,",
		"abc:3,Bob",
		"",
	}, "\n"))

	core, logs := observer.New(zap.WarnLevel)
	votes, err := Open(path, VoteCodec, zap.New(core))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := votes.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 valid votes, got %d: %+v", len(all), all)
	}
	v, ok := votes.Get(database.NewVoteKey("abc:0", "alice"))
	if !ok || v.Verdict != database.VerdictReject {
		t.Errorf("expected reject vote, got %+v", v)
	}
	if v.UpdatedAt.IsZero() {
		t.Error("expected python isoformat timestamp to parse")
	}
	if _, ok := votes.Get(database.NewVoteKey("abc:2", "Bob")); !ok {
		t.Error("expected legacy accept row to load")
	}

	warnings := logs.FilterMessage("store corruption: skipping row")
	if warnings.Len() != 3 {
		t.Errorf("expected 3 corruption warnings, got %d", warnings.Len())
	}
}

func TestLog_FailedWriteKeepsState(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")

	tags, err := Open(filepath.Join(sub, TagsFile), TagCodec, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A plain file where the store directory should be makes every write fail.
	writeFile(t, sub, "not a directory")

	if err := tags.Set("a:0", database.Tag{FaceID: "a:0", Label: "Alice"}); err == nil {
		t.Fatal("expected write error")
	}
	if _, ok := tags.Get("a:0"); ok {
		t.Error("failed write must not change the in-memory state")
	}
}

func TestDecodeTag_DerivesIndexFromFaceID(t *testing.T) {
	tag, err := decodeTag(map[string]string{"face_id": "deadbeef:7", "label": "Eva"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag.BucketPrefix != "deadbeef" || tag.FaceIndex != 7 {
		t.Errorf("unexpected tag %+v", tag)
	}

	if _, err := decodeTag(map[string]string{"face_id": "x:1", "label": "Eva", "face_index": "one"}); err == nil {
		t.Error("expected error for invalid face_index")
	}
}

func TestOpenDecisionStores(t *testing.T) {
	dir := t.TempDir()
	stores, err := OpenDecisionStores(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stores.Votes.Set(database.NewVoteKey("a:0", "Alice"), database.Vote{FaceID: "a:0", Label: "Alice", Verdict: database.VerdictReject}); err != nil {
		t.Fatalf("set vote: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, VotesFile)); err != nil {
		t.Errorf("expected votes file: %v", err)
	}
}
