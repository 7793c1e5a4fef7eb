package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

func TestMap_SetWritesEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), PrioritiesFile)
	priorities, err := OpenPriorities(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := priorities.Set("bucket-1", database.PriorityHigh); err != nil {
		t.Fatalf("set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc struct {
		Version    int               `json:"version"`
		UpdatedAt  int64             `json:"updated_at"`
		Priorities map[string]string `json:"priorities"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Version != 1 || doc.UpdatedAt == 0 {
		t.Errorf("unexpected envelope: %+v", doc)
	}
	if doc.Priorities["bucket-1"] != "high" {
		t.Errorf("expected high, got %q", doc.Priorities["bucket-1"])
	}

	reopened, err := OpenPriorities(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if p, ok := reopened.Get("bucket-1"); !ok || p != database.PriorityHigh {
		t.Errorf("expected persisted priority, got %q %v", p, ok)
	}
}

func TestMap_SkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), PrioritiesFile)
	writeDoc(t, path, `{"version":1,"updated_at":0,"priorities":{"a":"high","b":"urgent","c":7}}`)

	core, logs := observer.New(zap.WarnLevel)
	priorities, err := OpenPriorities(path, zap.New(core))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	all := priorities.All()
	if len(all) != 1 || all["a"] != database.PriorityHigh {
		t.Errorf("expected only a=high, got %v", all)
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 corruption warnings, got %d", logs.Len())
	}
}

func TestMap_BrokenDocumentIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), PeopleFile)
	writeDoc(t, path, `{not json`)

	people, err := OpenPeople(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(people.All()) != 0 {
		t.Errorf("expected empty store")
	}
}

func TestMap_RefreshesExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), PhotoStatusFile)
	status, err := OpenPhotoStatus(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := status.Get("bucket-1"); ok {
		t.Fatal("expected empty store")
	}

	writeDoc(t, path, `{"version":1,"updated_at":0,"photos":{"bucket-1":{"done":true,"updated_at":"2024-05-01T10:00:00Z"}}}`)
	// Make sure the mtime differs from the zero value on coarse filesystems.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	s, ok := status.Get("bucket-1")
	if !ok || !s.Done {
		t.Errorf("expected external change to be picked up, got %+v %v", s, ok)
	}
}

// touchFuture moves the mtime forward so the change is noticed on coarse filesystems.
func touchFuture(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestMap_WritesKeepExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), PrioritiesFile)
	priorities, err := OpenPriorities(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := priorities.Set("bucket-1", database.PriorityHigh); err != nil {
		t.Fatalf("set: %v", err)
	}

	writeDoc(t, path, `{"version":1,"updated_at":0,"priorities":{"bucket-1":"high","bucket-2":"low"}}`)
	touchFuture(t, path)
	if err := priorities.Set("bucket-3", database.PriorityLow); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := OpenPriorities(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all := reopened.All()
	if len(all) != 3 || all["bucket-2"] != database.PriorityLow {
		t.Fatalf("expected the external entry to survive the write, got %v", all)
	}

	writeDoc(t, path, `{"version":1,"updated_at":0,"priorities":{"bucket-4":"high"}}`)
	touchFuture(t, path)
	if err := priorities.Delete("bucket-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all = priorities.All()
	if len(all) != 1 || all["bucket-4"] != database.PriorityHigh {
		t.Errorf("expected only the externally written bucket-4, got %v", all)
	}
}

func TestMap_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), PeopleFile)
	people, err := OpenPeople(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := people.Set("alice", database.PersonMeta{Label: "Alice", Pinned: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := people.Delete("alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := people.Delete("missing"); err != nil {
		t.Errorf("deleting a missing key must not fail: %v", err)
	}
	if _, ok := people.Get("alice"); ok {
		t.Error("expected alice to be gone")
	}
}

func TestList_KeepsOrderAndReplacesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManualBoxesFile)
	boxes, err := OpenManualBoxes(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	box := func(id, label string) database.ManualBox {
		return database.ManualBox{
			ID:       id,
			BucketID: "bucket-1",
			Side:     database.SideFront,
			BBox:     facematch.BBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.2},
			Label:    label,
		}
	}
	for _, b := range []database.ManualBox{box("manual:b", ""), box("manual:a", "")} {
		if err := boxes.Set(b.ID, b); err != nil {
			t.Fatalf("set %s: %v", b.ID, err)
		}
	}
	if err := boxes.Set("manual:b", box("manual:b", "Alice")); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened, err := OpenManualBoxes(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	items := reopened.Items()
	if len(items) != 2 || items[0].ID != "manual:b" || items[1].ID != "manual:a" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if items[0].Label != "Alice" {
		t.Errorf("expected label to be updated in place, got %q", items[0].Label)
	}
}

func TestList_SkipsInvalidBoxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManualBoxesFile)
	writeDoc(t, path, `{"version":1,"updated_at":0,"boxes":[
		{"id":"manual:ok","bucket_id":"b","side":"front","bbox":{"left":0.1,"top":0.1,"width":0.5,"height":0.5}},
		{"id":"nope","bucket_id":"b","side":"front","bbox":{"left":0.1,"top":0.1,"width":0.5,"height":0.5}},
		{"id":"manual:flat","bucket_id":"b","side":"front","bbox":{"left":0.1,"top":0.1,"width":0,"height":0.5}},
		{"id":"manual:ok","bucket_id":"b","side":"back","bbox":{"left":0.1,"top":0.1,"width":0.5,"height":0.5}}
	]}`)

	core, logs := observer.New(zap.WarnLevel)
	boxes, err := OpenManualBoxes(path, zap.New(core))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	items := boxes.Items()
	if len(items) != 1 || items[0].ID != "manual:ok" || items[0].Side != database.SideFront {
		t.Errorf("expected the first manual:ok only, got %+v", items)
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 warnings, got %d", logs.Len())
	}
}

func TestOpenSideStores(t *testing.T) {
	dir := t.TempDir()
	stores, err := OpenSideStores(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stores.People == nil || stores.Priorities == nil || stores.ManualBoxes == nil || stores.PhotoStatus == nil {
		t.Fatalf("expected every store to be opened: %+v", stores)
	}
	if err := stores.PhotoStatus.Set("b", database.PhotoStatus{Done: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, PhotoStatusFile)); err != nil {
		t.Errorf("expected %s to exist: %v", PhotoStatusFile, err)
	}
}

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
