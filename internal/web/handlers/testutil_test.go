package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/mock"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// testFace creates a detection with face ID "<bucket>:<idx>".
func testFace(bucket string, idx int, conf float64, emb ...float32) facematch.Detection {
	return facematch.Detection{
		FaceID:       fmt.Sprintf("%s:%d", bucket, idx),
		BucketID:     bucket,
		BucketPrefix: bucket,
		Variant:      "raw_front",
		FaceIndex:    idx,
		Embedding:    emb,
		BBox:         facematch.BBox{Left: 0.2 * float64(idx), Top: 0.1, Width: 0.15, Height: 0.15},
		Confidence:   conf,
	}
}

// testSession creates a session over mock stores. Face e:0 is labeled Alice;
// p1:0 and p2:0 look like her, p3:0 does not.
func testSession(t *testing.T) (*queue.Session, *mock.Stores) {
	t.Helper()
	stores := mock.NewStores()
	if err := stores.Tags.Set("e:0", database.Tag{FaceID: "e:0", BucketPrefix: "e", Label: "Alice", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}
	cat := catalog.New([]facematch.Detection{
		testFace("e", 0, 0.99, 1, 0),
		testFace("p1", 0, 0.95, 1, 0),
		testFace("p2", 0, 0.90, 0.99, 0.01),
		testFace("p3", 0, 0.80, 0, 1),
		testFace("p3", 1, 0.70, 0.1, 1),
	})
	m := facematch.NewMatcher(cat.Detections(), facematch.Options{}, zap.NewNop())
	s, err := queue.New(queue.Deps{
		Catalog:   cat,
		Matcher:   m,
		Decisions: stores.Decisions(),
		Side:      stores.Side(),
	}, queue.Options{MinSimilarity: 0.5}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s, stores
}

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
