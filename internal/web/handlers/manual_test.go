package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

func TestManualBoxesHandler_Lifecycle(t *testing.T) {
	s, _ := testSession(t)
	h := NewManualBoxesHandler(config.Default(), s, zap.NewNop())

	req := jsonRequest(t, http.MethodPost, "/api/v1/photos/p3/manual-boxes", CreateBoxRequest{
		BBox: facematch.BBox{Left: 0, Top: 0.1, Width: 0.15, Height: 0.15},
	})
	recorder := httptest.NewRecorder()
	h.Create(recorder, requestWithChiParams(req, map[string]string{"bucketID": "p3"}))
	assertStatusCode(t, recorder, http.StatusCreated)

	var created queue.CreatedBox
	parseJSONResponse(t, recorder, &created)
	if created.Box.BoxID == "" || created.Box.Side != "front" {
		t.Fatalf("unexpected box: %+v", created.Box)
	}
	if len(created.Overlaps) != 1 || created.Overlaps[0] != "p3:0" {
		t.Errorf("expected the box to overlap p3:0, got %v", created.Overlaps)
	}
	boxID := created.Box.BoxID

	req = jsonRequest(t, http.MethodPut, "/api/v1/manual-boxes/"+boxID+"/label", LabelBoxRequest{Label: "alice"})
	recorder = httptest.NewRecorder()
	h.Label(recorder, requestWithChiParams(req, map[string]string{"boxID": boxID}))
	assertStatusCode(t, recorder, http.StatusOK)
	var box facematch.ManualCandidate
	parseJSONResponse(t, recorder, &box)
	if box.Label != "Alice" {
		t.Errorf("expected the existing label's display form, got %q", box.Label)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/manual-boxes/"+boxID, nil)
	recorder = httptest.NewRecorder()
	h.Delete(recorder, requestWithChiParams(req, map[string]string{"boxID": boxID}))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	h.Delete(recorder, requestWithChiParams(req, map[string]string{"boxID": boxID}))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestManualBoxesHandler_CreateValidation(t *testing.T) {
	s, _ := testSession(t)
	h := NewManualBoxesHandler(config.Default(), s, zap.NewNop())

	tests := []struct {
		name   string
		bucket string
		body   string
	}{
		{"zero size", "p3", `{"bbox":{"left":0.1,"top":0.1,"width":0,"height":0.2}}`},
		{"bad side", "p3", `{"side":"left","bbox":{"left":0.1,"top":0.1,"width":0.2,"height":0.2}}`},
		{"blank bucket", " ", `{"bbox":{"left":0.1,"top":0.1,"width":0.2,"height":0.2}}`},
		{"malformed", "p3", `{"bbox":`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/photos/x/manual-boxes", strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()
			h.Create(recorder, requestWithChiParams(req, map[string]string{"bucketID": tc.bucket}))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
}
