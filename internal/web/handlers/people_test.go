package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/queue"
)

func newPeopleHandler(t *testing.T) *PeopleHandler {
	t.Helper()
	s, _ := testSession(t)
	return NewPeopleHandler(config.Default(), s, zap.NewNop())
}

func TestPeopleHandler_List(t *testing.T) {
	h := newPeopleHandler(t)

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/people", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var people []queue.Person
	parseJSONResponse(t, recorder, &people)
	if len(people) != 1 {
		t.Fatalf("expected 1 person, got %+v", people)
	}
	if people[0].Label != "Alice" || people[0].FaceCount != 1 || people[0].PendingCount != 2 {
		t.Errorf("unexpected person: %+v", people[0])
	}
}

func TestPeopleHandler_Update(t *testing.T) {
	h := newPeopleHandler(t)
	pinned := true
	group := "family"

	req := jsonRequest(t, http.MethodPut, "/api/v1/people/alice", queue.PersonUpdate{Pinned: &pinned, Group: &group})
	req = requestWithChiParams(req, map[string]string{"label": "alice"})
	recorder := httptest.NewRecorder()
	h.Update(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var person queue.Person
	parseJSONResponse(t, recorder, &person)
	if !person.Pinned || person.Group != "family" || person.Label != "Alice" {
		t.Errorf("unexpected person after update: %+v", person)
	}

	req = jsonRequest(t, http.MethodPut, "/api/v1/people/Bob", queue.PersonUpdate{Pinned: &pinned})
	req = requestWithChiParams(req, map[string]string{"label": "Bob"})
	recorder = httptest.NewRecorder()
	h.Update(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPeopleHandler_Merge(t *testing.T) {
	h := newPeopleHandler(t)

	recorder := httptest.NewRecorder()
	h.Merge(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/merge", MergeRequest{Source: "Alice", Target: "Alicia"}))
	assertStatusCode(t, recorder, http.StatusOK)

	var people []queue.Person
	parseJSONResponse(t, recorder, &people)
	if len(people) != 1 || people[0].Label != "Alicia" || people[0].FaceCount != 1 {
		t.Errorf("expected the label to be renamed, got %+v", people)
	}

	tests := []struct {
		name   string
		req    MergeRequest
		status int
	}{
		{"self merge", MergeRequest{Source: "Alicia", Target: " alicia "}, http.StatusBadRequest},
		{"empty target", MergeRequest{Source: "Alicia"}, http.StatusBadRequest},
		{"unknown source", MergeRequest{Source: "Alice", Target: "Alicia"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Merge(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/merge", tc.req))
			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestPeopleHandler_SeedAndRemove(t *testing.T) {
	h := newPeopleHandler(t)

	recorder := httptest.NewRecorder()
	h.Seed(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/seed", DecisionRequest{FaceID: "p3:0", Label: "Bob"}))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	h.Remove(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/remove", DecisionRequest{FaceID: "p3:0", Label: "bob"}))
	assertStatusCode(t, recorder, http.StatusOK)

	// The face no longer carries the label.
	recorder = httptest.NewRecorder()
	h.Remove(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/remove", DecisionRequest{FaceID: "p3:0", Label: "bob"}))
	assertStatusCode(t, recorder, http.StatusNotFound)

	recorder = httptest.NewRecorder()
	h.Seed(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels/seed", DecisionRequest{FaceID: "p3:0"}))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "face_id and label are required")
}

func TestPeopleHandler_Faces(t *testing.T) {
	s, _ := testSession(t)
	h := NewPeopleHandler(config.Default(), s, zap.NewNop())
	if err := s.Accept("p1:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	recorder := httptest.NewRecorder()
	h.Faces(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/labels/faces?label=alice", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var detail queue.LabelDetail
	parseJSONResponse(t, recorder, &detail)
	if detail.Label != "Alice" || detail.Count != 2 || len(detail.Faces) != 2 {
		t.Fatalf("unexpected label detail: %+v", detail)
	}
	if detail.Faces[0].FaceID != "p1:0" {
		t.Errorf("expected the newest face p1:0 first, got %s", detail.Faces[0].FaceID)
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing label", "/api/v1/labels/faces", http.StatusBadRequest},
		{"unknown label", "/api/v1/labels/faces?label=Bob", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Faces(recorder, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestPeopleHandler_Photos(t *testing.T) {
	s, _ := testSession(t)
	h := NewPeopleHandler(config.Default(), s, zap.NewNop())
	if err := s.Accept("p2:0", "Alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	recorder := httptest.NewRecorder()
	h.Photos(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/labels/photos?label=Alice&limit=1", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var page queue.PhotoPage
	parseJSONResponse(t, recorder, &page)
	if page.Total != 2 || len(page.Photos) != 1 || !page.HasMore {
		t.Fatalf("expected the first of 2 photos, got %+v", page)
	}
	if page.Photos[0].BucketID != "e" {
		t.Errorf("expected e first by bucket order, got %s", page.Photos[0].BucketID)
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing label", "/api/v1/labels/photos", http.StatusBadRequest},
		{"bad cursor", "/api/v1/labels/photos?label=Alice&cursor=x", http.StatusBadRequest},
		{"unknown label", "/api/v1/labels/photos?label=Bob", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Photos(recorder, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assertStatusCode(t, recorder, tc.status)
		})
	}
}
