package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"presenced/internal/models"
)

// fakeService is a scriptable PresenceService for handler tests.
type fakeService struct {
	online       bool
	presence     *models.Presence
	presences    []models.Presence
	lastStatus   string
	lastFound    bool
	lastActivity time.Duration
	canProbe     bool

	probes []models.Presence
}

func (s *fakeService) Available(username string) bool { return s.online }

func (s *fakeService) CurrentPresence(username string) (models.Presence, bool) {
	if s.presence == nil {
		return models.Presence{}, false
	}
	return *s.presence, true
}

func (s *fakeService) Presences(username string) []models.Presence { return s.presences }

func (s *fakeService) LastPresenceStatus(ctx context.Context, username string) (string, bool) {
	return s.lastStatus, s.lastStatus != ""
}

func (s *fakeService) LastActivity(ctx context.Context, username string) (time.Duration, bool) {
	return s.lastActivity, s.lastFound
}

func (s *fakeService) HandleProbe(ctx context.Context, packet models.Presence) {
	s.probes = append(s.probes, packet)
}

func (s *fakeService) CanProbePresence(prober models.Address, probee string) bool {
	return s.canProbe
}

func newTestRouter(service *fakeService) *mux.Router {
	h := NewPresenceHandler(service)
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/presence/probe", h.Probe).Methods("POST")
	r.HandleFunc("/api/v1/presence/{username}", h.GetPresence).Methods("GET")
	r.HandleFunc("/api/v1/presence/{username}/sessions", h.GetSessions).Methods("GET")
	r.HandleFunc("/api/v1/presence/{username}/last", h.GetLastPresence).Methods("GET")
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestGetPresence_Online(t *testing.T) {
	service := &fakeService{
		online:   true,
		presence: &models.Presence{Type: models.TypeAvailable, Show: models.ShowChat},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest("GET", "/api/v1/presence/alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("Success = false")
	}

	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var body CurrentPresenceData
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if body.Username != "alice" || !body.Online {
		t.Errorf("body = %+v", body)
	}
	if body.Presence == nil || body.Presence.Show != models.ShowChat {
		t.Errorf("presence = %+v", body.Presence)
	}
}

func TestGetPresence_OfflineStillOK(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest("GET", "/api/v1/presence/alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Not knowing a user is an answer, not an error.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var body CurrentPresenceData
	json.Unmarshal(data, &body)
	if body.Online || body.Presence != nil {
		t.Errorf("offline user reported online: %+v", body)
	}
}

func TestGetSessions(t *testing.T) {
	service := &fakeService{
		presences: []models.Presence{
			{Type: models.TypeAvailable, Show: models.ShowNone},
			{Type: models.TypeAvailable, Show: models.ShowDND},
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest("GET", "/api/v1/presence/alice/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var body []models.Presence
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(body) != 2 {
		t.Errorf("got %d sessions, want 2", len(body))
	}
}

func TestGetLastPresence(t *testing.T) {
	service := &fakeService{
		lastFound:    true,
		lastStatus:   "gone fishing",
		lastActivity: 90 * time.Second,
	}
	router := newTestRouter(service)

	req := httptest.NewRequest("GET", "/api/v1/presence/alice/last", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var body LastPresenceData
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if body.Status != "gone fishing" || body.LastActiveSeconds != 90 {
		t.Errorf("body = %+v", body)
	}
}

func TestGetLastPresence_NeverRecorded(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest("GET", "/api/v1/presence/alice/last", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Success {
		t.Errorf("Success = true for missing record")
	}
}

func TestProbe(t *testing.T) {
	service := &fakeService{canProbe: true}
	router := newTestRouter(service)

	body, _ := json.Marshal(ProbeRequest{
		Prober: "alice@example.org/desk",
		Probee: "bob@example.org",
	})
	req := httptest.NewRequest("POST", "/api/v1/presence/probe", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(service.probes) != 1 {
		t.Fatalf("HandleProbe called %d times, want 1", len(service.probes))
	}
	probe := service.probes[0]
	if probe.Type != models.TypeProbe || probe.From.Node != "alice" || probe.To.Node != "bob" {
		t.Errorf("probe = %+v", probe)
	}

	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var pd ProbeData
	if err := json.Unmarshal(data, &pd); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !pd.Accepted || !pd.Allowed {
		t.Errorf("probe data = %+v", pd)
	}
}

func TestProbe_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "{not json"},
		{"missing prober", `{"probee":"bob@example.org"}`},
		{"invalid probee", `{"prober":"alice@example.org","probee":"@"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeService{}
			router := newTestRouter(service)

			req := httptest.NewRequest("POST", "/api/v1/presence/probe", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(service.probes) != 0 {
				t.Errorf("HandleProbe called for a bad request")
			}
		})
	}
}
