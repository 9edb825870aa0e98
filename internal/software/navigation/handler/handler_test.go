package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"
)

// stubNav records calls; unused methods panic through the embedded nil interface.
type stubNav struct {
	ports.NavigationService

	mu        sync.Mutex
	started   []ports.StartNavigationInput
	positions []ports.UpdatePositionInput
	views     map[string]ports.NavigationView
	startErr  error
}

func newStubNav() *stubNav {
	return &stubNav{views: map[string]ports.NavigationView{}}
}

func (s *stubNav) StartNavigation(_ context.Context, in ports.StartNavigationInput) (ports.NavigationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return ports.NavigationView{}, s.startErr
	}
	s.started = append(s.started, in)
	v := ports.NavigationView{SessionID: "sess-1", TechnicianID: in.TechnicianID, JobID: in.JobID, State: "RESOLVING"}
	s.views[in.TechnicianID] = v
	return v, nil
}

func (s *stubNav) setStartErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

func (s *stubNav) recorded() ([]ports.StartNavigationInput, []ports.UpdatePositionInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.StartNavigationInput(nil), s.started...), append([]ports.UpdatePositionInput(nil), s.positions...)
}

func (s *stubNav) view(id string, mutate func(*ports.NavigationView)) (ports.NavigationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[id]
	if !ok {
		return ports.NavigationView{}, navigation.ErrNoSession
	}
	if mutate != nil {
		mutate(&v)
		s.views[id] = v
	}
	return v, nil
}

func (s *stubNav) GetSnapshot(_ context.Context, id string) (ports.NavigationView, error) {
	return s.view(id, nil)
}

func (s *stubNav) CancelNavigation(_ context.Context, id string) (ports.NavigationView, error) {
	return s.view(id, func(v *ports.NavigationView) { v.State = "CANCELLED" })
}

func (s *stubNav) Recalculate(_ context.Context, id string) (ports.NavigationView, error) {
	v, err := s.view(id, nil)
	if err == nil && v.State != "NAVIGATING" {
		return ports.NavigationView{}, fmt.Errorf("%w: recalculate from %s", navigation.ErrInvalidTransition, v.State)
	}
	return v, err
}

func (s *stubNav) StepNext(_ context.Context, id string) (ports.NavigationView, error) {
	return s.view(id, func(v *ports.NavigationView) { v.StepIndex++ })
}

func (s *stubNav) StepPrevious(_ context.Context, id string) (ports.NavigationView, error) {
	return s.view(id, func(v *ports.NavigationView) {
		if v.StepIndex > 0 {
			v.StepIndex--
		}
	})
}

func (s *stubNav) UpdatePosition(_ context.Context, in ports.UpdatePositionInput) error {
	if in.Latitude > 90 || in.Latitude < -90 {
		return fmt.Errorf("%w: latitude out of range", navigation.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, in)
	return nil
}

type fixture struct {
	srv *httptest.Server
	nav *stubNav
	mgr *jwt.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mgr, err := jwt.NewManager("handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	log := logger.NewWithWriter("navigation-service", io.Discard)
	nav := newStubNav()

	h := NewNavigationHTTPHandler(nav, log, mgr, jwt.NewAuthorizer(mgr, nil), Sockets{}, opts...)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, nav: nav, mgr: mgr}
}

func (f *fixture) token(t *testing.T, id string, role user.Role) string {
	t.Helper()
	tok, _, err := f.mgr.IssueUserToken(id, role)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestStartAndCommands(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "tech-1", user.RoleTechnician)

	resp, body := f.do(t, http.MethodPost, "/technicians/tech-1/navigation", tok, map[string]any{
		"job_id":              "job-9",
		"destination_address": "1 Main St",
		"origin":              map[string]float64{"latitude": 51.5, "longitude": -0.12},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d body=%v", resp.StatusCode, body)
	}
	if body["session_id"] != "sess-1" || body["state"] != "RESOLVING" {
		t.Fatalf("start body = %v", body)
	}
	started, _ := f.nav.recorded()
	if got := started[0]; got.TechnicianID != "tech-1" || got.Origin == nil || got.Origin.Latitude != 51.5 {
		t.Fatalf("start input = %+v", got)
	}

	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/navigation/steps/next", tok, nil)
	if resp.StatusCode != http.StatusOK || body["step_index"] != float64(1) {
		t.Fatalf("next: %d %v", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/navigation/steps/previous", tok, nil)
	if resp.StatusCode != http.StatusOK || body["step_index"] != float64(0) {
		t.Fatalf("previous: %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/navigation/recalculate", tok, nil)
	if resp.StatusCode != http.StatusConflict || body["code"] != "INVALID_TRANSITION" {
		t.Fatalf("recalculate while resolving: %d %v", resp.StatusCode, body)
	}

	dispatcher := f.token(t, "disp-1", user.RoleDispatcher)
	resp, body = f.do(t, http.MethodGet, "/technicians/tech-1/navigation", dispatcher, nil)
	if resp.StatusCode != http.StatusOK || body["technician_id"] != "tech-1" {
		t.Fatalf("dispatcher snapshot: %d %v", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodDelete, "/technicians/tech-1/navigation", dispatcher, nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "CANCELLED" {
		t.Fatalf("dispatcher cancel: %d %v", resp.StatusCode, body)
	}
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	tech := f.token(t, "tech-1", user.RoleTechnician)
	dispatcher := f.token(t, "disp-1", user.RoleDispatcher)
	admin := f.token(t, "admin-1", user.RoleAdmin)
	start := map[string]any{"destination_address": "1 Main St"}

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/technicians/tech-1/navigation", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/technicians/tech-1/navigation", "nope", nil, http.StatusUnauthorized},
		{"other technician", http.MethodPost, "/technicians/tech-2/navigation", tech, start, http.StatusForbidden},
		{"dispatcher cannot drive", http.MethodPost, "/technicians/tech-1/navigation", dispatcher, start, http.StatusForbidden},
		{"admin can act for anyone", http.MethodPost, "/technicians/tech-2/navigation", admin, start, http.StatusAccepted},
		{"dispatcher cannot push location", http.MethodPost, "/technicians/tech-1/location", dispatcher,
			map[string]float64{"latitude": 1, "longitude": 1}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, tc.method, tc.path, tc.token, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tc.want, body)
			}
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "tech-1", user.RoleTechnician)

	resp, body := f.do(t, http.MethodGet, "/technicians/tech-1/navigation", tok, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NO_SESSION" {
		t.Fatalf("missing session: %d %v", resp.StatusCode, body)
	}

	f.nav.setStartErr(navigation.ErrNoDestination)
	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/navigation", tok, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "NO_DESTINATION" {
		t.Fatalf("no destination: %d %v", resp.StatusCode, body)
	}

	f.nav.setStartErr(fmt.Errorf("boom: %w", io.ErrUnexpectedEOF))
	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/navigation", tok, map[string]any{"destination_address": "x"})
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "internal error" {
		t.Fatalf("internal: %d %v", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodPost, "/technicians/tech-1/navigation", tok, map[string]any{"unknown": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", resp.StatusCode)
	}
}

func TestUpdateLocation(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "tech-1", user.RoleTechnician)

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	resp, body := f.do(t, http.MethodPost, "/technicians/tech-1/location", tok, map[string]any{
		"latitude": 51.5, "longitude": -0.12, "accuracy_meters": 8, "timestamp": at,
	})
	if resp.StatusCode != http.StatusAccepted || body["accepted"] != true {
		t.Fatalf("location: %d %v", resp.StatusCode, body)
	}
	_, positions := f.nav.recorded()
	if len(positions) != 1 || !positions[0].Timestamp.Equal(at) || positions[0].AccuracyMeters != 8 {
		t.Fatalf("positions = %+v", positions)
	}

	resp, body = f.do(t, http.MethodPost, "/technicians/tech-1/location", tok, map[string]any{"latitude": 120, "longitude": 0})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "INVALID_INPUT" {
		t.Fatalf("bad latitude: %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/technicians/tech-1/location", strings.NewReader("lat=1"))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "text/plain")
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("content type: %d", r.StatusCode)
	}
}

func TestHealthAndTokens(t *testing.T) {
	ready := false
	var mu sync.Mutex
	f := newFixture(t, WithTokenIssuer(), WithReadiness(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ready
	}))

	resp, body := f.do(t, http.MethodGet, "/navigation/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "unavailable" {
		t.Fatalf("health not ready: %d %v", resp.StatusCode, body)
	}
	mu.Lock()
	ready = true
	mu.Unlock()
	resp, body = f.do(t, http.MethodGet, "/navigation/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/tokens", "", map[string]string{"user_id": "tech-7", "role": "technician"})
	if resp.StatusCode != http.StatusCreated || body["role"] != "TECHNICIAN" {
		t.Fatalf("token: %d %v", resp.StatusCode, body)
	}
	claims, err := f.mgr.ParseAndValidate(body["token"].(string))
	if err != nil || claims.Subject != "tech-7" {
		t.Fatalf("issued token: %v %+v", err, claims)
	}

	resp, _ = f.do(t, http.MethodPost, "/tokens", "", map[string]string{"user_id": "x", "role": "pilot"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role: %d", resp.StatusCode)
	}
}

func TestTokensNotMountedByDefault(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/tokens", "", map[string]string{"user_id": "x", "role": "ADMIN"})
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("tokens without issuer: %d", resp.StatusCode)
	}
}
