package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

type stubFleet struct {
	overviewErr error

	mu      sync.Mutex
	gotPage string
	gotSize string
}

func (s *stubFleet) GetOverview(context.Context) (ports.FleetOverviewResult, error) {
	var res ports.FleetOverviewResult
	res.Open.Total = 2
	return res, s.overviewErr
}

func (s *stubFleet) GetOpenSessions(_ context.Context, page, size string) (ports.FleetSessionsResult, error) {
	s.mu.Lock()
	s.gotPage, s.gotSize = page, size
	s.mu.Unlock()
	return ports.FleetSessionsResult{Page: 1, PageSize: 10, TotalCount: 1, Sessions: []ports.FleetSessionRow{
		{SessionID: "s-1", TechnicianID: "tech-1", State: "NAVIGATING"},
	}}, nil
}

func (s *stubFleet) GetTechnicianSession(_ context.Context, id string) (ports.FleetSessionRow, error) {
	if id != "tech-1" {
		return ports.FleetSessionRow{}, navigation.ErrNoSession
	}
	return ports.FleetSessionRow{SessionID: "s-1", TechnicianID: id}, nil
}

func newServer(t *testing.T, svc ports.FleetService) (*httptest.Server, *jwt.Manager) {
	t.Helper()
	mgr, err := jwt.NewManager("fleet-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := NewFleetHTTPHandler(svc, logger.NewWithWriter("navigation-service", io.Discard), jwt.NewAuthorizer(mgr, nil))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func get(t *testing.T, srv *httptest.Server, mgr *jwt.Manager, path string, role user.Role) (int, map[string]any) {
	t.Helper()
	tok, _, err := mgr.IssueUserToken("user-1", role)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestFleetRoutes(t *testing.T) {
	svc := &stubFleet{}
	srv, mgr := newServer(t, svc)

	code, body := get(t, srv, mgr, "/dispatch/overview", user.RoleDispatcher)
	if code != http.StatusOK || body["open_sessions"].(map[string]any)["total"] != float64(2) {
		t.Fatalf("overview: %d %v", code, body)
	}

	code, body = get(t, srv, mgr, "/dispatch/sessions/active?page=3&page_size=25", user.RoleAdmin)
	if code != http.StatusOK || body["total_count"] != float64(1) {
		t.Fatalf("sessions: %d %v", code, body)
	}
	svc.mu.Lock()
	page, size := svc.gotPage, svc.gotSize
	svc.mu.Unlock()
	if page != "3" || size != "25" {
		t.Fatalf("paging passed as %q/%q", page, size)
	}

	code, body = get(t, srv, mgr, "/dispatch/technicians/tech-1/session", user.RoleDispatcher)
	if code != http.StatusOK || body["session_id"] != "s-1" {
		t.Fatalf("technician session: %d %v", code, body)
	}
	code, _ = get(t, srv, mgr, "/dispatch/technicians/tech-2/session", user.RoleDispatcher)
	if code != http.StatusNotFound {
		t.Fatalf("missing session: %d", code)
	}
}

func TestFleetRoutesRejectTechnicians(t *testing.T) {
	srv, mgr := newServer(t, &stubFleet{})
	if code, _ := get(t, srv, mgr, "/dispatch/overview", user.RoleTechnician); code != http.StatusForbidden {
		t.Fatalf("technician got %d", code)
	}
}

func TestFleetDatabaseError(t *testing.T) {
	srv, mgr := newServer(t, &stubFleet{overviewErr: &pgconn.PgError{Code: "57P01"}})
	code, body := get(t, srv, mgr, "/dispatch/overview", user.RoleAdmin)
	if code != http.StatusInternalServerError || body["error"] != "database error" {
		t.Fatalf("db error: %d %v", code, body)
	}
}
