package jwt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldnav/internal/domain/user"
)

type staticAccess map[string]user.Access

func (s staticAccess) Access(_ context.Context, id string) (user.Access, error) {
	a, ok := s[id]
	if !ok {
		return user.Access{}, errors.New("unknown user")
	}
	return a, nil
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := newManager(t)
	tok, _, err := m.IssueUserToken("tech-1", user.RoleTechnician)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	claims, err := m.ParseAndValidate(tok)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "tech-1" || claims.Role != user.RoleTechnician || claims.Issuer != issuer {
		t.Fatalf("claims = %+v", claims)
	}

	other, _ := NewManager("other-secret", time.Hour)
	if _, err := other.ParseAndValidate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret accepted: %v", err)
	}
	if _, err := NewManager("  ", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("empty secret: %v", err)
	}
}

func TestCanActFor(t *testing.T) {
	tech := NewUserClaims("tech-1", user.RoleTechnician, time.Hour)
	if !tech.CanActFor("tech-1") || tech.CanActFor("tech-2") {
		t.Fatal("technicians act only for themselves")
	}
	if !NewUserClaims("d-1", user.RoleDispatcher, time.Hour).CanActFor("tech-2") {
		t.Fatal("dispatchers act for any technician")
	}
}

func TestMiddleware(t *testing.T) {
	m := newManager(t)
	access := staticAccess{
		"tech-1": {Role: user.RoleTechnician, Status: user.StatusActive},
		"tech-2": {Role: user.RoleTechnician, Status: user.StatusDeactivated},
	}
	a := NewAuthorizer(m, access)
	h := a.Middleware(user.RoleTechnician)(func(w http.ResponseWriter, r *http.Request) {
		if RequireClaims(r) == nil {
			t.Error("claims missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	active, _, _ := m.IssueUserToken("tech-1", user.RoleTechnician)
	revoked, _, _ := m.IssueUserToken("tech-2", user.RoleTechnician)
	dispatcher, _, _ := m.IssueUserToken("tech-1", user.RoleDispatcher)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"active technician", "Bearer " + active, http.StatusNoContent},
		{"deactivated account", "Bearer " + revoked, http.StatusForbidden},
		// role comes from the access checker, not the token
		{"stale role in token", "Bearer " + dispatcher, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h(w, r)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestValidateWSAuth(t *testing.T) {
	m := newManager(t)
	a := NewAuthorizer(m, nil)
	tok, _, _ := m.IssueUserToken("disp-1", user.RoleDispatcher)

	res, err := a.ValidateWSAuth(context.Background(), []byte(`{"type":"auth","token":"Bearer `+tok+`"}`), user.RoleDispatcher, user.RoleAdmin)
	if err != nil || res.Claims.Subject != "disp-1" {
		t.Fatalf("ValidateWSAuth = %+v, %v", res, err)
	}
	if _, err := a.ValidateWSAuth(context.Background(), []byte(`{"type":"auth","token":"`+tok+`"}`)); !errors.Is(err, ErrBadTokenWrap) {
		t.Fatalf("missing Bearer: %v", err)
	}
	if _, err := a.ValidateWSAuth(context.Background(), []byte(`{"type":"auth","token":"Bearer `+tok+`"}`), user.RoleTechnician); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("wrong role: %v", err)
	}
	if _, err := a.ValidateWSAuth(context.Background(), []byte(`not json`)); !errors.Is(err, ErrBadAuthMsg) {
		t.Fatalf("garbage frame: %v", err)
	}
}
