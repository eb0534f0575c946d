package router

import (
	"testing"
	"time"

	"painel/internal/auth"
)

func TestResolve(t *testing.T) {
	now := time.Now()
	authed := &auth.Session{ID: "s", UserID: "admin", Authenticated: true, ExpiresAt: now.Add(time.Hour)}
	expired := &auth.Session{ID: "s", UserID: "admin", Authenticated: true, ExpiresAt: now.Add(-time.Hour)}

	tests := []struct {
		name string
		path string
		sess *auth.Session
		want Resolution
	}{
		{"landing anonymous", "/", nil, Resolution{View: Landing}},
		{"landing authenticated", "/", authed, Resolution{View: Landing}},
		{"login anonymous", "/login", nil, Resolution{View: Login}},
		{"login authenticated", "/login", authed, Resolution{View: Login}},
		{"dashboard authenticated", "/dashboard", authed, Resolution{View: Dashboard}},
		{"dashboard trailing slash", "/dashboard/", authed, Resolution{View: Dashboard}},
		{"dashboard anonymous", "/dashboard", nil, Resolution{View: Login, RedirectTo: "/login"}},
		{"dashboard expired", "/dashboard", expired, Resolution{View: Login, RedirectTo: "/login"}},
		{"dashboard unauthenticated", "/dashboard", &auth.Session{ID: "s"}, Resolution{View: Login, RedirectTo: "/login"}},
		{"unknown path", "/reports/2024", authed, Resolution{View: Landing}},
		{"empty path", "", nil, Resolution{View: Landing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveAt(tt.path, tt.sess, now)
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveNeverGrantsDashboardWithoutSession(t *testing.T) {
	res := Resolve("/dashboard", nil)
	if res.View == Dashboard || !res.IsRedirect() {
		t.Fatalf("unauthenticated dashboard resolved to %+v", res)
	}
}
