// Package router maps a requested path and the caller's session to one of the
// dashboard's views.
package router

import (
	"strings"
	"time"

	"painel/internal/auth"
)

// View is one of the page states the router can select.
type View int

const (
	Landing View = iota
	Login
	Dashboard
)

func (v View) String() string {
	switch v {
	case Login:
		return "login"
	case Dashboard:
		return "dashboard"
	default:
		return "landing"
	}
}

const (
	PathLanding   = "/"
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
)

// Resolution is the router's answer: the view to render, or a redirect.
type Resolution struct {
	View       View
	RedirectTo string
}

// IsRedirect reports whether the caller must navigate instead of rendering.
func (r Resolution) IsRedirect() bool {
	return r.RedirectTo != ""
}

// Resolve selects a view from the path and session. It has no side effects.
func Resolve(path string, sess *auth.Session) Resolution {
	return resolveAt(path, sess, time.Now())
}

func resolveAt(path string, sess *auth.Session, now time.Time) Resolution {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	switch path {
	case PathLogin:
		return Resolution{View: Login}
	case PathDashboard:
		if sess.Valid(now) {
			return Resolution{View: Dashboard}
		}
		return Resolution{View: Login, RedirectTo: PathLogin}
	default:
		return Resolution{View: Landing}
	}
}
