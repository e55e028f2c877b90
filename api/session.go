package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"auction-importer/auth"
	"auction-importer/session"
)

const sessionCookie = "sid"

// sessionID returns the visitor's session id, issuing a cookie if needed.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(session.DefaultTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	flags, err := s.deps.Sessions.Init(r.Context(), s.sessionID(w, r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) setConsent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accepted *bool `json:"accepted"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil || body.Accepted == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", `body must be {"accepted": true|false}`)
		return
	}

	sid := s.sessionID(w, r)
	if err := s.deps.Sessions.SetConsent(r.Context(), sid, *body.Accepted); err != nil {
		writeErr(w, err)
		return
	}
	if !*body.Accepted {
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, session.Flags{})
		return
	}
	flags, err := s.deps.Sessions.Init(r.Context(), sid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if err := s.deps.Sessions.Reset(r.Context(), c.Value); err != nil {
			writeErr(w, err)
			return
		}
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin lets a request through when it carries an admin bearer
// token, or a session that an earlier admin request signed in.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var sid string
		if c, err := r.Cookie(sessionCookie); err == nil {
			sid = c.Value
		}

		if token := auth.BearerToken(r); token != "" {
			u, err := auth.RequireRole(ctx, s.deps.Auth, token, auth.AdminRole)
			if err != nil {
				s.logger.Warn("[api] admin check failed for %s %s: %v", r.Method, r.URL.Path, err)
				writeErr(w, err)
				return
			}
			if sid != "" {
				if err := s.deps.Sessions.SetAdmin(ctx, sid, u.ID); err != nil {
					s.logger.Warn("[api] could not mark session admin: %v", err)
				}
			}
			next(w, r.WithContext(auth.WithUser(ctx, u)))
			return
		}

		if sid != "" {
			flags, err := s.deps.Sessions.Init(ctx, sid)
			if err != nil {
				writeErr(w, err)
				return
			}
			if flags.IsAdmin() {
				next(w, r.WithContext(auth.WithUser(ctx, auth.User{ID: flags.AdminUserID})))
				return
			}
		}
		writeErr(w, auth.ErrUnauthenticated)
	}
}
