package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"auction-importer/utils"
)

func backend(t *testing.T, admins map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch BearerToken(r) {
		case "admin-token":
			json.NewEncoder(w).Encode(User{ID: "u-admin", Email: "a@x"})
		case "user-token":
			json.NewEncoder(w).Encode(User{ID: "u-plain", Email: "p@x"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("POST /rest/v1/rpc/has_role", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(body.Role == AdminRole && admins[body.UserID])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRequireRole(t *testing.T) {
	srv := backend(t, map[string]bool{"u-admin": true})
	a := NewHostedAuth(srv.URL, "anon", nil, utils.NewLoggerTo(io.Discard, utils.LevelDebug))

	tests := []struct {
		token   string
		wantErr error
		wantID  string
	}{
		{"admin-token", nil, "u-admin"},
		{"user-token", ErrForbidden, ""},
		{"bogus", ErrUnauthenticated, ""},
		{"", ErrUnauthenticated, ""},
	}
	for _, tt := range tests {
		u, err := RequireRole(context.Background(), a, tt.token, AdminRole)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("token %q: got err %v, want %v", tt.token, err, tt.wantErr)
		}
		if u.ID != tt.wantID {
			t.Errorf("token %q: got user %q, want %q", tt.token, u.ID, tt.wantID)
		}
	}
}

func TestBackendDown(t *testing.T) {
	srv := backend(t, nil)
	srv.Close()
	a := NewHostedAuth(srv.URL, "anon", nil, utils.NewLoggerTo(io.Discard, utils.LevelDebug))

	_, err := a.Authenticate(context.Background(), "admin-token")
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Errorf("unreachable backend should be a plain error, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct{ header, want string }{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(r); got != tt.want {
			t.Errorf("BearerToken(%q): got %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestUserContext(t *testing.T) {
	ctx := WithUser(context.Background(), User{ID: "u1"})
	if u, ok := UserFrom(ctx); !ok || u.ID != "u1" {
		t.Errorf("UserFrom: got %+v %v", u, ok)
	}
	if _, ok := UserFrom(context.Background()); ok {
		t.Error("empty context should have no user")
	}
}
