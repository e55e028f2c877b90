// Package auth delegates admin sign-in to the hosted backend. Nothing here
// checks credentials itself: the backend validates the access token and
// answers the role question.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"auction-importer/utils"
)

// AdminRole is the role the back office requires.
const AdminRole = "admin"

var (
	ErrUnauthenticated = errors.New("auth: missing or invalid access token")
	ErrForbidden       = errors.New("auth: user lacks the required role")
)

// User is the subset of the backend's user record the importer needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator resolves access tokens and roles.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (User, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// HostedAuth talks to the backend's auth and RPC endpoints.
type HostedAuth struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *utils.Logger
}

func NewHostedAuth(baseURL, apiKey string, client *http.Client, logger *utils.Logger) *HostedAuth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HostedAuth{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    client,
		logger:  logger,
	}
}

// Authenticate returns the user the token belongs to.
func (a *HostedAuth) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	var u User
	status, err := a.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &u)
	if err != nil {
		return User{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || u.ID == "" {
		return User{}, ErrUnauthenticated
	}
	if status != http.StatusOK {
		a.logger.Warn("[auth] user lookup returned HTTP %d", status)
		return User{}, fmt.Errorf("auth: user lookup: HTTP %d", status)
	}
	return u, nil
}

// HasRole calls the has_role RPC with the service key.
func (a *HostedAuth) HasRole(ctx context.Context, userID, role string) (bool, error) {
	body := map[string]string{"user_id": userID, "role": role}
	var ok bool
	status, err := a.do(ctx, http.MethodPost, "/rest/v1/rpc/has_role", a.apiKey, body, &ok)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		a.logger.Warn("[auth] has_role(%s, %s) returned HTTP %d", userID, role, status)
		return false, fmt.Errorf("auth: has_role: HTTP %d", status)
	}
	return ok, nil
}

func (a *HostedAuth) do(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("auth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("auth: decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// RequireRole authenticates token and checks role in one step.
func RequireRole(ctx context.Context, a Authenticator, token, role string) (User, error) {
	u, err := a.Authenticate(ctx, token)
	if err != nil {
		return User{}, err
	}
	ok, err := a.HasRole(ctx, u.ID, role)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrForbidden
	}
	return u, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type userKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}
