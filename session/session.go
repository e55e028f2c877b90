// Package session holds the per-visitor flags of the back office (cookie
// consent and admin sign-in) and the lock that serialises imports.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * 24 * time.Hour

// ErrLocked is returned by Lock.Acquire when the key is already held.
var ErrLocked = errors.New("lock is held")

// Flags are the persisted per-session settings.
type Flags struct {
	CookieConsent bool      `json:"cookie_consent"`
	AdminUserID   string    `json:"admin_user_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// IsAdmin reports whether the session has passed the admin check.
func (f Flags) IsAdmin() bool { return f.AdminUserID != "" }

// Store keeps session flags. Init must be called when a visitor arrives;
// Reset tears everything down on logout or declined consent.
type Store interface {
	Init(ctx context.Context, sid string) (Flags, error)
	SetConsent(ctx context.Context, sid string, accepted bool) error
	SetAdmin(ctx context.Context, sid, userID string) error
	Reset(ctx context.Context, sid string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memEntry
	ttl      time.Duration
	now      func() time.Time
}

type memEntry struct {
	flags   Flags
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{sessions: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Init(ctx context.Context, sid string) (Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.sessions[sid]
	if !ok || now.After(e.expires) {
		e = memEntry{}
	}
	e.expires = now.Add(m.ttl)
	m.sessions[sid] = e
	return e.flags, nil
}

// SetConsent records the visitor's choice. Declining clears the session.
func (m *MemoryStore) SetConsent(ctx context.Context, sid string, accepted bool) error {
	if !accepted {
		return m.Reset(ctx, sid)
	}
	m.update(sid, func(f *Flags) { f.CookieConsent = true })
	return nil
}

func (m *MemoryStore) SetAdmin(ctx context.Context, sid, userID string) error {
	m.update(sid, func(f *Flags) { f.AdminUserID = userID })
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func (m *MemoryStore) update(sid string, fn func(*Flags)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e := m.sessions[sid]
	if now.After(e.expires) {
		e = memEntry{}
	}
	fn(&e.flags)
	e.flags.UpdatedAt = now
	e.expires = now.Add(m.ttl)
	m.sessions[sid] = e
}

// Lock guards a named critical section across processes.
type Lock interface {
	// Acquire returns ErrLocked when key is already held. release is safe
	// to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// LocalLock is an in-process Lock.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrLocked
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A holder whose ttl ran out must not free the next holder's lock.
			if l.held[key] == exp {
				delete(l.held, key)
			}
		})
	}, nil
}
