// Package session keeps the authenticated user of the softphone.
//
// A session is persisted in a [Store] together with the provisioning server URL
// it was obtained from. A stored session is ignored when the configured server
// URL differs from the stored one.
package session

//go:generate go tool errtrace -w .

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"braces.dev/errtrace"

	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/user"
)

// Storage keys.
const (
	ServerKey = "app_server"
	UserKey   = "current_user"
)

// Session represents an authenticated user session.
type Session struct {
	User *user.User
}

// LogValue implements [slog.LogValuer].
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	return slog.GroupValue(slog.Any("user", s.User))
}

// ManagerOptions are options of the [Manager].
type ManagerOptions struct {
	// Log is the logger used by the manager.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *ManagerOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Manager holds the current session and persists changes to the store.
// It is safe for concurrent use.
type Manager struct {
	store     Store
	serverURL string
	log       *slog.Logger

	mu  sync.Mutex
	cur *Session
}

// NewManager creates a session manager bound to the configured server URL.
func NewManager(store Store, serverURL string, opts *ManagerOptions) *Manager {
	return &Manager{
		store:     store,
		serverURL: serverURL,
		log:       opts.log(),
	}
}

// Current returns the current session, loading it from the store on first access.
// It returns nil without error when the user is not authenticated.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return m.cur, nil
	}

	server, err := m.store.Get(ctx, ServerKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errtrace.Wrap(err)
	}
	if string(server) != m.serverURL {
		m.log.LogAttrs(ctx, slog.LevelDebug, "stored session belongs to another server",
			slog.String("stored_server", string(server)),
			slog.String("server", m.serverURL),
		)
		return nil, nil
	}

	data, err := m.store.Get(ctx, UserKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errtrace.Wrap(err)
	}

	u, err := user.Parse(data)
	if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "discard unreadable stored session", slog.Any("error", err))
		return nil, nil
	}

	m.cur = &Session{User: u}
	m.log.LogAttrs(ctx, slog.LevelDebug, "session loaded", slog.Any("session", m.cur))
	return m.cur, nil
}

// Set replaces the current session with a session for u and persists it.
func (m *Manager) Set(ctx context.Context, u *user.User) (*Session, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, ServerKey, []byte(m.serverURL)); err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := m.store.Set(ctx, UserKey, data); err != nil {
		return nil, errtrace.Wrap(err)
	}

	m.cur = &Session{User: u}
	m.log.LogAttrs(ctx, slog.LevelDebug, "session saved", slog.Any("session", m.cur))
	return m.cur, nil
}

// Clear removes the current session. The user becomes unauthenticated.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cur = nil
	if err := m.store.Delete(ctx, UserKey); err != nil && !errors.Is(err, ErrNotFound) {
		return errtrace.Wrap(err)
	}
	m.log.LogAttrs(ctx, slog.LevelDebug, "session cleared")
	return nil
}
