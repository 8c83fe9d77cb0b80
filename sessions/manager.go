package sessions

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/ggoodman/inspector-proxy-go/compat"
	"github.com/google/uuid"
)

// Manager keeps track of live sessions.
type Manager struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty registry. Sessions it creates log through l
// unless an explicit WithLogger option is passed to Create.
func NewManager(l *slog.Logger) *Manager {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		log:      l,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session with a random id. The session is not
// started; pass it to Serve or call Run directly.
func (m *Manager) Create(debugger, device Conn, handler compat.InspectorHandler, opts ...Option) *Session {
	opts = append([]Option{WithLogger(m.log)}, opts...)
	s := New(uuid.NewString(), debugger, device, handler, opts...)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Serve runs s and removes it from the registry when it ends.
func (m *Manager) Serve(ctx context.Context, s *Session) error {
	defer m.Remove(s.id)
	return s.Run(ctx)
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns snapshots of all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove drops a session from the registry without closing it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// CloseAll disconnects every registered session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		_ = s.Close()
	}
}
