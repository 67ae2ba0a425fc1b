package boss

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/oscarctl/internal/store"
)

// Session describes one authenticated BOSS connection.
type Session struct {
	ConnID     string    `json:"conn_id"`
	Screenname string    `json:"screenname"`
	RemoteAddr string    `json:"remote_addr"`
	SignonAt   time.Time `json:"signon_at"`
	Online     bool      `json:"online"`
	SNACCount  uint64    `json:"snac_count"`
}

// Registry tracks live sessions across connections. It is the only state the
// session service shares between connection goroutines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.sessions[s.ConnID] = &cp
}

// MarkOnline flips a session to online once the client reports ready.
func (r *Registry) MarkOnline(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	s.Online = true
	return true
}

func (r *Registry) CountSNAC(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.SNACCount++
	}
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// Online reports whether any connection for screenname is online.
func (r *Registry) Online(screenname string) bool {
	key := store.NormalizeScreenname(screenname)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Online && store.NormalizeScreenname(s.Screenname) == key {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns copies ordered by signon time.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SignonAt.Equal(out[j].SignonAt) {
			return out[i].ConnID < out[j].ConnID
		}
		return out[i].SignonAt.Before(out[j].SignonAt)
	})
	return out
}
