package session

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry maps guild ids to their live session. Creation is single-flighted
// per guild so concurrent summons never build two sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// GetOrCreate returns the guild's session, running factory when there is none.
// created is true only for the caller whose factory produced the session.
func (r *Registry) GetOrCreate(guildID string, factory func() (*Session, error)) (s *Session, created bool, err error) {
	if s, ok := r.Get(guildID); ok {
		return s, false, nil
	}

	ran := false
	v, err, _ := r.group.Do(guildID, func() (any, error) {
		if s, ok := r.Get(guildID); ok {
			return s, nil
		}
		ran = true
		s, err := factory()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[guildID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Session), ran, nil
}

// Remove deletes the entry only if it still points at s.
func (r *Registry) Remove(guildID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[guildID]; ok && cur == s {
		delete(r.sessions, guildID)
		return true
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns the live sessions at the time of the call.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
