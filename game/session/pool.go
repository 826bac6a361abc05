package session

import (
	"sort"
	"sync"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
)

// Detacher clears a player's reference to a session that is going away
type Detacher interface {
	Detach(id player.ID, sessionID uint64)
}

// Pool owns the set of live sessions
type Pool struct {
	engine   rules.Engine
	detacher Detacher
	sessions map[uint64]*Session
	joinable []uint64
	nextID   uint64
	mu       sync.RWMutex
}

// NewPool creates a session pool whose sessions play engine
func NewPool(engine rules.Engine, detacher Detacher) *Pool {
	return &Pool{
		engine:   engine,
		detacher: detacher,
		sessions: make(map[uint64]*Session),
	}
}

// Engine returns the rules engine shared by every session in the pool
func (p *Pool) Engine() rules.Engine {
	return p.engine
}

// Create allocates a Forming session with a fresh monotonic id
func (p *Pool) Create() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	s := newSession(p.nextID, p.engine)
	p.sessions[s.ID] = s
	p.joinable = append(p.joinable, s.ID)
	return s
}

// FindJoinable returns the oldest Forming session with a free seat, or nil
func (p *Pool) FindJoinable() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, id := range p.joinable {
		if s, ok := p.sessions[id]; ok {
			return s
		}
	}
	return nil
}

// Get retrieves a live session by id
func (p *Pool) Get(id uint64) (*Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Seal stops offering s to joiners. Callers must hold s's lock.
func (p *Pool) Seal(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropJoinable(s.ID)
}

// Destroy detaches every remaining seat of s and discards it. Callers must
// hold s's lock. Destroying an already destroyed session does nothing.
func (p *Pool) Destroy(s *Session) {
	if s.closed {
		return
	}

	var detach func(player.ID, uint64)
	if p.detacher != nil {
		detach = p.detacher.Detach
	}
	s.close(detach)

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.sessions[s.ID]; ok && cur == s {
		delete(p.sessions, s.ID)
	}
	p.dropJoinable(s.ID)
}

// Remove destroys session id. Unknown ids are ignored.
func (p *Pool) Remove(id uint64) {
	s, err := p.Get(id)
	if err != nil {
		return
	}

	s.Lock()
	defer s.Unlock()
	p.Destroy(s)
}

// List returns a view of every live session ordered by id
func (p *Pool) List() []View {
	p.mu.RLock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		s.Lock()
		if !s.closed {
			views = append(views, s.View())
		}
		s.Unlock()
	}
	return views
}

// Count returns the number of live sessions
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Counts returns the number of sessions waiting for an opponent and the
// number in play, read together
func (p *Pool) Counts() (forming, active int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.joinable), len(p.sessions) - len(p.joinable)
}

func (p *Pool) dropJoinable(id uint64) {
	for i, jid := range p.joinable {
		if jid == id {
			p.joinable = append(p.joinable[:i], p.joinable[i+1:]...)
			return
		}
	}
}
