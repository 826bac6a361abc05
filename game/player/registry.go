// Package player tracks connected players and which session each one sits in.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultName is the display name of a player that never set one
const DefaultName = "player"

var (
	ErrInvalidHandle  = errors.New("invalid connection handle")
	ErrHandleBound    = errors.New("connection handle already bound to a player")
	ErrPlayerNotFound = errors.New("player not found")
	ErrInvalidName    = errors.New("invalid display name")
)

// ID identifies a player for the lifetime of its connection
type ID string

// Handle is the transport's reference to a connection. The registry never
// owns or closes the connection behind it.
type Handle string

// Player is one connected client
type Player struct {
	ID          ID
	Handle      Handle
	ConnectedAt time.Time

	name    atomic.Pointer[string]
	session atomic.Uint64

	// op serializes every session-affecting operation issued by this player.
	op   sync.Mutex
	gone bool
}

// Name returns the current display name
func (p *Player) Name() string {
	if n := p.name.Load(); n != nil {
		return *n
	}
	return DefaultName
}

// SessionID returns the session the player is seated in, or 0
func (p *Player) SessionID() uint64 {
	return p.session.Load()
}

// Bind records that the player now occupies a seat in session id. Callers
// must hold that session's lock.
func (p *Player) Bind(id uint64) {
	p.session.Store(id)
}

// Unbind clears the session reference if it still points at id. A stale
// clear from a finished session never clobbers a newer binding.
func (p *Player) Unbind(id uint64) bool {
	return p.session.CompareAndSwap(id, 0)
}

// Lock acquires the player's operation lock. It reports false, without
// holding the lock, when the player has already been unregistered.
func (p *Player) Lock() bool {
	p.op.Lock()
	if p.gone {
		p.op.Unlock()
		return false
	}
	return true
}

// Unlock releases the operation lock
func (p *Player) Unlock() {
	p.op.Unlock()
}

// Leaver vacates the seat of a player that is being unregistered. It is
// called with p's operation lock held.
type Leaver interface {
	ReleaseSeat(ctx context.Context, p *Player) error
}

// Registry owns the set of connected players
type Registry struct {
	players map[ID]*Player
	handles map[Handle]ID
	leaver  Leaver
	maxName int
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry. maxName bounds display names in
// runes; zero means 32.
func NewRegistry(maxName int) *Registry {
	if maxName <= 0 {
		maxName = 32
	}
	return &Registry{
		players: make(map[ID]*Player),
		handles: make(map[Handle]ID),
		maxName: maxName,
	}
}

// SetLeaver installs the leave path used when unregistering a seated player
func (r *Registry) SetLeaver(l Leaver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaver = l
}

// Register creates a player bound to handle
func (r *Registry) Register(handle Handle) (*Player, error) {
	if strings.TrimSpace(string(handle)) == "" {
		return nil, ErrInvalidHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, bound := r.handles[handle]; bound {
		return nil, ErrHandleBound
	}

	p := &Player{
		ID:          ID(uuid.NewString()),
		Handle:      handle,
		ConnectedAt: time.Now(),
	}
	r.players[p.ID] = p
	r.handles[handle] = p.ID
	return p, nil
}

// Lookup returns the player with id
func (r *Registry) Lookup(id ID) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// LookupHandle returns the player bound to handle
func (r *Registry) LookupHandle(handle Handle) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.handles[handle]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return r.players[id], nil
}

// Rename sets the display name of player id
func (r *Registry) Rename(id ID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) {
		return "", ErrInvalidName
	}
	if n := utf8.RuneCountInString(name); n > r.maxName {
		return "", fmt.Errorf("%w: %d characters exceeds limit of %d", ErrInvalidName, n, r.maxName)
	}

	p, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	p.name.Store(&name)
	return name, nil
}

// Unregister removes player id. A seated player leaves its session first.
// Unknown ids are ignored.
func (r *Registry) Unregister(ctx context.Context, id ID) error {
	p, err := r.Lookup(id)
	if err != nil {
		return nil
	}
	if !p.Lock() {
		return nil
	}
	defer p.Unlock()

	r.mu.RLock()
	leaver := r.leaver
	r.mu.RUnlock()

	if p.SessionID() != 0 && leaver != nil {
		if err := leaver.ReleaseSeat(ctx, p); err != nil {
			return fmt.Errorf("leave before unregister: %w", err)
		}
	}

	r.Remove(p)
	return nil
}

// Remove drops p from the registry and marks it gone so queued operations
// fail. Callers must hold p's operation lock.
func (r *Registry) Remove(p *Player) {
	p.gone = true

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.players[p.ID]; ok && cur == p {
		delete(r.players, p.ID)
		delete(r.handles, p.Handle)
	}
}

// Detach clears player id's reference to session sid, if it still holds one
func (r *Registry) Detach(id ID, sid uint64) {
	p, err := r.Lookup(id)
	if err != nil {
		return
	}
	p.Unbind(sid)
}

// Count returns the number of connected players
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
