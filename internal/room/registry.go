package room

import (
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long a room may live regardless of activity.
const DefaultTTL = 30 * time.Minute

var (
	ErrNotFound      = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyInRoom = errors.New("connection already in a room")
	ErrExhausted     = errors.New("no free room codes")
)

// Registry is the single source of truth for live rooms and for which room
// each connection belongs to. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	sessions map[ConnID]string

	ttl      time.Duration
	now      func() time.Time
	generate func(exists func(string) bool) string
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCodeGenerator replaces GenerateCode.
func WithCodeGenerator(gen func(exists func(string) bool) string) Option {
	return func(r *Registry) { r.generate = gen }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		sessions: make(map[ConnID]string),
		ttl:      DefaultTTL,
		now:      time.Now,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the configured room lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Now reads the registry clock.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create allocates a fresh code and registers a room with conn as its only
// occupant.
func (r *Registry) Create(conn ConnID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; ok {
		return "", ErrAlreadyInRoom
	}

	if len(r.rooms) >= MaxCode-MinCode+1 {
		return "", ErrExhausted
	}

	code := r.generate(func(c string) bool {
		_, taken := r.rooms[c]
		return taken
	})
	r.rooms[code] = &Room{
		Code:      code,
		Occupants: []ConnID{conn},
		CreatedAt: r.now(),
	}
	r.sessions[conn] = code
	return code, nil
}

// Join adds conn to the room identified by code and returns the updated room.
func (r *Registry) Join(code string, conn ConnID) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; ok {
		return Room{}, ErrAlreadyInRoom
	}

	rm, ok := r.liveLocked(code)
	if !ok {
		return Room{}, ErrNotFound
	}
	if rm.Full() {
		return Room{}, ErrRoomFull
	}

	rm.Occupants = append(rm.Occupants, conn)
	r.sessions[conn] = code
	return rm.clone(), nil
}

// Get returns a snapshot of a live room.
func (r *Registry) Get(code string) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.liveLocked(code)
	if !ok {
		return Room{}, false
	}
	return rm.clone(), true
}

// Session returns the code of the room conn currently occupies.
func (r *Registry) Session(conn ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.sessions[conn]
	return code, ok
}

// RemoveOccupant takes conn out of the room. It returns the occupants left
// behind and whether the room was deleted because it became empty.
func (r *Registry) RemoveOccupant(code string, conn ConnID) ([]ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok || !rm.Has(conn) {
		return nil, false
	}

	delete(r.sessions, conn)
	rm.Occupants = rm.Others(conn)
	if len(rm.Occupants) == 0 {
		delete(r.rooms, code)
		return nil, true
	}
	return append([]ConnID(nil), rm.Occupants...), false
}

// Delete removes the room unconditionally and returns its former occupants.
func (r *Registry) Delete(code string) ([]ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	r.deleteLocked(rm)
	return rm.Occupants, true
}

// Expired returns the codes of rooms older than the TTL at now.
func (r *Registry) Expired(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var codes []string
	for code, rm := range r.rooms {
		if r.expired(rm, now) {
			codes = append(codes, code)
		}
	}
	return codes
}

// DeleteExpired removes every room older than the TTL at now and returns
// the former occupants keyed by code. Lookup and removal happen under one
// lock, so a room created later under a reused code is never touched.
func (r *Registry) DeleteExpired(now time.Time) map[string][]ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make(map[string][]ConnID)
	for code, rm := range r.rooms {
		if !r.expired(rm, now) {
			continue
		}
		r.deleteLocked(rm)
		removed[code] = rm.Occupants
	}
	return removed
}

// Len returns the number of rooms held, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) expired(rm *Room, now time.Time) bool {
	return now.Sub(rm.CreatedAt) > r.ttl
}

// liveLocked looks up code and hides rooms past their TTL even if the
// sweeper has not run yet.
func (r *Registry) liveLocked(code string) (*Room, bool) {
	rm, ok := r.rooms[code]
	if !ok || r.expired(rm, r.now()) {
		return nil, false
	}
	return rm, true
}

func (r *Registry) deleteLocked(rm *Room) {
	for _, c := range rm.Occupants {
		if r.sessions[c] == rm.Code {
			delete(r.sessions, c)
		}
	}
	delete(r.rooms, rm.Code)
}
