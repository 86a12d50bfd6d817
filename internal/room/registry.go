package room

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Observer is told about room lifecycle changes. Calls are made while the
// registry lock is held, so implementations must return immediately.
type Observer interface {
	RoomCreated(code string, at time.Time)
	RoomDeleted(summary Summary)
}

// What a room amounted to when it was deleted
type Summary struct {
	Code             string
	CreatedAt        time.Time
	ClosedAt         time.Time
	Operations       int
	HistorySize      int
	PeakParticipants int
}

// Point-in-time view of an active room
type RoomInfo struct {
	Code         string
	CreatedAt    time.Time
	Participants int
	HistorySize  int
	RedoSize     int
}

// Registry owns every live room. The registry mutex only guards the map;
// room state is guarded by each room's own lock, so work on different rooms
// never contends beyond the map lookup. Lock order is registry, then room.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	observer Observer
	now      func() time.Time
	hue      func() int
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithHueSource replaces the random hue generator used for participant colors
func WithHueSource(hue func() int) Option {
	return func(r *Registry) { r.hue = hue }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the room for code, creating an empty one if needed
func (r *Registry) GetOrCreate(code string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[code]; ok {
		return rm
	}
	rm := NewRoom(code, r.now(), r.hue)
	r.rooms[code] = rm
	if r.observer != nil {
		r.observer.RoomCreated(code, rm.CreatedAt)
	}
	return rm
}

func (r *Registry) Get(code string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	return rm, ok
}

// Do runs fn against the room for code under its lock, creating the room
// first if needed. If the room is deleted between lookup and lock, a fresh
// one is created and fn runs against that instead.
func (r *Registry) Do(code string, fn func(s *State)) error {
	for {
		err := r.GetOrCreate(code).Do(fn)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		return err
	}
}

// With runs fn against an existing room and reports whether it did
func (r *Registry) With(code string, fn func(s *State)) bool {
	rm, ok := r.Get(code)
	if !ok {
		return false
	}
	return rm.Do(fn) == nil
}

// DeleteIfEmpty removes the room for code if nobody is present in it.
// Missing rooms are ignored. The deleted room is closed so holders of a
// stale reference cannot mutate it, and a later GetOrCreate starts over.
func (r *Registry) DeleteIfEmpty(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return false
	}

	rm.mu.Lock()
	if !rm.state.Empty() {
		rm.mu.Unlock()
		return false
	}
	rm.closed = true
	summary := Summary{
		Code:             code,
		CreatedAt:        rm.CreatedAt,
		ClosedAt:         r.now(),
		Operations:       rm.state.committed,
		HistorySize:      rm.state.log.Len(),
		PeakParticipants: rm.state.peak,
	}
	rm.mu.Unlock()

	delete(r.rooms, code)
	if r.observer != nil {
		r.observer.RoomDeleted(summary)
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Active lists live rooms sorted by code
func (r *Registry) Active() []RoomInfo {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		var info RoomInfo
		err := rm.Do(func(s *State) {
			info = RoomInfo{
				Code:         rm.Code,
				CreatedAt:    rm.CreatedAt,
				Participants: s.presence.Len(),
				HistorySize:  s.log.Len(),
				RedoSize:     s.log.RedoLen(),
			}
		})
		if err == nil {
			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Code < infos[j].Code })
	return infos
}
