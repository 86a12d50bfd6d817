package room

import (
	"errors"
	"sync"
	"time"
)

var ErrRoomClosed = errors.New("room: closed")

// A drawing session identified by its code
type Room struct {
	Code      string
	CreatedAt time.Time

	mu     sync.Mutex
	closed bool
	state  State
}

// State is the mutable part of a Room. It is only reachable through
// Room.Do, Registry.Do or Registry.With, which hold the room's lock.
type State struct {
	code      string
	log       Log
	presence  *Presence
	committed int
	peak      int
}

// Creates a new room with empty history, redo stack and presence
func NewRoom(code string, createdAt time.Time, hue func() int) *Room {
	return &Room{
		Code:      code,
		CreatedAt: createdAt,
		state: State{
			code:     code,
			presence: newPresence(code, hue),
		},
	}
}

// Do runs fn with exclusive access to the room's state. It fails with
// ErrRoomClosed once the room has been removed from its registry.
func (r *Room) Do(fn func(s *State)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	fn(&r.state)
	return nil
}

func (s *State) Code() string { return s.code }

func (s *State) Append(op Operation) Operation {
	s.committed++
	return s.log.Append(op)
}

func (s *State) Undo() []Operation { return s.log.Undo() }
func (s *State) Redo() []Operation { return s.log.Redo() }
func (s *State) History() []Operation { return s.log.Snapshot() }
func (s *State) RedoStack() []Operation { return s.log.RedoSnapshot() }
func (s *State) HistoryLen() int { return s.log.Len() }
func (s *State) RedoLen() int { return s.log.RedoLen() }
func (s *State) Members() []string { return s.presence.Members() }
func (s *State) Participants() map[string]Participant { return s.presence.List() }

func (s *State) Participant(connID string) (Participant, bool) {
	return s.presence.Get(connID)
}

func (s *State) Join(connID string) Participant {
	p := s.presence.Join(connID)
	if n := s.presence.Len(); n > s.peak {
		s.peak = n
	}
	return p
}

func (s *State) SetName(connID, raw string) (Participant, error) {
	return s.presence.SetName(connID, raw)
}

func (s *State) Leave(connID string) bool { return s.presence.Leave(connID) }

func (s *State) Empty() bool { return s.presence.Len() == 0 }
