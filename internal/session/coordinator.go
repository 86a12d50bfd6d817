package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/manpreetbhatti/easel/internal/broadcast"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/sirupsen/logrus"
)

var ErrInvalidRoomCode = errors.New("session: invalid room code")

// Where a connection is in its lifecycle
type State int

const (
	Unjoined State = iota
	Joined
	Named
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	case Named:
		return "named"
	default:
		return "unknown"
	}
}

// Per-connection state. Only the owning connection's goroutine touches it.
type conn struct {
	room   string
	state  State
	stroke *room.Operation
}

// Coordinator turns connection events into room mutations and broadcasts.
// Each event runs to completion; mutations of one room are serialized by
// that room's lock and messages are dispatched before the lock is released,
// so every client sees them in mutation order.
type Coordinator struct {
	rooms    *room.Registry
	dispatch *broadcast.Dispatcher
	newID    func() string
	log      *logrus.Entry

	mu    sync.Mutex
	conns map[string]*conn
}

func NewCoordinator(rooms *room.Registry, dispatch *broadcast.Dispatcher, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		rooms:    rooms,
		dispatch: dispatch,
		newID:    uuid.NewString,
		log:      log.WithField("component", "session"),
		conns:    make(map[string]*conn),
	}
}

// Connect starts tracking a connection in the Unjoined state
func (c *Coordinator) Connect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[connID]; !ok {
		c.conns[connID] = &conn{}
	}
}

// State reports where connID is in its lifecycle
func (c *Coordinator) State(connID string) State {
	cs := c.lookup(connID)
	if cs == nil {
		return Unjoined
	}
	return cs.state
}

// RoomOf returns the room connID is joined to, if any
func (c *Coordinator) RoomOf(connID string) string {
	cs := c.lookup(connID)
	if cs == nil {
		return ""
	}
	return cs.room
}

// Connections returns how many connections are tracked
func (c *Coordinator) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func (c *Coordinator) lookup(connID string) *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[connID]
}

// Handle applies one event from connID. Only validation failures are
// returned; they are meant for the sender alone and leave all state
// untouched. Events that make no sense in the connection's current state
// are logged and dropped.
func (c *Coordinator) Handle(connID string, ev Event) error {
	cs := c.lookup(connID)
	if cs == nil {
		c.missing(connID, ev, "unknown connection")
		return nil
	}

	switch e := ev.(type) {
	case JoinRoom:
		return c.join(connID, cs, e.RoomCode)
	case SetName:
		return c.setName(connID, cs, e.Name)
	case BeginStroke:
		c.beginStroke(connID, cs, e)
	case ExtendStroke:
		if cs.stroke != nil {
			cs.stroke.Points = append(cs.stroke.Points, room.Point{X: e.X, Y: e.Y})
		}
	case EndStroke:
		c.endStroke(connID, cs)
	case Undo:
		c.rewind(connID, cs, ev, (*room.State).Undo)
	case Redo:
		c.rewind(connID, cs, ev, (*room.State).Redo)
	case Clear:
		c.clear(connID, cs)
	case RequestHistory:
		c.requestHistory(connID, cs)
	case MoveCursor:
		c.moveCursor(connID, cs, e)
	default:
		c.missing(connID, ev, "unsupported event")
	}
	return nil
}

// Disconnect discards the connection's stroke, removes it from its room and
// deletes the room if that left it empty. Later calls for the same
// connection do nothing.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	cs, ok := c.conns[connID]
	delete(c.conns, connID)
	c.mu.Unlock()
	if !ok {
		return
	}

	cs.stroke = nil
	if cs.room != "" {
		c.leave(connID, cs)
	}
	c.log.WithField("conn", connID).Debug("Connection released")
}

func (c *Coordinator) join(connID string, cs *conn, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: room code is required", ErrInvalidRoomCode)
	}

	if cs.room != "" && cs.room != code {
		c.leave(connID, cs)
		cs.stroke = nil
	}

	err := c.rooms.Do(code, func(s *room.State) {
		s.Join(connID)
		c.dispatchPresence(s, connID)
	})
	if err != nil {
		return err
	}

	cs.room = code
	cs.state = Joined
	c.log.WithFields(logrus.Fields{"conn": connID, "room": code}).Info("Joined room (pending name)")
	return nil
}

func (c *Coordinator) leave(connID string, cs *conn) {
	code := cs.room
	cs.room = ""
	cs.state = Unjoined

	c.rooms.With(code, func(s *room.State) {
		if s.Leave(connID) {
			c.dispatchPresence(s, connID)
		}
	})
	if c.rooms.DeleteIfEmpty(code) {
		c.log.WithField("room", code).Info("Room empty, deleted")
	}
}

func (c *Coordinator) setName(connID string, cs *conn, raw string) error {
	if cs.room == "" {
		c.missing(connID, SetName{}, "not in a room")
		return nil
	}

	var err error
	found := c.rooms.With(cs.room, func(s *room.State) {
		var p room.Participant
		p, err = s.SetName(connID, raw)
		if err != nil {
			return
		}
		c.dispatch.Dispatch(nil, connID, broadcast.Message{Kind: broadcast.KindSelf, Room: s.Code(), Payload: p})
		c.dispatchPresence(s, connID)
	})

	switch {
	case !found || errors.Is(err, room.ErrNotMember):
		c.missing(connID, SetName{}, "participant not found")
		return nil
	case err != nil:
		return err
	}

	cs.state = Named
	return nil
}

func (c *Coordinator) beginStroke(connID string, cs *conn, e BeginStroke) {
	if cs.room == "" {
		c.missing(connID, e, "not in a room")
		return
	}
	// A second start replaces any unfinished stroke
	op := room.NewStroke(c.newID(), connID, e.Tool, e.Color, e.Width, []room.Point{{X: e.X, Y: e.Y}})
	cs.stroke = &op
}

func (c *Coordinator) endStroke(connID string, cs *conn) {
	if cs.stroke == nil {
		return
	}
	op := *cs.stroke
	cs.stroke = nil
	if cs.room == "" {
		return
	}

	c.commit(connID, cs, op)
}

func (c *Coordinator) clear(connID string, cs *conn) {
	if cs.room == "" {
		c.missing(connID, Clear{}, "not in a room")
		return
	}
	c.commit(connID, cs, room.NewClear(c.newID(), connID))
}

func (c *Coordinator) commit(connID string, cs *conn, op room.Operation) {
	var size int
	found := c.rooms.With(cs.room, func(s *room.State) {
		committed := s.Append(op)
		size = s.HistoryLen()
		c.dispatch.Dispatch(s.Members(), connID, broadcast.Message{
			Kind:    broadcast.KindOperation,
			Room:    s.Code(),
			Payload: committed,
		})
	})
	if !found {
		c.missing(connID, EndStroke{}, "room not found")
		return
	}
	c.log.WithFields(logrus.Fields{
		"conn": connID,
		"room": cs.room,
		"op":   op.Type,
	}).Debugf("Operation added. History size: %d", size)
}

// rewind runs undo or redo. The history is broadcast even when nothing
// changed so every client re-renders from the same sequence.
func (c *Coordinator) rewind(connID string, cs *conn, ev Event, apply func(*room.State) []room.Operation) {
	if cs.room == "" {
		c.missing(connID, ev, "not in a room")
		return
	}
	var size int
	c.rooms.With(cs.room, func(s *room.State) {
		history := apply(s)
		size = len(history)
		c.dispatch.Dispatch(s.Members(), connID, broadcast.Message{
			Kind:    broadcast.KindRedraw,
			Room:    s.Code(),
			Payload: history,
		})
	})
	c.log.WithFields(logrus.Fields{
		"conn":  connID,
		"room":  cs.room,
		"event": ev.Kind().String(),
	}).Debugf("History size: %d", size)
}

func (c *Coordinator) requestHistory(connID string, cs *conn) {
	if cs.room == "" {
		c.missing(connID, RequestHistory{}, "not in a room")
		return
	}
	c.rooms.With(cs.room, func(s *room.State) {
		c.dispatch.Dispatch(nil, connID, broadcast.Message{
			Kind:    broadcast.KindLoad,
			Room:    s.Code(),
			Payload: s.History(),
		})
	})
}

func (c *Coordinator) moveCursor(connID string, cs *conn, e MoveCursor) {
	if cs.room == "" {
		return
	}
	c.rooms.With(cs.room, func(s *room.State) {
		p, ok := s.Participant(connID)
		if !ok {
			return
		}
		c.dispatch.Dispatch(s.Members(), connID, broadcast.Message{
			Kind:    broadcast.KindCursor,
			Room:    s.Code(),
			Payload: Cursor{ID: connID, X: e.X, Y: e.Y, Color: p.Color},
		})
	})
}

func (c *Coordinator) dispatchPresence(s *room.State, sender string) {
	c.dispatch.Dispatch(s.Members(), sender, broadcast.Message{
		Kind:    broadcast.KindPresence,
		Room:    s.Code(),
		Payload: s.Participants(),
	})
}

func (c *Coordinator) missing(connID string, ev Event, reason string) {
	name := "unknown"
	if ev != nil {
		name = ev.Kind().String()
	}
	c.log.WithFields(logrus.Fields{
		"conn":  connID,
		"event": name,
	}).Debugf("Ignoring event: %s", reason)
}
