package session

import "github.com/manpreetbhatti/easel/internal/room"

// EventKind enumerates everything a connection can ask of its room
type EventKind int

const (
	KindJoinRoom EventKind = iota
	KindSetName
	KindBeginStroke
	KindExtendStroke
	KindEndStroke
	KindUndo
	KindRedo
	KindClear
	KindRequestHistory
	KindMoveCursor
)

var kindNames = [...]string{
	KindJoinRoom:       "join-room",
	KindSetName:        "set-name",
	KindBeginStroke:    "begin-stroke",
	KindExtendStroke:   "extend-stroke",
	KindEndStroke:      "end-stroke",
	KindUndo:           "undo",
	KindRedo:           "redo",
	KindClear:          "clear",
	KindRequestHistory: "request-history",
	KindMoveCursor:     "move-cursor",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event is one inbound connection event. The set of implementations is
// closed; Coordinator.Handle switches over all of them.
type Event interface {
	Kind() EventKind
}

type JoinRoom struct {
	RoomCode string
}

type SetName struct {
	Name string
}

type BeginStroke struct {
	Tool  room.Tool
	Color string
	Width float64
	X, Y  float64
}

type ExtendStroke struct {
	X, Y float64
}

type EndStroke struct{}

type Undo struct{}

type Redo struct{}

type Clear struct{}

type RequestHistory struct{}

type MoveCursor struct {
	X, Y float64
}

func (JoinRoom) Kind() EventKind { return KindJoinRoom }
func (SetName) Kind() EventKind { return KindSetName }
func (BeginStroke) Kind() EventKind { return KindBeginStroke }
func (ExtendStroke) Kind() EventKind { return KindExtendStroke }
func (EndStroke) Kind() EventKind { return KindEndStroke }
func (Undo) Kind() EventKind { return KindUndo }
func (Redo) Kind() EventKind { return KindRedo }
func (Clear) Kind() EventKind { return KindClear }
func (RequestHistory) Kind() EventKind { return KindRequestHistory }
func (MoveCursor) Kind() EventKind { return KindMoveCursor }

// Cursor is the payload of a live cursor update
type Cursor struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}
