package broadcast

import (
	"github.com/sirupsen/logrus"
)

// Policy decides which connections of a room receive a message
type Policy int

const (
	// Every connection joined to the room
	RoomAll Policy = iota
	// Every connection in the room except the originator
	RoomOthers
	// Only the originating connection
	SenderOnly
)

func (p Policy) String() string {
	switch p {
	case RoomAll:
		return "room-all"
	case RoomOthers:
		return "room-others"
	case SenderOnly:
		return "sender-only"
	default:
		return "unknown"
	}
}

// Kind names an outbound payload. The values double as wire event names.
type Kind string

const (
	KindPresence  Kind = "users:update"
	KindSelf      Kind = "user:self"
	KindOperation Kind = "operation:add"
	KindRedraw    Kind = "canvas:redraw"
	KindLoad      Kind = "canvas:load"
	KindCursor    Kind = "cursor:update"
	KindError     Kind = "error"
)

// PolicyFor maps a payload kind to its fan-out policy
func PolicyFor(k Kind) Policy {
	switch k {
	case KindPresence, KindOperation, KindRedraw:
		return RoomAll
	case KindCursor:
		return RoomOthers
	default:
		return SenderOnly
	}
}

type Message struct {
	Kind    Kind
	Room    string
	Payload any
}

// Sink hands messages to the transport. Deliver must not block: it is
// called while the originating room is locked.
type Sink interface {
	Deliver(recipients []string, msg Message)
}

// Recipients resolves policy against a room's members
func Recipients(policy Policy, members []string, sender string) []string {
	switch policy {
	case SenderOnly:
		if sender == "" {
			return nil
		}
		return []string{sender}
	case RoomOthers:
		out := make([]string, 0, len(members))
		for _, id := range members {
			if id != sender {
				out = append(out, id)
			}
		}
		return out
	default:
		out := make([]string, len(members))
		copy(out, members)
		return out
	}
}

// Dispatcher routes each message to the right connections, synchronously
// and in call order. It never buffers or reorders.
type Dispatcher struct {
	sink Sink
	log  *logrus.Entry
}

func NewDispatcher(sink Sink, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		sink: sink,
		log:  log.WithField("component", "dispatcher"),
	}
}

// Dispatch delivers msg to the recipients its kind calls for and returns them
func (d *Dispatcher) Dispatch(members []string, sender string, msg Message) []string {
	policy := PolicyFor(msg.Kind)
	recipients := Recipients(policy, members, sender)
	if len(recipients) == 0 {
		return nil
	}

	d.log.WithFields(logrus.Fields{
		"room":       msg.Room,
		"event":      msg.Kind,
		"policy":     policy.String(),
		"recipients": len(recipients),
	}).Debug("Dispatching")

	d.sink.Deliver(recipients, msg)
	return recipients
}
