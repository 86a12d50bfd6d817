package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/manpreetbhatti/easel/internal/broadcast"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/manpreetbhatti/easel/internal/session"
)

// Inbound event names, as sent by the browser client
const (
	EventJoinRoom       = "room:join"
	EventSetName        = "user:set-name"
	EventDrawStart      = "draw:start"
	EventDrawMove       = "draw:move"
	EventDrawEnd        = "draw:end"
	EventUndo           = "operation:undo"
	EventRedo           = "operation:redo"
	EventClear          = "operation:clear"
	EventRequestHistory = "canvas:request-history"
	EventCursorMove     = "cursor:move"
)

var (
	ErrMalformed    = errors.New("protocol: malformed frame")
	ErrUnknownEvent = errors.New("protocol: unknown event")
)

// Frame is the envelope of every WebSocket text message in either direction
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is sent to a single connection when its request was rejected
type ErrorPayload struct {
	Message string `json:"message"`
}

// Number accepts either a JSON number or a numeric string. HTML range
// inputs report their value as a string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var f float64
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		f = parsed
	} else if err := json.Unmarshal(b, &f); err != nil {
		return err
	}

	// NaN and infinities cannot be encoded back to JSON
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a finite number: %s", b)
	}
	*n = Number(f)
	return nil
}

type joinData struct {
	RoomName string `json:"roomName"`
	RoomCode string `json:"roomCode"`
}

type strokeData struct {
	X     Number `json:"x"`
	Y     Number `json:"y"`
	Color string `json:"color"`
	Width Number `json:"width"`
	Tool  string `json:"tool"`
}

type pointData struct {
	X Number `json:"x"`
	Y Number `json:"y"`
}

// Decoder turns raw frames into session events
type Decoder struct {
	roomCodeLength int
}

// NewDecoder returns a Decoder that only admits room codes made of exactly
// roomCodeLength digits. Zero or less disables the format check.
func NewDecoder(roomCodeLength int) *Decoder {
	return &Decoder{roomCodeLength: roomCodeLength}
}

func (d *Decoder) Decode(raw []byte) (session.Event, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Event {
	case EventJoinRoom:
		var data joinData
		if err := decodeData(f, &data); err != nil {
			return nil, err
		}
		code := data.RoomName
		if code == "" {
			code = data.RoomCode
		}
		return d.Join(code)

	case EventSetName:
		var name *string
		if err := decodeData(f, &name); err != nil {
			return nil, err
		}
		if name == nil {
			return session.SetName{}, nil
		}
		return session.SetName{Name: *name}, nil

	case EventDrawStart:
		var data strokeData
		if err := decodeData(f, &data); err != nil {
			return nil, err
		}
		return session.BeginStroke{
			Tool:  room.ParseTool(data.Tool),
			Color: data.Color,
			Width: float64(data.Width),
			X:     float64(data.X),
			Y:     float64(data.Y),
		}, nil

	case EventDrawMove:
		var data pointData
		if err := decodeData(f, &data); err != nil {
			return nil, err
		}
		return session.ExtendStroke{X: float64(data.X), Y: float64(data.Y)}, nil

	case EventCursorMove:
		var data pointData
		if err := decodeData(f, &data); err != nil {
			return nil, err
		}
		return session.MoveCursor{X: float64(data.X), Y: float64(data.Y)}, nil

	case EventDrawEnd:
		return session.EndStroke{}, nil
	case EventUndo:
		return session.Undo{}, nil
	case EventRedo:
		return session.Redo{}, nil
	case EventClear:
		return session.Clear{}, nil
	case EventRequestHistory:
		return session.RequestHistory{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}

// Join builds a join event for code, checking its format. Empty codes are
// passed through for the coordinator to reject.
func (d *Decoder) Join(code string) (session.Event, error) {
	code = strings.TrimSpace(code)
	if code != "" && !ValidRoomCode(code, d.roomCodeLength) {
		return nil, fmt.Errorf("%w: %q", session.ErrInvalidRoomCode, code)
	}
	return session.JoinRoom{RoomCode: code}, nil
}

func decodeData(f Frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
	}
	return nil
}

// Encode renders an outbound message as a frame
func Encode(msg broadcast.Message) ([]byte, error) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: string(msg.Kind), Data: data})
}

// ErrorMessage wraps err for delivery to the connection that caused it
func ErrorMessage(err error) broadcast.Message {
	return broadcast.Message{
		Kind:    broadcast.KindError,
		Payload: ErrorPayload{Message: err.Error()},
	}
}

// ValidRoomCode reports whether code is made of exactly length ASCII digits
func ValidRoomCode(code string, length int) bool {
	if code == "" {
		return false
	}
	if length <= 0 {
		return true
	}
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
