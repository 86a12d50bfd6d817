package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/manpreetbhatti/easel/internal/broadcast"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/manpreetbhatti/easel/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	d := NewDecoder(6)

	ev, err := d.Decode([]byte(`{"event":"room:join","data":{"roomName":"482910"}}`))
	require.NoError(t, err)
	assert.Equal(t, session.JoinRoom{RoomCode: "482910"}, ev)

	ev, err = d.Decode([]byte(`{"event":"room:join","data":{"roomCode":" 123456 "}}`))
	require.NoError(t, err)
	assert.Equal(t, session.JoinRoom{RoomCode: "123456"}, ev)
}

func TestDecodeJoinValidatesFormat(t *testing.T) {
	d := NewDecoder(6)

	for _, code := range []string{"12345", "1234567", "abcdef", "12 456"} {
		raw, _ := json.Marshal(Frame{Event: EventJoinRoom, Data: json.RawMessage(`{"roomName":"` + code + `"}`)})
		_, err := d.Decode(raw)
		assert.ErrorIs(t, err, session.ErrInvalidRoomCode, code)
	}

	// Empty codes are left for the coordinator to refuse
	ev, err := d.Decode([]byte(`{"event":"room:join","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, session.JoinRoom{}, ev)
}

func TestDecodeJoinWithoutFormatCheck(t *testing.T) {
	d := NewDecoder(0)

	ev, err := d.Decode([]byte(`{"event":"room:join","data":{"roomName":"studio-b"}}`))
	require.NoError(t, err)
	assert.Equal(t, session.JoinRoom{RoomCode: "studio-b"}, ev)
}

func TestDecodeSetName(t *testing.T) {
	d := NewDecoder(6)

	ev, err := d.Decode([]byte(`{"event":"user:set-name","data":"Pat"}`))
	require.NoError(t, err)
	assert.Equal(t, session.SetName{Name: "Pat"}, ev)

	ev, err = d.Decode([]byte(`{"event":"user:set-name","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, session.SetName{}, ev)

	_, err = d.Decode([]byte(`{"event":"user:set-name","data":{"name":"Pat"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeDrawStart(t *testing.T) {
	d := NewDecoder(6)

	ev, err := d.Decode([]byte(`{"event":"draw:start","data":{"x":10.5,"y":"20","color":"#ff0000","width":"8","tool":"destination-out"}}`))
	require.NoError(t, err)
	assert.Equal(t, session.BeginStroke{
		Tool:  room.ToolErase,
		Color: "#ff0000",
		Width: 8,
		X:     10.5,
		Y:     20,
	}, ev)

	ev, err = d.Decode([]byte(`{"event":"draw:start","data":{"x":1,"y":2,"color":"#000","width":3,"tool":"source-over"}}`))
	require.NoError(t, err)
	assert.Equal(t, room.ToolPaint, ev.(session.BeginStroke).Tool)
}

func TestDecodePointEvents(t *testing.T) {
	d := NewDecoder(6)

	ev, err := d.Decode([]byte(`{"event":"draw:move","data":{"x":3,"y":4}}`))
	require.NoError(t, err)
	assert.Equal(t, session.ExtendStroke{X: 3, Y: 4}, ev)

	ev, err = d.Decode([]byte(`{"event":"cursor:move","data":{"x":"5","y":6}}`))
	require.NoError(t, err)
	assert.Equal(t, session.MoveCursor{X: 5, Y: 6}, ev)

	_, err = d.Decode([]byte(`{"event":"draw:move","data":{"x":"left","y":6}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsNonFiniteNumbers(t *testing.T) {
	d := NewDecoder(6)
	frames := []string{
		`{"event":"draw:start","data":{"x":0,"y":0,"color":"#000000","width":"NaN","tool":"source-over"}}`,
		`{"event":"draw:start","data":{"x":0,"y":0,"color":"#000000","width":"Infinity","tool":"source-over"}}`,
		`{"event":"draw:move","data":{"x":"Inf","y":1}}`,
		`{"event":"draw:move","data":{"x":1,"y":"-Infinity"}}`,
		`{"event":"cursor:move","data":{"x":"nan","y":1}}`,
		`{"event":"draw:move","data":{"x":1e400,"y":1}}`,
	}
	for _, frame := range frames {
		_, err := d.Decode([]byte(frame))
		assert.ErrorIs(t, err, ErrMalformed, frame)
	}

	// Large but finite values still decode
	ev, err := d.Decode([]byte(`{"event":"draw:move","data":{"x":"1e300","y":-1e300}}`))
	require.NoError(t, err)
	assert.Equal(t, session.ExtendStroke{X: 1e300, Y: -1e300}, ev)
}

func TestDecodeBareEvents(t *testing.T) {
	d := NewDecoder(6)
	cases := map[string]session.Event{
		EventDrawEnd:        session.EndStroke{},
		EventUndo:           session.Undo{},
		EventRedo:           session.Redo{},
		EventClear:          session.Clear{},
		EventRequestHistory: session.RequestHistory{},
	}
	for name, want := range cases {
		ev, err := d.Decode([]byte(`{"event":"` + name + `"}`))
		require.NoError(t, err, name)
		assert.Equal(t, want, ev, name)
	}
}

func TestDecodeErrors(t *testing.T) {
	d := NewDecoder(6)

	_, err := d.Decode(nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = d.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = d.Decode([]byte(`{"event":"draw:teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEncode(t *testing.T) {
	op := room.NewStroke("op-1", "C1", room.ToolPaint, "#000000", 4, []room.Point{{X: 1, Y: 2}})

	data, err := Encode(broadcast.Message{Kind: broadcast.KindOperation, Room: "123456", Payload: op})
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "operation:add", frame.Event)
	assert.JSONEq(t, `{"id":"op-1","type":"draw","tool":"paint","color":"#000000","width":4,"points":[{"x":1,"y":2}],"authorId":"C1"}`, string(frame.Data))
}

func TestEncodeClearOmitsStrokeFields(t *testing.T) {
	data, err := Encode(broadcast.Message{Kind: broadcast.KindOperation, Payload: room.NewClear("op-2", "C1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"operation:add","data":{"id":"op-2","type":"clear","authorId":"C1"}}`, string(data))
}

func TestErrorMessage(t *testing.T) {
	msg := ErrorMessage(errors.New("bad room"))
	assert.Equal(t, broadcast.KindError, msg.Kind)

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"bad room"}}`, string(data))
}

func TestValidRoomCode(t *testing.T) {
	assert.True(t, ValidRoomCode("123456", 6))
	assert.False(t, ValidRoomCode("", 6))
	assert.False(t, ValidRoomCode("", 0))
	assert.False(t, ValidRoomCode("12345a", 6))
	assert.True(t, ValidRoomCode("anything", 0))
}
