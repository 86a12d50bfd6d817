package broadcast

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	recipients []string
	msg        Message
}

type recordingSink struct {
	deliveries []delivery
}

func (s *recordingSink) Deliver(recipients []string, msg Message) {
	s.deliveries = append(s.deliveries, delivery{recipients: recipients, msg: msg})
}

func newTestDispatcher() (*Dispatcher, *recordingSink) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := &recordingSink{}
	return NewDispatcher(sink, logrus.NewEntry(logger)), sink
}

func TestPolicyFor(t *testing.T) {
	cases := map[Kind]Policy{
		KindPresence:  RoomAll,
		KindOperation: RoomAll,
		KindRedraw:    RoomAll,
		KindCursor:    RoomOthers,
		KindLoad:      SenderOnly,
		KindSelf:      SenderOnly,
		KindError:     SenderOnly,
	}
	for kind, want := range cases {
		assert.Equal(t, want, PolicyFor(kind), string(kind))
	}
}

func TestRecipients(t *testing.T) {
	members := []string{"a", "b", "c"}

	assert.Equal(t, []string{"a", "b", "c"}, Recipients(RoomAll, members, "b"))
	assert.Equal(t, []string{"a", "c"}, Recipients(RoomOthers, members, "b"))
	assert.Equal(t, []string{"b"}, Recipients(SenderOnly, members, "b"))
	assert.Equal(t, []string{"x"}, Recipients(SenderOnly, nil, "x"))
	assert.Nil(t, Recipients(SenderOnly, members, ""))
	assert.Empty(t, Recipients(RoomOthers, []string{"b"}, "b"))
}

func TestRecipientsDoesNotAliasMembers(t *testing.T) {
	members := []string{"a", "b"}
	out := Recipients(RoomAll, members, "")
	out[0] = "z"
	assert.Equal(t, "a", members[0])
}

func TestDispatchRoutesByKind(t *testing.T) {
	d, sink := newTestDispatcher()
	members := []string{"a", "b", "c"}

	d.Dispatch(members, "a", Message{Kind: KindOperation, Room: "123456"})
	d.Dispatch(members, "a", Message{Kind: KindCursor, Room: "123456"})
	d.Dispatch(members, "a", Message{Kind: KindLoad, Room: "123456"})

	require.Len(t, sink.deliveries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, sink.deliveries[0].recipients)
	assert.Equal(t, []string{"b", "c"}, sink.deliveries[1].recipients)
	assert.Equal(t, []string{"a"}, sink.deliveries[2].recipients)
	assert.Equal(t, KindLoad, sink.deliveries[2].msg.Kind)
}

func TestDispatchSkipsEmptyAudience(t *testing.T) {
	d, sink := newTestDispatcher()

	got := d.Dispatch([]string{"a"}, "a", Message{Kind: KindCursor})

	assert.Nil(t, got)
	assert.Empty(t, sink.deliveries)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "room-all", RoomAll.String())
	assert.Equal(t, "room-others", RoomOthers.String())
	assert.Equal(t, "sender-only", SenderOnly.String())
	assert.Equal(t, "unknown", Policy(42).String())
}
