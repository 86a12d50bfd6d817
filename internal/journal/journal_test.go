package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/manpreetbhatti/easel/internal/db"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]db.RoomSession
	fail    bool
}

func (s *fakeStore) SaveSessions(ctx context.Context, sessions []db.RoomSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	batch := make([]db.RoomSession, len(sessions))
	copy(batch, sessions)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeStore) saved() []db.RoomSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.RoomSession
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func newTestService(store Store, config Config) (*Service, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return New(store, config, logrus.NewEntry(logger)), hook
}

func summary(code string, ops int) room.Summary {
	closed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return room.Summary{
		Code:             code,
		CreatedAt:        closed.Add(-time.Minute),
		ClosedAt:         closed,
		Operations:       ops,
		HistorySize:      ops,
		PeakParticipants: 2,
	}
}

func TestStopFlushesQueuedSessions(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestService(store, Config{FlushInterval: time.Hour, BatchSize: 100})
	s.Start()

	s.RoomDeleted(summary("111111", 3))
	s.RoomDeleted(summary("222222", 5))
	s.Stop()

	saved := store.saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "111111", saved[0].RoomCode)
	assert.Equal(t, 3, saved[0].Operations)
	assert.Equal(t, 2, saved[0].PeakParticipants)
	assert.Equal(t, summary("111111", 3).CreatedAt, saved[0].OpenedAt)

	written, dropped := s.Stats()
	assert.Equal(t, 2, written)
	assert.Equal(t, 0, dropped)
}

func TestFullBatchFlushesImmediately(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestService(store, Config{FlushInterval: time.Hour, BatchSize: 2})
	s.Start()
	defer s.Stop()

	s.RoomDeleted(summary("111111", 1))
	s.RoomDeleted(summary("222222", 1))

	assert.Eventually(t, func() bool {
		return len(store.saved()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestTickerFlushes(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestService(store, Config{FlushInterval: 20 * time.Millisecond, BatchSize: 100})
	s.Start()
	defer s.Stop()

	s.RoomDeleted(summary("111111", 1))

	assert.Eventually(t, func() bool {
		return len(store.saved()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueueFullDrops(t *testing.T) {
	store := &fakeStore{}
	s, hook := newTestService(store, Config{QueueSize: 1})

	// Not started, so nothing drains the queue
	s.RoomDeleted(summary("111111", 1))
	s.RoomDeleted(summary("222222", 1))

	_, dropped := s.Stats()
	assert.Equal(t, 1, dropped)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "222222", hook.LastEntry().Data["room"])
}

func TestStoreErrorIsLogged(t *testing.T) {
	store := &fakeStore{fail: true}
	s, hook := newTestService(store, Config{FlushInterval: time.Hour})
	s.Start()

	s.RoomDeleted(summary("111111", 1))
	s.Stop()

	written, _ := s.Stats()
	assert.Equal(t, 0, written)

	var errorsLogged int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)
}

func TestDefaultsApplied(t *testing.T) {
	s, _ := newTestService(&fakeStore{}, Config{})
	assert.Equal(t, DefaultConfig(), s.config)
}

func TestRoomCreatedLogsAtDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := New(&fakeStore{}, Config{}, logrus.NewEntry(logger))

	room.NewRegistry(room.WithObserver(s)).Do("482910", func(st *room.State) { st.Join("C1") })

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "482910", entry.Data["room"])
}

func TestRecordsRoomDeletedByRegistry(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestService(store, Config{FlushInterval: time.Hour})
	s.Start()

	rooms := room.NewRegistry(room.WithObserver(s))
	rooms.Do("482910", func(st *room.State) {
		st.Join("C1")
		st.Append(room.NewClear("op-1", "C1"))
	})
	rooms.With("482910", func(st *room.State) { st.Leave("C1") })
	require.True(t, rooms.DeleteIfEmpty("482910"))
	s.Stop()

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "482910", saved[0].RoomCode)
	assert.Equal(t, 1, saved[0].Operations)
	assert.Equal(t, 1, saved[0].PeakParticipants)
}
