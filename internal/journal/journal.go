package journal

import (
	"context"
	"sync"
	"time"

	"github.com/manpreetbhatti/easel/internal/db"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/sirupsen/logrus"
)

type Config struct {
	FlushInterval time.Duration
	BatchSize     int
	QueueSize     int
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		BatchSize:     64,
		QueueSize:     1024,
	}
}

// Store is where finished sessions end up
type Store interface {
	SaveSessions(ctx context.Context, sessions []db.RoomSession) error
}

// Service records room lifecycle events in the background. It implements
// room.Observer; the observer calls never block, and events are dropped
// with a warning if the queue is full.
type Service struct {
	store  Store
	config Config
	events chan db.RoomSession
	stop   chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry

	mu      sync.Mutex
	dropped int
	written int
}

func New(store Store, config Config, log *logrus.Entry) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Service{
		store:  store,
		config: config,
		events: make(chan db.RoomSession, config.QueueSize),
		stop:   make(chan struct{}),
		log:    log.WithField("component", "journal"),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Infof("Journal started (interval: %v, batch: %d)", s.config.FlushInterval, s.config.BatchSize)
}

// Stop flushes whatever is queued and waits for the writer to exit
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info("Journal stopped")
}

func (s *Service) RoomCreated(code string, at time.Time) {
	s.log.WithField("room", code).Debug("New room created")
}

func (s *Service) RoomDeleted(summary room.Summary) {
	session := db.RoomSession{
		RoomCode:         summary.Code,
		OpenedAt:         summary.CreatedAt,
		ClosedAt:         summary.ClosedAt,
		Operations:       summary.Operations,
		FinalHistorySize: summary.HistorySize,
		PeakParticipants: summary.PeakParticipants,
	}

	select {
	case s.events <- session:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.log.WithField("room", summary.Code).Warn("Journal queue full, dropping session record")
	}
}

// Stats reports how many records were written and dropped so far
func (s *Service) Stats() (written, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]db.RoomSession, 0, s.config.BatchSize)

	for {
		select {
		case <-s.stop:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					s.flush(batch)
					return
				}
			}
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= s.config.BatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		}
	}
}

func (s *Service) flush(batch []db.RoomSession) []db.RoomSession {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.SaveSessions(ctx, batch); err != nil {
		s.log.WithError(err).Errorf("Failed to save %d session records", len(batch))
		return batch[:0]
	}

	s.mu.Lock()
	s.written += len(batch)
	s.mu.Unlock()
	s.log.Debugf("Saved %d session records", len(batch))
	return batch[:0]
}

var _ room.Observer = (*Service)(nil)
