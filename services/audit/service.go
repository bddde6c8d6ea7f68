// Package audit records access events off the request path.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when events are recorded before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")

	// ErrBufferFull is returned when the event buffer cannot take more events
	ErrBufferFull = errors.New("audit event buffer full")
)

// Config holds configuration for the Service
type Config struct {
	BufferSize   int
	WorkerCount  int
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1024,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// Service writes audit logs to the repository from a pool of workers.
type Service struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
	cfg    Config

	mu      sync.RWMutex
	events  chan *models.AuditLog
	started bool
	wg      sync.WaitGroup
}

// NewService creates a Service. Call Start before recording.
func NewService(repo repositories.AuditRepository, logger *zap.Logger, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, cfg: cfg}
}

// Start launches the workers.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	s.events = make(chan *models.AuditLog, s.cfg.BufferSize)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i, s.events)
	}
	s.started = true

	s.logger.Info("started audit service",
		zap.Int("worker_count", s.cfg.WorkerCount),
		zap.Int("buffer_size", s.cfg.BufferSize))
	return nil
}

// Stop drains queued events and waits for the workers, up to ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	pending := len(s.events)
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit service stop: %w", ctx.Err())
	}
}

// Record queues an event without blocking. Full buffers drop the event.
func (s *Service) Record(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	select {
	case s.events <- log:
		return nil
	default:
		s.logger.Warn("audit event buffer full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("user_id", log.UserID))
		return ErrBufferFull
	}
}

// Pending returns the number of queued events.
func (s *Service) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0
	}
	return len(s.events)
}

func (s *Service) worker(id int, events <-chan *models.AuditLog) {
	defer s.wg.Done()

	for log := range events {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err := s.repo.Insert(ctx, log)
		cancel()
		if err != nil {
			s.logger.Error("failed to write audit event",
				zap.Int("worker_id", id),
				zap.String("action", string(log.Action)),
				zap.String("user_id", log.UserID),
				zap.Error(err))
		}
	}
}
