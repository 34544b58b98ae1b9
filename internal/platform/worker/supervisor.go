// Package worker runs detached background tasks keyed by job id. Each
// task gets its own cancellable context, so a user-initiated reset or a
// server shutdown can stop an in-flight conversion instead of leaking
// the goroutine.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor tracks running tasks and owns their lifecycles. Tasks are
// detached from the request context that started them.
type Supervisor struct {
	logger zerolog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewSupervisor(logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		logger:  logger.With().Str("component", "worker").Logger(),
		running: map[uuid.UUID]context.CancelFunc{},
	}
}

// Start launches fn in a new goroutine under a fresh context. It fails
// if a task with the same id is already running. Panics inside fn are
// recovered and logged so one bad job cannot take the process down.
func (s *Supervisor) Start(jobID uuid.UUID, fn func(ctx context.Context)) error {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if _, ok := s.running[jobID]; ok {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("task %s is already running", jobID)
	}
	s.running[jobID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str("job_id", jobID.String()).
					Msg("background task panicked")
			}
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
			cancel()
			s.wg.Done()
		}()
		fn(ctx)
	}()
	return nil
}

// Cancel stops a running task. It reports whether a task was found.
func (s *Supervisor) Cancel(jobID uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info().Str("job_id", jobID.String()).Msg("background task cancelled")
	}
	return ok
}

// Running reports whether a task with the given id is in flight.
func (s *Supervisor) Running(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	return ok
}

// Count returns the number of in-flight tasks.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels every running task and waits for them to finish, up
// to the given grace period.
func (s *Supervisor) Shutdown(grace time.Duration) error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("background tasks did not stop within %s", grace)
	}
}
