// Package scheduler runs a job on a fixed interval until its context ends or it
// is stopped.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"awakenfetch/pkg/types/scheduler"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSchedulerConfig = errors.New("invalid scheduler config")
	ErrAlreadyStarted         = errors.New("scheduler already started")
)

var _ scheduler.Scheduler = (*Scheduler)(nil)

// Job is one scheduled run. ctx is canceled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	name     string
	interval time.Duration
	ctx      context.Context
	logger   *slog.Logger
	job      Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

type Option func(*Scheduler)

func WithName(name string) Option {
	return func(s *Scheduler) {
		s.name = name
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		s.ctx = ctx
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func WithJob(job Job) Option {
	return func(s *Scheduler) {
		s.job = job
	}
}

func (s *Scheduler) IsValid() error {
	switch {
	case s.ctx == nil:
		return errors.Wrap(ErrInvalidSchedulerConfig, "ctx cannot be nil")
	case s.logger == nil:
		return errors.Wrap(ErrInvalidSchedulerConfig, "logger cannot be nil")
	case s.interval <= 0:
		return errors.Wrap(ErrInvalidSchedulerConfig, "interval must be positive")
	case s.job == nil:
		return errors.Wrap(ErrInvalidSchedulerConfig, "job cannot be nil")
	default:
		return nil
	}
}

func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{name: "job"}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.IsValid(); err != nil {
		return nil, err
	}
	s.logger = s.logger.With("scheduler", s.name)
	return s, nil
}

// Start launches the loop. The first run happens one interval after Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.job(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled job failed", "interval", s.interval, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the loop and waits for a run in progress to return. It is safe
// to call more than once or before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
