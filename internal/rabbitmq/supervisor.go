package rabbitmq

import (
	"context"
	"time"

	"artspire/internal/constants"
	"artspire/internal/logger"
	pkgerrors "artspire/pkg/errors"
	"artspire/pkg/metrics"
)

// Runner is a long-running task the Supervisor keeps alive.
type Runner interface {
	Serve(ctx context.Context) error
}

type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Serve(ctx context.Context) error {
	return f(ctx)
}

type SupervisorOption func(*Supervisor)

func WithRestartDelay(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.restartDelay = d }
}

// WithStopTimeout bounds how long shutdown waits for the running task.
func WithStopTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.stopTimeout = d }
}

func WithSupervisorLogger(log logger.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// Supervisor runs one task at a time from factory and starts a fresh one
// whenever the previous task exits, until its context is cancelled.
type Supervisor struct {
	name         string
	factory      func() Runner
	restartDelay time.Duration
	stopTimeout  time.Duration
	log          logger.Logger
}

func NewSupervisor(name string, factory func() Runner, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		name:         name,
		factory:      factory,
		restartDelay: constants.DefaultRestartDelay,
		stopTimeout:  constants.DefaultStopTimeout,
		log:          logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled and the current task has stopped or
// failed to stop within the stop timeout. It returns nil on shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Infow("Supervisor started", "name", s.name)

	for {
		if ctx.Err() != nil {
			return nil
		}

		taskCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		runner := s.factory()
		go func() {
			done <- pkgerrors.Guard(func() error { return runner.Serve(taskCtx) })
		}()

		select {
		case err := <-done:
			cancel()
			if ctx.Err() != nil {
				s.log.Infow("Supervisor stopped", "name", s.name)
				return nil
			}
			metrics.IncSupervisorRestart(s.name)
			s.log.Errorw("Supervised task exited, restarting",
				"name", s.name,
				"restart_in", s.restartDelay.String(),
				"error", err,
			)
			if !s.sleep(ctx) {
				s.log.Infow("Supervisor stopped", "name", s.name)
				return nil
			}

		case <-ctx.Done():
			cancel()
			s.awaitStop(done)
			return nil
		}
	}
}

func (s *Supervisor) awaitStop(done <-chan error) {
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		s.log.Infow("Supervisor stopped", "name", s.name, "task_error", err)
	case <-timer.C:
		s.log.Errorw("Supervised task did not stop in time, abandoning it",
			"name", s.name,
			"severity", "critical",
			"stop_timeout", s.stopTimeout.String(),
		)
	}
}

// sleep waits out the restart delay; it reports false if ctx ended first.
func (s *Supervisor) sleep(ctx context.Context) bool {
	if s.restartDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.restartDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
