// Package startup brings up external dependencies in dependency order and
// shuts them down in reverse.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
)

type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies map[string]Dependency
	order        []string
	started      []string
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	initialWait  time.Duration
}

func NewStartup(logger ectologger.Logger, maxAttempts int, initialWait time.Duration) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialWait <= 0 {
		initialWait = time.Second
	}
	return &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		initialWait:  initialWait,
	}
}

func (s *Startup) AddDependency(dependency Dependency) {
	name := dependency.GetName()
	if _, ok := s.dependencies[name]; !ok {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start starts every dependency, retrying the whole set with exponential
// backoff. Dependencies already started are not restarted.
func (s *Startup) Start(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialWait
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)
		for _, name := range s.order {
			if err := s.start(ctx, name, nil); err != nil {
				return err
			}
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			s.logger.WithError(err).Warnf("Startup attempt %d failed, retrying in %s", attempt, wait)
		})
	if err != nil {
		return fmt.Errorf("startup failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *Startup) start(ctx context.Context, name string, path []string) error {
	dependency, ok := s.dependencies[name]
	if !ok {
		return backoff.Permanent(fmt.Errorf("unknown dependency %q", name))
	}
	if s.statuses[name] == StatusStarted {
		return nil
	}
	for _, p := range path {
		if p == name {
			return backoff.Permanent(fmt.Errorf("dependency cycle at %q", name))
		}
	}

	for _, dep := range dependency.DependsOn() {
		if err := s.start(ctx, dep, append(path, name)); err != nil {
			return err
		}
	}

	log := s.logger.WithField("dependency", name)
	log.Infof("Starting dependency '%s'", name)
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		log.WithError(err).Errorf("Failed to start dependency '%s'", name)
		return err
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop stops started dependencies in the reverse of their start order.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		log := s.logger.WithField("dependency", name)
		log.Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StatusStopped
	}
	s.started = nil
	return firstErr
}

// Func adapts plain functions to a Dependency.
type Func struct {
	Name     string
	Requires []string
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
}

func (f Func) GetName() string { return f.Name }
func (f Func) DependsOn() []string { return f.Requires }

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
