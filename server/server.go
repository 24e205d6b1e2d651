// Package server coordinates the lifecycle of a BLE peripheral server: a
// run-state/health-state machine around an asynchronous startup, a
// thread-safe queue of data-change notifications, and the consumer loop
// that hands queued records to the GATT layer.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blip/internal/groutine"
)

var (
	// ErrInitTimeout reports that asynchronous initialization did not
	// complete within Options.MaxAsyncInitTimeout.
	ErrInitTimeout = errors.New("initialization timed out")

	// ErrAlreadyStarted reports a second Start call on the same server.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrShutdownRequested reports that shutdown was triggered before
	// initialization completed.
	ErrShutdownRequested = errors.New("shutdown requested during initialization")
)

// Initializer performs the application's asynchronous startup work
// (adapter configuration, object registration). It runs on its own
// goroutine; returning an error fails the start.
type Initializer func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	// ServiceName identifies the server toward the object broker.
	ServiceName string

	AdvertisingName      string
	AdvertisingShortName string

	// MaxAsyncInitTimeout bounds how long Initializing may last before
	// the start is forced to fail.
	MaxAsyncInitTimeout time.Duration

	// PollInterval paces the run loop's queue consumption.
	PollInterval time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		ServiceName:         "blip",
		MaxAsyncInitTimeout: 5 * time.Second,
		PollInterval:        100 * time.Millisecond,
	}
}

// Server is the lifecycle state machine and update-queue consumer. State
// queries are safe from any goroutine at any time and never block; writes
// are serialized through the goroutine driving Start and shutdown.
type Server struct {
	opts     *Options
	queue    *UpdateQueue
	data     DataAccessor
	notifier Notifier
	init     Initializer
	logger   *logrus.Logger

	mu       sync.RWMutex
	runState RunState
	health   HealthState

	objectsMu sync.Mutex
	objects   *orderedmap.OrderedMap[string, string]

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneOnce sync.Once
	doneChan chan struct{}
}

// New creates a server. data and notifier are the external collaborators;
// init is the application's asynchronous startup work and may be nil.
func New(opts *Options, data DataAccessor, notifier Notifier, init Initializer, logger *logrus.Logger) *Server {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.MaxAsyncInitTimeout <= 0 {
		opts.MaxAsyncInitTimeout = DefaultOptions().MaxAsyncInitTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		opts:     opts,
		queue:    NewUpdateQueue(),
		data:     data,
		notifier: notifier,
		init:     init,
		logger:   logger,
		objects:  orderedmap.New[string, string](),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Queue exposes the update notification queue to producers.
func (s *Server) Queue() *UpdateQueue { return s.queue }

// RunState returns the current lifecycle phase without blocking.
func (s *Server) RunState() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState
}

// Health returns the current health without blocking. Health is only
// meaningful after shutdown: a running server is always HealthOk.
func (s *Server) Health() HealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// IsRunning reports whether the server is in the Running phase.
func (s *Server) IsRunning() bool { return s.RunState() == Running }

// RegisterObject records a notifiable entity (object path → interface
// name). Registered objects are announced, in registration order, when the
// server reaches Running. Registering an existing path updates its
// interface name in place.
func (s *Server) RegisterObject(objectPath, interfaceName string) {
	s.objectsMu.Lock()
	s.objects.Set(objectPath, interfaceName)
	s.objectsMu.Unlock()
}

// PushUpdate announces that the entity at objectPath changed. Safe from
// any goroutine. Returns false for object paths that cannot cross the
// process boundary (embedded NUL).
func (s *Server) PushUpdate(objectPath, interfaceName string) bool {
	if !validObjectPath(objectPath) {
		return false
	}
	s.queue.Push(objectPath, interfaceName)
	return true
}

// NotifyUpdatedCharacteristic announces a changed characteristic value.
func (s *Server) NotifyUpdatedCharacteristic(objectPath string) bool {
	return s.PushUpdate(objectPath, InterfaceCharacteristic)
}

// NotifyUpdatedDescriptor announces a changed descriptor value.
func (s *Server) NotifyUpdatedDescriptor(objectPath string) bool {
	return s.PushUpdate(objectPath, InterfaceDescriptor)
}

// Start runs the initializer asynchronously and blocks until it completes,
// fails, or Options.MaxAsyncInitTimeout elapses. On success the run loop
// is started in the background and Start returns nil. On timeout or
// initialization error the server transitions straight to Stopped with
// health HealthFailedInit.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// A shutdown requested before Start wins outright; do not spawn the
	// initializer and race it against the closed stop channel.
	select {
	case <-s.stopChan:
		s.setState(Stopping)
		s.setState(Stopped)
		s.finish()
		return ErrShutdownRequested
	default:
	}

	s.setState(Initializing)
	s.logger.WithFields(logrus.Fields{
		"service":      s.opts.ServiceName,
		"init_timeout": s.opts.MaxAsyncInitTimeout,
	}).Info("server starting")

	errc := make(chan error, 1)
	groutine.Go(ctx, "server-init", func(ctx context.Context) {
		if s.init == nil {
			errc <- nil
			return
		}
		errc <- s.init(ctx)
	})

	timer := time.NewTimer(s.opts.MaxAsyncInitTimeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			s.failStart(fmt.Errorf("initialization failed: %w", err))
			return err
		}
	case <-timer.C:
		s.failStart(ErrInitTimeout)
		return ErrInitTimeout
	case <-s.stopChan:
		s.setState(Stopping)
		s.setState(Stopped)
		s.finish()
		return ErrShutdownRequested
	case <-ctx.Done():
		s.failStart(fmt.Errorf("initialization cancelled: %w", ctx.Err()))
		return ctx.Err()
	}

	s.setState(Running)
	s.announceObjects()
	groutine.Go(ctx, "server-loop", s.runLoop)
	return nil
}

// TriggerShutdown requests a transition to Stopping without blocking. It
// is idempotent and safe to call from any goroutine in any state.
func (s *Server) TriggerShutdown() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if !s.started.Load() {
			// Nothing is running; resolve Wait immediately.
			s.setState(Stopped)
			s.finish()
		}
	})
}

// Wait blocks until the server reaches Stopped and returns an error
// reflecting degraded health, or nil for a clean shutdown.
func (s *Server) Wait() error {
	<-s.doneChan
	if h := s.Health(); h != HealthOk {
		return fmt.Errorf("server stopped unhealthy: %s", h)
	}
	return nil
}

// ShutdownAndWait triggers shutdown and blocks until completion.
func (s *Server) ShutdownAndWait() error {
	s.TriggerShutdown()
	return s.Wait()
}

func (s *Server) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.logger.Info("server shutting down")
			s.setState(Stopping)
			s.setState(Stopped)
			s.finish()
			return
		case <-ctx.Done():
			s.logger.WithError(ctx.Err()).Info("server context cancelled")
			s.setState(Stopping)
			s.setState(Stopped)
			s.finish()
			return
		case <-ticker.C:
			if fatal := s.drainQueue(); fatal {
				s.degrade(HealthFailedRun)
				s.setState(Stopping)
				s.setState(Stopped)
				s.finish()
				return
			}
		}
	}
}

// drainQueue pops every waiting record and hands it to the notifier along
// with the current value from the data accessor. Returns true on a fatal
// notifier error.
func (s *Server) drainQueue() bool {
	for {
		rec, ok := s.queue.Pop(false)
		if !ok {
			return false
		}

		var value any
		if s.data != nil {
			value, _ = s.data.Get(rec.ObjectPath)
		}

		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Notify(rec, value); err != nil {
			var fe *FatalError
			if errors.As(err, &fe) {
				s.logger.WithError(fe.Err).WithField("path", rec.ObjectPath).
					Error("fatal notification failure, stopping server")
				return true
			}
			s.logger.WithError(err).WithField("path", rec.ObjectPath).
				Warn("failed to emit change notification")
		}
	}
}

// announceObjects pushes one update per registered object, in registration
// order, so remote clients see a consistent initial state.
func (s *Server) announceObjects() {
	s.objectsMu.Lock()
	defer s.objectsMu.Unlock()
	// The queue pops most-recent-first, so pushing newest-first makes the
	// drain deliver registration order.
	for pair := s.objects.Newest(); pair != nil; pair = pair.Prev() {
		s.queue.Push(pair.Key, pair.Value)
	}
}

func (s *Server) failStart(err error) {
	s.logger.WithError(err).Error("server failed to start")
	s.degrade(HealthFailedInit)
	s.setState(Stopping)
	s.setState(Stopped)
	s.finish()
}

// setState advances the run state. Transitions are forward-only and
// Stopped is terminal; regressions are ignored.
func (s *Server) setState(next RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next <= s.runState || s.runState == Stopped {
		return
	}
	prev := s.runState
	s.runState = next
	s.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   next.String(),
	}).Debug("run state changed")
}

// degrade records a health failure. Health is monotonic: the first failure
// sticks for the lifetime of the instance.
func (s *Server) degrade(h HealthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health == HealthOk {
		s.health = h
	}
}

func (s *Server) finish() {
	s.doneOnce.Do(func() { close(s.doneChan) })
}
