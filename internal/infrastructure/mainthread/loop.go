package mainthread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrLoopStopped = errors.New("mutation loop stopped")

// Loop is the single mutation context. Tasks run one at a time, in post
// order, on the goroutine executing Run.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	started chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	logger    zerolog.Logger
}

// New creates a loop with the given queue capacity.
func New(capacity int, logger zerolog.Logger) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		tasks:   make(chan func(), capacity),
		done:    make(chan struct{}),
		started: make(chan struct{}),
		logger:  logger.With().Str("service", "mainthread").Logger(),
	}
}

// Run drains tasks until ctx is cancelled, then runs whatever is already
// queued and returns.
func (l *Loop) Run(ctx context.Context) error {
	l.startOnce.Do(func() { close(l.started) })
	defer l.stop()
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			l.drain()
			l.logger.Info().Msg("mutation loop stopped")
			return nil
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		default:
			return
		}
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for its result.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrLoopStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	}
}

// After posts fn once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		if !l.Post(fn) {
			l.logger.Warn().Dur("delay", d).Msg("delayed task dropped, loop stopped")
		}
	})
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	fn()
}
