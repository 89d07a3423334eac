// Package worker serialises work per game session. Every session gets its
// own goroutine and bounded queue; tasks for one session never overlap while
// different sessions run in parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/redis"
)

const (
	defaultQueueSize  = 16
	defaultWorkerIdle = 5 * time.Minute
)

var (
	ErrQueueFull = errors.New("session queue full")
	ErrStopped   = errors.New("session worker stopped")
)

// Task is one unit of work run on a session's goroutine.
type Task func(ctx context.Context) error

type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
}

type Option func(*Manager)

// WithRedis broadcasts session ends to other instances and listens for
// theirs.
func WithRedis(client *redis.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.broker = newSessionBroker(client)
		}
	}
}

type Manager struct {
	cfg    Config
	ctx    context.Context
	broker *sessionBroker

	mu      sync.Mutex
	workers map[string]*sessionWorker
	closed  bool
}

// NewManager builds a manager. ctx carries the logger and bounds the redis
// listener, if any.
func NewManager(ctx context.Context, cfg Config, opts ...Option) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultWorkerIdle
	}
	m := &Manager{
		cfg:     cfg,
		ctx:     ctx,
		workers: make(map[string]*sessionWorker),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.broker.startListener(ctx, func(msg sessionEndMessage) {
		log.FromCtx(ctx).Debug().Str("session_id", msg.SessionID).Msg("session end received")
		m.Stop(msg.SessionID)
	})
	return m
}

// Submit queues fn on the session's goroutine and waits for its result.
// A full queue is reported immediately as ErrQueueFull. When ctx ends first
// the task is skipped if it has not started yet.
func (m *Manager) Submit(ctx context.Context, sessionID string, fn Task) error {
	done := make(chan error, 1)
	if err := m.enqueue(sessionID, job{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue holds the lock while sending so an expiring worker never misses a
// job.
func (m *Manager) enqueue(sessionID string, j job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStopped
	}
	w, ok := m.workers[sessionID]
	if !ok {
		w = newSessionWorker(sessionID, m.cfg.QueueSize)
		m.workers[sessionID] = w
		go m.runWorker(w)
	}
	select {
	case w.taskCh <- j:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, sessionID)
	}
}

// Stop ends the session's worker. Queued tasks fail with ErrStopped; a task
// already running is allowed to finish.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	w, ok := m.workers[sessionID]
	if ok {
		delete(m.workers, sessionID)
		w.stop()
	}
	m.mu.Unlock()
}

// EndSession stops the local worker and tells other instances to do the same.
func (m *Manager) EndSession(ctx context.Context, sessionID string) {
	m.Stop(sessionID)
	m.broker.publishSessionEnd(ctx, sessionID)
}

// Active reports how many session workers are alive.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Close stops every worker and rejects further tasks.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for id, w := range m.workers {
		delete(m.workers, id)
		w.stop()
	}
	m.mu.Unlock()
	m.broker.close()
}

func (m *Manager) runWorker(w *sessionWorker) {
	logger := log.FromCtx(m.ctx).With().Str("session_id", w.sessionID).Logger()
	logger.Debug().Msg("session worker started")

	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		// a stop wins over queued work
		select {
		case <-w.stopCh:
			w.drain(ErrStopped)
			logger.Debug().Msg("session worker stopped")
			return
		default:
		}

		select {
		case <-w.stopCh:
			w.drain(ErrStopped)
			logger.Debug().Msg("session worker stopped")
			return
		case j := <-w.taskCh:
			w.run(j)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.cfg.IdleTimeout)
		case <-idle.C:
			if m.retireIdle(w) {
				logger.Debug().Msg("session worker expired")
				return
			}
			idle.Reset(m.cfg.IdleTimeout)
		}
	}
}

// retireIdle removes w when nothing is queued for it.
func (m *Manager) retireIdle(w *sessionWorker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w.taskCh) > 0 {
		return false
	}
	if cur, ok := m.workers[w.sessionID]; ok && cur == w {
		delete(m.workers, w.sessionID)
	}
	return true
}
