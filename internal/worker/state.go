package worker

import (
	"context"
	"fmt"
	"sync"
)

type job struct {
	ctx  context.Context
	fn   Task
	done chan error
}

type sessionWorker struct {
	sessionID string
	taskCh    chan job
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newSessionWorker(sessionID string, queueSize int) *sessionWorker {
	return &sessionWorker{
		sessionID: sessionID,
		taskCh:    make(chan job, queueSize),
		stopCh:    make(chan struct{}),
	}
}

func (w *sessionWorker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// run executes one job; a cancelled caller skips it and a panic becomes its
// error.
func (w *sessionWorker) run(j job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			j.done <- fmt.Errorf("session %s task panicked: %v", w.sessionID, r)
		}
	}()
	j.done <- j.fn(j.ctx)
}

func (w *sessionWorker) drain(err error) {
	for {
		select {
		case j := <-w.taskCh:
			j.done <- err
		default:
			return
		}
	}
}
