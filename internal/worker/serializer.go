package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docsync/internal/metrics"
	"docsync/internal/models"

	"github.com/rs/zerolog"
)

var errNilTask = errors.New("nil write task")

// Serializer runs write tasks one at a time in submission order. A failed
// task never stops the chain.
type Serializer struct {
	mu     sync.Mutex
	tail   <-chan struct{}
	logger *zerolog.Logger
}

func NewSerializer(logger *zerolog.Logger) *Serializer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Serializer{logger: logger}
}

// Handle tracks one submitted task.
type Handle struct {
	task *WriteTask
	done chan struct{}
	err  error
}

// Task returns the submitted task.
func (h *Handle) Task() *WriteTask { return h.task }

// Done is closed once the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task error. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx ends. If ctx ends first the
// task keeps running and ctx.Err() is returned.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit appends task to the chain and returns immediately.
func (s *Serializer) Submit(task *WriteTask) *Handle {
	h := &Handle{task: task, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.tail
	s.tail = h.done
	s.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		h.err = s.execute(task)
		close(h.done)
	}()

	return h
}

func (s *Serializer) execute(task *WriteTask) (err error) {
	if task == nil {
		s.logger.Error().Msg("write task rejected: nil task")
		return errNilTask
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write task panicked: %v", r)
		}
		if err != nil {
			metrics.IncWriteTask(models.OutcomeFailed)
			s.logger.Error().Err(err).
				Str("task_id", task.ID).
				Int("attempt", task.Attempts()).
				Msg("write task failed")
			return
		}
		metrics.IncWriteTask(models.OutcomeCommitted)
		s.logger.Debug().Str("task_id", task.ID).Int("attempt", task.Attempts()).Msg("write task committed")
	}()

	// Submitted tasks always run to completion.
	return task.execute(context.Background())
}

// Flush waits until every task submitted so far has finished.
func (s *Serializer) Flush(ctx context.Context) error {
	s.mu.Lock()
	tail := s.tail
	s.mu.Unlock()

	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
