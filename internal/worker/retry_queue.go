package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"docsync/internal/metrics"

	"github.com/rs/zerolog"
)

// ErrDrainInProgress is returned by Drain when another drain is already running.
var ErrDrainInProgress = errors.New("retry queue drain already in progress")

// RetryQueue holds write tasks deferred while offline or after a failure.
type RetryQueue struct {
	mu       sync.Mutex
	tasks    []*WriteTask
	draining atomic.Bool
	logger   *zerolog.Logger
}

func NewRetryQueue(logger *zerolog.Logger) *RetryQueue {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RetryQueue{logger: logger}
}

// Push appends task to the back of the queue.
func (q *RetryQueue) Push(task *WriteTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	n := len(q.tasks)
	q.mu.Unlock()
	metrics.SetQueueLength(n)
}

// PushFront puts task back at the head so it is retried next.
func (q *RetryQueue) PushFront(task *WriteTask) {
	q.mu.Lock()
	q.tasks = append([]*WriteTask{task}, q.tasks...)
	n := len(q.tasks)
	q.mu.Unlock()
	metrics.SetQueueLength(n)
}

// PopFront removes and returns the head of the queue.
func (q *RetryQueue) PopFront() (*WriteTask, bool) {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	n := len(q.tasks)
	q.mu.Unlock()
	metrics.SetQueueLength(n)
	return task, true
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// IDs lists queued task ids, head first.
func (q *RetryQueue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// Drain submits queued tasks through s one at a time, head first, waiting
// for each before taking the next. The first failure puts its task back at
// the head and ends the cycle. It returns the number of committed tasks.
func (q *RetryQueue) Drain(ctx context.Context, s *Serializer) (int, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return 0, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		task, ok := q.PopFront()
		if !ok {
			if applied > 0 {
				q.logger.Info().Int("applied", applied).Msg("retry queue drained")
			}
			return applied, nil
		}

		h := s.Submit(task)
		// Wait regardless of ctx: the task is in flight and owned by the chain.
		<-h.Done()
		if err := h.Err(); err != nil {
			q.PushFront(task)
			q.logger.Warn().Err(err).
				Str("task_id", task.ID).
				Int("remaining", q.Len()).
				Msg("retry failed, re-queued at front")
			return applied, err
		}
		applied++
	}
}
