package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// TaskFunc performs the side effects of one write.
type TaskFunc func(ctx context.Context) error

// WriteTask is one remote write plus one cache write. A task is owned by a
// single holder at a time: the serializer chain while it runs, the retry
// queue while it waits.
type WriteTask struct {
	ID string
	// LastUpdatedAt is the timestamp of the document the task writes.
	LastUpdatedAt int64

	attempts int
	run      TaskFunc
}

func NewWriteTask(lastUpdatedAt int64, run TaskFunc) *WriteTask {
	return &WriteTask{
		ID:            uuid.NewString(),
		LastUpdatedAt: lastUpdatedAt,
		run:           run,
	}
}

// Attempts reports how many times the task has been executed.
func (t *WriteTask) Attempts() int {
	return t.attempts
}

func (t *WriteTask) execute(ctx context.Context) error {
	t.attempts++
	if t.run == nil {
		return errors.New("write task has no body")
	}
	return t.run(ctx)
}
