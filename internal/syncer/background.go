package syncer

import (
	"context"
	"sync"
)

// background tracks goroutines the engine starts on its own behalf. Unlike a
// WaitGroup, starting work and waiting for idle may happen concurrently.
type background struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (b *background) Go(fn func()) {
	b.mu.Lock()
	if b.n == 0 {
		b.idle = make(chan struct{})
	}
	b.n++
	b.mu.Unlock()

	go func() {
		defer b.done()
		fn()
	}()
}

func (b *background) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n--
	if b.n == 0 {
		close(b.idle)
	}
}

// Wait blocks until no tracked goroutine is running or ctx ends.
func (b *background) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.n == 0 {
		b.mu.Unlock()
		return nil
	}
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
