package service

import (
	"context"
	"sync"
)

// paymentLocks serializes transition work per payment id. Deliveries for
// different payments proceed in parallel; a second delivery for the same
// payment waits until the first commits or the caller's context expires.
type paymentLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newPaymentLocks() *paymentLocks {
	return &paymentLocks{locks: make(map[string]*lockEntry)}
}

func (l *paymentLocks) acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(id, e)
		return ctx.Err()
	}
}

func (l *paymentLocks) release(id string) {
	l.mu.Lock()
	e, ok := l.locks[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	l.drop(id, e)
}

func (l *paymentLocks) drop(id string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}
