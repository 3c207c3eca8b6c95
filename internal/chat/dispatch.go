package chat

import (
	"fmt"
	"sync"
)

type dispatchResult struct {
	value any
	err   error
}

// dispatcher serializes all core state changes onto a single goroutine.
//
// Transport callbacks, timer expiries and user actions all arrive from
// different goroutines; funneling them through one queue gives the core its
// single-threaded, strictly-ordered processing model without per-component
// locking.
type dispatcher struct {
	q      chan func()
	stopCh chan struct{}

	mu      sync.Mutex
	stopped bool
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q:      make(chan func(), queueSize),
		stopCh: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.stopCh:
			return
		case fn := <-d.q:
			if fn != nil {
				fn()
			}
		}
	}
}

// do enqueues fn for execution on the dispatch goroutine.
func (d *dispatcher) do(fn func()) error {
	if fn == nil {
		return nil
	}
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return fmt.Errorf("dispatcher stopped")
	}

	select {
	case d.q <- fn:
		return nil
	case <-d.stopCh:
		return fmt.Errorf("dispatcher stopped")
	}
}

// call runs fn on the dispatch goroutine and waits for its result.
func (d *dispatcher) call(fn func() (any, error)) (any, error) {
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	if err := d.do(func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	}); err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res.value, res.err
	case <-d.stopCh:
		return nil, fmt.Errorf("dispatcher stopped")
	}
}

// stop shuts the dispatch goroutine down. Queued work is dropped.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	close(d.stopCh)
}
