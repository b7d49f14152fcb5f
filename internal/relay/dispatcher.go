package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rcrelay/rcrelay/internal/control"
)

// DefaultQueueSize bounds the dispatcher when no size is configured.
const DefaultQueueSize = 32

// ErrClosed is returned by Post after Close, and by Next once the sentinel
// has been consumed.
var ErrClosed = errors.New("dispatcher closed")

type item struct {
	cmd  control.Command
	stop bool
}

// Dispatcher is the single ordered conduit between producers (sampler,
// network receiver, console) and the one send loop. Post never blocks: when
// the queue is full the oldest pending command is dropped.
type Dispatcher struct {
	mu     sync.Mutex
	queue  chan item
	closed bool
	done   bool

	dropped atomic.Uint64
	posted  atomic.Uint64
}

func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	// One extra slot so the sentinel always fits.
	return &Dispatcher{queue: make(chan item, size+1)}
}

// Post enqueues c behind everything posted before it.
func (d *Dispatcher) Post(c control.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for {
		// The last slot is reserved for the sentinel.
		if len(d.queue) < cap(d.queue)-1 {
			d.queue <- item{cmd: c}
			d.posted.Add(1)
			return nil
		}
		select {
		case <-d.queue:
			d.dropped.Add(1)
		default:
		}
	}
}

// Close enqueues the shutdown sentinel. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.queue <- item{stop: true}
}

// Next blocks for the next command. It returns ErrClosed when the sentinel
// is reached and on every call after that, or ctx.Err() if ctx ends first.
// Next must only be called from one goroutine.
func (d *Dispatcher) Next(ctx context.Context) (control.Command, error) {
	if d.done {
		return control.Command{}, ErrClosed
	}
	select {
	case it := <-d.queue:
		if it.stop {
			d.done = true
			return control.Command{}, ErrClosed
		}
		return it.cmd, nil
	case <-ctx.Done():
		return control.Command{}, ctx.Err()
	}
}

// Len is the number of commands waiting.
func (d *Dispatcher) Len() int { return len(d.queue) }

// Dropped counts commands discarded to make room for newer ones.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Posted counts commands accepted by Post.
func (d *Dispatcher) Posted() uint64 { return d.posted.Load() }
