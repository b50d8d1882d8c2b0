// ABOUTME: Adapter between HTTP-triggered requests and the engine's asynchronous pipeline.
// ABOUTME: Tracks pending requests by event ID and routes output units to their consumer.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// unitBuffer is the per-request channel depth. Once full, engine emits block
// until the consumer catches up: production is paused, never dropped.
const unitBuffer = 16

// pending tracks one in-flight request's output channel and cancellation state.
type pending struct {
	ch     chan *Unit
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// close releases the pending request. Safe to call multiple times.
func (p *pending) close() {
	p.once.Do(func() {
		close(p.done)
		p.cancel()
	})
}

// Adapter translates inbound requests into engine events and exposes each
// request's output as a finite, ordered, cancellable unit channel.
type Adapter struct {
	engine Submitter
	mu     sync.RWMutex
	reqs   map[string]*pending
	logger *slog.Logger
}

// NewAdapter creates an Adapter submitting into the given engine.
func NewAdapter(engine Submitter, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		engine: engine,
		reqs:   make(map[string]*pending),
		logger: logger.With("component", "engine"),
	}
}

// Submit forwards the request into the engine and returns the channel its
// output units arrive on. The channel is owned by exactly one consumer and is
// terminated by a KindEnd or KindError unit. The caller must call Cancel with
// the request's event ID once a terminal unit is observed or the request is
// abandoned.
//
// Returns ErrUnavailable (possibly wrapped) if the engine cannot accept the
// work, or ErrPayloadRejected if it refuses the content.
func (a *Adapter) Submit(ctx context.Context, req *Request) (<-chan *Unit, error) {
	if a.engine == nil {
		return nil, ErrUnavailable
	}

	evCtx, cancel := context.WithCancel(ctx)
	p := &pending{
		ch:     make(chan *Unit, unitBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	a.mu.Lock()
	a.reqs[req.EventID] = p
	a.mu.Unlock()

	ev := &Event{
		Request: *req,
		ctx:     evCtx,
		adapter: a,
	}

	if err := a.engine.Submit(ev); err != nil {
		a.Cancel(req.EventID)
		switch {
		case isKnown(err):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	a.logger.Debug("request submitted",
		"event_id", req.EventID,
		"session_id", req.SessionID,
	)

	return p.ch, nil
}

// Cancel signals cancellation for the request with the given event ID and
// releases its resources. The engine observes cancellation via the event
// context; subsequent deliveries return ErrEventClosed. Cancelling more than
// once, or cancelling an unknown ID, has no effect.
func (a *Adapter) Cancel(eventID string) {
	a.mu.Lock()
	p, ok := a.reqs[eventID]
	if ok {
		delete(a.reqs, eventID)
	}
	a.mu.Unlock()

	if ok {
		p.close()
		a.logger.Debug("request closed", "event_id", eventID)
	}
}

// Pending returns the number of in-flight requests.
func (a *Adapter) Pending() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.reqs)
}

// deliver routes a unit to the request's consumer channel. It blocks while
// the channel is full, pausing engine production until the consumer catches
// up or the request is cancelled.
func (a *Adapter) deliver(eventID string, u *Unit) error {
	a.mu.RLock()
	p, ok := a.reqs[eventID]
	a.mu.RUnlock()

	if !ok {
		return ErrEventClosed
	}

	select {
	case p.ch <- u:
		return nil
	case <-p.done:
		return ErrEventClosed
	}
}

// isKnown reports whether the error already carries one of the adapter's
// sentinel kinds.
func isKnown(err error) bool {
	for _, sentinel := range []error{ErrUnavailable, ErrPayloadRejected, ErrInternal} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
