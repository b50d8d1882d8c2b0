// ABOUTME: SSE relay state machine for the streaming message path
// ABOUTME: Serializes engine output units as typed SSE events in arrival order

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/observability"
)

// relayState tracks where a streaming request is in its lifecycle.
type relayState int

const (
	stateConnecting relayState = iota
	stateStreaming
	stateEnded
	stateTimedOut
	stateDisconnected
	stateFailed
)

// String returns the state name for logging.
func (s relayState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateEnded:
		return "ended"
	case stateTimedOut:
		return "timed_out"
	case stateDisconnected:
		return "client_disconnected"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// relay drives one SSE streaming request. It owns the unit channel for the
// duration of the stream and guarantees exactly one terminal event reaches
// the client (or none, on disconnect).
type relay struct {
	gateway   *Gateway
	w         http.ResponseWriter
	flusher   http.Flusher
	heartbeat time.Duration
	state     relayState
}

// newRelay creates a relay in the connecting state.
func (g *Gateway) newRelay(w http.ResponseWriter, flusher http.Flusher) *relay {
	return &relay{
		gateway:   g,
		w:         w,
		flusher:   flusher,
		heartbeat: g.config.Stream.Heartbeat,
		state:     stateConnecting,
	}
}

// run executes the full state machine: emits the connected event, relays
// units until a terminal condition, and returns the terminal state. The
// cancel callback must be idempotent; it is invoked on timeout and on client
// disconnect, possibly racing with normal completion.
func (r *relay) run(ctx context.Context, eventID, sessionID string, units <-chan *engine.Unit, cancel func()) relayState {
	r.emit("connected", map[string]string{"event_id": eventID, "session_id": sessionID})
	r.state = stateStreaming

	// Zero heartbeat disables keepalive comments. The timer measures idle
	// time, not wall time: every relayed unit pushes it back, so busy
	// streams carry no comments.
	var idle *time.Timer
	var idleC <-chan time.Time
	if r.heartbeat > 0 {
		idle = time.NewTimer(r.heartbeat)
		defer idle.Stop()
		idleC = idle.C
	}

	for r.state == stateStreaming {
		select {
		case <-ctx.Done():
			r.finishCancelled(ctx, cancel)

		case <-idleC:
			// SSE comment line keeps idle proxies from dropping the stream
			fmt.Fprintf(r.w, ": heartbeat %d\n\n", time.Now().Unix())
			r.flusher.Flush()
			idle.Reset(r.heartbeat)

		case u, ok := <-units:
			if !ok {
				// A closed channel can race a cancellation; the context
				// decides which terminal event the client sees.
				if ctx.Err() != nil {
					r.finishCancelled(ctx, cancel)
					break
				}
				cancel()
				r.emit("error", map[string]string{"error": "engine output ended unexpectedly"})
				r.state = stateFailed
				break
			}
			r.relayUnit(u)
			if idle != nil {
				idle.Reset(r.heartbeat)
			}
		}
	}

	return r.state
}

// finishCancelled handles deadline expiry and client disconnect uniformly.
func (r *relay) finishCancelled(ctx context.Context, cancel func()) {
	cancel()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		observability.EngineTimeoutsTotal.Inc()
		r.emit("timeout", map[string]string{})
		r.state = stateTimedOut
	} else {
		// Peer is gone, nothing left to write
		r.state = stateDisconnected
	}
}

// relayUnit emits one unit as its SSE event and advances the state machine
// on terminal markers.
func (r *relay) relayUnit(u *engine.Unit) {
	observability.EngineUnitsTotal.WithLabelValues(u.Kind.String()).Inc()

	switch u.Kind {
	case engine.KindChunk:
		r.emit("stream", map[string]string{"chunk": u.Text})

	case engine.KindText:
		r.emit("message", map[string]string{"content": u.Text})

	case engine.KindComponent:
		r.emit("message", map[string]json.RawMessage{"content": u.Component})

	case engine.KindEnd:
		r.emit("end", map[string]string{})
		r.state = stateEnded

	case engine.KindError:
		r.emit("error", map[string]string{"error": u.Err})
		r.state = stateFailed
	}
}

// emit writes a single SSE event and flushes it to the client.
func (r *relay) emit(event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		r.gateway.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(r.w, "event: %s\n", event)
	fmt.Fprintf(r.w, "data: %s\n\n", dataJSON)
	r.flusher.Flush()
}
