// ABOUTME: Types shared across the engine boundary: requests, events, and output units.
// ABOUTME: Output is a finite ordered sequence of tagged units ending in an explicit marker.

package engine

import (
	"context"
	"encoding/json"
	"errors"
)

// Adapter errors. Engine implementations return wrapped sentinels from Submit
// so the front door can map them to distinct client-visible failures.
var (
	// ErrUnavailable indicates the engine cannot accept work.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrPayloadRejected indicates the engine refused the message content.
	ErrPayloadRejected = errors.New("payload rejected")

	// ErrInternal indicates a failure inside the engine while processing.
	ErrInternal = errors.New("internal engine error")

	// ErrEventClosed indicates delivery was attempted after the request
	// was cancelled or completed.
	ErrEventClosed = errors.New("event closed")
)

// UnitKind tags the payload carried by an output unit.
type UnitKind int

const (
	// KindText is a complete text component.
	KindText UnitKind = iota
	// KindComponent is a structured component carried as raw JSON.
	KindComponent
	// KindChunk is an incremental fragment of streamed text.
	KindChunk
	// KindEnd is the terminal marker: no units follow it.
	KindEnd
	// KindError reports an engine-side failure; terminal.
	KindError
)

// String returns the wire name of the kind.
func (k UnitKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindComponent:
		return "component"
	case KindChunk:
		return "chunk"
	case KindEnd:
		return "end"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further units may follow this kind.
func (k UnitKind) Terminal() bool {
	return k == KindEnd || k == KindError
}

// Unit is one increment of engine-produced content for a single request.
type Unit struct {
	Kind      UnitKind
	Text      string          // KindText, KindChunk
	Component json.RawMessage // KindComponent
	Err       string          // KindError
}

// Component is one element of a structured inbound message.
type Component struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Request describes one inbound call forwarded into the engine.
type Request struct {
	EventID    string
	SessionID  string
	Platform   string
	UserID     string
	Nickname   string
	Message    string
	Components []Component
}

// Event is the engine-native representation of a submitted request.
// Engine implementations emit output through it and must stop promptly
// once Context is cancelled.
type Event struct {
	Request

	ctx     context.Context
	adapter *Adapter
}

// Context is cancelled when the request times out, the client disconnects,
// or the gateway otherwise cancels the work.
func (e *Event) Context() context.Context {
	return e.ctx
}

// Emit delivers one output unit to the consumer, in order. It blocks while the
// consumer is behind (backpressure) and returns ErrEventClosed once the
// request has been cancelled or completed.
func (e *Event) Emit(u *Unit) error {
	return e.adapter.deliver(e.EventID, u)
}

// End delivers the terminal end marker.
func (e *Event) End() error {
	return e.adapter.deliver(e.EventID, &Unit{Kind: KindEnd})
}

// Fail delivers a terminal error unit.
func (e *Event) Fail(msg string) error {
	return e.adapter.deliver(e.EventID, &Unit{Kind: KindError, Err: msg})
}

// Submitter is the host engine's intake queue. Submit must not block the
// caller beyond enqueue time; processing happens asynchronously.
type Submitter interface {
	Submit(ev *Event) error
}
