// ABOUTME: In-process engines for the dev server and tests.
// ABOUTME: EchoEngine streams the inbound message back in chunks; ScriptEngine replays a fixed script.

package engine

import (
	"strings"
	"time"
)

// EchoEngine is a trivial Submitter that echoes the inbound message back as a
// sequence of word chunks followed by a full text component. Used by the dev
// server when no real engine is wired in.
type EchoEngine struct {
	// ChunkDelay is the pause between emitted chunks. Zero means no pause.
	ChunkDelay time.Duration
}

// Submit starts asynchronous echo processing for the event.
func (e *EchoEngine) Submit(ev *Event) error {
	go e.process(ev)
	return nil
}

func (e *EchoEngine) process(ev *Event) {
	ctx := ev.Context()

	words := strings.Fields(ev.Message)
	for i, w := range words {
		if e.ChunkDelay > 0 {
			select {
			case <-time.After(e.ChunkDelay):
			case <-ctx.Done():
				return
			}
		}
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		if err := ev.Emit(&Unit{Kind: KindChunk, Text: chunk}); err != nil {
			return
		}
	}

	if err := ev.Emit(&Unit{Kind: KindText, Text: ev.Message}); err != nil {
		return
	}
	_ = ev.End()
}

// ScriptEngine replays a fixed sequence of units for every submitted event,
// then emits the end marker. Tests use it to drive deterministic output.
type ScriptEngine struct {
	Units []Unit
	// Delay is the pause before each unit. Zero means emit immediately.
	Delay time.Duration
	// Hang, when set, suppresses the end marker so the request never
	// completes; used to exercise timeout paths.
	Hang bool
}

// Submit starts asynchronous replay of the script for the event.
func (s *ScriptEngine) Submit(ev *Event) error {
	go s.process(ev)
	return nil
}

func (s *ScriptEngine) process(ev *Event) {
	ctx := ev.Context()

	for i := range s.Units {
		if s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return
			}
		}
		u := s.Units[i]
		if err := ev.Emit(&u); err != nil {
			return
		}
	}

	if s.Hang {
		<-ctx.Done()
		return
	}
	_ = ev.End()
}

// errorEngine fails every submission with the given error. Used by tests and
// as the adapter's behavior when no engine is configured.
type errorEngine struct{ err error }

// NewErrorEngine returns a Submitter whose Submit always fails with err.
func NewErrorEngine(err error) Submitter {
	return &errorEngine{err: err}
}

func (e *errorEngine) Submit(*Event) error {
	return e.err
}
