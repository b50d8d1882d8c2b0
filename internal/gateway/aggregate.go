// ABOUTME: Response aggregator for the non-streaming message path
// ABOUTME: Drains the engine unit channel into an ordered response array

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/observability"
)

// Aggregation errors
var (
	ErrTimeout      = errors.New("request timed out")
	ErrEngineFailed = errors.New("engine failed")
)

// ResponsePart is one element of the aggregate response array.
type ResponsePart struct {
	Content json.RawMessage `json:"content"`
	Type    string          `json:"type"`
}

// drainUnits consumes the unit channel fully and builds the ordered response
// array. Streamed chunk fragments are merged into a single text part unless a
// complete text unit also arrives, in which case the fragments are dropped as
// redundant.
//
// On deadline expiry the adapter is cancelled, partial parts are discarded,
// and ErrTimeout is returned. On client disconnect the adapter is cancelled
// and the context error is returned unchanged.
func drainUnits(ctx context.Context, units <-chan *engine.Unit, cancel func()) ([]ResponsePart, error) {
	var parts []ResponsePart
	var chunkBuffer string
	var receivedText bool

	for {
		select {
		case <-ctx.Done():
			cancel()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				observability.EngineTimeoutsTotal.Inc()
				return nil, ErrTimeout
			}
			return nil, ctx.Err()

		case u, ok := <-units:
			if !ok {
				// A closed channel can race a cancellation; report the
				// context outcome when one exists.
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					cancel()
					observability.EngineTimeoutsTotal.Inc()
					return nil, ErrTimeout
				}
				if ctx.Err() != nil {
					cancel()
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: output ended without end marker", ErrEngineFailed)
			}

			observability.EngineUnitsTotal.WithLabelValues(u.Kind.String()).Inc()

			switch u.Kind {
			case engine.KindChunk:
				chunkBuffer += u.Text

			case engine.KindText:
				receivedText = true
				parts = append(parts, textPart(u.Text))

			case engine.KindComponent:
				parts = append(parts, componentPart(u.Component))

			case engine.KindEnd:
				if !receivedText && chunkBuffer != "" {
					parts = append(parts, textPart(chunkBuffer))
				}
				return parts, nil

			case engine.KindError:
				cancel()
				return nil, fmt.Errorf("%w: %s", ErrEngineFailed, u.Err)
			}
		}
	}
}

// textPart builds a text response element.
func textPart(text string) ResponsePart {
	content, _ := json.Marshal(text)
	return ResponsePart{Content: content, Type: "text"}
}

// componentPart builds a structured response element, lifting the component
// type tag out of the payload when it parses cleanly.
func componentPart(raw json.RawMessage) ResponsePart {
	var comp engine.Component
	if err := json.Unmarshal(raw, &comp); err == nil && comp.Type != "" {
		data := comp.Data
		if len(data) == 0 {
			data = json.RawMessage(`{}`)
		}
		return ResponsePart{Content: data, Type: comp.Type}
	}
	return ResponsePart{Content: raw, Type: "component"}
}
