// ABOUTME: ConversationService is the central layer for message persistence
// ABOUTME: All messages flow through here - the ledger is the source of truth, not a side effect

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/session"
	"github.com/candlewick/parley-gateway/internal/store"
)

// LedgerStore defines what the service needs from storage
type LedgerStore interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
	MessagesBySession(ctx context.Context, sessionID string, limit int) ([]*store.Message, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// EngineSubmitter defines what the service needs from the engine layer
type EngineSubmitter interface {
	Submit(ctx context.Context, req *engine.Request) (<-chan *engine.Unit, error)
}

// Service records messages before and while they flow between clients and
// the engine.
type Service struct {
	ledger LedgerStore
	engine EngineSubmitter
	logger *slog.Logger
}

// New creates a new conversation Service
func New(ledger LedgerStore, eng EngineSubmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: ledger,
		engine: eng,
		logger: logger.With("component", "conversation"),
	}
}

// SendRequest contains everything needed to send a message through the conversation layer
type SendRequest struct {
	Session    session.Session
	Message    string
	Components []engine.Component
}

// SendResponse contains the result of sending a message
type SendResponse struct {
	EventID string
	Stream  <-chan *engine.Unit // Units flow through here (and get persisted)
}

// Send records the inbound message, submits it to the engine, and returns a
// channel that streams output units while also persisting them.
//
// Key principle: record first, then act. The inbound message is saved to the
// ledger BEFORE being submitted, so a record exists even if the engine fails.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if req.Message == "" && len(req.Components) == 0 {
		return nil, fmt.Errorf("message is required")
	}

	eventID := uuid.New().String()

	inbound := &store.Message{
		ID:        uuid.New().String(),
		SessionID: req.Session.ID,
		EventID:   eventID,
		Direction: store.DirectionInbound,
		Author:    "user:" + req.Session.UserID,
		Kind:      store.KindMessage,
		Content:   req.Message,
		CreatedAt: time.Now(),
	}
	if err := s.ledger.SaveMessage(ctx, inbound); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	s.logger.Debug("inbound message recorded",
		"session_id", req.Session.ID,
		"event_id", eventID)

	engineReq := &engine.Request{
		EventID:    eventID,
		SessionID:  req.Session.ID,
		Platform:   req.Session.Platform,
		UserID:     req.Session.UserID,
		Nickname:   req.Session.Nickname,
		Message:    req.Message,
		Components: req.Components,
	}
	unitChan, err := s.engine.Submit(ctx, engineReq)
	if err != nil {
		// Message is recorded, but the engine refused the work
		return nil, fmt.Errorf("engine submit failed: %w", err)
	}

	return &SendResponse{
		EventID: eventID,
		Stream:  s.persistUnits(ctx, req.Session.ID, eventID, unitChan),
	}, nil
}

// History returns ledger records for a session in chronological order
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	return s.ledger.MessagesBySession(ctx, sessionID, limit)
}

// Forget removes all ledger records for a session
func (s *Service) Forget(ctx context.Context, sessionID string) error {
	return s.ledger.DeleteBySession(ctx, sessionID)
}

// persistUnits wraps the engine unit channel to save content as it streams.
// Chunk fragments are accumulated and saved once at the end marker; complete
// text and component units are saved as they arrive. Forwarding blocks on the
// consumer so unit order and the no-drop guarantee are preserved.
func (s *Service) persistUnits(ctx context.Context, sessionID, eventID string, in <-chan *engine.Unit) <-chan *engine.Unit {
	out := make(chan *engine.Unit, 16) // Same buffer size as the adapter

	go func() {
		defer close(out)

		var chunkBuffer string // Accumulate streamed fragments
		var receivedText bool  // Track whether complete text units arrived

		for {
			var u *engine.Unit
			select {
			case unit, ok := <-in:
				if !ok {
					return
				}
				u = unit
			case <-ctx.Done():
				// The adapter unblocks the engine side on Cancel, so no
				// draining is needed here.
				s.logger.Debug("context cancelled during unit streaming",
					"session_id", sessionID,
					"event_id", eventID)
				return
			}

			switch u.Kind {
			case engine.KindChunk:
				chunkBuffer += u.Text

			case engine.KindText:
				receivedText = true
				s.saveOutbound(sessionID, eventID, store.KindMessage, u.Text)

			case engine.KindComponent:
				s.saveOutbound(sessionID, eventID, store.KindComponent, string(u.Component))

			case engine.KindEnd:
				// Streamed-only responses get one record for the whole text
				if !receivedText && chunkBuffer != "" {
					s.saveOutbound(sessionID, eventID, store.KindMessage, chunkBuffer)
				}
			}

			select {
			case out <- u:
			case <-ctx.Done():
				s.logger.Debug("context cancelled during unit streaming",
					"session_id", sessionID,
					"event_id", eventID)
				return
			}

			if u.Kind.Terminal() {
				return
			}
		}
	}()

	return out
}

// saveOutbound saves an engine output record with a separate timeout context.
// Persistence continues even if the request context is cancelled.
func (s *Service) saveOutbound(sessionID, eventID, kind, content string) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		EventID:   eventID,
		Direction: store.DirectionOutbound,
		Author:    "engine",
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.ledger.SaveMessage(saveCtx, msg); err != nil {
		s.logger.Error("failed to save outbound message",
			"error", err,
			"session_id", sessionID,
			"event_id", eventID)
	}
}
