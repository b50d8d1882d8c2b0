// ABOUTME: Store interface and data types for the parley-gateway message ledger.
// ABOUTME: Defines Message records and the Store interface for database operations.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Message directions
const (
	DirectionInbound  = "inbound"  // client → engine
	DirectionOutbound = "outbound" // engine → client
)

// Message kinds
const (
	KindMessage   = "message"   // plain text content
	KindComponent = "component" // structured component payload (JSON)
)

// Message is one ledger record for a session: either the client's inbound
// message or one unit of engine output.
type Message struct {
	ID        string
	SessionID string
	EventID   string
	Direction string
	Author    string
	Kind      string
	Content   string
	CreatedAt time.Time
}

// Store persists the message ledger. The ledger is scoped to process
// lifetime by default (in-memory database); a file path may be configured
// but nothing in the gateway depends on it surviving a restart.
type Store interface {
	// SaveMessage appends a message to the ledger.
	SaveMessage(ctx context.Context, msg *Message) error

	// MessagesBySession returns up to limit messages for a session in
	// chronological order. limit <= 0 means no limit.
	MessagesBySession(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	// CountBySession returns the number of ledger records for a session.
	CountBySession(ctx context.Context, sessionID string) (int, error)

	// DeleteBySession removes all ledger records for a session.
	DeleteBySession(ctx context.Context, sessionID string) error

	// Close releases the underlying database.
	Close() error
}
