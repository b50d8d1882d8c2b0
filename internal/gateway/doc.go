// Package gateway orchestrates the parley-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the parley-gateway
// server. It owns and manages the session store, the engine adapter, the
// conversation ledger, and the HTTP server that exposes them.
//
// # HTTP API
//
// The gateway exposes HTTP endpoints in api.go (all under the configured
// api_prefix, /api/v1 by default):
//
//   - POST {prefix}/messages - Send a message, respond once with the full reply
//   - POST {prefix}/messages/stream - Send a message, stream the reply via SSE
//   - GET {prefix}/sessions - List active sessions by recency
//   - GET {prefix}/sessions/{id} - Inspect one session
//   - DELETE {prefix}/sessions/{id} - Remove a session and its history
//   - GET {prefix}/sessions/{id}/messages - Ledger history for a session
//   - GET {prefix}/stats - Runtime counters
//   - GET /health - Liveness check
//
// # SSE Streaming
//
// Streaming replies are delivered as Server-Sent Events:
//
//	event: connected
//	data: {"event_id": "...", "session_id": "webhook_alice"}
//
//	event: stream
//	data: {"chunk": "Hel"}
//
//	event: message
//	data: {"content": "Hello!"}
//
//	event: end
//	data: {}
//
// Every stream begins with exactly one connected event and ends with exactly
// one terminal event: end, timeout, or error. Idle streams carry heartbeat
// comments so intermediaries keep the connection open.
//
// # Timeouts and Cancellation
//
// Every request runs under a deadline clamped to the configured
// request_timeout ceiling. On expiry the engine adapter is cancelled exactly
// once; the aggregate path answers with a timeout error and the streaming
// path emits a timeout event. Client disconnects cancel the same way but
// produce no further output.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, eng, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled, then shuts down gracefully.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: HTTP handlers and request/response types
//   - relay.go: SSE relay state machine
//   - aggregate.go: Response aggregation for the non-streaming path
//   - deadline.go: Per-request deadline resolution
//   - middleware.go: CORS and body-size middleware
package gateway
