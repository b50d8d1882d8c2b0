// ABOUTME: HTTP API handlers for session-bound messaging over JSON and SSE.
// ABOUTME: Provides the messages, sessions, stats, and health endpoints.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/candlewick/parley-gateway/internal/conversation"
	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/observability"
	"github.com/candlewick/parley-gateway/internal/session"
)

// errBodyTooLarge marks a request rejected by the configured size cap.
var errBodyTooLarge = errors.New("request body too large")

// SendMessageRequest is the JSON request body for POST {prefix}/messages and
// POST {prefix}/messages/stream.
type SendMessageRequest struct {
	Message   MessagePayload `json:"message"`
	Platform  string         `json:"platform"`
	UserID    string         `json:"user_id"`
	Nickname  string         `json:"nickname,omitempty"`
	Timeout   float64        `json:"timeout,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
}

// MessagePayload is the inbound message field, which accepts either a plain
// string or an array of typed segments. Text segments concatenate into Text;
// all other segments are preserved as engine components.
type MessagePayload struct {
	Text       string
	Components []engine.Component
}

type messageSegment struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (p *MessagePayload) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Text = s
		return nil
	}

	var segments []messageSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return errors.New("message must be a string or an array of segments")
	}

	for _, seg := range segments {
		if seg.Type == "text" {
			text := seg.Text
			if text == "" && len(seg.Data) > 0 {
				// Some clients put the text under data instead
				_ = json.Unmarshal(seg.Data, &text)
			}
			p.Text += text
			continue
		}
		p.Components = append(p.Components, engine.Component{Type: seg.Type, Data: seg.Data})
	}
	return nil
}

// Empty reports whether the payload carries neither text nor components.
func (p MessagePayload) Empty() bool {
	return p.Text == "" && len(p.Components) == 0
}

// SendMessageResponse is the JSON response for the aggregate path.
type SendMessageResponse struct {
	EventID   string         `json:"event_id"`
	Response  []ResponsePart `json:"response"`
	SessionID string         `json:"session_id"`
	Success   bool           `json:"success"`
	Timestamp int64          `json:"timestamp"`
	MessageID string         `json:"message_id,omitempty"`
}

// SessionSummary is the JSON representation of a session.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	Platform     string `json:"platform"`
	UserID       string `json:"user_id"`
	Nickname     string `json:"nickname,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	MessageCount int    `json:"message_count"`
}

// MessageRecord is the JSON representation of one ledger entry.
type MessageRecord struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	Direction string `json:"direction"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// handleSendMessage handles POST {prefix}/messages.
// It resolves the session, submits the message, drains the full engine
// output, and responds once with the ordered response array.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.requestCount.Add(1)

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendMessageError(w, parseStatus(err), err.Error())
		return
	}
	unclaim, ok := g.claimMessageID(w, req)
	if !ok {
		return
	}

	sess, release, ok := g.resolveSession(w, req)
	if !ok {
		unclaim()
		return
	}
	defer release()

	deadline := resolveDeadline(req.Timeout, g.config.HTTP.RequestTimeout)
	ctx, cancelCtx := context.WithTimeout(r.Context(), deadline)
	defer cancelCtx()

	convResp, err := g.conversation.Send(ctx, &conversation.SendRequest{
		Session:    sess,
		Message:    req.Message.Text,
		Components: req.Message.Components,
	})
	if err != nil {
		// The engine never took the work; let a retry through
		unclaim()
		g.sendSubmitError(w, err)
		return
	}

	g.sessions.Touch(sess.ID)

	// Releasing the adapter entry is idempotent, so running it both inline
	// (timeout, engine error) and deferred (normal completion) is safe.
	cancel := func() { g.adapter.Cancel(convResp.EventID) }
	defer cancel()

	parts, err := drainUnits(ctx, convResp.Stream, cancel)
	switch {
	case errors.Is(err, ErrTimeout):
		g.sendMessageError(w, http.StatusGatewayTimeout, "request timed out")
		return
	case errors.Is(err, context.Canceled):
		// Client is gone, nothing to write
		return
	case err != nil:
		g.logger.Error("aggregation failed", "error", err, "event_id", convResp.EventID)
		g.sendMessageError(w, http.StatusBadGateway, "engine failed")
		return
	}

	if parts == nil {
		parts = []ResponsePart{}
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		EventID:   convResp.EventID,
		Response:  parts,
		SessionID: sess.ID,
		Success:   true,
		Timestamp: time.Now().Unix(),
		MessageID: req.MessageID,
	})
}

// handleStreamMessage handles POST {prefix}/messages/stream.
// It resolves the session, submits the message, and relays engine output as
// SSE events until a terminal condition.
func (g *Gateway) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.requestCount.Add(1)

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendMessageError(w, parseStatus(err), err.Error())
		return
	}
	// Check streaming support before touching any state (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendMessageError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	unclaim, ok := g.claimMessageID(w, req)
	if !ok {
		return
	}

	sess, release, resolved := g.resolveSession(w, req)
	if !resolved {
		unclaim()
		return
	}
	defer release()

	// Streams get their own, longer ceiling than one-shot requests
	deadline := resolveDeadline(req.Timeout, g.config.Stream.DefaultTimeout)
	ctx, cancelCtx := context.WithTimeout(r.Context(), deadline)
	defer cancelCtx()

	convResp, err := g.conversation.Send(ctx, &conversation.SendRequest{
		Session:    sess,
		Message:    req.Message.Text,
		Components: req.Message.Components,
	})
	if err != nil {
		// The engine never took the work; let a retry through
		unclaim()
		g.sendSubmitError(w, err)
		return
	}

	g.sessions.Touch(sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	cancel := func() { g.adapter.Cancel(convResp.EventID) }
	defer cancel()

	final := g.newRelay(w, flusher).run(ctx, convResp.EventID, sess.ID, convResp.Stream, cancel)

	g.logger.Debug("stream finished",
		"event_id", convResp.EventID,
		"session_id", sess.ID,
		"state", final.String())
}

// claimMessageID atomically records the request's message_id as seen for the
// platform/user pair. Requests without a message_id are never deduplicated.
// On a duplicate it writes the 409 response and returns ok=false. The unclaim
// func releases the ID; handlers call it when the request fails before engine
// submission so a client's legitimate retry is not rejected.
func (g *Gateway) claimMessageID(w http.ResponseWriter, req *SendMessageRequest) (unclaim func(), ok bool) {
	if req.MessageID == "" {
		return func() {}, true
	}
	key := req.Platform + "_" + req.UserID + ":" + req.MessageID
	if g.recentIDs.Seen(key) {
		g.logger.Debug("duplicate message rejected",
			"platform", req.Platform,
			"user_id", req.UserID,
			"message_id", req.MessageID)
		g.sendMessageError(w, http.StatusConflict, "duplicate message_id")
		return nil, false
	}
	return func() { g.recentIDs.Forget(key) }, true
}

// resolveSession looks up or creates the session for a request and pins it
// against eviction for the request's duration. On failure it writes the error
// response and returns ok=false.
func (g *Gateway) resolveSession(w http.ResponseWriter, req *SendMessageRequest) (session.Session, func(), bool) {
	sess, err := g.sessions.GetOrCreate(req.Platform, req.UserID, req.Nickname)
	if errors.Is(err, session.ErrCapacity) {
		g.sendMessageError(w, http.StatusServiceUnavailable, "session capacity reached")
		return session.Session{}, nil, false
	}
	if err != nil {
		g.logger.Error("failed to resolve session", "error", err)
		g.sendMessageError(w, http.StatusInternalServerError, "internal server error")
		return session.Session{}, nil, false
	}

	g.sessions.Acquire(sess.ID)
	observability.SessionsActive.Set(float64(g.sessions.Len()))

	return sess, func() { g.sessions.Release(sess.ID) }, true
}

// sendSubmitError maps engine submission failures to HTTP status codes.
func (g *Gateway) sendSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrPayloadRejected):
		g.sendMessageError(w, http.StatusBadRequest, "payload rejected")
	case errors.Is(err, engine.ErrUnavailable):
		g.sendMessageError(w, http.StatusServiceUnavailable, "engine unavailable")
	default:
		g.logger.Error("failed to submit message", "error", err)
		g.sendMessageError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleListSessions handles GET {prefix}/sessions.
// Returns session summaries ordered by recency, most recent first.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessions := g.sessions.List()
	observability.SessionsActive.Set(float64(len(sessions)))

	summaries := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = sessionSummary(s)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": summaries})
}

// handleSessionRoutes routes {prefix}/sessions/{id} and
// {prefix}/sessions/{id}/messages by path and method.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	prefix := g.config.APIPrefix() + "/sessions/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	if id, found := strings.CutSuffix(rest, "/messages"); found {
		g.handleSessionMessages(w, r, id)
		return
	}

	sessionID := rest
	if sessionID == "" || strings.Contains(sessionID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.handleGetSession(w, r, sessionID)
	case http.MethodDelete:
		g.handleDeleteSession(w, r, sessionID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleGetSession handles GET {prefix}/sessions/{id}.
// Alongside the session counters it reports the ledger record count, so
// message_count (requests served) can be cross-checked against what was
// actually persisted.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := g.sessions.Get(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	stored, err := g.ledger.CountBySession(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("failed to count session messages", "error", err, "session_id", sessionID)
	}

	data := struct {
		SessionSummary
		StoredMessages int `json:"stored_messages"`
	}{sessionSummary(sess), stored}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": data})
}

// handleDeleteSession handles DELETE {prefix}/sessions/{id}.
// Removes the session and its ledger history.
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !g.sessions.Delete(sessionID) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := g.conversation.Forget(r.Context(), sessionID); err != nil {
		g.logger.Error("failed to delete session history", "error", err, "session_id", sessionID)
	}
	observability.SessionsActive.Set(float64(g.sessions.Len()))

	w.WriteHeader(http.StatusNoContent)
}

// handleSessionMessages handles GET {prefix}/sessions/{id}/messages.
// Returns the ledger history for a session, optionally limited by ?limit=N.
func (g *Gateway) handleSessionMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	// Parse optional limit parameter (default 50, max 1000)
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 1000 {
			limit = 1000
		}
	}

	if _, err := g.sessions.Get(sessionID); errors.Is(err, session.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := g.conversation.History(r.Context(), sessionID, limit)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err, "session_id", sessionID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	records := make([]MessageRecord, len(messages))
	for i, msg := range messages {
		records[i] = MessageRecord{
			ID:        msg.ID,
			EventID:   msg.EventID,
			Direction: msg.Direction,
			Author:    msg.Author,
			Type:      msg.Kind,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": records})
}

// handleStats handles GET {prefix}/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"data": map[string]interface{}{
			"active_sessions":  g.sessions.Len(),
			"max_sessions":     g.config.Sessions.MaxSessions,
			"pending_requests": g.adapter.Pending(),
			"requests_total":   g.requestCount.Load(),
			"errors_total":     g.errorCount.Load(),
			"uptime_seconds":   int64(time.Since(g.startTime).Seconds()),
			"timestamp":        time.Now().Unix(),
		},
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"version":         Version,
		"active_sessions": g.sessions.Len(),
		"timestamp":       time.Now().Unix(),
	})
}

// sessionSummary converts a session to its JSON representation.
func sessionSummary(s session.Session) SessionSummary {
	return SessionSummary{
		SessionID:    s.ID,
		Platform:     s.Platform,
		UserID:       s.UserID,
		Nickname:     s.Nickname,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		LastActivity: s.LastActivity.Format(time.RFC3339),
		MessageCount: s.MessageCount,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendMessageError writes a message-endpoint error with success:false.
func (g *Gateway) sendMessageError(w http.ResponseWriter, status int, message string) {
	g.errorCount.Add(1)
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// sendJSONError writes a session-endpoint error with ok:false.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

// parseStatus maps a parse failure to its HTTP status code.
func parseStatus(err error) int {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// parseSendRequest parses and validates a SendMessageRequest from the given
// reader. Returns an error if the JSON is invalid or required fields are
// missing.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, errors.New("invalid JSON body")
	}

	if req.Message.Empty() {
		return nil, errors.New("message is required")
	}
	if req.Platform == "" {
		return nil, errors.New("platform is required")
	}
	if req.UserID == "" {
		return nil, errors.New("user_id is required")
	}

	return &req, nil
}
