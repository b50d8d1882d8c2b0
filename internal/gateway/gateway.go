// ABOUTME: Gateway orchestrator that wires sessions, engine, and HTTP server
// ABOUTME: Manages listener lifecycle, middleware chain, and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/candlewick/parley-gateway/internal/auth"
	"github.com/candlewick/parley-gateway/internal/config"
	"github.com/candlewick/parley-gateway/internal/conversation"
	"github.com/candlewick/parley-gateway/internal/dedupe"
	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/observability"
	"github.com/candlewick/parley-gateway/internal/session"
	"github.com/candlewick/parley-gateway/internal/store"
)

// Gateway orchestrates the parley-gateway server components.
// It owns the session store, the engine adapter, the message ledger, and the
// HTTP server that exposes them.
type Gateway struct {
	config       *config.Config
	sessions     *session.Store
	adapter      *engine.Adapter
	conversation *conversation.Service
	ledger       store.Store
	recentIDs    *dedupe.Cache
	httpServer   *http.Server
	authn        *auth.Authenticator
	logger       *slog.Logger

	// startTime anchors the uptime reported by /stats
	startTime time.Time

	// running totals for the message endpoints, reported by /stats
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// Version is reported by /health and the version subcommand.
const Version = "0.3.0"

// initStore creates the message ledger based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PARLEY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration and engine.
func New(cfg *config.Config, eng engine.Submitter, logger *slog.Logger) (*Gateway, error) {
	ledger, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(
		cfg.Sessions.Timeout,
		cfg.Sessions.SweepInterval,
		cfg.Sessions.MaxSessions,
		logger.With("component", "session-store"),
	)

	adapter := engine.NewAdapter(eng, logger.With("component", "engine-adapter"))
	convService := conversation.New(ledger, adapter, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}
	authn := auth.NewAuthenticator(cfg.Auth.Token, verifier)
	if authn.Enabled() {
		logger.Info("HTTP auth enabled")
	} else {
		logger.Warn("HTTP auth disabled - no auth_token or jwt_secret configured")
	}

	gw := &Gateway{
		config:       cfg,
		sessions:     sessions,
		adapter:      adapter,
		conversation: convService,
		ledger:       ledger,
		recentIDs:    dedupe.New(5*time.Minute, 10000, time.Minute),
		authn:        authn,
		logger:       logger.With("component", "gateway"),
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerRoutes wires all HTTP endpoints onto the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	prefix := g.config.APIPrefix()

	// Health endpoint - no auth required so load balancers can probe it
	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle(prefix+"/health", http.HandlerFunc(g.handleHealth))

	mux.Handle(prefix+"/messages", g.apiHandler("messages", g.handleSendMessage))
	mux.Handle(prefix+"/messages/stream", g.apiHandler("stream", g.handleStreamMessage))
	mux.Handle(prefix+"/sessions", g.apiHandler("sessions", g.handleListSessions))
	mux.Handle(prefix+"/sessions/", g.apiHandler("sessions", g.handleSessionRoutes))
	mux.Handle(prefix+"/stats", g.apiHandler("stats", g.handleStats))

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, promhttp.Handler())
		g.logger.Info("metrics endpoint enabled", "path", g.config.Metrics.Path)
	}
}

// apiHandler wraps a handler with the standard API middleware chain.
// Order matters: metrics observes everything, CORS answers preflights before
// auth runs, and the body cap applies before the handler reads the request.
func (g *Gateway) apiHandler(route string, h http.HandlerFunc) http.Handler {
	var handler http.Handler = h
	handler = g.authn.Middleware()(handler)
	handler = maxBytesMiddleware(g.config.HTTP.MaxRequestSize)(handler)
	handler = corsMiddleware(g.config.HTTP.CORSOrigins)(handler)
	handler = observability.MetricsMiddleware(route, handler)
	return handler
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the gateway and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.sessions.Close()
	g.recentIDs.Close()

	if err := g.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
