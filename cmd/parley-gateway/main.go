// ABOUTME: Entry point for the parley-gateway binary
// ABOUTME: Handles subcommands: serve, init, health, version

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/candlewick/parley-gateway/internal/auth"
	"github.com/candlewick/parley-gateway/internal/config"
	"github.com/candlewick/parley-gateway/internal/engine"
	"github.com/candlewick/parley-gateway/internal/gateway"
)

const banner = `
   ___  ___ _____/ /__ __ __
  / _ \/ _ '/ __/ / -_) // /
 / .__/\_,_/_/ /_/\__/\_, /
/_/                  /___/
`

func main() {
	// A .env file is optional; missing is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "init":
		runInit()
	case "health":
		runHealth()
	case "token":
		runToken(os.Args[2:])
	case "version":
		fmt.Printf("parley-gateway %s\n", gateway.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`parley-gateway - HTTP streaming bridge for conversational engines

Usage:
  parley-gateway serve     Start the gateway server
  parley-gateway init      Create a config file interactively
  parley-gateway health    Check a running gateway
  parley-gateway token     Mint a JWT for a client subject
  parley-gateway version   Print version

Environment:
  PARLEY_CONFIG    Path to config file (default: ~/.config/parley/gateway.yaml)
  PARLEY_DB_PATH   Override the database path
`)
}

// getConfigPath resolves the config file location. PARLEY_CONFIG wins,
// then XDG_CONFIG_HOME, then ~/.config.
func getConfigPath() string {
	if p := os.Getenv("PARLEY_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "parley", "gateway.yaml")
}

func loadConfig() *config.Config {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "No config file at %s, using defaults\n", path)
			return config.Default()
		}
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runServe() {
	cfg := loadConfig()
	logger := setupLogger(cfg)

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Print(banner)
	fmt.Printf("  parley-gateway %s\n\n", gateway.Version)
	fmt.Printf("  ▶ listening on %s\n", cfg.Server.HTTPAddr)
	fmt.Printf("  ▶ api prefix %s\n", cfg.APIPrefix())
	if cfg.Metrics.Enabled {
		fmt.Printf("  ▶ metrics at %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := &engine.EchoEngine{ChunkDelay: 50 * time.Millisecond}
	gw, err := gateway.New(cfg, eng, logger)
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		os.Exit(1)
	}

	if err := gw.Run(ctx); err != nil {
		logger.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func runHealth() {
	cfg := loadConfig()

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0") || strings.HasPrefix(addr, ":") {
		_, port, found := strings.Cut(addr, ":")
		if !found {
			port = "8080"
		}
		addr = "127.0.0.1:" + port
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("healthy")
}

// runToken mints a client JWT against the configured jwt_secret.
// Usage: parley-gateway token <subject> [ttl]
func runToken(args []string) {
	if len(args) < 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: parley-gateway token <subject> [ttl]")
		os.Exit(1)
	}
	subject := args[0]

	ttl := 30 * 24 * time.Hour
	if len(args) > 1 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid ttl %q: %v\n", args[1], err)
			os.Exit(1)
		}
		ttl = parsed
	}

	cfg := loadConfig()
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "no jwt_secret configured; set auth.jwt_secret first")
		os.Exit(1)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func runInit() {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Config already exists at %s\n", path)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Creating gateway config at", path)
	fmt.Println()

	httpAddr := prompt(reader, "HTTP listen address", "0.0.0.0:8080")
	authToken := prompt(reader, "API token (empty disables auth)", "")
	dbPath := prompt(reader, "Database path", "parley.db")

	var sb strings.Builder
	sb.WriteString("server:\n")
	fmt.Fprintf(&sb, "  http_addr: %q\n", httpAddr)
	sb.WriteString("  api_prefix: \"/api/v1\"\n\n")
	sb.WriteString("auth:\n")
	fmt.Fprintf(&sb, "  token: %q\n\n", authToken)
	sb.WriteString("sessions:\n")
	sb.WriteString("  timeout: \"1h\"\n")
	sb.WriteString("  max_sessions: 1000\n\n")
	sb.WriteString("stream:\n")
	sb.WriteString("  default_timeout: \"10m\"\n")
	sb.WriteString("  heartbeat: \"15s\"\n\n")
	sb.WriteString("database:\n")
	fmt.Fprintf(&sb, "  path: %q\n\n", dbPath)
	sb.WriteString("logging:\n")
	sb.WriteString("  level: \"info\"\n")
	sb.WriteString("  format: \"text\"\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Config written. Start the gateway with: parley-gateway serve")
}

func prompt(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = newColorHandler(os.Stderr, level)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler renders log records with colored level tags for terminals.
type colorHandler struct {
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	mu    *sync.Mutex
}

func newColorHandler(out io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{out: out, level: level, mu: &sync.Mutex{}}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var tag string
	switch {
	case r.Level >= slog.LevelError:
		tag = color.New(color.FgRed, color.Bold).Sprint("ERR")
	case r.Level >= slog.LevelWarn:
		tag = color.New(color.FgYellow, color.Bold).Sprint("WRN")
	case r.Level >= slog.LevelInfo:
		tag = color.New(color.FgGreen).Sprint("INF")
	default:
		tag = color.New(color.FgMagenta).Sprint("DBG")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", r.Time.Format("15:04:05"), tag, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &colorHandler{out: h.out, level: h.level, attrs: merged, mu: h.mu}
}

func (h *colorHandler) WithGroup(_ string) slog.Handler {
	return h
}
