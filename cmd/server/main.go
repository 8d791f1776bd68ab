package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-titulos/internal/agent"
	"github.com/p-n-ai/pai-titulos/internal/chat"
	"github.com/p-n-ai/pai-titulos/internal/content"
	"github.com/p-n-ai/pai-titulos/internal/platform/cache"
	"github.com/p-n-ai/pai-titulos/internal/platform/config"
	"github.com/p-n-ai/pai-titulos/internal/platform/database"
	"github.com/p-n-ai/pai-titulos/internal/study"
)

const (
	connectTimeout = 10 * time.Second
	probeTimeout   = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	c, err := loadContent(cfg.ContentPath)
	if err != nil {
		return err
	}
	slog.Info("content loaded",
		"title", c.Title,
		"sections", len(c.Sections),
		"questions", len(c.Questions),
		"version", c.Version,
	)

	app := &server{content: c}
	events := agent.MultiEventLogger{}

	if cfg.Database.Enabled {
		if db, pg, err := connectEventLog(ctx, cfg.Database); err != nil {
			slog.Warn("event log disabled", "error", err)
		} else {
			defer db.Close()
			app.db, app.eventLog = db, pg
			events = append(events, pg)
		}
	}

	if cfg.Cache.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		rc, err := cache.New(connectCtx, cfg.Cache.URL)
		cancel()
		if err != nil {
			slog.Warn("event counters disabled", "error", err)
		} else {
			defer func() { _ = rc.Close() }()
			app.cache = rc
			events = append(events, agent.NewCountingEventLogger(rc, c.Version))
		}
	}

	gateway := chat.NewGateway()
	app.engine, err = agent.NewEngine(agent.EngineConfig{
		Content:       c,
		Index:         study.NewIndex(c.Sections),
		Store:         agent.NewMemoryStore(),
		Events:        eventLogger(events),
		Notifier:      gateway,
		PassThreshold: cfg.Quiz.PassThreshold,
		FinishDelay:   cfg.Quiz.FinishDelay,
		SearchLimit:   cfg.Search.Limit,
	})
	if err != nil {
		return err
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		tg.SetCommands(agent.Commands())
		gateway.Register("telegram", tg)
	}
	if cfg.WebSocket.Enabled {
		app.ws = chat.NewWebSocketChannel(chat.WebSocketOptions{
			ConnectText: "/start",
			OnClose: func(userID string) {
				app.engine.EndSession("websocket", userID)
			},
		})
		gateway.Register("websocket", app.ws)
	}

	handler := func(msg chat.InboundMessage) {
		if err := gateway.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
			slog.Debug("typing indicator failed", "channel", msg.Channel, "error", err)
		}
		reply, err := app.engine.ProcessMessage(ctx, msg)
		if err != nil {
			slog.Error("failed to process message", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
			return
		}
		if err := gateway.Send(ctx, chat.OutboundMessage{
			Channel: msg.Channel,
			UserID:  msg.UserID,
			Text:    reply,
		}); err != nil {
			slog.Warn("failed to send reply", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}
	}
	if err := gateway.StartAll(ctx, handler); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newMux(app),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = gateway.StopAll()
			return err
		}
	}
	slog.Info("shutting down", "active_sessions", app.engine.ActiveSessions())

	if err := gateway.StopAll(); err != nil {
		slog.Error("failed to stop channels", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func loadContent(path string) (*content.Content, error) {
	if path == "" {
		return content.Default()
	}
	return content.LoadDir(path)
}

func connectEventLog(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, *agent.PostgresEventLogger, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	pg := agent.NewPostgresEventLogger(db.Pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, pg, nil
}

func eventLogger(loggers agent.MultiEventLogger) agent.EventLogger {
	switch len(loggers) {
	case 0:
		return agent.NopEventLogger{}
	case 1:
		return loggers[0]
	}
	return loggers
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// server holds what the HTTP handlers report on. Optional backends are nil
// when disabled.
type server struct {
	content  *content.Content
	engine   *agent.Engine
	ws       *chat.WebSocketChannel
	db       *database.DB
	eventLog *agent.PostgresEventLogger
	cache    *cache.Cache
}

// newMux creates the HTTP router with health, content and stats endpoints.
func newMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /api/content", s.handleContent)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true
	if s.db != nil {
		checks["database"] = probe(ctx, s.db.HealthCheck)
		ready = ready && checks["database"] == "ok"
	}
	if s.cache != nil {
		checks["cache"] = probe(ctx, s.cache.HealthCheck)
		ready = ready && checks["cache"] == "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

func probe(ctx context.Context, check func(context.Context) error) string {
	if err := check(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

type sectionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Units int    `json:"units"`
}

type contentSummary struct {
	Title       string           `json:"title"`
	Version     string           `json:"version"`
	QuizSection string           `json:"quiz_section,omitempty"`
	Sections    []sectionSummary `json:"sections"`
	Questions   int              `json:"questions"`
}

func (s *server) handleContent(w http.ResponseWriter, r *http.Request) {
	summary := contentSummary{
		Title:       s.content.Title,
		Version:     s.content.Version,
		QuizSection: s.content.QuizSection,
		Sections:    make([]sectionSummary, 0, len(s.content.Sections)),
		Questions:   len(s.content.Questions),
	}
	for _, sec := range s.content.Sections {
		summary.Sections = append(summary.Sections, sectionSummary{ID: sec.ID, Title: sec.Title, Units: len(sec.Units)})
	}
	writeJSON(w, http.StatusOK, summary)
}

type statsResponse struct {
	ActiveSessions int              `json:"active_sessions"`
	Connections    int              `json:"websocket_connections"`
	Counters       map[string]int64 `json:"counters,omitempty"`
	Events         map[string]int64 `json:"events,omitempty"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	resp := statsResponse{ActiveSessions: s.engine.ActiveSessions()}
	if s.ws != nil {
		resp.Connections = s.ws.Connections()
	}
	if s.cache != nil {
		counters, err := s.cache.Counters(ctx, agent.CounterPrefix(s.content.Version))
		if err != nil {
			slog.Warn("failed to read counters", "error", err)
		}
		resp.Counters = counters
	}
	if s.eventLog != nil {
		events, err := s.eventLog.CountEvents(ctx)
		if err != nil {
			slog.Warn("failed to count events", "error", err)
		}
		resp.Events = events
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
