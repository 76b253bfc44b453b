package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/neoromantics/focus/internal/api"
	"github.com/neoromantics/focus/internal/api/middleware"
	"github.com/neoromantics/focus/internal/auth"
	"github.com/neoromantics/focus/internal/cache"
	"github.com/neoromantics/focus/internal/classifier"
	"github.com/neoromantics/focus/internal/config"
	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/dispatch"
	"github.com/neoromantics/focus/internal/engine"
	"github.com/neoromantics/focus/internal/flight"
	"github.com/neoromantics/focus/internal/maintenance"
	focusmcp "github.com/neoromantics/focus/internal/mcp"
	"github.com/neoromantics/focus/internal/notify"
	"github.com/neoromantics/focus/internal/pipeline"
	"github.com/neoromantics/focus/internal/stats"
	"github.com/neoromantics/focus/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("focus %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:], false)
	case "rotate-token":
		cmdToken(os.Args[2:], true)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: focus <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve          Start the Focus server\n")
	fmt.Fprintf(os.Stderr, "  check          Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  token          Print the extension bearer token\n")
	fmt.Fprintf(os.Stderr, "  rotate-token   Replace the extension bearer token\n")
	fmt.Fprintf(os.Stderr, "  version        Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting focus",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"provider", cfg.Classifier.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func cmdToken(args []string, rotate bool) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenStore(cfg.Server.ConfigDir)
	var token string
	if rotate {
		token, err = tokens.Rotate()
	} else {
		token, err = tokens.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "token error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	if rotate {
		fmt.Fprintf(os.Stderr, "token rotated; send SIGHUP to a running server to pick it up\n")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		path := config.ExpandHome(cfg.Server.LogFile)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", path, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

// watchTokenReload re-reads the token file on SIGHUP.
func watchTokenReload(ctx context.Context, tokens *auth.TokenStore) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := tokens.Load(); err != nil {
				slog.Error("reloading token failed", "error", err)
				continue
			}
			slog.Info("token reloaded", "path", tokens.Path())
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	// --- Bearer Token ---
	tokens := auth.NewTokenStore(cfg.Server.ConfigDir)
	if _, err := tokens.Load(); err != nil {
		return fmt.Errorf("loading token: %w", err)
	}
	slog.Info("extension token ready", "path", tokens.Path())
	go watchTokenReload(ctx, tokens)

	// --- Metrics ---
	var (
		registerer prometheus.Registerer
		gatherer   prometheus.Gatherer
		metrics    *classifier.Metrics
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer, gatherer = reg, reg
		metrics = classifier.NewMetrics(reg)
	}

	// --- State Sections ---
	decisions := cache.New(db, cache.Options{
		TTL:         cfg.Cache.TTL,
		MaxEntries:  cfg.Cache.MaxEntries,
		TrimmedSize: cfg.Cache.TrimmedSize,
	})
	counters := stats.New(db, registerer)
	flights := flight.NewManager(db, flight.Options{
		MinDuration:     cfg.Flight.MinDuration,
		TurbulenceLimit: cfg.Flight.TurbulenceLimit,
		HistoryLimit:    cfg.Flight.HistoryLimit,
	})

	// --- Classifier ---
	provider, err := classifier.NewProvider(classifier.ProviderConfig{
		Name:    cfg.Classifier.Provider,
		Model:   cfg.Classifier.Model,
		BaseURL: cfg.Classifier.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating classifier: %w", err)
	}
	client := classifier.New(provider, classifier.Options{
		MaxRetries:     cfg.Classifier.MaxRetries,
		RetryDelay:     cfg.Classifier.RetryDelay,
		AttemptTimeout: cfg.Classifier.AttemptTimeout,
		MaxPageChars:   cfg.Classifier.MaxPageChars,
		ExcerptChars:   cfg.Classifier.ExcerptChars,
		Metrics:        metrics,
	})

	// --- Engine ---
	checks := pipeline.New(pipeline.Deps{
		Cache:             decisions,
		Classifier:        client,
		Counter:           counters,
		Flights:           flights,
		ProductivityHosts: cfg.Focus.ProductivityAllowlist,
		Factory:           decision.Factory{Now: time.Now},
		Registerer:        registerer,
	})
	eng := engine.New(engine.Deps{
		Store:    db,
		Cache:    decisions,
		Stats:    counters,
		Flights:  flights,
		Pipeline: checks,
	}, engine.Options{
		DefaultBlockList: cfg.Focus.BlockList,
		DefaultAllowList: cfg.Focus.AllowList,
		DefaultAPIKey:    cfg.Classifier.APIKey,
		InitialEnabled:   cfg.Focus.Enabled,
		RequireFlight:    cfg.Flight.RequireActive,
		Provider:         client.Provider(),
	})
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	// --- Notifications ---
	hub := notify.NewHub(notify.LogNotifier{})
	flights.SetNotifyFunc(func(n flight.Notification) {
		hub.Notify(notify.Event{Type: n.Type, FlightID: n.FlightID, Message: n.Message})
	})

	// --- MCP Server ---
	var mcpHTTP http.Handler
	if cfg.MCP.Enabled {
		mcpServer := focusmcp.NewServer(&focusmcp.Deps{
			Engine:  eng,
			Version: version,
		})
		hub.Add(notify.NewMCPNotifier(mcpServer, 3*time.Second))
		mcpHTTP = server.NewStreamableHTTPServer(mcpServer)
	}

	// --- Maintenance ---
	sched, err := maintenance.New(maintenance.Options{
		CleanupEvery: cfg.Cache.CleanupInterval,
		FlushEvery:   cfg.Stats.SaveInterval,
		Cleanup:      decisions.Cleanup,
		Flush:        eng.Flush,
	})
	if err != nil {
		return fmt.Errorf("scheduling maintenance: %w", err)
	}
	sched.Start()

	// --- HTTP Router ---
	router := api.NewRouter(api.Options{
		Dispatcher: dispatch.NewTable(eng),
		Tokens:     tokens,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		MCP:      mcpHTTP,
		Gatherer: gatherer,
		Version:  version,
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("focus is ready", "addr", addr, "jobs", sched.Jobs())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("final flush: %w", err))
	}
	return serveErr
}
