package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/ggoodman/govdata-mcp/config"
	"github.com/ggoodman/govdata-mcp/govdata"
	"github.com/ggoodman/govdata-mcp/internal/engine"
	"github.com/ggoodman/govdata-mcp/internal/ratelimit"
	"github.com/ggoodman/govdata-mcp/internal/telemetry"
	"github.com/ggoodman/govdata-mcp/mcpservice"
	"github.com/ggoodman/govdata-mcp/sqllake/pgxlake"
	"github.com/ggoodman/govdata-mcp/stdio"
	"github.com/ggoodman/govdata-mcp/streaminghttp"
)

const shutdownTimeout = 10 * time.Second

// serveOptions are command-line overrides of the environment.
type serveOptions struct {
	transport string
	addr      string
	logLevel  string
}

func (o serveOptions) apply(cfg *config.Config) error {
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.addr != "" {
		host, port, err := net.SplitHostPort(o.addr)
		if err != nil {
			return fmt.Errorf("--addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("--addr: invalid port %q", port)
		}
		cfg.Server.Host, cfg.Server.Port = host, p
	}
	return cfg.Validate()
}

// resolveTransport picks the transport for auto mode: a piped stdin means
// an agent launched us as a subprocess.
func resolveTransport(mode string, stdinIsTerminal bool) string {
	switch mode {
	case config.TransportStdio, config.TransportHTTP:
		return mode
	}
	if stdinIsTerminal {
		return config.TransportHTTP
	}
	return config.TransportStdio
}

func serve(ctx context.Context, opts serveOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	log := newLogger(level)

	transport := resolveTransport(cfg.Transport, term.IsTerminal(int(os.Stdin.Fd())))
	log.Info("gateway.start", slog.String("version", version), slog.String("transport", transport))
	for _, hint := range cfg.Hints() {
		log.Warn("config.hint", slog.String("hint", hint))
	}

	if cfg.DatabaseURL == "" {
		return config.ErrMissingDatabaseURL
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := telemetry.New(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	lake, err := pgxlake.Open(ctx, cfg.DatabaseURL, pgxlake.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect to SQL backend: %w", err)
	}
	defer func() {
		if err := lake.Close(); err != nil {
			log.Warn("sqllake.close.fail", slog.String("err", err.Error()))
		}
		log.Info("sqllake.closed")
	}()

	svc, err := govdata.New(lake, govdata.WithLogger(log), govdata.WithQueryTimeout(cfg.QueryTimeout()))
	if err != nil {
		return err
	}
	d, err := svc.Dispatcher(mcpservice.WithLogger(log), mcpservice.WithMetrics(metrics))
	if err != nil {
		return err
	}
	eng := engine.NewEngine(d,
		engine.WithLogger(log),
		engine.WithMetrics(metrics),
		engine.WithInstructions(svc.Instructions()),
	)

	if transport == config.TransportStdio {
		err := stdio.NewHandler(eng, stdio.WithLogger(log)).Serve(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return serveHTTP(ctx, cfg, eng, log, metrics)
}

func serveHTTP(ctx context.Context, cfg *config.Config, eng *engine.Engine, log *slog.Logger, metrics *telemetry.Metrics) error {
	log.LogAttrs(ctx, slog.LevelInfo, "auth.config", cfg.AuthSummary()...)
	gate, closeGate, err := buildGate(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer closeGate()

	limiter, err := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 0)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	h, err := streaminghttp.New(eng, gate,
		streaminghttp.WithLogger(log),
		streaminghttp.WithMetrics(metrics),
		streaminghttp.WithRateLimiter(limiter),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.String("addr", srv.Addr),
			slog.String("endpoints", streaminghttp.MessagesPath+" (primary), "+streaminghttp.SSEPath+" (alias)"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http.shutdown.fail", slog.String("err", err.Error()))
		return srv.Close()
	}
	return nil
}
