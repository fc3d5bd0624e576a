package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	httpapi "opsdesk/internal/http"
	jwttoken "opsdesk/internal/jwt_token"
	"opsdesk/internal/platform/config"
	"opsdesk/internal/platform/httpserver"
	"opsdesk/internal/platform/logger"
	"opsdesk/internal/platform/metrics"
	"opsdesk/internal/platform/scheduler"
	"opsdesk/internal/ratelimit"
	"opsdesk/internal/tokens"
)

// main loads configuration, wires infrastructure and modules, and runs the
// HTTP server, the scheduler and the audit forwarder until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	in, err := openInfra(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer in.Close(context.Background())

	mods, err := buildModules(ctx, cfg, in, reg, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	if err := sched.Register("sla-sweep", cfg.SLA.SweepSchedule, mods.sweeper.Job); err != nil {
		return err
	}
	if err := sched.Register("quote-expiry", cfg.Quotes.ExpirySchedule, mods.quotes.Job); err != nil {
		return err
	}
	if err := sched.Register("grant-purge", cfg.Grants.PurgeSchedule, mods.permissionRequests.PurgeJob(cfg.Grants.Retention)); err != nil {
		return err
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.New(reg, reg),
		RequestTimeout: cfg.Server.RequestTimeout,
		AdminToken:     cfg.Auth.AdminToken,
		Validator:      jwt.Validator(),
		Grants:         mods.permissionRequests,
		RateLimit:      ratelimit.New(in.limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, log).Handler,
		Checks:         in.checks,
		Admin:          []httpapi.Registrar{tokens.New(jwt, cfg.Auth.TokenTTL, in.publisher, log)},
		API:            mods.api,
		Raw:            mods.raw,
	})
	if cfg.Auth.AdminToken == "" {
		log.WarnContext(ctx, "ADMIN_API_TOKEN not set, /admin routes are disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, httpserver.New(cfg.Server, router), log) })
	g.Go(func() error { return sched.Run(gctx) })
	if in.kafkaAudit != nil {
		g.Go(func() error { return in.kafkaAudit.Run(gctx) })
	}
	return g.Wait()
}
