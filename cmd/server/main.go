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

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "formvault/internal/jwt_token"
	"formvault/internal/platform/config"
	"formvault/internal/platform/httpserver"
	"formvault/internal/platform/logger"
	"formvault/internal/platform/metrics"
	"formvault/internal/platform/redis"
	"formvault/internal/ratelimit"
	ratelimitstore "formvault/internal/ratelimit/store"
	"formvault/internal/session"
	sessionstore "formvault/internal/session/store"
	"formvault/internal/submission/service"
	submissionstore "formvault/internal/submission/store"
	httptransport "formvault/internal/transport/http"
	"formvault/pkg/platform/audit"
	"formvault/pkg/platform/audit/publisher"
	"formvault/pkg/platform/audit/store/kafka"
	"formvault/pkg/platform/audit/store/logstore"
	"formvault/pkg/platform/middleware/metadata"
)

const (
	sweepInterval   = time.Minute
	auditBufferSize = 1024
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $FORMVAULT_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "formvault: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	if cfg.UsesDevSecret() {
		log.Warn("using the built-in development secret key, set SECRET_KEY before deploying")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	submissions := submissionstore.NewSQL(db)
	health := map[string]httptransport.HealthCheck{"database": submissions.Ping}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	g, gctx := errgroup.WithContext(ctx)

	var (
		sessions session.Store
		limits   ratelimit.Store
	)
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		sessions = sessionstore.NewRedis(rc.Client)
		limits = ratelimitstore.NewRedis(rc.Client)
		health["redis"] = rc.Health
		log.Info("sessions stored in redis")
	} else {
		mem := sessionstore.NewInMemory()
		sessions = mem
		g.Go(func() error { return mem.RunSweeper(gctx, sweepInterval) })

		memLimits := ratelimitstore.NewInMemory()
		limits = memLimits
		if cfg.RateLimit.Window > 0 {
			g.Go(func() error { return memLimits.RunSweeper(gctx, cfg.RateLimit.Window) })
		}
		log.Info("sessions stored in memory")
	}

	sinks := audit.Fanout{logstore.New(log)}
	if len(cfg.Audit.Brokers) > 0 {
		ks, err := kafka.New(cfg.Audit.Brokers, cfg.Audit.Topic)
		if err != nil {
			return err
		}
		defer ks.Close()
		if err := ks.EnsureTopic(ctx, 1, 1); err != nil {
			return err
		}
		sinks = append(sinks, ks)
		health["kafka"] = ks.Ping
		log.Info("audit events produced to kafka", "topic", cfg.Audit.Topic)
	}
	auditPublisher := publisher.NewPublisher(sinks,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	svc := service.New(submissions, jwttoken.NewJWTService(cfg.SecretKey, cfg.Token.Issuer, cfg.Token.TTL),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(auditPublisher),
	)
	manager := session.NewManager(sessions, session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.CookieSecure,
	}, session.WithLogger(log), session.WithMetrics(m))

	handler, err := httptransport.NewHandler(svc, manager, log, m, cfg.MaxUploadBytes())
	if err != nil {
		return err
	}
	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := ratelimit.New(limits, cfg.RateLimit.Posts, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
		ratelimit.WithLimitedHandler(handler.RateLimited),
	)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:  handler,
		Sessions: manager,
		Logger:   log,
		Metrics:  m,
		Gatherer: reg,
		Health:   health,
		Limiter:  limiter,

		TrustedProxies: proxies,
	})

	srv := httpserver.New(cfg.Addr, otelhttp.NewHandler(router, "formvault"))

	g.Go(func() error {
		log.Info("starting formvault", "addr", cfg.Addr, "database", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "grace", cfg.ShutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		// one writer at a time; concurrent writers get SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}
	if err := submissionstore.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
