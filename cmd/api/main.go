package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobtrack/api/db"
	"jobtrack/api/internal/app"
	"jobtrack/api/internal/config"
	"jobtrack/api/internal/email"
	"jobtrack/api/internal/export"
	"jobtrack/api/internal/logging"
	"jobtrack/api/internal/ratelimit"
	"jobtrack/api/internal/search"
	"jobtrack/api/internal/session"
	"jobtrack/api/internal/storage"
	"jobtrack/api/internal/store"
	"jobtrack/api/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("jobtrack stopped", zap.Error(err))
	}
}

// sessionStore is implemented by both store backends and by the Redis
// session store.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

func migrationsFS(cfg config.Config) fs.FS {
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return db.Migrations()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.ServiceName,
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: true,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	if cfg.UsesDefaultAPIKey() {
		logger.Warn("API_KEY is not set; using the development key")
	}

	var (
		backend  store.Backend
		fallback search.Searcher
		loader   search.RecordLoader
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		conn, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		applied, err := store.ApplyMigrations(ctx, conn, migrationsFS(cfg))
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		logger.Info("database ready", zap.Strings("applied_migrations", applied))
		backend = store.NewPostgresStore(conn)
		pgfts := search.NewPgFTS(conn)
		fallback, loader = pgfts, pgfts
	} else {
		logger.Warn("DATABASE_URL is not set; data lives in memory and is lost on exit")
		memory := store.NewMemoryStore()
		backend = memory
		fallback = search.NewMemory(memory)
	}

	var primary search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		primary = meili
	}
	searchService := search.NewService(primary, fallback, loader, logger)
	defer searchService.Wait()
	go searchService.ReindexAll(ctx)

	var (
		sessions sessionStore = backend
		limiter  ratelimit.Limiter
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		bucket, err := ratelimit.NewRedisTokenBucket(redisStore.Client(), cfg.IngestRateLimit, cfg.IngestRateWindow, "jobtrack:ratelimit")
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		limiter = bucket
		logger.Info("redis enabled for sessions and ingest rate limiting")
	}

	var archiver export.Archiver
	storageCfg := storage.Config{
		Endpoint: cfg.MinioEndpoint,
		Access:   cfg.MinioAccessKey,
		Secret:   cfg.MinioSecretKey,
		Bucket:   cfg.MinioBucket,
		UseSSL:   cfg.MinioUseSSL,
	}
	if storageCfg.Enabled() {
		client, err := storage.NewClient(storageCfg)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			logger.Warn("export bucket unavailable; exports will not be archived", zap.Error(err))
		} else {
			archiver = client
		}
	}

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mail.IsConfigured() {
		logger.Warn("SMTP is not configured; verification and reset tokens are returned in responses")
	}

	metrics := app.NewMetrics()
	tracer := otel.Tracer("jobtrack")
	service := app.NewService(backend, logger, app.WithSearch(searchService), app.WithMetrics(metrics))
	accounts := app.NewAccounts(app.SessionConfig{
		JWTSecret:     []byte(cfg.JWTSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		CheckTimeout:  cfg.SessionCheck,
		PublicBaseURL: cfg.PublicBaseURL,
	}, backend, sessions, mail, logger)

	api := app.NewHTTPServer(service, app.APIConfig{
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		Limiter:    limiter,
	})
	dashboard := app.NewDashboardServer(service, accounts, app.DashboardConfig{
		CORSOrigin:    cfg.CORSOrigin,
		SecureCookies: strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
		Exports:       export.NewService(backend, nil, archiver, logger),
	})

	servers := []struct {
		name   string
		server *http.Server
	}{
		{name: "api", server: newServer(cfg.APIAddr, api.Handler())},
		{name: "dashboard", server: newServer(cfg.DashboardAddr, dashboard.Handler())},
		{name: "metrics", server: newServer(cfg.MetricsAddr, metrics.Handler())},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("listening", zap.String("server", s.name), zap.String("addr", s.server.Addr))
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown", zap.String("server", s.name), zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
