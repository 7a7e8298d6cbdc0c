package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/api"
	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/audit"
	"github.com/dataroomhq/dataroom/pkg/config"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
	"github.com/dataroomhq/dataroom/pkg/observability"
	"github.com/dataroomhq/dataroom/pkg/resource"
	"github.com/dataroomhq/dataroom/pkg/swagger"
	"github.com/dataroomhq/dataroom/pkg/validator"
	"github.com/dataroomhq/dataroom/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	entry := logger.WithField("service", "dataroomd")

	ctx := context.Background()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Definitions drive everything downstream: collection whitelist, routes,
	// validation. Load them first so a broken configuration fails fast.
	registry := apidef.NewRegistry(cfg.Definitions.Dir, entry)
	if err := registry.Load(); err != nil {
		entry.WithError(err).Fatal("failed to load API definitions")
	}
	if cfg.Definitions.Watch {
		go func() {
			defer observability.RecoverPanic(entry, "definitions watcher")
			if err := registry.Watch(runCtx); err != nil && runCtx.Err() == nil {
				entry.WithError(err).Error("definitions watcher stopped")
			}
		}()
	}

	var db *sql.DB
	var store docstore.Store
	switch cfg.Store.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Store.PostgresURL)
		if err != nil {
			entry.WithError(err).Fatal("failed to open postgres connection")
		}
		db.SetMaxOpenConns(cfg.Store.MaxConns)
		if err := db.PingContext(ctx); err != nil {
			entry.WithError(err).Fatal("failed to ping postgres")
		}
		store = docstore.NewPostgres(db)
		entry.Info("using postgres document store")
	default:
		store = docstore.NewMemory()
		entry.Warn("using in-memory document store, data will not survive restarts")
	}
	adapter := docstore.NewAdapter(store, collections(registry), entry)

	var files filestore.Store
	switch cfg.Files.Type {
	case "s3":
		files, err = filestore.NewS3(ctx, cfg.Files.S3)
		if err != nil {
			entry.WithError(err).Fatal("failed to initialize S3 file store")
		}
		entry.WithField("bucket", cfg.Files.S3.Bucket).Info("using S3 file store")
	default:
		files, err = filestore.NewLocal(cfg.Files.LocalRoot)
		if err != nil {
			entry.WithError(err).Fatal("failed to initialize local file store")
		}
		entry.WithField("root", cfg.Files.LocalRoot).Info("using local file store")
	}

	schemas, err := validator.New(cfg.Definitions.SchemasDir, logger)
	if err != nil {
		entry.WithError(err).Fatal("failed to load validation schemas")
	}

	broker := events.NewBroker(logger)
	var fanout events.Fanout
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = newRedisClient(cfg.Redis)
		if err != nil {
			entry.WithError(err).Fatal("failed to configure redis")
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			entry.WithError(err).Fatal("failed to ping redis")
		}
		bridge := events.NewRedisBridge(redisClient, broker, logger)
		fanout = append(fanout, bridge)
		go func() {
			defer observability.RecoverPanic(entry, "redis notification bridge")
			if err := bridge.Run(runCtx); err != nil && runCtx.Err() == nil {
				entry.WithError(err).Error("redis notification bridge stopped")
			}
		}()
		entry.Info("redis notification bridge enabled")
	} else {
		fanout = append(fanout, broker)
	}

	auditLog := audit.NewLog(store, entry)
	auditLog.EnsureIndexes(ctx)
	fanout = append(fanout, auditLog)

	webhookManager := webhooks.NewManager(store)
	dispatcher := webhooks.NewDispatcher(runCtx, webhookManager, webhooks.DispatcherConfig{Logger: entry})
	fanout = append(fanout, dispatcher)
	go func() {
		defer observability.RecoverPanic(entry, "webhook retry worker")
		if err := dispatcher.Run(runCtx); err != nil && runCtx.Err() == nil {
			entry.WithError(err).Error("webhook retry worker stopped")
		}
	}()

	resolver, err := buildResolver(ctx, cfg, adapter, logger)
	if err != nil {
		entry.WithError(err).Fatal("failed to initialize token resolver")
	}

	var metrics *observability.Metrics
	var promRegistry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(promRegistry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to initialize OpenTelemetry")
	}

	engine, err := resource.New(resource.Config{
		Definitions: registry,
		Store:       adapter,
		Files:       files,
		Validator:   schemas,
		Events:      fanout,
		Broker:      broker,
		Metrics:     metrics,
		Logger:      entry,
	})
	if err != nil {
		entry.WithError(err).Fatal("failed to build resource engine")
	}
	engine.EnsureIndexes(ctx)

	server, err := api.NewServer(api.Config{
		Engine:   engine,
		Resolver: resolver,
		Metrics:  metrics,
		Webhooks: webhooks.NewHandlers(webhookManager, dispatcher, entry),
		Audit:    audit.NewHandlers(auditLog, entry),
		Docs:     swagger.NewHandlers(registry, cfg.Observability.OTelServiceVersion),
		Logger:   entry,
	})
	if err != nil {
		entry.WithError(err).Fatal("failed to build API server")
	}

	handler := server.Handler()
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			entry.WithError(err).Fatal("failed to build OpenTelemetry metrics")
		}
		handler = otelMetrics.HTTPMiddleware(handler)
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	if promRegistry != nil {
		healthMux.Handle("/metrics", observability.MetricsHandler(promRegistry))
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(entry, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancelRun()
		broker.Close()
		return nil
	})
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return dispatcher.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if db != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return db.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, entry)
		})
	}

	go func() {
		entry.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("health server failed")
		}
	}()
	go func() {
		entry.WithFields(logrus.Fields{
			"addr":  httpServer.Addr,
			"types": engine.Types(),
		}).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("API server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		entry.WithError(err).Error("shutdown finished with errors")
		return
	}
}

// collections returns the adapter whitelist: every resource type plus every
// role referenced by a rule. Role collections back ownership checks and the
// per-group actor data loaded at token resolution.
func collections(registry *apidef.Registry) []string {
	set := map[string]bool{}
	for _, name := range registry.Types() {
		set[name] = true
		if def, ok := registry.Get(name); ok {
			for _, role := range def.Roles() {
				set[role] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

func buildResolver(ctx context.Context, cfg *config.Config, adapter *docstore.Adapter, logger *logrus.Logger) (identity.Resolver, error) {
	switch cfg.Auth.Type {
	case "oidc":
		loader := func(ctx context.Context, group, subject string) (docstore.Doc, error) {
			doc, err := adapter.FindOne(ctx, group, docstore.Filter{"authId": subject}, nil)
			if err != nil {
				// groups without a backing collection or record carry no data
				if apierror.IsNotFound(err) || apierror.IsForbidden(err) {
					return nil, docstore.ErrNoDocuments
				}
				return nil, err
			}
			return doc, nil
		}
		return identity.NewOIDCResolver(ctx, cfg.Auth.OIDC, loader, logger)
	default:
		tokens, err := cfg.Auth.ParseStaticTokens()
		if err != nil {
			return nil, err
		}
		actors := make(map[string]*identity.Actor, len(tokens))
		for token, subject := range tokens {
			// static actors are development-only and get full access
			actors[token] = &identity.Actor{
				SubjectID: subject,
				Name:      subject,
				Groups:    []string{"admin"},
			}
		}
		return &identity.StaticResolver{Actors: actors}, nil
	}
}
