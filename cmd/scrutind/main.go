// Command scrutind is the Scrutin results service.
// It serves the results API, Prometheus metrics and a health check.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/api"
	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/dashboard"
	"github.com/scrutin/scrutin/internal/events"
	"github.com/scrutin/scrutin/internal/ingestion"
	"github.com/scrutin/scrutin/internal/lock"
	"github.com/scrutin/scrutin/internal/platform"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/config"
)

type daemonConfig struct {
	Port             string
	DatabaseURL      string
	ConfigFile       string
	LogLevel         string
	OperatorKeys     string
	ArchiveBackend   string
	LocalArchivePath string
	S3               archive.S3Config
	GCSBucket        string
	RedisAddr        string
	KafkaBrokers     string
	KafkaTopic       string
	ArchiveCacheSize string
}

func loadConfig() daemonConfig {
	return daemonConfig{
		Port:             envOrDefault("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ConfigFile:       os.Getenv("CONFIG_FILE"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		OperatorKeys:     os.Getenv("OPERATOR_KEYS"),
		ArchiveBackend:   envOrDefault("ARCHIVE_BACKEND", "local"),
		LocalArchivePath: envOrDefault("LOCAL_ARCHIVE_PATH", config.ArchiveDir()),
		S3: archive.S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Prefix:    os.Getenv("S3_PREFIX"),
			Region:    os.Getenv("S3_REGION"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       envOrDefault("KAFKA_TOPIC", "scrutin.publication"),
		ArchiveCacheSize: os.Getenv("ARCHIVE_CACHE_SIZE"),
	}
}

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := loadConfig()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("scrutind stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zc.Level = lvl
	return zc.Build()
}

func run(cfg daemonConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := config.DefaultConfig()
	path := cfg.ConfigFile
	if path == "" {
		path = config.FindConfigFile(".")
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		appCfg = loaded
		logger.Info("loaded config", zap.String("path", path))
	}
	if cfg.ArchiveCacheSize != "" {
		n, err := strconv.Atoi(cfg.ArchiveCacheSize)
		if err != nil {
			return fmt.Errorf("parse ARCHIVE_CACHE_SIZE: %w", err)
		}
		appCfg.Archive.CacheSize = n
	}

	keys, err := api.ParseOperatorKeys(cfg.OperatorKeys)
	if err != nil {
		return fmt.Errorf("parse OPERATOR_KEYS: %w", err)
	}
	if len(keys) == 0 {
		logger.Warn("no operator keys configured, the API is read-only")
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	arch := archive.New(blobs, appCfg.Archive.CacheSize)

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		locker = lock.NewRedis(rdb, "scrutin:lock:", logger)
		logger.Info("using redis entity locks", zap.String("addr", cfg.RedisAddr))
	}

	var pub events.Publisher = events.Nop{}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		pub = events.NewKafka(brokers, cfg.KafkaTopic, logger)
		logger.Info("publishing transition events", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer pub.Close()

	// Initialize services
	dash := dashboard.NewService(st, locker, arch, pub, appCfg.Dashboard, logger)
	ing := ingestion.NewService(st, st, appCfg.Ingestion, logger)

	// Set up HTTP routes
	mux := http.NewServeMux()
	api.NewHandler(dash, ing, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler(st))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.CORS(api.APIKeyAuth(keys)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting scrutind", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg daemonConfig, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	db, err := platform.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := platform.AutoMigrate(db.DB); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPostgres(db), func() { db.Close() }, nil
}

func openBlobs(ctx context.Context, cfg daemonConfig) (archive.Blobs, error) {
	switch cfg.ArchiveBackend {
	case "local":
		return archive.NewLocal(cfg.LocalArchivePath), nil
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, errors.New("ARCHIVE_BACKEND=s3 requires S3_BUCKET")
		}
		return archive.NewS3(ctx, cfg.S3)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, errors.New("ARCHIVE_BACKEND=gcs requires GCS_BUCKET")
		}
		return archive.NewGCS(ctx, cfg.GCSBucket)
	}
	return nil, fmt.Errorf("unknown ARCHIVE_BACKEND %q", cfg.ArchiveBackend)
}

func healthHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
