// Command server starts the Mobile Core API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/api"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/auth"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/blob"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/observability/logging"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/observability/metrics"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/server"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	jwtSecret := flag.String("jwt-secret", "", "HMAC key for signing session tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "session token lifetime")
	cookieName := flag.String("cookie-name", "", "session cookie name")
	cookieDomain := flag.String("cookie-domain", "", "session cookie domain")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	allowedOrigins := flag.String("allowed-origins", "", "comma separated browser origins allowed by CORS")
	globalRPS := flag.Float64("rate-global-rps", 0, "process-wide request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "process-wide rate limit burst allowance")
	globalLimit := flag.Int("rate-global-limit", 0, "maximum requests per window for a single IP")
	globalWindow := flag.Duration("rate-global-window", 0, "window for counting requests per IP")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	registerLimit := flag.Int("rate-register-limit", 0, "maximum registrations per window for a single IP")
	registerWindow := flag.Duration("rate-register-window", 0, "window for counting registrations")
	uploadLimit := flag.Int("rate-upload-limit", 0, "maximum uploads per window for a single IP")
	uploadWindow := flag.Duration("rate-upload-window", 0, "window for counting uploads")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for shared rate-limit counters")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for shared rate-limit counters")
	redisDB := flag.Int("rate-redis-db", 0, "Redis database for shared rate-limit counters")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for uploads")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for media links")
	uploadStagingDir := flag.String("upload-staging-dir", "", "directory for spooling uploads during size checks")
	maxFilesDefault := flag.Int("max-files-default", 0, "default cap on files per multi-file upload")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("MOBILE_CORE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("MOBILE_CORE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("MOBILE_CORE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("MOBILE_CORE_ADDR"))

	secret := firstNonEmpty(*jwtSecret, os.Getenv("MOBILE_CORE_JWT_SECRET"))
	if secret == "" {
		logger.Error("session signing key is required: set --jwt-secret or MOBILE_CORE_JWT_SECRET")
		os.Exit(1)
	}
	var tokenOptions []auth.TokenOption
	if ttl := resolveDuration(*tokenTTL, "MOBILE_CORE_TOKEN_TTL", 0); ttl > 0 {
		tokenOptions = append(tokenOptions, auth.WithTokenTTL(ttl))
	}
	tokens, err := auth.NewTokenIssuer(secret, tokenOptions...)
	if err != nil {
		logger.Error("failed to initialise token issuer", "error", err)
		os.Exit(1)
	}

	dsn := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("MOBILE_CORE_STORAGE_DRIVER"), dsn)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres datastore driver", "driver", driver)
		os.Exit(1)
	}

	var store storage.Repository
	switch driver {
	case "memory":
		store = storage.NewMemoryRepository()
	case "postgres":
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "MOBILE_CORE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "MOBILE_CORE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "MOBILE_CORE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "MOBILE_CORE_POSTGRES_MAX_CONN_IDLE", 0)
		if maxLifetime > 0 || maxIdle > 0 {
			pgOptions = append(pgOptions, storage.WithPoolDurations(maxLifetime, maxIdle, 0))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "MOBILE_CORE_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("MOBILE_CORE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(appName))
		}
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = storage.NewPostgresRepository(connectCtx, dsn, pgOptions...)
		cancel()
		if err != nil {
			logger.Error("failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown storage driver", "driver", driver)
		os.Exit(1)
	}

	objects := blob.NewClient(blob.Config{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("MOBILE_CORE_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("MOBILE_CORE_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("MOBILE_CORE_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("MOBILE_CORE_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("MOBILE_CORE_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "MOBILE_CORE_OBJECT_USE_SSL"),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("MOBILE_CORE_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("MOBILE_CORE_OBJECT_PUBLIC_ENDPOINT")),
	})
	if !objects.Enabled() {
		logger.Warn("object storage not configured; uploads will be rejected")
	}

	handler := api.NewHandler(store, tokens, objects)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.SessionCookieName = firstNonEmpty(*cookieName, os.Getenv("MOBILE_CORE_COOKIE_NAME"))
	handler.SessionCookieDomain = firstNonEmpty(*cookieDomain, os.Getenv("MOBILE_CORE_COOKIE_DOMAIN"))
	if serverMode == "production" {
		handler.SessionCookiePolicy = api.ProductionSessionCookiePolicy()
	} else {
		handler.SessionCookiePolicy = api.DefaultSessionCookiePolicy()
	}
	handler.StagingDir = firstNonEmpty(*uploadStagingDir, os.Getenv("MOBILE_CORE_UPLOAD_STAGING_DIR"))
	handler.MaxFilesDefault = resolveInt(*maxFilesDefault, "MOBILE_CORE_MAX_FILES_DEFAULT")

	rateCfg := server.RateLimitConfig{
		GlobalRPS:      resolveFloat(*globalRPS, "MOBILE_CORE_RATE_GLOBAL_RPS"),
		GlobalBurst:    resolveInt(*globalBurst, "MOBILE_CORE_RATE_GLOBAL_BURST"),
		GlobalLimit:    resolveInt(*globalLimit, "MOBILE_CORE_RATE_GLOBAL_LIMIT"),
		GlobalWindow:   resolveDuration(*globalWindow, "MOBILE_CORE_RATE_GLOBAL_WINDOW", 0),
		LoginLimit:     resolveInt(*loginLimit, "MOBILE_CORE_RATE_LOGIN_LIMIT"),
		LoginWindow:    resolveDuration(*loginWindow, "MOBILE_CORE_RATE_LOGIN_WINDOW", 0),
		RegisterLimit:  resolveInt(*registerLimit, "MOBILE_CORE_RATE_REGISTER_LIMIT"),
		RegisterWindow: resolveDuration(*registerWindow, "MOBILE_CORE_RATE_REGISTER_WINDOW", 0),
		UploadLimit:    resolveInt(*uploadLimit, "MOBILE_CORE_RATE_UPLOAD_LIMIT"),
		UploadWindow:   resolveDuration(*uploadWindow, "MOBILE_CORE_RATE_UPLOAD_WINDOW", 0),
		RedisAddr:      firstNonEmpty(*redisAddr, os.Getenv("MOBILE_CORE_RATE_REDIS_ADDR")),
		RedisPassword:  firstNonEmpty(*redisPassword, os.Getenv("MOBILE_CORE_RATE_REDIS_PASSWORD")),
		RedisDB:        resolveInt(*redisDB, "MOBILE_CORE_RATE_REDIS_DB"),
		RedisTimeout:   resolveDuration(*redisTimeout, "MOBILE_CORE_RATE_REDIS_TIMEOUT", 0),
	}

	corsOrigins := splitAndTrim(firstNonEmpty(*allowedOrigins, os.Getenv("MOBILE_CORE_ALLOWED_ORIGINS")))

	tlsCfg := server.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("MOBILE_CORE_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("MOBILE_CORE_TLS_KEY")),
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		TLS:       tlsCfg,
		RateLimit: rateCfg,
		CORS:      server.CORSConfig{AllowedOrigins: corsOrigins},
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Mobile Core API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("shutdown complete")
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if postgresDSN != "" {
		return "postgres", nil
	}
	return "memory", nil
}

func resolvePostgresDSN(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv("MOBILE_CORE_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
