package storage

import "time"

// PostgresConfig captures pool tuning applied when opening the Postgres
// repository. Zero values defer to pgxpool defaults.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthInterval  time.Duration
	AcquireTimeout  time.Duration
	ApplicationName string
}

// PostgresOption mutates the Postgres repository configuration.
type PostgresOption func(*PostgresConfig)

// WithPoolLimits bounds the number of pooled connections.
func WithPoolLimits(maxConns, minConns int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns > 0 {
			cfg.MinConnections = minConns
		}
	}
}

// WithPoolDurations tunes connection lifetime, idle time, and health checks.
func WithPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthInterval = healthInterval
		}
	}
}

// WithAcquireTimeout bounds how long opening a connection may take.
func WithAcquireTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		if name != "" {
			cfg.ApplicationName = name
		}
	}
}
