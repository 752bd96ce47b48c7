package dao

import (
	"log/slog"
	"time"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/privacy"
)

// DefaultSequenceTable is the table holding named id sequences.
const DefaultSequenceTable = "SEQUENCE"

// DefaultMaxDepth bounds the nesting of child and parent sub-queries.
const DefaultMaxDepth = 8

// Config holds the settings shared by the statement builders of a registry.
type Config struct {
	// Dialect selects the join style and timestamp literal. Empty renders
	// the portable form also accepted by SQLite.
	Dialect string
	// JoinOptimization restricts the FROM clause of a select to the tables
	// the request references.
	JoinOptimization bool
	// Authorizer supplies the security clause of selects, updates and deletes.
	Authorizer privacy.Authorizer
	// Logger receives debug records for ignored request keys.
	Logger *slog.Logger
	// Clock provides epoch timestamps for entities storing time as BIGINT.
	Clock func() time.Time
	// SequenceTable names the table used by NextID.
	SequenceTable string
	// Cache stores select results of an Executor. Nil disables caching.
	Cache iscore.Cache
	// CacheTTL is the lifetime of cached results. Zero never expires.
	CacheTTL time.Duration
	// MaxDepth bounds sub-query nesting.
	MaxDepth int
	// SessionUser and SessionTenant name the database session variables an
	// Executor sets to the viewer's user and tenant id before each statement.
	SessionUser   string
	SessionTenant string
}

// Option configures statement building.
type Option func(*Config) error

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		Logger:        slog.Default(),
		Clock:         time.Now,
		SequenceTable: DefaultSequenceTable,
		MaxDepth:      DefaultMaxDepth,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithDialect sets the SQL dialect.
func WithDialect(name string) Option {
	return func(c *Config) error {
		if name != "" && !dialect.Supported(name) {
			return iscore.NewConfigError("", "", "dialect", "unsupported dialect "+name)
		}
		c.Dialect = name
		return nil
	}
}

// WithJoinOptimization enables or disables join pruning.
func WithJoinOptimization(enabled bool) Option {
	return func(c *Config) error {
		c.JoinOptimization = enabled
		return nil
	}
}

// WithAuthorizer sets the source of security clauses.
func WithAuthorizer(a privacy.Authorizer) Option {
	return func(c *Config) error {
		c.Authorizer = a
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return iscore.NewConfigError("", "", "logger", "logger cannot be nil")
		}
		c.Logger = l
		return nil
	}
}

// WithClock sets the clock used for epoch timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now == nil {
			return iscore.NewConfigError("", "", "clock", "clock cannot be nil")
		}
		c.Clock = now
		return nil
	}
}

// WithSequenceTable sets the table used for id allocation.
func WithSequenceTable(table string) Option {
	return func(c *Config) error {
		if table == "" {
			return iscore.NewConfigError("", "", "sequence", "sequence table cannot be empty")
		}
		c.SequenceTable = table
		return nil
	}
}

// WithCache enables result caching for executors built from the config.
func WithCache(cache iscore.Cache, ttl time.Duration) Option {
	return func(c *Config) error {
		c.Cache = cache
		c.CacheTTL = ttl
		return nil
	}
}

// WithMaxDepth bounds sub-query nesting.
func WithMaxDepth(depth int) Option {
	return func(c *Config) error {
		if depth < 1 {
			return iscore.NewConfigError("", "", "depth", "max depth must be positive")
		}
		c.MaxDepth = depth
		return nil
	}
}

// WithViewerSession makes executors pass the viewer to the database as
// session variables, for row-level security policies. An empty name
// leaves that variable out.
func WithViewerSession(userVar, tenantVar string) Option {
	return func(c *Config) error {
		if userVar == "" && tenantVar == "" {
			return iscore.NewConfigError("", "", "session", "no session variable named")
		}
		c.SessionUser = userVar
		c.SessionTenant = tenantVar
		return nil
	}
}

func (c *Config) comma() bool {
	return c.Dialect != dialect.Postgres && c.Dialect != dialect.MySQL
}

func (c *Config) now() string {
	if c.Dialect == dialect.SQLite {
		return "CURRENT_TIMESTAMP"
	}
	return "NOW()"
}
