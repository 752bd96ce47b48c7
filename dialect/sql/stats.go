package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/insersa/iscore/dialect"
)

// DefaultSlowThreshold is the duration above which a statement is slow.
const DefaultSlowThreshold = 100 * time.Millisecond

// QueryStats counts the statements run through a StatsDriver.
type QueryStats struct {
	queries atomic.Int64
	execs   atomic.Int64
	errors  atomic.Int64
	slow    atomic.Int64
	elapsed atomic.Int64
}

// Snapshot returns the current counters.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries: s.queries.Load(),
		Execs:   s.execs.Load(),
		Errors:  s.errors.Load(),
		Slow:    s.slow.Load(),
		Elapsed: time.Duration(s.elapsed.Load()),
	}
}

// Reset sets all counters to zero.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.queries, &s.execs, &s.errors, &s.slow, &s.elapsed} {
		c.Store(0)
	}
}

// StatsSnapshot is a copy of the counters of a QueryStats.
type StatsSnapshot struct {
	Queries int64
	Execs   int64
	Errors  int64
	Slow    int64
	Elapsed time.Duration
}

// Avg returns the mean duration of a statement.
func (s StatsSnapshot) Avg() time.Duration {
	n := s.Queries + s.Execs
	if n == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d errors=%d slow=%d elapsed=%s avg=%s",
		s.Queries, s.Execs, s.Errors, s.Slow, s.Elapsed, s.Avg())
}

// Event describes a statement run through a StatsDriver.
type Event struct {
	Query    string
	Args     []any
	Exec     bool
	Duration time.Duration
	Slow     bool
	Err      error
}

// StatsDriver is a Driver counting its statements and reporting them to
// observers.
type StatsDriver struct {
	*Driver
	stats     QueryStats
	slow      time.Duration
	observers []func(context.Context, Event)
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.slow = d }
}

// WithObserver calls fn after every statement.
func WithObserver(fn func(context.Context, Event)) StatsOption {
	return func(s *StatsDriver) { s.observers = append(s.observers, fn) }
}

// WithSlowQueryLog logs slow statements at warn level. Arguments are not
// logged, they may hold personal data.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithObserver(func(ctx context.Context, ev Event) {
		if ev.Slow {
			logger.WarnContext(ctx, "slow query detected", "duration", ev.Duration, "query", ev.Query, "args", len(ev.Args))
		}
	})
}

// WithStatementLog logs every statement at debug level.
func WithStatementLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithObserver(func(ctx context.Context, ev Event) {
		attrs := []any{"query", ev.Query, "args", len(ev.Args), "duration", ev.Duration}
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		logger.DebugContext(ctx, "statement", attrs...)
	})
}

// NewStatsDriver wraps drv.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	rows, err := dao.NewExecutor(stats).Select(ctx, orders, q)
//	fmt.Println(stats.QueryStats().Snapshot())
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, slow: DefaultSlowThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return &d.stats }

// Query runs a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, false, func() error { return d.Driver.Query(ctx, query, args, v) })
}

// Exec runs a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, true, func() error { return d.Driver.Exec(ctx, query, args, v) })
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, drv: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, exec bool, run func() error) error {
	start := time.Now()
	err := run()
	ev := Event{Query: query, Exec: exec, Duration: time.Since(start), Err: err}
	ev.Args, _ = args.([]any)
	ev.Slow = ev.Duration > d.slow
	if exec {
		d.stats.execs.Add(1)
	} else {
		d.stats.queries.Add(1)
	}
	d.stats.elapsed.Add(int64(ev.Duration))
	if err != nil {
		d.stats.errors.Add(1)
	}
	if ev.Slow {
		d.stats.slow.Add(1)
	}
	for _, fn := range d.observers {
		fn(ctx, ev)
	}
	return err
}

type statsTx struct {
	dialect.Tx
	drv *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.drv.observe(ctx, query, args, false, func() error { return tx.Tx.Query(ctx, query, args, v) })
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.drv.observe(ctx, query, args, true, func() error { return tx.Tx.Exec(ctx, query, args, v) })
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*statsTx)(nil)
)
