package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/insersa/iscore/dao"
	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/load"
)

type app struct {
	cfg     *config
	schemas *schema.Registry
	daos    *dao.Registry
	drv     *sql.StatsDriver
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func newApp(ctx context.Context, cfg *config, stdout, stderr io.Writer) (*app, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	schemas := schema.NewRegistry()
	if err := load.Dir(ctx, schemas, cfg.SchemaDir, load.Options{MappingFile: cfg.MappingFile}); err != nil {
		return nil, err
	}
	schemas.Freeze()
	daos, err := dao.NewRegistry(schemas,
		dao.WithDialect(cfg.Dialect),
		dao.WithJoinOptimization(cfg.OptimizeJoins),
		dao.WithSequenceTable(cfg.SequenceTable),
		dao.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, schemas: schemas, daos: daos, logger: logger, stdout: stdout, stderr: stderr}
	if cfg.DSN != "" {
		drv, err := sql.Open(cfg.Dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		opts := []sql.StatsOption{sql.WithSlowThreshold(cfg.SlowQuery), sql.WithSlowQueryLog(logger)}
		if cfg.Debug {
			opts = append(opts, sql.WithStatementLog(logger))
		}
		a.drv = sql.NewStatsDriver(drv, opts...)
	}
	return a, nil
}

func (a *app) Close() error {
	if a.drv == nil {
		return nil
	}
	a.logger.Debug("closing connection", "stats", a.drv.QueryStats().Snapshot().String())
	return a.drv.Close()
}

func (a *app) validate() error {
	res := a.schemas.Validate()
	fmt.Fprint(a.stdout, res.String())
	return res.Err()
}

// print writes the statement of a search or count without running it.
func (a *app) print(ctx context.Context, cmd string, args []string) error {
	d, q, err := a.request(cmd, args)
	if err != nil {
		return err
	}
	var s dao.Statement
	if cmd == "count" {
		s, err = d.Count(ctx, q)
	} else {
		s, err = d.Select(ctx, q)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, sql.Rebind(a.cfg.Dialect, s.SQL))
	if len(s.Args) > 0 {
		fmt.Fprintf(a.stdout, "-- args: %v\n", s.Args)
	}
	return nil
}

// query runs a search and writes one JSON object per row.
func (a *app) query(ctx context.Context, args []string) error {
	if a.drv == nil {
		return errors.New("query needs a data source, set -dsn or ISCORE_DSN")
	}
	d, q, err := a.request("query", args)
	if err != nil {
		return err
	}
	rows, err := dao.NewExecutor(a.drv).Select(ctx, d, q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) nextID(ctx context.Context, args []string) error {
	if a.drv == nil {
		return errors.New("nextid needs a data source, set -dsn or ISCORE_DSN")
	}
	if len(args) != 1 {
		return fmt.Errorf("nextid takes one sequence name, got %d arguments", len(args))
	}
	id, err := a.daos.NextID(ctx, a.drv, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

// request parses "<entity> [flags] [name=value...]" into a DAO and a query.
func (a *app) request(cmd string, args []string) (*dao.DAO, *dao.Query, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("%s needs an entity name", cmd)
	}
	d, err := a.daos.DAO(args[0])
	if err != nil {
		return nil, nil, err
	}
	q := &dao.Query{Values: make(map[string]any)}
	var fields string
	flags := flag.NewFlagSet(cmd, flag.ContinueOnError)
	flags.SetOutput(a.stderr)
	flags.StringVar(&q.SortKey, "sort", "", "sort definition id")
	flags.BoolVar(&q.Reverse, "reverse", false, "reverse the sort order")
	flags.IntVar(&q.Limit, "limit", 0, "maximum number of rows")
	flags.IntVar(&q.Offset, "offset", 0, "rows to skip")
	flags.StringVar(&fields, "fields", "", "comma separated attributes to select")
	flags.StringVar(&q.Extra, "where", "", "additional condition")
	if err := flags.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	if fields != "" {
		q.Select = strings.Split(fields, ",")
	}
	for _, kv := range flags.Args() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, nil, fmt.Errorf("search value %q is not name=value", kv)
		}
		q.Values[name] = value
	}
	return d, q, nil
}
