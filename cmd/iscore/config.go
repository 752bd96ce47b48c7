package main

import (
	"errors"
	"flag"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// config holds the command settings. Flags override the environment.
type config struct {
	EnvFile       string
	SchemaDir     string
	MappingFile   string
	Dialect       string
	DSN           string
	SequenceTable string
	OptimizeJoins bool
	SlowQuery     time.Duration
	Debug         bool
}

func parseConfig(args []string, stderr io.Writer) (*config, []string, error) {
	envFile := ".env"
	for i, a := range args {
		if (a == "-env" || a == "--env") && i+1 < len(args) {
			envFile = args[i+1]
		}
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	cfg := &config{EnvFile: envFile}
	flags := flag.NewFlagSet("iscore", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cfg.EnvFile, "env", envFile, "environment file")
	flags.StringVar(&cfg.SchemaDir, "schema", getEnv("ISCORE_SCHEMA_DIR", "."), "directory of entity files")
	flags.StringVar(&cfg.MappingFile, "mapping", getEnv("ISCORE_MAPPING", ""), "name mapping file")
	flags.StringVar(&cfg.Dialect, "dialect", getEnv("ISCORE_DIALECT", "postgres"), "SQL dialect: postgres, mysql or sqlite")
	flags.StringVar(&cfg.DSN, "dsn", getEnv("ISCORE_DSN", ""), "data source name")
	flags.StringVar(&cfg.SequenceTable, "sequence-table", getEnv("ISCORE_SEQUENCE_TABLE", "SEQUENCE"), "table holding the id sequences")
	flags.BoolVar(&cfg.OptimizeJoins, "optimize-joins", getEnvBool("ISCORE_OPTIMIZE_JOINS", false), "join only the tables a query needs")
	flags.DurationVar(&cfg.SlowQuery, "slow-query", getEnvDuration("ISCORE_SLOW_QUERY", 200*time.Millisecond), "slow query threshold")
	flags.BoolVar(&cfg.Debug, "debug", getEnvBool("ISCORE_DEBUG", false), "log at debug level")
	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}
	return cfg, flags.Args(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
