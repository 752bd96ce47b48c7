// Command iscore loads entity definitions from a directory of YAML files and
// prints or runs the statements built from them.
//
//	iscore -schema ./entities validate
//	iscore -schema ./entities select Order status=open region=EU
//	iscore -schema ./entities -dsn "$DSN" query Order status=open
//	iscore -schema ./entities -dsn "$DSN" nextid SEQ_ORDER
//
// Settings not given as flags are read from the environment, after loading
// a .env file when one exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "iscore: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, rest, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage)
		return errUsage
	}
	app, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "validate":
		return app.validate()
	case "select", "count":
		return app.print(ctx, cmd, rest)
	case "query":
		return app.query(ctx, rest)
	case "nextid":
		return app.nextID(ctx, rest)
	}
	fmt.Fprintf(stderr, "unknown command %q\n%s\n", cmd, usage)
	return errUsage
}

var errUsage = errors.New("usage")

const usage = `usage: iscore [flags] <command> [args]

commands:
  validate                      check the links between entities
  select <entity> [name=value]  print the search statement
  count <entity> [name=value]   print the count statement
  query <entity> [name=value]   run the search and print the rows
  nextid <sequence>             allocate the next value of a sequence`
