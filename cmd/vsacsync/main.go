// Command vsacsync downloads the VSAC ValueSets referenced by CQL libraries
// into a local cache directory for the CQL execution engine.
//
// Usage:
//
//	vsacsync --api-key YOUR_VSAC_KEY
//	vsacsync --api-key YOUR_VSAC_KEY --cql path/to/file.cql
//
// VSAC_API_KEY may be used instead of --api-key, either in the environment
// or in a .env file at the repository root or the current directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/SanteonNL/vsacsync/cmd/vsacsync/vsac"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lookup := LookupFunc(os.LookupEnv)
	if cwd, err := os.Getwd(); err == nil {
		l, _, err := newLookup(os.LookupEnv, dotEnvPaths(cwd))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		lookup = l
	}

	code := run(ctx, os.Args[1:], lookup, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newLogger(w io.Writer, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if quiet {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = w
		cw.NoColor = true
	})).Level(level).With().Timestamp().Logger()
}

// run executes vsacsync with the given arguments and returns the exit code.
func run(ctx context.Context, args []string, lookup LookupFunc, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, lookup, stderr)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errMissingAPIKey):
		fmt.Fprintf(stderr, "Error: %v.\n\n%s", err, apiKeyInstructions)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log := newLogger(stdout, cfg.Quiet)
	if err := syncValueSets(ctx, cfg, log); err != nil {
		log.Error().Msg(diagnostic(err))
		return 1
	}
	return 0
}

// diagnostic renders err as the one-line message shown to the user.
func diagnostic(err error) string {
	if errors.Is(err, errNoCQLFiles) {
		return err.Error()
	}
	if vsac.IsFatal(err) {
		return "VSAC Error: " + err.Error()
	}
	return "Error: " + err.Error()
}
