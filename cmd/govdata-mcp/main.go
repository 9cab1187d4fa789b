// govdata-mcp exposes a SQL data lake to AI agents over the Model Context
// Protocol.
//
// Usage:
//
//	govdata-mcp [--transport auto|stdio|http] [--addr host:port] [--log-level LEVEL]
//	govdata-mcp token [--subject SUB] [--ttl DURATION] [--claim key=value ...]
//
// Settings come from the environment (see the config package); flags
// override them. With --transport auto (the default) the gateway speaks
// stdio when stdin is not a terminal, which is how desktop agents launch
// it, and serves HTTP otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const (
	programName = "govdata-mcp"
	version     = "0.1.0"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "token" {
		return runToken(args[1:], stdout, stderr)
	}

	var opts serveOptions
	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.transport, "transport", "", "transport: auto, stdio or http (overrides MCP_TRANSPORT)")
	flagSet.StringVar(&opts.addr, "addr", "", "HTTP listen address host:port (overrides SERVER_HOST/SERVER_PORT)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides LOG_LEVEL)")
	showVersion := flagSet.Bool("version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "%s %s\n", programName, version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return serve(ctx, opts)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `%s serves a SQL data lake to AI agents over MCP.

Usage:
  %s [flags]
  %s token [--subject SUB] [--ttl DURATION] [--claim key=value ...]

Flags:
%s`, programName, programName, programName, flagSet.FlagUsages())
}
