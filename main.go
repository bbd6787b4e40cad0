// Package main is the entry point for the Scribe documentation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"scribe/bootstrap"
	"scribe/cmd"
	_ "scribe/docs"

	"github.com/spf13/cobra"
)

// run initializes and starts the Scribe service.
func run(opts bootstrap.Options) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

// parseServeFlags reads the launch configuration overrides.
func parseServeFlags(args []string) (bootstrap.Options, error) {
	fs := flag.NewFlagSet("scribe", flag.ContinueOnError)
	opts := bootstrap.Options{}

	fs.StringVar(&opts.Host, "host", "", "Bind host (default from config: 127.0.0.1)")
	fs.IntVar(&opts.Port, "port", 0, "Bind port (default from config: 8000)")
	fs.StringVar(&opts.CertFile, "tls-cert", "", "TLS certificate file; requires --tls-key")
	fs.StringVar(&opts.KeyFile, "tls-key", "", "TLS private key file; requires --tls-cert")
	fs.BoolVar(&opts.Reload, "reload", false, "Reload prompts when the config file changes (development)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// main is the entry point.
func main() {
	// CLI subcommands run without the server.
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		name := os.Args[1]
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		var command *cobra.Command
		switch name {
		case "docgen":
			command = cmd.NewDocgenCmd()
		case "chunk":
			command = cmd.NewChunkCmd()
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown command %q\nAvailable commands: docgen, chunk\n", name)
			os.Exit(1)
		}

		if err := command.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts, err := parseServeFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
