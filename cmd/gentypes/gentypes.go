package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/internal/config"
	"github.com/jrsteele09/go-auth-starter/internal/typegen"
	"github.com/spf13/cobra"
)

type genOptions struct {
	url     string
	key     string
	out     string
	pkg     string
	tables  []string
	timeout time.Duration
}

func newRootCmd(c config.BackendConfig) *cobra.Command {
	opts := genOptions{}

	cmd := &cobra.Command{
		Use:   "gentypes",
		Short: "Generate Go types from the backend schema",
		Long: `Fetch the backend's OpenAPI schema document and write one Go struct per
table or view, with nullable columns as pointers.

The backend URL and anon key default to BACKEND_URL and BACKEND_ANON_KEY
(.env and .env.local are loaded first).

Examples:
  gentypes                                  # print all tables to stdout
  gentypes --out internal/dbtypes/types.go  # write a file
  gentypes --table profiles --package db    # one table, custom package`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenTypes(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", c.GetBackendURL(), "Backend project URL")
	cmd.Flags().StringVar(&opts.key, "key", c.GetBackendAnonKey(), "Backend anon key")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&opts.pkg, "package", "p", "dbtypes", "Package name of the generated file")
	cmd.Flags().StringSliceVarP(&opts.tables, "table", "t", nil, "Only generate these tables (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Schema request timeout")

	return cmd
}

func runGenTypes(ctx context.Context, cmd *cobra.Command, opts genOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client, err := backend.NewBrowserClient(backend.Options{URL: opts.url, AnonKey: opts.key}, nil)
	if err != nil {
		return err
	}
	doc, err := client.Schema(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch schema from %s: %w", opts.url, err)
	}

	src, err := typegen.Generate(doc, typegen.Options{Package: opts.pkg, Tables: opts.tables})
	if err != nil {
		return err
	}

	if opts.out == "" {
		_, err = cmd.OutOrStdout().Write(src)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, src, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "\033[32m✓\033[0m wrote %s\n", opts.out)
	return nil
}
