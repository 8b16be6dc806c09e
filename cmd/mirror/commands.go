// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMirror/pkg/logging"
)

// cli carries state between the root command's pre-run and subcommands.
type cli struct {
	configPath string
	quiet      bool
	getenv     func(string) (string, bool)
	cfg        Config
	logger     *logging.Logger
}

// newCLI returns a cli reading environment overrides through getenv; main
// passes os.LookupEnv.
func newCLI(getenv func(string) (string, bool)) *cli {
	return &cli{getenv: getenv}
}

// execute runs cmd and closes the logger afterwards, including when the
// command failed. cobra skips post-run hooks on error.
func (c *cli) execute(cmd *cobra.Command) error {
	defer c.closeLogger()
	return cmd.Execute()
}

func (c *cli) closeLogger() {
	if c.logger == nil {
		return
	}
	if err := c.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	c.logger = nil
}

// rootCmd builds the command tree.
func (c *cli) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror a Notion content tree into a local snapshot and serve it",
		Long: `mirror replicates a Notion page or database, with its nested pages,
databases and blocks, into a single JSON snapshot and serves reads from it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	defaultConfig, _ := c.getenv("MIRROR_CONFIG")
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", defaultConfig,
		"path to a YAML config file (env MIRROR_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&c.quiet, "quiet", false,
		"no log output on stderr; the log file, if configured, still receives records")

	rootCmd.AddCommand(c.serveCmd(), c.fetchCmd(), c.getCmd())
	return rootCmd
}

func (c *cli) setup() error {
	cfg, err := LoadConfig(c.configPath, c.getenv)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: serviceName,
		Format:  logging.Format(cfg.Logging.Format),
		Quiet:   c.quiet,
	})
	slog.SetDefault(c.logger.Slog())
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				c.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	cleanup, err := initTracer(ctx, c.cfg.Telemetry.OTLPEndpoint, c.logger.Slog())
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	remote := c.cfg.RequireRemote() == nil
	if !remote {
		c.logger.Warn("Fetching disabled, serving the existing snapshot only", "reason", c.cfg.RequireRemote().Error())
	}
	a, err := newApp(ctx, c.cfg, c.logger, remote)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(c.cfg.Server.Port),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("Starting the mirror server", "port", c.cfg.Server.Port,
			"root", c.cfg.RootTarget().String(), "snapshot_backend", c.cfg.Snapshot.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	c.logger.Info("Shutting down the mirror server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *cli) fetchCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one replication and save the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.service.Fetch(cmd.Context(), maxDepth)
			if err != nil {
				return err
			}
			warnings := make([]string, 0, len(outcome.Warnings))
			for _, w := range outcome.Warnings {
				warnings = append(warnings, w.Error())
			}
			return writeJSON(cmd, map[string]any{
				"run_id":   outcome.RunID,
				"partial":  outcome.Partial(),
				"articles": len(outcome.Forest),
				"nodes":    outcome.Forest.Count(),
				"depth":    outcome.Forest.Depth(),
				"requests": outcome.Requests,
				"warnings": warnings,
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "depth bound for this run (0 uses the configured depth)")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one node from the saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			node, ok, err := a.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("article %s not found", args[0])
			}
			return writeJSON(cmd, node)
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
