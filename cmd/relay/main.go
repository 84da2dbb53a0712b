// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/relaycore/relaycore-go/relay"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:     "relay",
	Short:   "relay - telemetry metrics aggregation and forwarding",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "relay.yml", "path to the relay config file")
	rootCmd.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of console output")
}

func newLogger() zerolog.Logger {
	if logJSON {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func run() error {
	logger := newLogger()

	cfg, err := relay.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Upstream == "" {
		return fmt.Errorf("no upstream configured")
	}

	sink := relay.NewUpstreamSink(cfg.Upstream, nil, logger)
	service, err := relay.NewService(cfg, sink, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	service.Start()
	logger.Info().Str("upstream", cfg.Upstream).Msg("relay started")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	return service.Shutdown(context.Background())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
