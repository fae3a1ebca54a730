// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/dinfox/pkg/at"
	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/config"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/spf13/cobra"
)

var nodeConfigPath string

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a simulated field node on the bus",
	Long: `Run a field node described by a YAML file and answer AT commands
addressed to it.

The file selects the board personality, the bus address, the NVM image and
the values returned by the simulated hardware. The framing mode of the file
overrides --mode. Bus traffic is logged at debug level.

Example:
  dinfox node --port /dev/ttyUSB1 --config uhfm.yaml`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "", "Node configuration file (YAML)")
	_ = nodeCmd.MarkFlagRequired("config")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nodeConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	config.Normalize(cfg)

	logger, err := config.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	n, err := buildNode(cfg, logger)
	if err != nil {
		return err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return err
	}

	raw, connInfo, err := openRaw()
	if err != nil {
		return err
	}
	conn := bus.NewLoggedConn(raw, logger, slog.LevelDebug, bus.LogAll)
	defer conn.Close()

	logger.Info("node ready",
		"board", n.Board().String(),
		"address", bus.FormatAddress(n.Address()),
		"connection", connInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep := bus.NewEndpoint(conn, mode, at.New(n), logger)
	err = ep.Serve(ctx)
	fmt.Fprint(os.Stderr, ep.Statistics().String())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildNode(cfg *config.Config, logger *slog.Logger) (*node.Node, error) {
	board, err := cfg.Board()
	if err != nil {
		return nil, err
	}
	p, err := boards.New(board, cfg.BoardOptions())
	if err != nil {
		return nil, err
	}
	env, err := cfg.Env(logger)
	if err != nil {
		return nil, err
	}
	return node.New(p, env, cfg.Info())
}
