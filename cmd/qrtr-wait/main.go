// File: cmd/qrtr-wait/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// qrtr-wait blocks until a given QRTR node publishes at least one service,
// or a timeout elapses, then reports its services and exits 0/1
// accordingly — a thin CLI wrapper around Bus.WaitForNode.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/linux-mobile-broadband/qrtr-go"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var timeout time.Duration
	var logLevel string

	cmd := &cobra.Command{
		Use:           "qrtr-wait <node-id>",
		Short:         "Wait for a QRTR node to publish a service",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeID, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid node id %q: %w", args[0], err)
			}
			return run(uint32(nodeID), timeout, logLevel)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait before giving up; 0 waits forever")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "debug|info|warn|error")

	return cmd
}

func run(nodeID uint32, timeout time.Duration, logLevel string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout+time.Second)
		defer cancel()
	}

	bus, err := qrtr.NewBus(ctx, 0)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	node, err := bus.WaitForNode(ctx, nodeID, int(timeout.Milliseconds()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "node %d did not appear: %v\n", nodeID, err)
		os.Exit(1)
	}

	fmt.Printf("node %d is up, services:\n", node.ID())
	for _, svc := range node.Services() {
		fmt.Printf("  service 0x%x port %d version %d instance %d\n",
			svc.Service, svc.Port, svc.Version, svc.Instance)
	}
	return nil
}
