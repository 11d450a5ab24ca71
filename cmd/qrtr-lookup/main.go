// File: cmd/qrtr-lookup/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// qrtr-lookup opens a Bus, subscribes to its discovery events, and prints
// a live node/service table as the kernel's QRTR bus changes. Command
// wiring follows the teacher pack's cobra+pflag+viper convention (see
// tab-fuku/internal/app/cli/commands.go and tab-fuku/internal/config).

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linux-mobile-broadband/qrtr-go"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "qrtr-lookup",
		Short:         "Watch the QRTR bus and print nodes/services as they appear",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	cmd.Flags().Duration("lookup-timeout", time.Second, "initial NEW_LOOKUP wait; 0 disables the wait")
	cmd.Flags().String("log-level", "info", "debug|info|warn|error")
	v.BindPFlag("lookup_timeout", cmd.Flags().Lookup("lookup-timeout"))
	v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	v.SetEnvPrefix("QRTR")
	v.AutomaticEnv()

	return cmd
}

func run(v *viper.Viper) error {
	level, err := zerolog.ParseLevel(v.GetString("log_level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := qrtr.NewBus(ctx, int(v.GetDuration("lookup_timeout").Milliseconds()))
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	unsubscribe := bus.Subscribe(func(ev qrtr.Event) {
		switch ev.Kind {
		case qrtr.EventNodeAdded:
			fmt.Printf("node %-5d added\n", ev.NodeID)
		case qrtr.EventNodeRemoved:
			fmt.Printf("node %-5d removed\n", ev.NodeID)
		case qrtr.EventServiceAdded:
			fmt.Printf("node %-5d service 0x%x added\n", ev.NodeID, ev.Service)
		case qrtr.EventServiceRemoved:
			fmt.Printf("node %-5d service 0x%x removed\n", ev.NodeID, ev.Service)
		}
	})
	defer unsubscribe()

	for _, node := range bus.PeekNodes() {
		fmt.Printf("node %-5d (existing) services: %v\n", node.ID(), node.Services())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}
