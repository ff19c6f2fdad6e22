// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/internal/feeder"
	"github.com/ffutop/modbus-rtu-slave/internal/mailbox"
	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/internal/persistence"
	"github.com/ffutop/modbus-rtu-slave/internal/slave"
	"github.com/ffutop/modbus-rtu-slave/transport"
	"github.com/ffutop/modbus-rtu-slave/transport/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport/rtuovertcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the slave on the configured transport",
	Long: `Run the slave until interrupted. The register map is loaded from the
configured storage, the configured register presets are applied on top and
the result is served. Editing the presets in the config file republishes
the map without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.Int("slave-id", 1, "Slave id to answer to (1-247)")
	flags.String("persistence", "memory", "Register map storage: memory, file, mmap")
	flags.String("data-file", "", "Storage file for file and mmap persistence")
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, loader, cfg)
}

// serve runs the slave until ctx is done. loader may be nil, which
// disables config reloading.
func serve(ctx context.Context, loader *config.Loader, cfg *config.Config) error {
	storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			slog.Error("Failed to close storage", "err", err)
		}
	}()

	stats := &slave.Stats{}
	observer := slave.Observers{
		slave.LogObserver{},
		stats,
		persistence.NewRecorder(storage),
	}
	srv, err := slave.New(byte(cfg.Slave.ID), cfg.Slave.Sizes, slave.WithObserver(observer))
	if err != nil {
		return err
	}

	box := mailbox.New[*model.RegisterMap]()
	feed := feeder.New(storage, cfg.Slave.Sizes, box)
	if err := feed.Publish(cfg.Registers); err != nil {
		return err
	}
	if err := srv.Init(ctx, box); err != nil {
		return err
	}

	if loader != nil && loader.File() != "" {
		loader.Watch(feed.Reload)
	}

	listener, err := newListener(cfg.Transport)
	if err != nil {
		return err
	}
	defer listener.Close()

	slog.Info("Starting Modbus RTU slave",
		"slave_id", cfg.Slave.ID,
		"transport", cfg.Transport.Type,
		"persistence", cfg.Persistence.Type,
		"sizes", fmt.Sprintf("%+v", cfg.Slave.Sizes))

	err = listener.Serve(ctx, transport.FrameHandlerFunc(func(input, output []byte) (bool, int, error) {
		return srv.ProcessFrame(input, output, box)
	}))

	slog.Info("Shutting down...", "stats", stats)
	return err
}

func newListener(cfg config.TransportConfig) (transport.Listener, error) {
	switch cfg.Type {
	case "rtu":
		return rtu.NewServer(cfg.Serial), nil
	case "rtu-over-tcp":
		return rtuovertcp.NewServer(cfg.Tcp.Address), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}
