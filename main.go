// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "modbus-rtu-slave",
	Short: "A Modbus RTU slave device",
	Long: `modbus-rtu-slave serves a register map as a Modbus RTU slave on a serial
line or over TCP, and can query other slaves as a master.

Examples:
  # Serve slave 17 on a serial port
  modbus-rtu-slave serve --slave-id 17 --device /dev/ttyUSB0 --baud-rate 9600

  # Serve RTU frames over TCP with the map persisted to disk
  modbus-rtu-slave serve --transport rtu-over-tcp --tcp-address 0.0.0.0:4001 --persistence mmap --data-file /var/lib/modbus-rtu-slave/map.bin

  # Read 4 holding registers from slave 17
  modbus-rtu-slave read holding-registers -u 17 -a 0 -c 4 --device /dev/ttyUSB0`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to config file")
	flags.String("transport", "rtu", "Transport: rtu, rtu-over-tcp")
	flags.String("device", "", "Serial device, e.g. /dev/ttyUSB0")
	flags.Int("baud-rate", 19200, "Serial baud rate")
	flags.String("parity", "N", "Serial parity: N, E, O")
	flags.String("tcp-address", "", "TCP address for rtu-over-tcp")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Log file path (default stdout)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(readCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration with the command's flags applied and
// sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log)
	if f := loader.File(); f != "" {
		slog.Debug("Using config file", "file", f)
	}
	return loader, cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
