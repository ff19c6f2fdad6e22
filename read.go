// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/transport/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport/rtuovertcp"
)

var (
	readUnit    uint8
	readAddr    uint16
	readCount   uint16
	readTimeout time.Duration
)

var readCmd = &cobra.Command{
	Use:       "read <coils|discrete-inputs|holding-registers|input-registers>",
	Aliases:   []string{"r"},
	Short:     "Read a table from a slave as a master",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"coils", "discrete-inputs", "holding-registers", "input-registers"},
	Example: `  modbus-rtu-slave read holding-registers -u 17 -a 0 -c 4 --device /dev/ttyUSB0
  modbus-rtu-slave r coils -u 1 -c 16 --transport rtu-over-tcp --tcp-address 192.168.1.50:4001`,
	RunE: runRead,
}

func init() {
	flags := readCmd.Flags()
	flags.Uint8VarP(&readUnit, "unit", "u", 1, "Slave id to query (1-247)")
	flags.Uint16VarP(&readAddr, "address", "a", 0, "Starting address")
	flags.Uint16VarP(&readCount, "count", "c", 1, "Number of items to read")
	flags.DurationVarP(&readTimeout, "timeout", "t", 5*time.Second, "Operation timeout")
}

// master is a Modbus master on any transport.
type master interface {
	Do(ctx context.Context, slaveID byte, req modbus.Request) (modbus.Response, error)
	Close() error
}

func runRead(cmd *cobra.Command, args []string) error {
	req, err := buildReadRequest(args[0], readAddr, readCount)
	if err != nil {
		return err
	}
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := newMaster(cfg.Transport)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), readTimeout)
	defer cancel()

	resp, err := client.Do(ctx, readUnit, req)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), readAddr, resp)
}

func buildReadRequest(table string, address, count uint16) (modbus.Request, error) {
	switch table {
	case "coils", "c", "coil":
		return modbus.ReadCoils{Address: address, Quantity: count}, nil
	case "discrete-inputs", "di", "discrete":
		return modbus.ReadDiscreteInputs{Address: address, Quantity: count}, nil
	case "holding-registers", "hr", "holding":
		return modbus.ReadHoldingRegisters{Address: address, Quantity: count}, nil
	case "input-registers", "ir", "input":
		return modbus.ReadInputRegisters{Address: address, Quantity: count}, nil
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
}

func printResponse(w io.Writer, address uint16, resp modbus.Response) error {
	var err error
	printBits := func(bits []bool) {
		for i, b := range bits {
			v := 0
			if b {
				v = 1
			}
			if _, e := fmt.Fprintf(w, "%d\t%d\n", int(address)+i, v); e != nil && err == nil {
				err = e
			}
		}
	}
	printWords := func(words []uint16) {
		for i, v := range words {
			if _, e := fmt.Fprintf(w, "%d\t%d\t0x%04X\n", int(address)+i, v, v); e != nil && err == nil {
				err = e
			}
		}
	}

	switch r := resp.(type) {
	case modbus.ReadCoilsResponse:
		printBits(r.Coils)
	case modbus.ReadDiscreteInputsResponse:
		printBits(r.Inputs)
	case modbus.ReadHoldingRegistersResponse:
		printWords(r.Values)
	case modbus.ReadInputRegistersResponse:
		printWords(r.Values)
	default:
		return fmt.Errorf("unexpected response %T", resp)
	}
	return err
}

func newMaster(cfg config.TransportConfig) (master, error) {
	switch cfg.Type {
	case "rtu":
		return rtu.NewClient(cfg.Serial), nil
	case "rtu-over-tcp":
		return rtuovertcp.NewClient(cfg.Tcp.Address), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}
