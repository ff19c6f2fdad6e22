// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"log/slog"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/modbus"
)

// Observer is notified of every decision the server takes. Calls happen on
// the goroutine running ProcessFrame and must not block for long.
type Observer interface {
	SnapshotApplied(m *model.RegisterMap)
	SnapshotRejected(err error)
	DecodeFailed(err error)
	Ignored(slaveID, functionCode byte)
	Exception(functionCode byte, code modbus.ExceptionCode)
	// WriteApplied is called after a write changed m.
	WriteApplied(m *model.RegisterMap, table model.TableType, address, quantity uint16)
	Responded(functionCode byte, length int)
	EncodeFailed(err error)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) SnapshotApplied(*model.RegisterMap) {}
func (NopObserver) SnapshotRejected(error) {}
func (NopObserver) DecodeFailed(error) {}
func (NopObserver) Ignored(byte, byte) {}
func (NopObserver) Exception(byte, modbus.ExceptionCode) {}
func (NopObserver) WriteApplied(*model.RegisterMap, model.TableType, uint16, uint16) {}
func (NopObserver) Responded(byte, int) {}
func (NopObserver) EncodeFailed(error) {}

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) SnapshotApplied(m *model.RegisterMap) {
	for _, ob := range o {
		ob.SnapshotApplied(m)
	}
}

func (o Observers) SnapshotRejected(err error) {
	for _, ob := range o {
		ob.SnapshotRejected(err)
	}
}

func (o Observers) DecodeFailed(err error) {
	for _, ob := range o {
		ob.DecodeFailed(err)
	}
}

func (o Observers) Ignored(slaveID, functionCode byte) {
	for _, ob := range o {
		ob.Ignored(slaveID, functionCode)
	}
}

func (o Observers) Exception(functionCode byte, code modbus.ExceptionCode) {
	for _, ob := range o {
		ob.Exception(functionCode, code)
	}
}

func (o Observers) WriteApplied(m *model.RegisterMap, table model.TableType, address, quantity uint16) {
	for _, ob := range o {
		ob.WriteApplied(m, table, address, quantity)
	}
}

func (o Observers) Responded(functionCode byte, length int) {
	for _, ob := range o {
		ob.Responded(functionCode, length)
	}
}

func (o Observers) EncodeFailed(err error) {
	for _, ob := range o {
		ob.EncodeFailed(err)
	}
}

// LogObserver writes events to a slog.Logger. A nil Logger means slog.Default().
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogObserver) SnapshotApplied(m *model.RegisterMap) {
	l.logger().Debug("Register map snapshot applied", "sizes", m.Sizes())
}

func (l LogObserver) SnapshotRejected(err error) {
	l.logger().Warn("Register map snapshot rejected", "err", err)
}

func (l LogObserver) DecodeFailed(err error) {
	l.logger().Warn("Failed to decode RTU frame", "err", err)
}

func (l LogObserver) Ignored(slaveID, functionCode byte) {
	l.logger().Debug("Frame addressed to another slave", "slaveID", slaveID, "func", functionCode)
}

func (l LogObserver) Exception(functionCode byte, code modbus.ExceptionCode) {
	l.logger().Info("Exception response", "func", functionCode, "code", byte(code), "reason", code.String())
}

func (l LogObserver) WriteApplied(_ *model.RegisterMap, table model.TableType, address, quantity uint16) {
	l.logger().Debug("Write applied", "table", table.String(), "address", address, "quantity", quantity)
}

func (l LogObserver) Responded(functionCode byte, length int) {
	l.logger().Debug("Response encoded", "func", functionCode, "length", length)
}

func (l LogObserver) EncodeFailed(err error) {
	l.logger().Error("Failed to encode response", "err", err)
}
