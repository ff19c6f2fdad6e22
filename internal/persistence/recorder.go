// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"log/slog"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/internal/slave"
)

// Recorder is a slave.Observer that writes every applied snapshot and every
// master write through to a Storage.
type Recorder struct {
	slave.NopObserver
	storage Storage
}

// NewRecorder creates a Recorder persisting into storage.
func NewRecorder(storage Storage) *Recorder {
	return &Recorder{storage: storage}
}

func (r *Recorder) SnapshotApplied(m *model.RegisterMap) {
	if err := r.storage.Save(m); err != nil {
		slog.Error("Failed to persist snapshot", "err", err)
	}
}

func (r *Recorder) WriteApplied(m *model.RegisterMap, table model.TableType, address, quantity uint16) {
	if err := r.storage.OnWrite(m, table, address, quantity); err != nil {
		slog.Error("Failed to persist write", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}
