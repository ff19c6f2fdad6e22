// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package feeder is the snapshot producer of the daemon. It rebuilds the
// register map from storage plus the configured presets and publishes it
// to the slave.
package feeder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/internal/persistence"
)

// Publisher accepts snapshots. It is satisfied by
// *mailbox.Mailbox[*model.RegisterMap].
type Publisher interface {
	Publish(m *model.RegisterMap)
}

// Feeder builds and publishes snapshots of a fixed shape.
type Feeder struct {
	storage persistence.Storage
	sizes   model.Sizes
	out     Publisher

	mu sync.Mutex
}

// New creates a Feeder publishing maps of the given sizes to out.
func New(storage persistence.Storage, sizes model.Sizes, out Publisher) *Feeder {
	return &Feeder{
		storage: storage,
		sizes:   sizes,
		out:     out,
	}
}

// Snapshot loads the persisted map and applies presets on top of it.
func (f *Feeder) Snapshot(presets config.RegistersConfig) (*model.RegisterMap, error) {
	m, err := f.storage.Load(f.sizes)
	if err != nil {
		return nil, fmt.Errorf("feeder: failed to load snapshot: %w", err)
	}
	if err := apply(m, presets); err != nil {
		return nil, fmt.Errorf("feeder: failed to apply presets: %w", err)
	}
	return m, nil
}

// Publish builds a snapshot and hands it to the slave. Ownership of the map
// passes to the receiver.
func (f *Feeder) Publish(presets config.RegistersConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.Snapshot(presets)
	if err != nil {
		return err
	}
	f.out.Publish(m)
	slog.Debug("Published register map snapshot", "sizes", f.sizes)
	return nil
}

// Reload republishes after a configuration change. Table sizes and the
// slave id are fixed for the lifetime of the slave; changing them needs a
// restart, so such changes only update the presets.
func (f *Feeder) Reload(cfg *config.Config) {
	if cfg.Slave.Sizes != f.sizes {
		slog.Warn("Register map sizes changed, restart required to apply them", "current", f.sizes, "configured", cfg.Slave.Sizes)
	}
	if err := f.Publish(cfg.Registers); err != nil {
		slog.Error("Failed to republish register map", "err", err)
		return
	}
	slog.Info("Register presets reloaded")
}

func apply(m *model.RegisterMap, presets config.RegistersConfig) error {
	for _, p := range presets.Coils {
		for i, v := range p.Values {
			if err := m.SetCoil(p.Address+uint16(i), v); err != nil {
				return fmt.Errorf("coil %d: %w", int(p.Address)+i, err)
			}
		}
	}
	for _, p := range presets.DiscreteInputs {
		for i, v := range p.Values {
			if err := m.SetDiscreteInput(p.Address+uint16(i), v); err != nil {
				return fmt.Errorf("discrete input %d: %w", int(p.Address)+i, err)
			}
		}
	}
	for _, p := range presets.HoldingRegisters {
		for i, v := range p.Values {
			if err := m.SetHoldingRegister(p.Address+uint16(i), v); err != nil {
				return fmt.Errorf("holding register %d: %w", int(p.Address)+i, err)
			}
		}
	}
	for _, p := range presets.InputRegisters {
		for i, v := range p.Values {
			if err := m.SetInputRegister(p.Address+uint16(i), v); err != nil {
				return fmt.Errorf("input register %d: %w", int(p.Address)+i, err)
			}
		}
	}
	return nil
}
