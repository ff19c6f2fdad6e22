// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps register map snapshots across restarts.
package persistence

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// ErrNotLoaded is returned by Save and OnWrite before the first Load.
var ErrNotLoaded = errors.New("persistence: storage not loaded")

// ErrSizesChanged is returned by Load when the storage was already loaded
// with different table sizes.
var ErrSizesChanged = errors.New("persistence: table sizes changed")

// Storage persists the register map of the slave.
type Storage interface {
	// Load returns a new map of the given sizes filled from storage.
	// Missing data reads as zero. Load may be called again to rebuild a
	// snapshot from the persisted state.
	Load(sizes model.Sizes) (*model.RegisterMap, error)

	// Save persists the whole map.
	Save(m *model.RegisterMap) error

	// OnWrite persists the given range of table after a write to m.
	OnWrite(m *model.RegisterMap, table model.TableType, address, quantity uint16) error

	// Close releases the underlying resources.
	Close() error
}

// New creates the storage named by typ: "memory" (or empty), "file" or "mmap".
func New(typ, path string) (Storage, error) {
	switch typ {
	case "", "memory":
		slog.Info("Using memory storage (non-persistent)")
		return NewMemoryStorage(), nil
	case "file":
		if path == "" {
			return nil, fmt.Errorf("persistence: %s storage requires a path", typ)
		}
		slog.Info("Using file persistence", "path", path)
		return NewFileStorage(path), nil
	case "mmap":
		if path == "" {
			return nil, fmt.Errorf("persistence: %s storage requires a path", typ)
		}
		slog.Info("Using MMAP persistence", "path", path)
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("persistence: unknown storage type %q", typ)
	}
}
