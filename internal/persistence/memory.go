// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"sync"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// MemoryStorage keeps the map image in process memory. It does not survive
// a restart, but a later Load returns the state last saved or written.
type MemoryStorage struct {
	mu     sync.Mutex
	layout layout
	data   []byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns the stored map, allocating a zeroed image on first use.
func (ms *MemoryStorage) Load(sizes model.Sizes) (*model.RegisterMap, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data != nil {
		if err := ms.layout.check(sizes); err != nil {
			return nil, err
		}
		return ms.layout.decode(ms.data)
	}
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	l := newLayout(sizes)
	data := make([]byte, l.total)
	m, err := l.decode(data)
	if err != nil {
		return nil, err
	}
	ms.layout, ms.data = l, data
	return m, nil
}

// Save copies the whole map into the image.
func (ms *MemoryStorage) Save(m *model.RegisterMap) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return ErrNotLoaded
	}
	return ms.layout.encodeAll(m, ms.data)
}

// OnWrite copies the modified range into the image.
func (ms *MemoryStorage) OnWrite(m *model.RegisterMap, table model.TableType, address, quantity uint16) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return ErrNotLoaded
	}
	if err := ms.layout.check(m.Sizes()); err != nil {
		return err
	}
	return ms.layout.encode(m, table, int(address), int(quantity), ms.data)
}

// Close drops the image.
func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data = nil
	return nil
}
