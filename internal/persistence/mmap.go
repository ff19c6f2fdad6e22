// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// MmapStorage implements persistence using a memory-mapped file holding the
// image described by layout. Writes land in the mapping and are flushed
// with msync.
type MmapStorage struct {
	path string

	mu     sync.Mutex
	file   *os.File
	layout layout
	data   mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the file, creating or resizing it as needed, and copies the
// image into a new map.
func (ms *MmapStorage) Load(sizes model.Sizes) (*model.RegisterMap, error) {
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
	if l.total == 0 {
		return nil, errors.New("persistence: cannot mmap an empty register map")
	}

	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(l.total) {
		if err := f.Truncate(int64(l.total)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	m, err := l.decode(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	ms.file, ms.layout, ms.data = f, l, data
	return m, nil
}

// Save copies the whole map into the mapping and flushes it.
func (ms *MmapStorage) Save(m *model.RegisterMap) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return ErrNotLoaded
	}
	if err := ms.layout.encodeAll(m, ms.data); err != nil {
		return err
	}
	return ms.data.Flush()
}

// OnWrite copies the modified range into the mapping and flushes it.
func (ms *MmapStorage) OnWrite(m *model.RegisterMap, table model.TableType, address, quantity uint16) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return ErrNotLoaded
	}
	if err := ms.layout.check(m.Sizes()); err != nil {
		return err
	}
	if err := ms.layout.encode(m, table, int(address), int(quantity), ms.data); err != nil {
		return err
	}
	if err := ms.data.Flush(); err != nil {
		return fmt.Errorf("failed to flush mmap: %w", err)
	}
	return nil
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
