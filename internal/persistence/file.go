// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// FileStorage implements persistence using plain file operations. The file
// holds the image described by layout; every write is synced to disk.
type FileStorage struct {
	path string

	mu     sync.Mutex
	file   *os.File
	layout layout
	data   []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the map from the file, creating or resizing it as needed.
func (fs *FileStorage) Load(sizes model.Sizes) (*model.RegisterMap, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file != nil {
		if err := fs.layout.check(sizes); err != nil {
			return nil, err
		}
		return fs.layout.decode(fs.data)
	}
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	l := newLayout(sizes)

	// Open file, creating if necessary
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(l.total) {
		if err := f.Truncate(int64(l.total)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data := make([]byte, l.total)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	m, err := l.decode(data)
	if err != nil {
		f.Close()
		return nil, err
	}
	fs.file, fs.layout, fs.data = f, l, data
	return m, nil
}

// Save writes the whole map and syncs the file.
func (fs *FileStorage) Save(m *model.RegisterMap) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return ErrNotLoaded
	}
	if err := fs.layout.encodeAll(m, fs.data); err != nil {
		return err
	}
	return fs.sync(0, len(fs.data))
}

// OnWrite writes the modified range and syncs the file.
func (fs *FileStorage) OnWrite(m *model.RegisterMap, table model.TableType, address, quantity uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return ErrNotLoaded
	}
	if err := fs.layout.check(m.Sizes()); err != nil {
		return err
	}
	if err := fs.layout.encode(m, table, int(address), int(quantity), fs.data); err != nil {
		return err
	}
	from, to := fs.layout.span(table, int(address), int(quantity))
	return fs.sync(from, to)
}

func (fs *FileStorage) sync(from, to int) error {
	if _, err := fs.file.WriteAt(fs.data[from:to], int64(from)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file, fs.data = nil, nil
	return err
}
