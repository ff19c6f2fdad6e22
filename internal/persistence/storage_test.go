// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-rtu-slave/internal/mailbox"
	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/internal/slave"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/modbus/rtu"
)

var testSizes = model.Sizes{Coils: 20, DiscreteInputs: 10, HoldingRegisters: 16, InputRegisters: 4}

// persistent lists the storages that survive a reopen.
var persistent = []struct {
	name string
	open func(path string) Storage
}{
	{"file", func(path string) Storage { return NewFileStorage(path) }},
	{"mmap", func(path string) Storage { return NewMmapStorage(path) }},
}

func TestLayout_RoundTrip(t *testing.T) {
	l := newLayout(testSizes)
	assert.Equal(t, 20+10+32+8, l.total)

	m, err := model.New(testSizes)
	require.NoError(t, err)
	require.NoError(t, m.SetCoil(19, true))
	require.NoError(t, m.SetDiscreteInput(0, true))
	require.NoError(t, m.SetHoldingRegister(15, 0xBEEF))
	require.NoError(t, m.SetInputRegister(3, 0x0102))

	data := make([]byte, l.total)
	require.NoError(t, l.encodeAll(m, data))
	assert.Equal(t, byte(1), data[19])
	assert.Equal(t, byte(1), data[20])
	assert.Equal(t, []byte{0xBE, 0xEF}, data[30+30:30+32])
	assert.Equal(t, []byte{0x01, 0x02}, data[l.total-2:])

	got, err := l.decode(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestLayout_SizesMismatch(t *testing.T) {
	l := newLayout(testSizes)
	other, err := model.New(model.Sizes{Coils: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, l.encodeAll(other, make([]byte, l.total)), ErrSizesChanged)
}

func TestStorage_PersistsWrites(t *testing.T) {
	for _, tc := range persistent {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "slave.bin")

			s := tc.open(path)
			m, err := s.Load(testSizes)
			require.NoError(t, err)
			values, err := m.ReadHoldingRegisters(0, 16)
			require.NoError(t, err)
			assert.Equal(t, make([]uint16, 16), values)

			require.NoError(t, m.WriteMultipleRegisters(4, []uint16{7, 8, 9}))
			require.NoError(t, s.OnWrite(m, model.TableHoldingRegisters, 4, 3))
			require.NoError(t, m.WriteSingleCoil(2, true))
			require.NoError(t, s.OnWrite(m, model.TableCoils, 2, 1))
			// Not reported through OnWrite, so not persisted.
			require.NoError(t, m.SetInputRegister(0, 99))
			require.NoError(t, s.Close())

			fi, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, int64(newLayout(testSizes).total), fi.Size())

			s = tc.open(path)
			defer s.Close()
			m, err = s.Load(testSizes)
			require.NoError(t, err)

			values, err = m.ReadHoldingRegisters(3, 5)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0, 7, 8, 9, 0}, values)
			coils, err := m.ReadCoils(0, 4)
			require.NoError(t, err)
			assert.Equal(t, []bool{false, false, true, false}, coils)
			inputs, err := m.ReadInputRegisters(0, 1)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0}, inputs)
		})
	}
}

func TestStorage_Save(t *testing.T) {
	for _, tc := range persistent {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "slave.bin")
			s := tc.open(path)
			_, err := s.Load(testSizes)
			require.NoError(t, err)

			m, err := model.New(testSizes)
			require.NoError(t, err)
			require.NoError(t, m.SetDiscreteInput(9, true))
			require.NoError(t, m.SetInputRegister(3, 1234))
			require.NoError(t, s.Save(m))

			// A second Load rebuilds from the persisted state.
			again, err := s.Load(testSizes)
			require.NoError(t, err)
			assert.Equal(t, m, again)
			assert.NotSame(t, m, again)

			_, err = s.Load(model.Sizes{Coils: 1})
			assert.ErrorIs(t, err, ErrSizesChanged)
			require.NoError(t, s.Close())
		})
	}
}

func TestStorage_NotLoaded(t *testing.T) {
	for _, tc := range persistent {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.open(filepath.Join(t.TempDir(), "slave.bin"))
			m, err := model.New(testSizes)
			require.NoError(t, err)
			assert.ErrorIs(t, s.Save(m), ErrNotLoaded)
			assert.ErrorIs(t, s.OnWrite(m, model.TableCoils, 0, 1), ErrNotLoaded)
			assert.NoError(t, s.Close())
		})
	}
}

func TestStorage_ResizesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 1, 1}, 0644))

	s := NewFileStorage(path)
	defer s.Close()
	m, err := s.Load(testSizes)
	require.NoError(t, err)
	coils, err := m.ReadCoils(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, false}, coils)
}

func TestNew(t *testing.T) {
	s, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = New("mmap", "/tmp/x.bin")
	require.NoError(t, err)
	assert.IsType(t, &MmapStorage{}, s)

	_, err = New("file", "")
	assert.Error(t, err)

	_, err = New("sql", "x")
	assert.Error(t, err)
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	assert.ErrorIs(t, s.Save(nil), ErrNotLoaded)

	m, err := s.Load(testSizes)
	require.NoError(t, err)
	assert.Equal(t, testSizes, m.Sizes())

	require.NoError(t, m.WriteSingleRegister(3, 0xBEEF))
	require.NoError(t, s.OnWrite(m, model.TableHoldingRegisters, 3, 1))
	require.NoError(t, m.SetDiscreteInput(9, true))
	require.NoError(t, s.Save(m))

	again, err := s.Load(testSizes)
	require.NoError(t, err)
	values, _ := again.ReadHoldingRegisters(3, 1)
	assert.Equal(t, []uint16{0xBEEF}, values)
	inputs, _ := again.ReadDiscreteInputs(9, 1)
	assert.Equal(t, []bool{true}, inputs)

	_, err = s.Load(model.Sizes{Coils: 1})
	assert.ErrorIs(t, err, ErrSizesChanged)

	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.OnWrite(m, model.TableCoils, 0, 1), ErrNotLoaded)
}

func TestRecorder_WriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.bin")
	storage := NewFileStorage(path)
	initial, err := storage.Load(testSizes)
	require.NoError(t, err)

	srv, err := slave.New(1, testSizes, slave.WithObserver(NewRecorder(storage)))
	require.NoError(t, err)

	box := mailbox.New[*model.RegisterMap]()
	box.Publish(initial)
	require.NoError(t, srv.Init(context.Background(), box))

	frame := make([]byte, rtu.MaxSize)
	n, err := rtu.EncodeRequest(1, modbus.WriteSingleRegister{Address: 10, Value: 4321}, frame)
	require.NoError(t, err)
	ok, _, err := srv.ProcessFrame(frame[:n], make([]byte, rtu.MaxSize), nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, storage.Close())

	reopened := NewFileStorage(path)
	defer reopened.Close()
	m, err := reopened.Load(testSizes)
	require.NoError(t, err)
	values, err := m.ReadHoldingRegisters(10, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{4321}, values)
}
