// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// chunk bounds a single accessor call so quantities fit in uint16.
const chunk = 0x8000

// layout places the four tables one after another in a flat byte image:
// one byte per coil, one byte per discrete input, then big-endian words for
// holding and input registers.
type layout struct {
	sizes model.Sizes

	offsetCoils    int
	offsetDiscrete int
	offsetHolding  int
	offsetInput    int
	total          int
}

func newLayout(sizes model.Sizes) layout {
	l := layout{sizes: sizes}
	l.offsetCoils = 0
	l.offsetDiscrete = l.offsetCoils + sizes.Coils
	l.offsetHolding = l.offsetDiscrete + sizes.DiscreteInputs
	l.offsetInput = l.offsetHolding + sizes.HoldingRegisters*2
	l.total = l.offsetInput + sizes.InputRegisters*2
	return l
}

// span returns the byte range of [address, address+quantity) in table.
func (l layout) span(table model.TableType, address, quantity int) (int, int) {
	switch table {
	case model.TableCoils:
		return l.offsetCoils + address, l.offsetCoils + address + quantity
	case model.TableDiscreteInputs:
		return l.offsetDiscrete + address, l.offsetDiscrete + address + quantity
	case model.TableHoldingRegisters:
		return l.offsetHolding + address*2, l.offsetHolding + (address+quantity)*2
	default:
		return l.offsetInput + address*2, l.offsetInput + (address+quantity)*2
	}
}

// decode builds a map from the image in data.
func (l layout) decode(data []byte) (*model.RegisterMap, error) {
	m, err := model.New(l.sizes)
	if err != nil {
		return nil, err
	}
	for i := 0; i < l.sizes.Coils; i++ {
		if data[l.offsetCoils+i] != 0 {
			_ = m.SetCoil(uint16(i), true)
		}
	}
	for i := 0; i < l.sizes.DiscreteInputs; i++ {
		if data[l.offsetDiscrete+i] != 0 {
			_ = m.SetDiscreteInput(uint16(i), true)
		}
	}
	for i := 0; i < l.sizes.HoldingRegisters; i++ {
		_ = m.SetHoldingRegister(uint16(i), binary.BigEndian.Uint16(data[l.offsetHolding+i*2:]))
	}
	for i := 0; i < l.sizes.InputRegisters; i++ {
		_ = m.SetInputRegister(uint16(i), binary.BigEndian.Uint16(data[l.offsetInput+i*2:]))
	}
	return m, nil
}

// check reports whether m fits the layout.
func (l layout) check(sizes model.Sizes) error {
	if sizes != l.sizes {
		return fmt.Errorf("%w: got %+v, want %+v", ErrSizesChanged, sizes, l.sizes)
	}
	return nil
}

// encodeAll writes every table of m into data.
func (l layout) encodeAll(m *model.RegisterMap, data []byte) error {
	if err := l.check(m.Sizes()); err != nil {
		return err
	}
	tables := []struct {
		table model.TableType
		size  int
	}{
		{model.TableCoils, l.sizes.Coils},
		{model.TableDiscreteInputs, l.sizes.DiscreteInputs},
		{model.TableHoldingRegisters, l.sizes.HoldingRegisters},
		{model.TableInputRegisters, l.sizes.InputRegisters},
	}
	for _, t := range tables {
		if err := l.encode(m, t.table, 0, t.size, data); err != nil {
			return err
		}
	}
	return nil
}

// encode writes [address, address+quantity) of table into data.
func (l layout) encode(m *model.RegisterMap, table model.TableType, address, quantity int, data []byte) error {
	for start, end := address, address+quantity; start < end; start += chunk {
		n := min(chunk, end-start)
		from, _ := l.span(table, start, n)
		switch table {
		case model.TableCoils, model.TableDiscreteInputs:
			bits, err := readBits(m, table, uint16(start), uint16(n))
			if err != nil {
				return err
			}
			for i, b := range bits {
				data[from+i] = 0
				if b {
					data[from+i] = 1
				}
			}
		default:
			words, err := readWords(m, table, uint16(start), uint16(n))
			if err != nil {
				return err
			}
			for i, w := range words {
				binary.BigEndian.PutUint16(data[from+i*2:], w)
			}
		}
	}
	return nil
}

func readBits(m *model.RegisterMap, table model.TableType, address, quantity uint16) ([]bool, error) {
	if table == model.TableCoils {
		return m.ReadCoils(address, quantity)
	}
	return m.ReadDiscreteInputs(address, quantity)
}

func readWords(m *model.RegisterMap, table model.TableType, address, quantity uint16) ([]uint16, error) {
	if table == model.TableHoldingRegisters {
		return m.ReadHoldingRegisters(address, quantity)
	}
	return m.ReadInputRegisters(address, quantity)
}
