// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

const (
	// AddressSpace is the number of addresses reachable with a 16-bit address.
	AddressSpace = 1 << 16
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// Sizes fixes the length of each table of a RegisterMap.
type Sizes struct {
	Coils            int `mapstructure:"coils"`
	DiscreteInputs   int `mapstructure:"discrete_inputs"`
	HoldingRegisters int `mapstructure:"holding_registers"`
	InputRegisters   int `mapstructure:"input_registers"`
}

// Validate checks every table fits the 16-bit address space.
func (s Sizes) Validate() error {
	for _, t := range []struct {
		name string
		n    int
	}{
		{"coils", s.Coils},
		{"discrete inputs", s.DiscreteInputs},
		{"holding registers", s.HoldingRegisters},
		{"input registers", s.InputRegisters},
	} {
		if t.n < 0 || t.n > AddressSpace {
			return fmt.Errorf("model: %s size %d out of range [0, %d]", t.name, t.n, AddressSpace)
		}
	}
	return nil
}

// RegisterMap holds the four addressable tables of a slave. Table lengths
// are fixed by New and never change afterwards.
//
// A RegisterMap is not safe for concurrent use; the server owns it
// exclusively once it has been handed over.
type RegisterMap struct {
	// 0x Coils (Read/Write).
	coils []bool
	// 1x Discrete Inputs (Read Only).
	discreteInputs []bool
	// 4x Holding Registers (Read/Write).
	holdingRegisters []uint16
	// 3x Input Registers (Read Only).
	inputRegisters []uint16
}

// New creates a map of the given sizes with all values zero.
func New(sizes Sizes) (*RegisterMap, error) {
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	return &RegisterMap{
		coils:            make([]bool, sizes.Coils),
		discreteInputs:   make([]bool, sizes.DiscreteInputs),
		holdingRegisters: make([]uint16, sizes.HoldingRegisters),
		inputRegisters:   make([]uint16, sizes.InputRegisters),
	}, nil
}

// Sizes returns the table lengths.
func (m *RegisterMap) Sizes() Sizes {
	return Sizes{
		Coils:            len(m.coils),
		DiscreteInputs:   len(m.discreteInputs),
		HoldingRegisters: len(m.holdingRegisters),
		InputRegisters:   len(m.inputRegisters),
	}
}

// Clone returns a deep copy.
func (m *RegisterMap) Clone() *RegisterMap {
	return &RegisterMap{
		coils:            append([]bool(nil), m.coils...),
		discreteInputs:   append([]bool(nil), m.discreteInputs...),
		holdingRegisters: append([]uint16(nil), m.holdingRegisters...),
		inputRegisters:   append([]uint16(nil), m.inputRegisters...),
	}
}

// ReadCoils returns a view of quantity coils starting at address.
func (m *RegisterMap) ReadCoils(address, quantity uint16) ([]bool, error) {
	end, err := checkRange(address, quantity, len(m.coils))
	if err != nil {
		return nil, err
	}
	return m.coils[address:end], nil
}

// ReadDiscreteInputs returns a view of quantity discrete inputs starting at address.
func (m *RegisterMap) ReadDiscreteInputs(address, quantity uint16) ([]bool, error) {
	end, err := checkRange(address, quantity, len(m.discreteInputs))
	if err != nil {
		return nil, err
	}
	return m.discreteInputs[address:end], nil
}

// ReadHoldingRegisters returns a view of quantity holding registers starting at address.
func (m *RegisterMap) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	end, err := checkRange(address, quantity, len(m.holdingRegisters))
	if err != nil {
		return nil, err
	}
	return m.holdingRegisters[address:end], nil
}

// ReadInputRegisters returns a view of quantity input registers starting at address.
func (m *RegisterMap) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	end, err := checkRange(address, quantity, len(m.inputRegisters))
	if err != nil {
		return nil, err
	}
	return m.inputRegisters[address:end], nil
}

// WriteSingleCoil sets one coil.
func (m *RegisterMap) WriteSingleCoil(address uint16, value bool) error {
	if _, err := checkRange(address, 1, len(m.coils)); err != nil {
		return err
	}
	m.coils[address] = value
	return nil
}

// WriteSingleRegister sets one holding register.
func (m *RegisterMap) WriteSingleRegister(address uint16, value uint16) error {
	if _, err := checkRange(address, 1, len(m.holdingRegisters)); err != nil {
		return err
	}
	m.holdingRegisters[address] = value
	return nil
}

// WriteMultipleCoils copies values into the coils starting at address.
// Nothing is written when the range is invalid.
func (m *RegisterMap) WriteMultipleCoils(address uint16, values []bool) error {
	end, err := checkSliceRange(address, len(values), len(m.coils))
	if err != nil {
		return err
	}
	copy(m.coils[address:end], values)
	return nil
}

// WriteMultipleRegisters copies values into the holding registers starting at address.
// Nothing is written when the range is invalid.
func (m *RegisterMap) WriteMultipleRegisters(address uint16, values []uint16) error {
	end, err := checkSliceRange(address, len(values), len(m.holdingRegisters))
	if err != nil {
		return err
	}
	copy(m.holdingRegisters[address:end], values)
	return nil
}

// SetCoil sets one coil while a producer fills a snapshot.
func (m *RegisterMap) SetCoil(address uint16, value bool) error {
	return m.WriteSingleCoil(address, value)
}

// SetDiscreteInput sets one discrete input, a table masters cannot write.
func (m *RegisterMap) SetDiscreteInput(address uint16, value bool) error {
	if _, err := checkRange(address, 1, len(m.discreteInputs)); err != nil {
		return err
	}
	m.discreteInputs[address] = value
	return nil
}

// SetHoldingRegister sets one holding register while a producer fills a snapshot.
func (m *RegisterMap) SetHoldingRegister(address uint16, value uint16) error {
	return m.WriteSingleRegister(address, value)
}

// SetInputRegister sets one input register, a table masters cannot write.
func (m *RegisterMap) SetInputRegister(address uint16, value uint16) error {
	if _, err := checkRange(address, 1, len(m.inputRegisters)); err != nil {
		return err
	}
	m.inputRegisters[address] = value
	return nil
}

// checkRange validates [address, address+quantity) against a table of the
// given length. The exclusive end is first checked against the 16-bit
// address space, then against the table.
func checkRange(address, quantity uint16, length int) (int, error) {
	return checkSliceRange(address, int(quantity), length)
}

func checkSliceRange(address uint16, quantity, length int) (int, error) {
	end := int(address) + quantity
	if quantity > AddressSpace || end > AddressSpace {
		return 0, modbus.ExceptionCodeIllegalDataAddress
	}
	if end > length {
		return 0, modbus.ExceptionCodeIllegalDataAddress
	}
	return end, nil
}

// CheckRange validates a quantity-long access at address against table
// without touching it.
func (m *RegisterMap) CheckRange(table TableType, address uint16, quantity int) error {
	var length int
	switch table {
	case TableCoils:
		length = len(m.coils)
	case TableDiscreteInputs:
		length = len(m.discreteInputs)
	case TableHoldingRegisters:
		length = len(m.holdingRegisters)
	case TableInputRegisters:
		length = len(m.inputRegisters)
	default:
		return fmt.Errorf("model: unknown table %v", table)
	}
	_, err := checkSliceRange(address, quantity, length)
	return err
}
