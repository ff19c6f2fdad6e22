// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// Request is a decoded Modbus request. The concrete type tells which
// operation the master asked for.
type Request interface {
	FunctionCode() byte
}

// ReadCoils requests Quantity coils starting at Address.
type ReadCoils struct {
	Address  uint16
	Quantity uint16
}

func (ReadCoils) FunctionCode() byte { return FuncCodeReadCoils }

// ReadDiscreteInputs requests Quantity discrete inputs starting at Address.
type ReadDiscreteInputs struct {
	Address  uint16
	Quantity uint16
}

func (ReadDiscreteInputs) FunctionCode() byte { return FuncCodeReadDiscreteInputs }

// ReadHoldingRegisters requests Quantity holding registers starting at Address.
type ReadHoldingRegisters struct {
	Address  uint16
	Quantity uint16
}

func (ReadHoldingRegisters) FunctionCode() byte { return FuncCodeReadHoldingRegisters }

// ReadInputRegisters requests Quantity input registers starting at Address.
type ReadInputRegisters struct {
	Address  uint16
	Quantity uint16
}

func (ReadInputRegisters) FunctionCode() byte { return FuncCodeReadInputRegisters }

// WriteSingleCoil forces one coil ON or OFF.
type WriteSingleCoil struct {
	Address uint16
	Value   bool
}

func (WriteSingleCoil) FunctionCode() byte { return FuncCodeWriteSingleCoil }

// WriteSingleRegister writes one holding register.
type WriteSingleRegister struct {
	Address uint16
	Value   uint16
}

func (WriteSingleRegister) FunctionCode() byte { return FuncCodeWriteSingleRegister }

// WriteMultipleCoils forces len(Values) coils starting at Address.
type WriteMultipleCoils struct {
	Address uint16
	Values  []bool
}

func (WriteMultipleCoils) FunctionCode() byte { return FuncCodeWriteMultipleCoils }

// WriteMultipleRegisters writes len(Values) holding registers starting at Address.
type WriteMultipleRegisters struct {
	Address uint16
	Values  []uint16
}

func (WriteMultipleRegisters) FunctionCode() byte { return FuncCodeWriteMultipleRegisters }

// UnsupportedRequest carries a function code this slave does not implement.
type UnsupportedRequest struct {
	Function byte
}

func (r UnsupportedRequest) FunctionCode() byte { return r.Function }

// InvalidRequest is an intact frame whose payload could not be interpreted,
// e.g. a byte count that disagrees with the quantity field.
type InvalidRequest struct {
	Function  byte
	Exception ExceptionCode
}

func (r InvalidRequest) FunctionCode() byte { return r.Function }
