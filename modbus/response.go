// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// Response is the typed outcome of dispatching a Request, either one of the
// success variants or an ExceptionResponse.
type Response interface {
	FunctionCode() byte
}

type ReadCoilsResponse struct {
	Coils []bool
}

func (ReadCoilsResponse) FunctionCode() byte { return FuncCodeReadCoils }

type ReadDiscreteInputsResponse struct {
	Inputs []bool
}

func (ReadDiscreteInputsResponse) FunctionCode() byte { return FuncCodeReadDiscreteInputs }

type ReadHoldingRegistersResponse struct {
	Values []uint16
}

func (ReadHoldingRegistersResponse) FunctionCode() byte { return FuncCodeReadHoldingRegisters }

type ReadInputRegistersResponse struct {
	Values []uint16
}

func (ReadInputRegistersResponse) FunctionCode() byte { return FuncCodeReadInputRegisters }

// WriteSingleCoilResponse echoes the written coil.
type WriteSingleCoilResponse struct {
	Address uint16
	Value   bool
}

func (WriteSingleCoilResponse) FunctionCode() byte { return FuncCodeWriteSingleCoil }

// WriteSingleRegisterResponse echoes the written register.
type WriteSingleRegisterResponse struct {
	Address uint16
	Value   uint16
}

func (WriteSingleRegisterResponse) FunctionCode() byte { return FuncCodeWriteSingleRegister }

type WriteMultipleCoilsResponse struct {
	Address  uint16
	Quantity uint16
}

func (WriteMultipleCoilsResponse) FunctionCode() byte { return FuncCodeWriteMultipleCoils }

type WriteMultipleRegistersResponse struct {
	Address  uint16
	Quantity uint16
}

func (WriteMultipleRegistersResponse) FunctionCode() byte { return FuncCodeWriteMultipleRegisters }

// ExceptionResponse reports a protocol exception for the request function.
// FunctionCode returns the request function code; the codec sets the
// exception flag when encoding.
type ExceptionResponse struct {
	Function byte
	Code     ExceptionCode
}

func (r ExceptionResponse) FunctionCode() byte { return r.Function }

// Err returns the exception as an *Error.
func (r ExceptionResponse) Err() error {
	return &Error{FunctionCode: r.Function, ExceptionCode: r.Code}
}
