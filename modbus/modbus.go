// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol vocabulary shared by the RTU codec and the
slave dispatcher: function codes, exception codes and the typed request and
response variants.
*/
package modbus

import "fmt"

const (
	// FuncCodeReadCoils for bit wise access
	FuncCodeReadCoils = 0x01
	// FuncCodeReadDiscreteInputs for bit wise access
	FuncCodeReadDiscreteInputs = 0x02
	// FuncCodeReadHoldingRegisters 16-bit wise access
	FuncCodeReadHoldingRegisters = 0x03
	// FuncCodeReadInputRegisters 16-bit wise access
	FuncCodeReadInputRegisters = 0x04
	// FuncCodeWriteSingleCoil for bit wise access
	FuncCodeWriteSingleCoil = 0x05
	// FuncCodeWriteSingleRegister 16-bit wise access
	FuncCodeWriteSingleRegister = 0x06
	// FuncCodeWriteMultipleCoils for bit wise access
	FuncCodeWriteMultipleCoils = 0x0F
	// FuncCodeWriteMultipleRegisters 16-bit wise access
	FuncCodeWriteMultipleRegisters = 0x10
	// FuncCodeMaskWriteRegister 16-bit wise access
	FuncCodeMaskWriteRegister = 0x16
	// FuncCodeReadWriteMultipleRegisters 16-bit wise access
	FuncCodeReadWriteMultipleRegisters = 0x17
	// FuncCodeReadFIFOQueue 16-bit wise access
	FuncCodeReadFIFOQueue = 0x18

	// exceptionFlag is OR-ed into the function code of an exception response.
	exceptionFlag = 0x80
)

// Coil values on the wire for Write Single Coil.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// Quantity limits from the Modbus application protocol.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

// ExceptionCode is a Modbus exception code. It implements error so register
// accessors can hand the protocol-level outcome straight to the dispatcher.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

// String returns the name of the exception code.
func (e ExceptionCode) String() string {
	switch e {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	default:
		return fmt.Sprintf("unknown exception (0x%02X)", byte(e))
	}
}

func (e ExceptionCode) Error() string {
	return "modbus: " + e.String()
}

// Error is an exception reported by a remote slave.
type Error struct {
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

// Error converts known modbus exception code to error message.
func (e *Error) Error() string {
	return fmt.Sprintf("modbus: exception '%d' (%s), function '%d'", byte(e.ExceptionCode), e.ExceptionCode, e.FunctionCode&^exceptionFlag)
}

// Unwrap exposes the exception code so errors.Is matches against the bare code.
func (e *Error) Unwrap() error {
	return e.ExceptionCode
}

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// ExceptionFunctionCode returns the function code used in an exception
// response to the given request function code.
func ExceptionFunctionCode(functionCode byte) byte {
	return functionCode | exceptionFlag
}
