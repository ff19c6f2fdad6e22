// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

// ErrInvalidResponse is wrapped by DecodeResponse for frames that do not
// answer the given request.
var ErrInvalidResponse = errors.New("modbus: invalid response")

// RequestADU is a decoded request together with the slave it addresses.
type RequestADU struct {
	SlaveID byte
	Request modbus.Request
}

// ResponseADU is a decoded response together with the slave that sent it.
type ResponseADU struct {
	SlaveID  byte
	Response modbus.Response
}

// DecodeRequest decodes the request frame at the start of raw.
//
// It returns nil and no error when raw does not yet hold a complete frame.
// An error means the bytes cannot be trusted (bad CRC, oversized frame), so
// not even the addressed slave is known. Frames with an intact checksum
// always decode: unknown functions become modbus.UnsupportedRequest and
// malformed payloads become modbus.InvalidRequest.
func DecodeRequest(raw []byte) (*RequestADU, error) {
	if len(raw) < MinSize {
		return nil, nil
	}
	length, err := CalculateRequestLength(raw[1], raw)
	switch {
	case errors.Is(err, ErrUnsupportedFunction):
		// Unknown layout: the caller delimited the frame, take all of it.
		length = len(raw)
	case err != nil:
		return nil, nil
	}
	if len(raw) < length {
		return nil, nil
	}

	adu, err := Decode(raw[:length])
	if err != nil {
		return nil, err
	}
	return &RequestADU{SlaveID: adu.SlaveID, Request: parseRequest(adu.Pdu)}, nil
}

func parseRequest(pdu modbus.ProtocolDataUnit) modbus.Request {
	fc := pdu.FunctionCode
	data := pdu.Data
	invalid := modbus.InvalidRequest{Function: fc, Exception: modbus.ExceptionCodeIllegalDataValue}

	switch fc {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters:
		if len(data) != 4 {
			return invalid
		}
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := binary.BigEndian.Uint16(data[2:4])
		switch fc {
		case modbus.FuncCodeReadCoils:
			return modbus.ReadCoils{Address: address, Quantity: quantity}
		case modbus.FuncCodeReadDiscreteInputs:
			return modbus.ReadDiscreteInputs{Address: address, Quantity: quantity}
		case modbus.FuncCodeReadHoldingRegisters:
			return modbus.ReadHoldingRegisters{Address: address, Quantity: quantity}
		default:
			return modbus.ReadInputRegisters{Address: address, Quantity: quantity}
		}
	case modbus.FuncCodeWriteSingleCoil:
		if len(data) != 4 {
			return invalid
		}
		address := binary.BigEndian.Uint16(data[0:2])
		switch binary.BigEndian.Uint16(data[2:4]) {
		case modbus.CoilOn:
			return modbus.WriteSingleCoil{Address: address, Value: true}
		case modbus.CoilOff:
			return modbus.WriteSingleCoil{Address: address, Value: false}
		default:
			return invalid
		}
	case modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return invalid
		}
		return modbus.WriteSingleRegister{
			Address: binary.BigEndian.Uint16(data[0:2]),
			Value:   binary.BigEndian.Uint16(data[2:4]),
		}
	case modbus.FuncCodeWriteMultipleCoils:
		if len(data) < 5 {
			return invalid
		}
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := int(binary.BigEndian.Uint16(data[2:4]))
		byteCount := int(data[4])
		if len(data)-5 != byteCount || byteCount != (quantity+7)/8 {
			return invalid
		}
		return modbus.WriteMultipleCoils{Address: address, Values: unpackBits(data[5:], quantity)}
	case modbus.FuncCodeWriteMultipleRegisters:
		if len(data) < 5 {
			return invalid
		}
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := int(binary.BigEndian.Uint16(data[2:4]))
		byteCount := int(data[4])
		if len(data)-5 != byteCount || byteCount != quantity*2 {
			return invalid
		}
		return modbus.WriteMultipleRegisters{Address: address, Values: unpackWords(data[5:], quantity)}
	default:
		return modbus.UnsupportedRequest{Function: fc}
	}
}

// EncodeResponse serializes resp for slaveID into out and returns the frame
// length. Nothing is allocated; out must hold the whole frame.
func EncodeResponse(slaveID byte, resp modbus.Response, out []byte) (int, error) {
	if r, ok := resp.(modbus.ExceptionResponse); ok {
		code := [1]byte{byte(r.Code)}
		adu := ApplicationDataUnit{
			SlaveID: slaveID,
			Pdu:     modbus.ProtocolDataUnit{FunctionCode: modbus.ExceptionFunctionCode(r.Function), Data: code[:]},
		}
		return adu.EncodeTo(out)
	}
	size, err := responseDataSize(resp)
	if err != nil {
		return 0, err
	}
	data, length, err := frameFor(slaveID, resp.FunctionCode(), size, out)
	if err != nil {
		return 0, err
	}

	switch r := resp.(type) {
	case modbus.ReadCoilsResponse:
		putBits(data, r.Coils)
	case modbus.ReadDiscreteInputsResponse:
		putBits(data, r.Inputs)
	case modbus.ReadHoldingRegistersResponse:
		putWords(data, r.Values)
	case modbus.ReadInputRegistersResponse:
		putWords(data, r.Values)
	case modbus.WriteSingleCoilResponse:
		putCoilEcho(data, r.Address, r.Value)
	case modbus.WriteSingleRegisterResponse:
		putPair(data, r.Address, r.Value)
	case modbus.WriteMultipleCoilsResponse:
		putPair(data, r.Address, r.Quantity)
	case modbus.WriteMultipleRegistersResponse:
		putPair(data, r.Address, r.Quantity)
	}
	appendCRC(out[:length])
	return length, nil
}

func responseDataSize(resp modbus.Response) (int, error) {
	switch r := resp.(type) {
	case modbus.ReadCoilsResponse:
		return 1 + (len(r.Coils)+7)/8, nil
	case modbus.ReadDiscreteInputsResponse:
		return 1 + (len(r.Inputs)+7)/8, nil
	case modbus.ReadHoldingRegistersResponse:
		return 1 + 2*len(r.Values), nil
	case modbus.ReadInputRegistersResponse:
		return 1 + 2*len(r.Values), nil
	case modbus.WriteSingleCoilResponse,
		modbus.WriteSingleRegisterResponse,
		modbus.WriteMultipleCoilsResponse,
		modbus.WriteMultipleRegistersResponse:
		return 4, nil
	default:
		return 0, fmt.Errorf("modbus: cannot encode response %T", resp)
	}
}

// EncodeRequest serializes req for slaveID into out. It is the master side
// counterpart of DecodeRequest.
func EncodeRequest(slaveID byte, req modbus.Request, out []byte) (int, error) {
	if r, ok := req.(modbus.UnsupportedRequest); ok {
		adu := ApplicationDataUnit{SlaveID: slaveID, Pdu: modbus.ProtocolDataUnit{FunctionCode: r.Function}}
		return adu.EncodeTo(out)
	}
	var size int
	switch r := req.(type) {
	case modbus.ReadCoils, modbus.ReadDiscreteInputs,
		modbus.ReadHoldingRegisters, modbus.ReadInputRegisters,
		modbus.WriteSingleCoil, modbus.WriteSingleRegister:
		size = 4
	case modbus.WriteMultipleCoils:
		size = 5 + (len(r.Values)+7)/8
	case modbus.WriteMultipleRegisters:
		size = 5 + 2*len(r.Values)
	default:
		return 0, fmt.Errorf("modbus: cannot encode request %T", req)
	}
	data, length, err := frameFor(slaveID, req.FunctionCode(), size, out)
	if err != nil {
		return 0, err
	}

	switch r := req.(type) {
	case modbus.ReadCoils:
		putPair(data, r.Address, r.Quantity)
	case modbus.ReadDiscreteInputs:
		putPair(data, r.Address, r.Quantity)
	case modbus.ReadHoldingRegisters:
		putPair(data, r.Address, r.Quantity)
	case modbus.ReadInputRegisters:
		putPair(data, r.Address, r.Quantity)
	case modbus.WriteSingleCoil:
		putCoilEcho(data, r.Address, r.Value)
	case modbus.WriteSingleRegister:
		putPair(data, r.Address, r.Value)
	case modbus.WriteMultipleCoils:
		putPair(data, r.Address, uint16(len(r.Values)))
		putBits(data[4:], r.Values)
	case modbus.WriteMultipleRegisters:
		putPair(data, r.Address, uint16(len(r.Values)))
		putWords(data[4:], r.Values)
	}
	appendCRC(out[:length])
	return length, nil
}

// DecodeResponse decodes the slave's answer to req. Exception frames decode
// to modbus.ExceptionResponse.
func DecodeResponse(raw []byte, req modbus.Request) (*ResponseADU, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	fc := req.FunctionCode()
	data := adu.Pdu.Data
	result := &ResponseADU{SlaveID: adu.SlaveID}

	if adu.Pdu.FunctionCode == modbus.ExceptionFunctionCode(fc) {
		if len(raw) != ExceptionSize {
			return nil, fmt.Errorf("%w: exception frame of %d bytes", ErrInvalidResponse, len(raw))
		}
		result.Response = modbus.ExceptionResponse{Function: fc, Code: modbus.ExceptionCode(data[0])}
		return result, nil
	}
	if adu.Pdu.FunctionCode != fc {
		return nil, fmt.Errorf("%w: function '%v' does not match request '%v'", ErrInvalidResponse, adu.Pdu.FunctionCode, fc)
	}

	switch r := req.(type) {
	case modbus.ReadCoils:
		bits, err := readBits(data, int(r.Quantity))
		if err != nil {
			return nil, err
		}
		result.Response = modbus.ReadCoilsResponse{Coils: bits}
	case modbus.ReadDiscreteInputs:
		bits, err := readBits(data, int(r.Quantity))
		if err != nil {
			return nil, err
		}
		result.Response = modbus.ReadDiscreteInputsResponse{Inputs: bits}
	case modbus.ReadHoldingRegisters:
		words, err := readWords(data, int(r.Quantity))
		if err != nil {
			return nil, err
		}
		result.Response = modbus.ReadHoldingRegistersResponse{Values: words}
	case modbus.ReadInputRegisters:
		words, err := readWords(data, int(r.Quantity))
		if err != nil {
			return nil, err
		}
		result.Response = modbus.ReadInputRegistersResponse{Values: words}
	default:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: expected 4 bytes of payload, got %d", ErrInvalidResponse, len(data))
		}
		address := binary.BigEndian.Uint16(data[0:2])
		value := binary.BigEndian.Uint16(data[2:4])
		switch req.(type) {
		case modbus.WriteSingleCoil:
			result.Response = modbus.WriteSingleCoilResponse{Address: address, Value: value == modbus.CoilOn}
		case modbus.WriteSingleRegister:
			result.Response = modbus.WriteSingleRegisterResponse{Address: address, Value: value}
		case modbus.WriteMultipleCoils:
			result.Response = modbus.WriteMultipleCoilsResponse{Address: address, Quantity: value}
		case modbus.WriteMultipleRegisters:
			result.Response = modbus.WriteMultipleRegistersResponse{Address: address, Quantity: value}
		default:
			return nil, fmt.Errorf("%w: no decoder for %T", ErrInvalidResponse, req)
		}
	}
	return result, nil
}

// frameFor checks out can hold a frame with size payload bytes, writes the
// header and returns the payload window.
func frameFor(slaveID, functionCode byte, size int, out []byte) ([]byte, int, error) {
	length := size + 4
	if length > MaxSize {
		return nil, 0, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
	}
	if len(out) < length {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, length, len(out))
	}
	out[0] = slaveID
	out[1] = functionCode
	return out[2 : 2+size], length, nil
}

func putPair(data []byte, a, b uint16) {
	binary.BigEndian.PutUint16(data[0:2], a)
	binary.BigEndian.PutUint16(data[2:4], b)
}

func putCoilEcho(data []byte, address uint16, on bool) {
	value := modbus.CoilOff
	if on {
		value = modbus.CoilOn
	}
	putPair(data, address, value)
}

// putBits writes a byte count followed by bits packed LSB first.
func putBits(data []byte, bits []bool) {
	byteCount := (len(bits) + 7) / 8
	data[0] = byte(byteCount)
	packed := data[1 : 1+byteCount]
	for i := range packed {
		packed[i] = 0
	}
	for i, b := range bits {
		if b {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
}

// putWords writes a byte count followed by big endian words.
func putWords(data []byte, words []uint16) {
	data[0] = byte(2 * len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(data[1+2*i:], w)
	}
}

func unpackBits(packed []byte, quantity int) []bool {
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return bits
}

func unpackWords(data []byte, quantity int) []uint16 {
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return words
}

func readBits(data []byte, quantity int) ([]bool, error) {
	byteCount := (quantity + 7) / 8
	if len(data) < 1 || int(data[0]) != byteCount || len(data)-1 != byteCount {
		return nil, fmt.Errorf("%w: byte count does not cover %d bits", ErrInvalidResponse, quantity)
	}
	return unpackBits(data[1:], quantity), nil
}

func readWords(data []byte, quantity int) ([]uint16, error) {
	if len(data) < 1 || int(data[0]) != 2*quantity || len(data)-1 != 2*quantity {
		return nil, fmt.Errorf("%w: byte count does not cover %d registers", ErrInvalidResponse, quantity)
	}
	return unpackWords(data[1:], quantity), nil
}
