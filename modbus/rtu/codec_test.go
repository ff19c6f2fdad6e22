// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

// frame builds an ADU with a valid CRC from slave id and PDU bytes.
func frame(slaveID byte, pdu ...byte) []byte {
	raw := append([]byte{slaveID}, pdu...)
	raw = append(raw, 0, 0)
	appendCRC(raw)
	return raw
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want modbus.Request
	}{
		{"ReadCoils", frame(1, 0x01, 0x00, 0x02, 0x00, 0x10), modbus.ReadCoils{Address: 2, Quantity: 16}},
		{"ReadDiscreteInputs", frame(1, 0x02, 0x00, 0x00, 0x00, 0x01), modbus.ReadDiscreteInputs{Address: 0, Quantity: 1}},
		{"ReadHoldingRegisters", frame(1, 0x03, 0x00, 0x01, 0x00, 0x03), modbus.ReadHoldingRegisters{Address: 1, Quantity: 3}},
		{"ReadInputRegisters", frame(1, 0x04, 0x00, 0x07, 0x00, 0x01), modbus.ReadInputRegisters{Address: 7, Quantity: 1}},
		{"WriteSingleCoilOn", frame(1, 0x05, 0x00, 0x05, 0xFF, 0x00), modbus.WriteSingleCoil{Address: 5, Value: true}},
		{"WriteSingleCoilOff", frame(1, 0x05, 0x00, 0x05, 0x00, 0x00), modbus.WriteSingleCoil{Address: 5, Value: false}},
		{"WriteSingleCoilBadValue", frame(1, 0x05, 0x00, 0x05, 0x12, 0x34), modbus.InvalidRequest{Function: 0x05, Exception: modbus.ExceptionCodeIllegalDataValue}},
		{"WriteSingleRegister", frame(1, 0x06, 0x00, 0x02, 0xAB, 0xCD), modbus.WriteSingleRegister{Address: 2, Value: 0xABCD}},
		{"WriteMultipleCoils", frame(1, 0x0F, 0x00, 0x00, 0x00, 0x0A, 0x02, 0x05, 0x02),
			modbus.WriteMultipleCoils{Address: 0, Values: []bool{true, false, true, false, false, false, false, false, false, true}}},
		{"WriteMultipleCoilsBadByteCount", frame(1, 0x0F, 0x00, 0x00, 0x00, 0x0A, 0x01, 0x05),
			modbus.InvalidRequest{Function: 0x0F, Exception: modbus.ExceptionCodeIllegalDataValue}},
		{"WriteMultipleRegisters", frame(1, 0x10, 0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02),
			modbus.WriteMultipleRegisters{Address: 0, Values: []uint16{1, 2}}},
		{"WriteMultipleRegistersQuantityMismatch", frame(1, 0x10, 0x00, 0x00, 0x00, 0x03, 0x04, 0x00, 0x01, 0x00, 0x02),
			modbus.InvalidRequest{Function: 0x10, Exception: modbus.ExceptionCodeIllegalDataValue}},
		{"Unsupported", frame(1, 0x07), modbus.UnsupportedRequest{Function: 0x07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adu, err := DecodeRequest(tt.raw)
			require.NoError(t, err)
			require.NotNil(t, adu)
			assert.Equal(t, byte(1), adu.SlaveID)
			assert.Equal(t, tt.want, adu.Request)
		})
	}
}

func TestDecodeRequest_Incomplete(t *testing.T) {
	full := frame(1, 0x03, 0x00, 0x00, 0x00, 0x01)
	for n := 0; n < len(full); n++ {
		adu, err := DecodeRequest(full[:n])
		assert.NoError(t, err, "prefix %d", n)
		assert.Nil(t, adu, "prefix %d", n)
	}

	multi := frame(1, 0x10, 0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x01)
	adu, err := DecodeRequest(multi[:len(multi)-1])
	assert.NoError(t, err)
	assert.Nil(t, adu)
}

func TestDecodeRequest_BadCRC(t *testing.T) {
	raw := frame(1, 0x03, 0x00, 0x00, 0x00, 0x01)
	raw[len(raw)-1] ^= 0xFF

	adu, err := DecodeRequest(raw)
	assert.Nil(t, adu)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		resp modbus.Response
		want []byte
	}{
		{"ReadCoils", modbus.ReadCoilsResponse{Coils: []bool{true, false, true, false, false, false, false, false, false, true}},
			frame(1, 0x01, 0x02, 0x05, 0x02)},
		{"ReadHoldingRegisters", modbus.ReadHoldingRegistersResponse{Values: []uint16{0x1234, 0x0001}},
			frame(1, 0x03, 0x04, 0x12, 0x34, 0x00, 0x01)},
		{"WriteSingleCoil", modbus.WriteSingleCoilResponse{Address: 5, Value: true},
			frame(1, 0x05, 0x00, 0x05, 0xFF, 0x00)},
		{"WriteMultipleRegisters", modbus.WriteMultipleRegistersResponse{Address: 0, Quantity: 3},
			frame(1, 0x10, 0x00, 0x00, 0x00, 0x03)},
		{"Exception", modbus.ExceptionResponse{Function: 0x03, Code: modbus.ExceptionCodeIllegalDataAddress},
			frame(1, 0x83, 0x02)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]byte, MaxSize)
			n, err := EncodeResponse(1, tt.resp, out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[:n])
		})
	}
}

func TestEncodeResponse_ShortBuffer(t *testing.T) {
	out := make([]byte, 6)
	_, err := EncodeResponse(1, modbus.ReadHoldingRegistersResponse{Values: []uint16{1, 2}}, out)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestEncodeResponse_ExceptionShortBuffer(t *testing.T) {
	resp := modbus.ExceptionResponse{Function: 0x10, Code: modbus.ExceptionCodeIllegalDataValue}
	_, err := EncodeResponse(1, resp, make([]byte, ExceptionSize-1))
	assert.ErrorIs(t, err, ErrShortBuffer)

	out := make([]byte, ExceptionSize)
	n, err := EncodeResponse(1, resp, out)
	require.NoError(t, err)
	assert.Equal(t, frame(1, 0x90, 0x03), out[:n])
}

func TestEncodeRequest_Unsupported(t *testing.T) {
	out := make([]byte, MaxSize)
	n, err := EncodeRequest(1, modbus.UnsupportedRequest{Function: 0x07}, out)
	require.NoError(t, err)
	assert.Equal(t, frame(1, 0x07), out[:n])

	adu, err := DecodeRequest(out[:n])
	require.NoError(t, err)
	assert.Equal(t, modbus.UnsupportedRequest{Function: 0x07}, adu.Request)
}

func TestDecodeResponse_ExceptionLength(t *testing.T) {
	_, err := DecodeResponse(frame(1, 0x83, 0x02, 0x00), modbus.ReadHoldingRegisters{Address: 0, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestEncodeResponse_TooLarge(t *testing.T) {
	out := make([]byte, 1024)
	_, err := EncodeResponse(1, modbus.ReadHoldingRegistersResponse{Values: make([]uint16, 126)}, out)
	assert.Error(t, err)
}

func TestHoldingRegistersRoundTrip(t *testing.T) {
	values := []uint16{0, 1, 0x7FFF, 0xFFFF, 42}
	req := modbus.ReadHoldingRegisters{Address: 10, Quantity: uint16(len(values))}

	out := make([]byte, MaxSize)
	n, err := EncodeResponse(9, modbus.ReadHoldingRegistersResponse{Values: values}, out)
	require.NoError(t, err)

	adu, err := DecodeResponse(out[:n], req)
	require.NoError(t, err)
	assert.Equal(t, byte(9), adu.SlaveID)
	assert.Equal(t, modbus.ReadHoldingRegistersResponse{Values: values}, adu.Response)
}

func TestRequestRoundTrip(t *testing.T) {
	requests := []modbus.Request{
		modbus.ReadCoils{Address: 3, Quantity: 9},
		modbus.WriteSingleCoil{Address: 5, Value: true},
		modbus.WriteSingleRegister{Address: 1, Value: 0xBEEF},
		modbus.WriteMultipleCoils{Address: 2, Values: []bool{true, true, false}},
		modbus.WriteMultipleRegisters{Address: 0, Values: []uint16{1, 2, 3}},
	}
	for _, req := range requests {
		out := make([]byte, MaxSize)
		n, err := EncodeRequest(4, req, out)
		require.NoError(t, err)

		adu, err := DecodeRequest(out[:n])
		require.NoError(t, err)
		assert.Equal(t, req, adu.Request)
	}
}

func TestDecodeResponse_Exception(t *testing.T) {
	adu, err := DecodeResponse(frame(1, 0x81, 0x02), modbus.ReadCoils{Address: 0, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, modbus.ExceptionResponse{Function: 0x01, Code: modbus.ExceptionCodeIllegalDataAddress}, adu.Response)
}

func TestDecodeResponse_WrongFunction(t *testing.T) {
	_, err := DecodeResponse(frame(1, 0x04, 0x02, 0x00, 0x01), modbus.ReadHoldingRegisters{Address: 0, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
