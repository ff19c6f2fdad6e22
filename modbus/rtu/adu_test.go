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

func TestApplicationDataUnit_EncodeTo(t *testing.T) {
	adu := &ApplicationDataUnit{
		SlaveID: 0x01,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x0A}},
	}
	out := make([]byte, MaxSize)
	n, err := adu.EncodeTo(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, out[:n])

	got, err := Decode(out[:n])
	require.NoError(t, err)
	assert.Equal(t, adu, got)

	_, err = adu.EncodeTo(make([]byte, 7))
	assert.ErrorIs(t, err, ErrShortBuffer)

	adu.Pdu.Data = make([]byte, MaxSize)
	_, err = adu.EncodeTo(make([]byte, 2*MaxSize))
	assert.Error(t, err)
}

func TestDecode_Length(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x03, 0x00})
	assert.Error(t, err)

	_, err = Decode(make([]byte, MaxSize+1))
	assert.Error(t, err)
}
