// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/modbus/crc"
)

// ErrCRCMismatch is wrapped by Decode when the frame checksum is wrong.
var ErrCRCMismatch = errors.New("modbus: crc mismatch")

// ErrShortBuffer is wrapped by EncodeTo when the output buffer cannot hold the frame.
var ErrShortBuffer = errors.New("modbus: output buffer too small")

// ApplicationDataUnit is an RTU frame with its checksum stripped.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode verifies the checksum of raw and splits it into slave id and PDU.
// The PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}
	if length > MaxSize {
		err = fmt.Errorf("modbus: frame length '%v' exceeds maximum '%v'", length, MaxSize)
		return
	}

	expected := crc.Checksum(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != expected {
		err = fmt.Errorf("%w: received '%v', expected '%v'", ErrCRCMismatch, checksum, expected)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// EncodeTo writes the frame into out and returns the number of bytes written:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) EncodeTo(out []byte) (int, error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		return 0, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
	}
	if len(out) < length {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, length, len(out))
	}

	out[0] = adu.SlaveID
	out[1] = adu.Pdu.FunctionCode
	copy(out[2:], adu.Pdu.Data)
	appendCRC(out[:length])
	return length, nil
}

// appendCRC fills the last two bytes of frame with the checksum of the rest.
func appendCRC(frame []byte) {
	n := len(frame)
	checksum := crc.Checksum(frame[:n-2])
	frame[n-1] = byte(checksum >> 8)
	frame[n-2] = byte(checksum)
}
