// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is slave id, function code and CRC.
	MinSize = 4
	// MaxSize is the largest RTU ADU: 253 bytes PDU + slave id + CRC.
	MaxSize = 256

	// ExceptionSize is slave id, exception function code, exception code and CRC.
	ExceptionSize = 5

	// headerSize is the number of leading bytes needed to size any
	// supported request: slave id, function, 4 bytes of fields, byte count.
	headerSize = 7
)
