// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
)

// Client is a Modbus RTU master on a serial line.
type Client struct {
	rtuSerialTransporter
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}
	client.serialPort.Config = newSerialConfig(cfg)
	client.IdleTimeout = serialIdleTimeout
	return client
}

// Do sends req to slaveID and returns the decoded response. An exception
// answer is returned as a *modbus.Error.
func (mb *Client) Do(ctx context.Context, slaveID byte, req modbus.Request) (modbus.Response, error) {
	buf := make([]byte, rtupacket.MaxSize)
	n, err := rtupacket.EncodeRequest(slaveID, req, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	raw, err := mb.rtuSerialTransporter.Send(ctx, buf[:n])
	if err != nil {
		return nil, err
	}

	adu, err := rtupacket.DecodeResponse(raw, req)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if adu.SlaveID != slaveID {
		return nil, fmt.Errorf("%w: slave id '%v' does not match request '%v'", rtupacket.ErrInvalidResponse, adu.SlaveID, slaveID)
	}
	if e, ok := adu.Response.(modbus.ExceptionResponse); ok {
		return nil, e.Err()
	}
	return adu.Response, nil
}

// ReadCoils reads quantity coils starting at address.
func (mb *Client) ReadCoils(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	resp, err := mb.Do(ctx, slaveID, modbus.ReadCoils{Address: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return resp.(modbus.ReadCoilsResponse).Coils, nil
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (mb *Client) ReadDiscreteInputs(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	resp, err := mb.Do(ctx, slaveID, modbus.ReadDiscreteInputs{Address: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return resp.(modbus.ReadDiscreteInputsResponse).Inputs, nil
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (mb *Client) ReadHoldingRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	resp, err := mb.Do(ctx, slaveID, modbus.ReadHoldingRegisters{Address: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return resp.(modbus.ReadHoldingRegistersResponse).Values, nil
}

// ReadInputRegisters reads quantity input registers starting at address.
func (mb *Client) ReadInputRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	resp, err := mb.Do(ctx, slaveID, modbus.ReadInputRegisters{Address: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return resp.(modbus.ReadInputRegistersResponse).Values, nil
}

// WriteSingleCoil sets one coil.
func (mb *Client) WriteSingleCoil(ctx context.Context, slaveID byte, address uint16, value bool) error {
	_, err := mb.Do(ctx, slaveID, modbus.WriteSingleCoil{Address: address, Value: value})
	return err
}

// WriteSingleRegister sets one holding register.
func (mb *Client) WriteSingleRegister(ctx context.Context, slaveID byte, address, value uint16) error {
	_, err := mb.Do(ctx, slaveID, modbus.WriteSingleRegister{Address: address, Value: value})
	return err
}

// WriteMultipleCoils sets consecutive coils starting at address.
func (mb *Client) WriteMultipleCoils(ctx context.Context, slaveID byte, address uint16, values []bool) error {
	_, err := mb.Do(ctx, slaveID, modbus.WriteMultipleCoils{Address: address, Values: values})
	return err
}

// WriteMultipleRegisters sets consecutive holding registers starting at address.
func (mb *Client) WriteMultipleRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	_, err := mb.Do(ctx, slaveID, modbus.WriteMultipleRegisters{Address: address, Values: values})
	return err
}

// rtuSerialTransporter implements underlying serial comms.
type rtuSerialTransporter struct {
	serialPort
}

func (mb *rtuSerialTransporter) Send(ctx context.Context, aduRequest []byte) (aduResponse []byte, err error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err = mb.connect(ctx); err != nil {
		return
	}
	mb.lastActivity = time.Now()
	mb.startCloseTimer()

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err = mb.port.Write(aduRequest); err != nil {
		return
	}

	bytesToRead := rtupacket.CalculateResponseLength(aduRequest)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(mb.calculateDelay(len(aduRequest) + bytesToRead)):
	}

	data, err := rtupacket.ReadResponse(aduRequest[0], aduRequest[1], mb.port, time.Now().Add(mb.Config.Timeout))
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data[:]))
	aduResponse = data
	return
}

// calculateDelay calculates the needed delay to separate frames.
func (mb *rtuSerialTransporter) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
