// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtuovertcp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-rtu-slave/internal/mailbox"
	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/internal/slave"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/modbus/crc"
	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

const slaveID = 7

// startServer runs a slave with the given sizes behind an RTU over TCP
// server and returns its address and mailbox.
func startServer(t *testing.T, sizes model.Sizes) (string, *mailbox.Mailbox[*model.RegisterMap]) {
	t.Helper()
	srv, err := slave.New(slaveID, sizes)
	require.NoError(t, err)
	box := mailbox.New[*model.RegisterMap]()

	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, transport.FrameHandlerFunc(func(input, output []byte) (bool, int, error) {
			return srv.ProcessFrame(input, output, box)
		}))
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s.Addr().String(), box
}

func TestServer_ReadWrite(t *testing.T) {
	addr, _ := startServer(t, model.Sizes{Coils: 16, HoldingRegisters: 8})

	client := NewClient(addr)
	client.Timeout = time.Second
	defer client.Close()
	ctx := context.Background()

	resp, err := client.Do(ctx, slaveID, modbus.WriteMultipleRegisters{Address: 0, Values: []uint16{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, modbus.WriteMultipleRegistersResponse{Address: 0, Quantity: 3}, resp)

	resp, err = client.Do(ctx, slaveID, modbus.ReadHoldingRegisters{Address: 0, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, modbus.ReadHoldingRegistersResponse{Values: []uint16{1, 2, 3, 0}}, resp)

	resp, err = client.Do(ctx, slaveID, modbus.WriteSingleCoil{Address: 5, Value: true})
	require.NoError(t, err)
	assert.Equal(t, modbus.WriteSingleCoilResponse{Address: 5, Value: true}, resp)

	_, err = client.Do(ctx, slaveID, modbus.WriteMultipleRegisters{Address: 6, Values: []uint16{1, 2, 3}})
	var merr *modbus.Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, modbus.ExceptionCodeIllegalDataAddress, merr.ExceptionCode)
}

func TestServer_SnapshotPublished(t *testing.T) {
	sizes := model.Sizes{InputRegisters: 2}
	addr, box := startServer(t, sizes)

	snap, err := model.New(sizes)
	require.NoError(t, err)
	require.NoError(t, snap.SetInputRegister(1, 0xBEEF))
	box.Publish(snap)

	client := NewClient(addr)
	client.Timeout = time.Second
	defer client.Close()

	resp, err := client.Do(context.Background(), slaveID, modbus.ReadInputRegisters{Address: 0, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, modbus.ReadInputRegistersResponse{Values: []uint16{0, 0xBEEF}}, resp)
}

func TestServer_OtherSlaveAndUnknownFunction(t *testing.T) {
	addr, _ := startServer(t, model.Sizes{HoldingRegisters: 1})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Addressed to another slave: no answer.
	other := make([]byte, rtupacket.MaxSize)
	n, err := rtupacket.EncodeRequest(slaveID+1, modbus.ReadHoldingRegisters{Address: 0, Quantity: 1}, other)
	require.NoError(t, err)
	_, err = conn.Write(other[:n])
	require.NoError(t, err)

	// Report Server ID (0x11) is not served.
	req := []byte{slaveID, 0x11}
	sum := crc.Checksum(req)
	req = append(req, byte(sum), byte(sum>>8))
	_, err = conn.Write(req)
	require.NoError(t, err)

	respBytes, err := rtupacket.ReadResponse(slaveID, 0x11, conn, time.Now().Add(time.Second))
	require.NoError(t, err)
	adu, err := rtupacket.Decode(respBytes)
	require.NoError(t, err)
	assert.Equal(t, byte(0x91), adu.Pdu.FunctionCode)
	assert.Equal(t, []byte{byte(modbus.ExceptionCodeIllegalFunction)}, adu.Pdu.Data)
}
