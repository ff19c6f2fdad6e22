// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu-slave/modbus"
	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
)

const (
	tcpTimeout = 10 * time.Second
)

// Client is a Modbus master sending RTU frames over a TCP stream, as used
// with serial device servers.
type Client struct {
	Address string
	Timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		Timeout: tcpTimeout,
	}
}

// Do sends req to slaveID and returns the decoded response. An exception
// answer is returned as a *modbus.Error.
func (mb *Client) Do(ctx context.Context, slaveID byte, req modbus.Request) (modbus.Response, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return nil, fmt.Errorf("modbus: failed to connect to %s: %w", mb.Address, err)
	}

	buf := make([]byte, rtupacket.MaxSize)
	n, err := rtupacket.EncodeRequest(slaveID, req, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	deadline := time.Now().Add(mb.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = mb.conn.SetDeadline(deadline); err != nil {
		mb.close()
		return nil, err
	}

	if _, err := mb.conn.Write(buf[:n]); err != nil {
		mb.close() // Close connection on write failure to force reconnect next time
		return nil, fmt.Errorf("failed to write to connection: %w", err)
	}

	// RTU over TCP is just RTU frames on a stream, so the serial framing applies.
	raw, err := rtupacket.ReadResponse(slaveID, req.FunctionCode(), mb.conn, deadline)
	if err != nil {
		mb.close()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	adu, err := rtupacket.DecodeResponse(raw, req)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if e, ok := adu.Response.(modbus.ExceptionResponse); ok {
		return nil, e.Err()
	}
	return adu.Response, nil
}

// Close closes the connection.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (mb *Client) connect(ctx context.Context) error {
	if mb.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: mb.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Address)
	if err != nil {
		return err
	}
	mb.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() {
	if mb.conn != nil {
		mb.conn.Close()
		mb.conn = nil
	}
}
