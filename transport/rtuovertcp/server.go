// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address string

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
	}
}

// Listen binds the TCP address. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Frames from all
// connections reach handler one at a time.
func (s *Server) Serve(ctx context.Context, handler transport.FrameHandler) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	handler = transport.Serialize(handler)
	defer s.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn, handler)
		}()
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.FrameHandler) {
	defer conn.Close()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := rtupacket.NewScanner(conn)
	out := make([]byte, rtupacket.MaxSize)

	for {
		frame, err := scanner.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				slog.Info("RTU over TCP client disconnected", "addr", conn.RemoteAddr())
				return
			}
			// A broken frame leaves the stream out of sync; drop the connection.
			slog.Warn("Invalid RTU frame, closing connection", "addr", conn.RemoteAddr(), "err", err)
			return
		}
		slog.Debug("recv from modbus master", "addr", conn.RemoteAddr(), "request", hex.EncodeToString(frame))

		ok, n, err := handler.HandleFrame(frame, out)
		if err != nil {
			slog.Warn("Failed to handle frame", "addr", conn.RemoteAddr(), "err", err)
			continue
		}
		if !ok {
			continue
		}

		if _, err := conn.Write(out[:n]); err != nil {
			slog.Error("Failed to write response", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}
}
