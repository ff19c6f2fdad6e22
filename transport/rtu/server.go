// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-rtu-slave/internal/config"
	rtupacket "github.com/ffutop/modbus-rtu-slave/modbus/rtu"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

// Server implements a Modbus RTU slave on a serial line. It waits for
// requests from an external master and answers them synchronously.
type Server struct {
	Config config.SerialConfig

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Serve opens the serial port and handles frames until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, handler transport.FrameHandler) error {
	spConfig := newSerialConfig(s.Config)
	port, err := serial.Open(&spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device, "baud_rate", s.Config.BaudRate)

	// handle close
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	if err := s.scanLoop(ctx, port, handler); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serial port %s: %w", s.Config.Device, err)
	}
	return nil
}

// scanLoop reads frames from port and writes back the handler's responses.
// It returns when ctx is done or the port reports end of stream.
func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.FrameHandler) error {
	scanner := rtupacket.NewScanner(port)
	out := make([]byte, rtupacket.MaxSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := scanner.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, rtupacket.ErrIncompleteFrame) {
				slog.Debug("Discarding partial frame", "err", err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return err
			}
			// Read timeouts between frames are expected on an idle bus.
			continue
		}
		slog.Debug("recv from modbus master", "request", hex.EncodeToString(frame))

		ok, n, err := handler.HandleFrame(frame, out)
		if err != nil {
			slog.Warn("Failed to handle frame", "err", err)
			continue
		}
		if !ok {
			continue
		}

		slog.Debug("send to modbus master", "response", hex.EncodeToString(out[:n]))
		if _, err := port.Write(out[:n]); err != nil {
			slog.Error("Failed to write response", "err", err)
		}
	}
}

// Close closes the serial port.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
