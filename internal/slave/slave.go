// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus RTU slave request dispatcher: it
// decodes a frame, executes it against the register map and encodes the
// response or exception.
package slave

import (
	"context"
	"errors"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/modbus/rtu"
)

// Source delivers register map snapshots from the application. It is
// satisfied by *mailbox.Mailbox[*model.RegisterMap].
type Source interface {
	// TryReceive must not block.
	TryReceive() (*model.RegisterMap, bool)
	Receive(ctx context.Context) (*model.RegisterMap, error)
}

// Server is a Modbus RTU slave. It is not safe for concurrent use: one
// goroutine runs Init and then calls ProcessFrame for every frame.
type Server struct {
	id       byte
	sizes    model.Sizes
	model    *model.RegisterMap
	observer Observer
}

// Option configures a Server.
type Option func(*Server)

// WithObserver sets the observer notified of dispatch decisions.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// New creates a server answering to slave id with a zeroed register map of
// the given sizes. Snapshots published later must have the same sizes.
func New(id byte, sizes model.Sizes, opts ...Option) (*Server, error) {
	m, err := model.New(sizes)
	if err != nil {
		return nil, err
	}
	s := &Server{
		id:       id,
		sizes:    sizes,
		model:    m,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the slave id.
func (s *Server) ID() byte {
	return s.id
}

// Map returns the register map currently served.
func (s *Server) Map() *model.RegisterMap {
	return s.model
}

// Init blocks until src delivers the first snapshot and installs it. This
// is the only blocking call of the server.
func (s *Server) Init(ctx context.Context, src Source) error {
	for {
		m, err := src.Receive(ctx)
		if err != nil {
			return fmt.Errorf("slave: waiting for initial snapshot: %w", err)
		}
		if err := s.install(m); err == nil {
			return nil
		}
	}
}

// ProcessFrame handles one input frame. If a new snapshot is pending in src
// it replaces the map before the frame is dispatched; src may be nil.
//
// It reports whether a response was written to output and its length. A
// frame for another slave, or one that is still incomplete, produces no
// response and no error. Errors are *DispatchError values and never leave
// the server in a state that prevents processing the next frame.
func (s *Server) ProcessFrame(input, output []byte, src Source) (bool, int, error) {
	if src != nil {
		if m, ok := src.TryReceive(); ok {
			_ = s.install(m)
		}
	}

	adu, err := rtu.DecodeRequest(input)
	if err != nil {
		s.observer.DecodeFailed(err)
		return false, 0, &DispatchError{Kind: ErrFrameDecodeFailed, Err: err}
	}
	if adu == nil {
		return false, 0, nil
	}

	fc := adu.Request.FunctionCode()
	if adu.SlaveID != s.id {
		s.observer.Ignored(adu.SlaveID, fc)
		return false, 0, nil
	}

	resp := s.Dispatch(adu.Request)
	n, err := rtu.EncodeResponse(s.id, resp, output)
	if err != nil {
		s.observer.EncodeFailed(err)
		return false, 0, &DispatchError{Kind: ErrResponseEncodeFailed, SlaveID: s.id, FunctionCode: fc, Err: err}
	}
	s.observer.Responded(fc, n)
	return true, n, nil
}

// install replaces the map with m if its sizes match.
func (s *Server) install(m *model.RegisterMap) error {
	if m == nil {
		err := fmt.Errorf("%w: nil snapshot", ErrSnapshotMismatch)
		s.observer.SnapshotRejected(err)
		return err
	}
	if got := m.Sizes(); got != s.sizes {
		err := fmt.Errorf("%w: got %+v, want %+v", ErrSnapshotMismatch, got, s.sizes)
		s.observer.SnapshotRejected(err)
		return err
	}
	s.model = m
	s.observer.SnapshotApplied(m)
	return nil
}

// Dispatch executes req against the current map and returns the response
// to encode. Protocol errors come back as modbus.ExceptionResponse.
func (s *Server) Dispatch(req modbus.Request) modbus.Response {
	switch r := req.(type) {
	case modbus.ReadCoils:
		return s.handleReadCoils(r)
	case modbus.ReadDiscreteInputs:
		return s.handleReadDiscreteInputs(r)
	case modbus.ReadHoldingRegisters:
		return s.handleReadHoldingRegisters(r)
	case modbus.ReadInputRegisters:
		return s.handleReadInputRegisters(r)
	case modbus.WriteSingleCoil:
		return s.handleWriteSingleCoil(r)
	case modbus.WriteSingleRegister:
		return s.handleWriteSingleRegister(r)
	case modbus.WriteMultipleCoils:
		return s.handleWriteMultipleCoils(r)
	case modbus.WriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(r)
	case modbus.InvalidRequest:
		return s.exception(r.Function, r.Exception)
	default:
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalFunction)
	}
}

// Reads check the address range first, so any request reaching past the
// table is an illegal data address, then the protocol quantity limits.

func (s *Server) handleReadCoils(req modbus.ReadCoils) modbus.Response {
	coils, err := s.model.ReadCoils(req.Address, req.Quantity)
	if err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if req.Quantity < 1 || req.Quantity > modbus.MaxReadBits {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	return modbus.ReadCoilsResponse{Coils: coils}
}

func (s *Server) handleReadDiscreteInputs(req modbus.ReadDiscreteInputs) modbus.Response {
	inputs, err := s.model.ReadDiscreteInputs(req.Address, req.Quantity)
	if err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if req.Quantity < 1 || req.Quantity > modbus.MaxReadBits {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	return modbus.ReadDiscreteInputsResponse{Inputs: inputs}
}

func (s *Server) handleReadHoldingRegisters(req modbus.ReadHoldingRegisters) modbus.Response {
	values, err := s.model.ReadHoldingRegisters(req.Address, req.Quantity)
	if err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if req.Quantity < 1 || req.Quantity > modbus.MaxReadRegisters {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	return modbus.ReadHoldingRegistersResponse{Values: values}
}

func (s *Server) handleReadInputRegisters(req modbus.ReadInputRegisters) modbus.Response {
	values, err := s.model.ReadInputRegisters(req.Address, req.Quantity)
	if err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if req.Quantity < 1 || req.Quantity > modbus.MaxReadRegisters {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	return modbus.ReadInputRegistersResponse{Values: values}
}

func (s *Server) handleWriteSingleCoil(req modbus.WriteSingleCoil) modbus.Response {
	if err := s.model.WriteSingleCoil(req.Address, req.Value); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	s.observer.WriteApplied(s.model, model.TableCoils, req.Address, 1)
	return modbus.WriteSingleCoilResponse{Address: req.Address, Value: req.Value}
}

func (s *Server) handleWriteSingleRegister(req modbus.WriteSingleRegister) modbus.Response {
	if err := s.model.WriteSingleRegister(req.Address, req.Value); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	s.observer.WriteApplied(s.model, model.TableHoldingRegisters, req.Address, 1)
	return modbus.WriteSingleRegisterResponse{Address: req.Address, Value: req.Value}
}

func (s *Server) handleWriteMultipleCoils(req modbus.WriteMultipleCoils) modbus.Response {
	quantity := len(req.Values)
	if err := s.model.CheckRange(model.TableCoils, req.Address, quantity); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if quantity < 1 || quantity > modbus.MaxWriteBits {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteMultipleCoils(req.Address, req.Values); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	s.observer.WriteApplied(s.model, model.TableCoils, req.Address, uint16(quantity))
	return modbus.WriteMultipleCoilsResponse{Address: req.Address, Quantity: uint16(quantity)}
}

func (s *Server) handleWriteMultipleRegisters(req modbus.WriteMultipleRegisters) modbus.Response {
	quantity := len(req.Values)
	if err := s.model.CheckRange(model.TableHoldingRegisters, req.Address, quantity); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return s.exception(req.FunctionCode(), modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteMultipleRegisters(req.Address, req.Values); err != nil {
		return s.fail(req.FunctionCode(), err)
	}
	s.observer.WriteApplied(s.model, model.TableHoldingRegisters, req.Address, uint16(quantity))
	return modbus.WriteMultipleRegistersResponse{Address: req.Address, Quantity: uint16(quantity)}
}

// fail turns an accessor error into an exception response. Accessors report
// protocol outcomes as modbus.ExceptionCode; anything else is a device failure.
func (s *Server) fail(functionCode byte, err error) modbus.Response {
	code := modbus.ExceptionCodeServerDeviceFailure
	errors.As(err, &code)
	return s.exception(functionCode, code)
}

func (s *Server) exception(functionCode byte, code modbus.ExceptionCode) modbus.Response {
	s.observer.Exception(functionCode, code)
	return modbus.ExceptionResponse{Function: functionCode, Code: code}
}
