// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrIncompleteFrame is returned by Scanner.Next when the stream stopped
// in the middle of a frame.
var ErrIncompleteFrame = errors.New("modbus: incomplete frame")

// DefaultFrameGap is the silence that ends a frame of unknown length on
// streams supporting read deadlines.
const DefaultFrameGap = 50 * time.Millisecond

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Scanner splits a byte stream into request frames. The length of known
// functions comes from the frame header; frames of other functions end at
// the first failed read, which on serial ports is the read timeout and on
// network streams a deadline of Gap.
type Scanner struct {
	r   io.Reader
	buf [MaxSize]byte

	// Gap is the inter-frame silence used when r supports read deadlines.
	Gap time.Duration
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r, Gap: DefaultFrameGap}
}

// Next returns the next frame. The slice is valid until the following call.
// Errors reading the first byte are returned as is; errors inside a frame
// wrap ErrIncompleteFrame.
func (s *Scanner) Next() ([]byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:1]); err != nil {
		return nil, err
	}
	if err := s.fill(1, 2); err != nil {
		return nil, err
	}

	length, err := CalculateRequestLength(s.buf[1], s.buf[:2])
	switch {
	case errors.Is(err, ErrUnsupportedFunction):
		return s.tail(2)
	case err != nil:
		// Byte count lives in the header.
		if err := s.fill(2, headerSize); err != nil {
			return nil, err
		}
		if length, err = CalculateRequestLength(s.buf[1], s.buf[:headerSize]); err != nil {
			return nil, err
		}
		if length > MaxSize {
			return nil, fmt.Errorf("%w: frame length %d exceeds %d", ErrIncompleteFrame, length, MaxSize)
		}
		if err := s.fill(headerSize, length); err != nil {
			return nil, err
		}
	default:
		if err := s.fill(2, length); err != nil {
			return nil, err
		}
	}
	return s.buf[:length], nil
}

func (s *Scanner) fill(from, to int) error {
	if _, err := io.ReadFull(s.r, s.buf[from:to]); err != nil {
		return fmt.Errorf("%w: got %d of %d bytes: %w", ErrIncompleteFrame, from, to, err)
	}
	return nil
}

// tail reads until the stream goes quiet or the buffer is full.
func (s *Scanner) tail(n int) ([]byte, error) {
	if d, ok := s.r.(readDeadliner); ok && s.Gap > 0 {
		defer d.SetReadDeadline(time.Time{})
		for n < len(s.buf) {
			d.SetReadDeadline(time.Now().Add(s.Gap))
			m, err := s.r.Read(s.buf[n:])
			n += m
			if err != nil {
				break
			}
		}
		return s.buf[:n], nil
	}
	for n < len(s.buf) {
		m, err := s.r.Read(s.buf[n:])
		n += m
		if err != nil || m == 0 {
			break
		}
	}
	return s.buf[:n], nil
}
