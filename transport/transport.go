// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"sync"
)

// FrameHandler handles one raw RTU request frame. It writes the response
// frame into output and reports whether there is one and its length.
// Frames addressed to another slave produce no response and no error.
type FrameHandler interface {
	HandleFrame(input, output []byte) (bool, int, error)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(input, output []byte) (bool, int, error)

func (f FrameHandlerFunc) HandleFrame(input, output []byte) (bool, int, error) {
	return f(input, output)
}

// Listener represents a source of requests (a Modbus master talking to us).
type Listener interface {
	// Serve feeds received frames to handler and blocks until ctx is
	// cancelled or the underlying stream fails.
	Serve(ctx context.Context, handler FrameHandler) error
	Close() error
}

// Serialize wraps h so concurrent callers take turns. Listeners that read
// several streams at once use it to keep a single-threaded handler safe.
func Serialize(h FrameHandler) FrameHandler {
	var mu sync.Mutex
	return FrameHandlerFunc(func(input, output []byte) (bool, int, error) {
		mu.Lock()
		defer mu.Unlock()
		return h.HandleFrame(input, output)
	})
}
