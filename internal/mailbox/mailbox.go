// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mailbox provides a single-slot hand-off between one producer and
// one consumer. Publishing into a full slot replaces the pending value.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox holds at most one pending value.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
	// ready carries at most one wake-up token for a blocked Receive.
	ready chan struct{}
}

// New creates an empty Mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Publish stores v, overwriting any value not yet received. It never blocks.
func (m *Mailbox[T]) Publish(v T) {
	m.mu.Lock()
	m.value = v
	m.pending = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// TryReceive takes the pending value if there is one. It never blocks.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if !m.pending {
		return zero, false
	}
	v := m.value
	m.value = zero
	m.pending = false
	return v, true
}

// Receive waits for a value or for ctx to be done.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	for {
		if v, ok := m.TryReceive(); ok {
			return v, nil
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Pending reports whether a value is waiting to be received.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}
