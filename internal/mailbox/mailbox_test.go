// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryReceive_Empty(t *testing.T) {
	box := New[int]()
	_, ok := box.TryReceive()
	assert.False(t, ok)
	assert.False(t, box.Pending())
}

func TestPublish_Overwrites(t *testing.T) {
	box := New[string]()
	box.Publish("first")
	box.Publish("second")
	assert.True(t, box.Pending())

	v, ok := box.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok = box.TryReceive()
	assert.False(t, ok, "slot must be empty after the single pending value is taken")
}

func TestReceive_BlocksUntilPublish(t *testing.T) {
	box := New[int]()
	got := make(chan int, 1)
	go func() {
		v, err := box.Receive(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	box.Publish(7)
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestReceive_StaleTokenDoesNotReturnZero(t *testing.T) {
	box := New[int]()
	box.Publish(1)
	v, ok := box.TryReceive()
	require.True(t, ok)
	require.Equal(t, 1, v)

	// The wake-up token from the first Publish is still buffered.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := box.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceive_Cancelled(t *testing.T) {
	box := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := box.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentPublishers(t *testing.T) {
	box := New[int]()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			box.Publish(v)
		}(i)
	}
	wg.Wait()

	v, ok := box.TryReceive()
	require.True(t, ok)
	assert.True(t, v >= 1 && v <= 50)
	_, ok = box.TryReceive()
	assert.False(t, ok)
}
