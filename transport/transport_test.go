// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialize(t *testing.T) {
	var active, maxActive, calls int
	var mu sync.Mutex
	h := Serialize(FrameHandlerFunc(func(input, output []byte) (bool, int, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		calls++
		mu.Unlock()

		n := copy(output, input)

		mu.Lock()
		active--
		mu.Unlock()
		return true, n, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			out := make([]byte, 4)
			ok, n, err := h.HandleFrame([]byte{b}, out)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, n)
			assert.Equal(t, b, out[0])
		}(byte(i))
	}
	wg.Wait()

	assert.Equal(t, 16, calls)
	assert.Equal(t, 1, maxActive)
}
