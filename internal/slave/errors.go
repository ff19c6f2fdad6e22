// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameDecodeFailed marks frames that could not be decoded. No
	// response is sent since the addressed slave is unknown.
	ErrFrameDecodeFailed = errors.New("slave: frame decode failed")
	// ErrResponseEncodeFailed marks responses that could not be written to
	// the output buffer. Nothing should be transmitted.
	ErrResponseEncodeFailed = errors.New("slave: response encode failed")
	// ErrSnapshotMismatch is reported when a published register map does not
	// have the sizes the server was built with.
	ErrSnapshotMismatch = errors.New("slave: snapshot sizes do not match")
)

// DispatchError is returned by ProcessFrame. Kind is one of
// ErrFrameDecodeFailed or ErrResponseEncodeFailed; Err is the cause.
// Neither is fatal: the caller logs it and moves on to the next frame.
type DispatchError struct {
	Kind         error
	SlaveID      byte
	FunctionCode byte
	Err          error
}

func (e *DispatchError) Error() string {
	if errors.Is(e.Kind, ErrResponseEncodeFailed) {
		return fmt.Sprintf("%v (slave %d, function 0x%02X): %v", e.Kind, e.SlaveID, e.FunctionCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
