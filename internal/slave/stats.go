// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"log/slog"
	"sync/atomic"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
	"github.com/ffutop/modbus-rtu-slave/modbus"
)

// Stats counts server events. It is safe to read while the server runs.
type Stats struct {
	responses    atomic.Int64
	exceptions   atomic.Int64
	ignored      atomic.Int64
	writes       atomic.Int64
	decodeErrors atomic.Int64
	encodeErrors atomic.Int64
	snapshots    atomic.Int64
	rejected     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Responses    int64
	Exceptions   int64
	Ignored      int64
	Writes       int64
	DecodeErrors int64
	EncodeErrors int64
	Snapshots    int64
	Rejected     int64
}

func (s *Stats) SnapshotApplied(*model.RegisterMap) { s.snapshots.Add(1) }
func (s *Stats) SnapshotRejected(error) { s.rejected.Add(1) }
func (s *Stats) DecodeFailed(error) { s.decodeErrors.Add(1) }
func (s *Stats) Ignored(byte, byte) { s.ignored.Add(1) }
func (s *Stats) Exception(byte, modbus.ExceptionCode) { s.exceptions.Add(1) }
func (s *Stats) Responded(byte, int) { s.responses.Add(1) }
func (s *Stats) EncodeFailed(error) { s.encodeErrors.Add(1) }

func (s *Stats) WriteApplied(*model.RegisterMap, model.TableType, uint16, uint16) {
	s.writes.Add(1)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Responses:    s.responses.Load(),
		Exceptions:   s.exceptions.Load(),
		Ignored:      s.ignored.Load(),
		Writes:       s.writes.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		EncodeErrors: s.encodeErrors.Load(),
		Snapshots:    s.snapshots.Load(),
		Rejected:     s.rejected.Load(),
	}
}

// LogValue implements slog.LogValuer.
func (s *Stats) LogValue() slog.Value {
	snap := s.Snapshot()
	return slog.GroupValue(
		slog.Int64("responses", snap.Responses),
		slog.Int64("exceptions", snap.Exceptions),
		slog.Int64("ignored", snap.Ignored),
		slog.Int64("writes", snap.Writes),
		slog.Int64("decode_errors", snap.DecodeErrors),
		slog.Int64("encode_errors", snap.EncodeErrors),
		slog.Int64("snapshots", snap.Snapshots),
		slog.Int64("rejected_snapshots", snap.Rejected),
	)
}
