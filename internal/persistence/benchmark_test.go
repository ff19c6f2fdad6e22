package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

var benchSizes = model.Sizes{Coils: 2000, DiscreteInputs: 2000, HoldingRegisters: 1000, InputRegisters: 1000}

// BenchmarkMemoryStorage_OnWrite benchmarks the OnWrite hook for MemoryStorage.
func BenchmarkMemoryStorage_OnWrite(b *testing.B) {
	ms := NewMemoryStorage()
	m, _ := ms.Load(benchSizes)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ms.OnWrite(m, model.TableHoldingRegisters, 10, 1)
	}
}

func BenchmarkFileStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_file.bin")
	fs := NewFileStorage(path)
	m, err := fs.Load(benchSizes)
	if err != nil {
		b.Fatalf("Failed to load file storage: %v", err)
	}
	defer fs.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.SetHoldingRegister(10, uint16(i))
		if err := fs.OnWrite(m, model.TableHoldingRegisters, 10, 1); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMmapStorage_OnWrite benchmarks the OnWrite hook for MmapStorage (msync).
func BenchmarkMmapStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap.bin")
	ms := NewMmapStorage(path)
	m, err := ms.Load(benchSizes)
	if err != nil {
		b.Fatalf("Failed to load mmap storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.SetHoldingRegister(10, uint16(i))
		if err := ms.OnWrite(m, model.TableHoldingRegisters, 10, 1); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFileStorage_Load benchmarks the Load operation for FileStorage.
func BenchmarkFileStorage_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_file_load.bin")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fs := NewFileStorage(path)
		if _, err := fs.Load(benchSizes); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		fs.Close()
	}
}

// BenchmarkMmapStorage_Load benchmarks the Load operation for MmapStorage.
// Note: This involves file open, fstat, and mmap system calls.
func BenchmarkMmapStorage_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap_load.bin")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms := NewMmapStorage(path)
		if _, err := ms.Load(benchSizes); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		ms.Close() // Cleanup to allow next Load
	}
}

// BenchmarkRegisterMap_Write benchmarks the pure in-memory write (baseline).
func BenchmarkRegisterMap_Write(b *testing.B) {
	m, _ := model.New(benchSizes)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.WriteSingleRegister(10, uint16(i))
	}
}
