package coordindex

import "github.com/wegman-software/osmhuge/internal/hugearray"

// Allocator creates the two arrays backing an Index.
type Allocator interface {
	NewUint64(n int64) (hugearray.Array[uint64], error)
	NewFloat32(n int64) (hugearray.Array[float32], error)
}

// MemoryAllocator keeps both arrays on the heap.
type MemoryAllocator struct{}

func (MemoryAllocator) NewUint64(n int64) (hugearray.Array[uint64], error) {
	return hugearray.NewMemory[uint64](n), nil
}

func (MemoryAllocator) NewFloat32(n int64) (hugearray.Array[float32], error) {
	return hugearray.NewMemory[float32](n), nil
}

// MmapAllocator maps both arrays from temporary files in Dir, which are
// removed when the index is closed. An empty Dir uses os.TempDir.
type MmapAllocator struct {
	Dir string
}

func (a MmapAllocator) NewUint64(n int64) (hugearray.Array[uint64], error) {
	return hugearray.NewTempMmap[uint64](a.Dir, n)
}

func (a MmapAllocator) NewFloat32(n int64) (hugearray.Array[float32], error) {
	return hugearray.NewTempMmap[float32](a.Dir, n)
}
