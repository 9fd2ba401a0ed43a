// Package nodeindex stores one location per node id in a flat array of
// fixed-point int32 pairs. Node coordinates are stored at pair nodeID, so
// lookups are O(1) for any id below Len.
package nodeindex

import (
	"errors"
	"fmt"
	"math"

	"github.com/wegman-software/osmhuge/internal/hugearray"
)

const (
	// coordinates are stored as value * scale
	scale = 1e7

	// DefaultGrowthChunk is the number of node slots added when Put
	// goes past the end of the array.
	DefaultGrowthChunk = 1 << 20

	// MaxNodeID bounds the address space the index will grow into.
	MaxNodeID = 20_000_000_000
)

// ErrNodeID is returned by Put for ids outside [0, MaxNodeID).
var ErrNodeID = errors.New("nodeindex: node id out of range")

// Index maps node ids to locations. A stored (0, 0) reads back as missing.
// An Index is not safe for concurrent use.
type Index struct {
	pairs hugearray.Array[int32]
	chunk int64
}

// New wraps an existing array. Its length must be even.
func New(pairs hugearray.Array[int32]) *Index {
	return &Index{pairs: pairs, chunk: DefaultGrowthChunk}
}

// NewMemory returns a heap-backed index sized for ids up to expectedMaxID.
func NewMemory(expectedMaxID int64) *Index {
	return New(hugearray.NewMemory[int32](slots(expectedMaxID)))
}

// NewMmap returns an index mapped from the file at path, which is
// created or truncated. The file survives Close and can be reopened with
// OpenMmap.
func NewMmap(path string, expectedMaxID int64) (*Index, error) {
	a, err := hugearray.NewMmap[int32](path, slots(expectedMaxID))
	if err != nil {
		return nil, fmt.Errorf("failed to create node index: %w", err)
	}
	return New(a), nil
}

// NewTempMmap returns an index mapped from a temporary file in dir that is
// removed on Close.
func NewTempMmap(dir string, expectedMaxID int64) (*Index, error) {
	a, err := hugearray.NewTempMmap[int32](dir, slots(expectedMaxID))
	if err != nil {
		return nil, fmt.Errorf("failed to create node index: %w", err)
	}
	return New(a), nil
}

// OpenMmap maps an index file written by NewMmap.
func OpenMmap(path string) (*Index, error) {
	a, err := hugearray.OpenMmap[int32](path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node index: %w", err)
	}
	if a.Length()%2 != 0 {
		a.Close()
		return nil, fmt.Errorf("node index %s: odd number of values", path)
	}
	return New(a), nil
}

func slots(maxID int64) int64 {
	if maxID < 0 {
		maxID = 0
	}
	return (maxID + 1) * 2
}

// SetGrowthChunk changes how many node slots a growing Put adds.
func (x *Index) SetGrowthChunk(n int64) {
	if n > 0 {
		x.chunk = n
	}
}

// Len returns the number of node slots, one past the highest addressable id.
func (x *Index) Len() int64 {
	return x.pairs.Length() / 2
}

// Put stores a node's coordinates, growing the array when needed.
func (x *Index) Put(nodeID int64, lat, lon float64) error {
	if nodeID < 0 || nodeID >= MaxNodeID {
		return fmt.Errorf("%w: %d", ErrNodeID, nodeID)
	}
	if nodeID >= x.Len() {
		n := min(nodeID+x.chunk, MaxNodeID)
		if err := x.pairs.Resize(n * 2); err != nil {
			return fmt.Errorf("failed to grow node index to %d: %w", n, err)
		}
	}

	x.pairs.Set(nodeID*2, toFixed(lat))
	x.pairs.Set(nodeID*2+1, toFixed(lon))
	return x.pairs.Err()
}

// Get retrieves a node's coordinates.
// Returns (0, 0, false) if the node doesn't exist.
func (x *Index) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 || nodeID >= x.Len() {
		return 0, 0, false
	}

	latInt := x.pairs.Get(nodeID * 2)
	lonInt := x.pairs.Get(nodeID*2 + 1)
	// (0,0) is a valid location but rare enough to double as "unset"
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}
	return float64(latInt) / scale, float64(lonInt) / scale, true
}

func toFixed(v float64) int32 {
	return int32(math.Round(v * scale))
}

// Sync flushes a file-backed index to disk. It is a no-op for memory.
func (x *Index) Sync() error {
	if f, ok := x.pairs.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close releases the backing array.
func (x *Index) Close() error {
	return x.pairs.Close()
}
