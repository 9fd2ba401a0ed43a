// Package coordindex stores variable-length coordinate sequences for a dense
// range of ids in two flat arrays.
//
// The index array holds one packed slotRef per id. The coordinate array
// holds lat/lon float32 pairs; every collection occupies a contiguous run of
// pairs called a slot. Slots are appended at the end of the used region.
// Replacing a collection with one of a different length abandons the old
// slot; Compress reclaims abandoned slots.
//
// An Index is not safe for concurrent mutation.
package coordindex

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/hugearray"
)

// ErrCollectionTooLarge is returned for collections of MaxCollectionSize or
// more coordinates.
var ErrCollectionTooLarge = errors.New("coordindex: collection too large")

// removed is written over the coordinates of a removed collection.
const removed = -math.MaxFloat32

// Index maps ids to coordinate collections.
type Index struct {
	index  hugearray.Array[uint64]
	coords hugearray.Array[float32]

	// nextIdx is the first unused pair
	nextIdx int64
	maxID   int64

	opts options
}

// New returns an empty index pre-sized for ids up to expectedMaxID.
func New(expectedMaxID int64, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if expectedMaxID < 0 {
		expectedMaxID = 0
	}

	entries := expectedMaxID + 1
	index, err := o.allocator.NewUint64(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate index array: %w", err)
	}
	coords, err := o.allocator.NewFloat32(entries * o.estimatedSize * 2)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to allocate coordinate array: %w", err)
	}

	return &Index{index: index, coords: coords, maxID: -1, opts: o}, nil
}

// MaxID returns the highest id written so far, or -1.
func (x *Index) MaxID() int64 {
	return x.maxID
}

// Len returns the length of the index array.
func (x *Index) Len() int64 {
	return x.index.Length()
}

// UsedPairs returns the number of coordinate pairs in use, live or dead.
func (x *Index) UsedPairs() int64 {
	return x.nextIdx
}

// AllocatedPairs returns the capacity of the coordinate array in pairs.
func (x *Index) AllocatedPairs() int64 {
	return x.coords.Length() / 2
}

func (x *Index) ref(id int64) slotRef {
	if id < 0 || id >= x.index.Length() {
		return slotRef{}
	}
	return unpack(x.index.Get(id))
}

// Get returns a view of the collection stored for id.
func (x *Index) Get(id int64) (Collection, bool) {
	ref := x.ref(id)
	if ref.empty() {
		return Collection{}, false
	}
	return Collection{coords: x.coords, slot: int64(ref.slot), length: int(ref.length)}, true
}

// Set stores coords for id. An empty coords removes the entry.
func (x *Index) Set(id int64, coords []Coordinate) error {
	if len(coords) == 0 {
		x.Remove(id)
		return x.err()
	}
	return x.Add(id, coords)
}

// Add stores coords for id. A collection of the same length as the current
// one is overwritten in place; otherwise the coordinates are appended and
// the old slot is left for Compress.
func (x *Index) Add(id int64, coords []Coordinate) error {
	if id < 0 {
		return fmt.Errorf("coordindex: negative id %d", id)
	}
	if len(coords) == 0 {
		x.Remove(id)
		return x.err()
	}
	if len(coords) >= MaxCollectionSize {
		return fmt.Errorf("%w: %d coordinates for id %d", ErrCollectionTooLarge, len(coords), id)
	}

	if id >= x.index.Length() {
		if err := x.index.Resize(id + 1 + x.opts.growthChunk); err != nil {
			return fmt.Errorf("failed to grow index array: %w", err)
		}
	}

	ref := x.ref(id)
	if ref.length == uint32(len(coords)) {
		x.write(int64(ref.slot), coords)
	} else {
		slot := x.nextIdx
		if err := x.reserve(slot + int64(len(coords))); err != nil {
			return err
		}
		x.write(slot, coords)
		x.index.Set(id, slotRef{slot: uint64(slot), length: uint32(len(coords))}.pack())
		x.nextIdx = slot + int64(len(coords))
	}

	x.maxID = max(x.maxID, id)
	return x.err()
}

// Remove drops the entry for id and overwrites its coordinates with a
// sentinel. It reports whether there was an entry.
func (x *Index) Remove(id int64) bool {
	ref := x.ref(id)
	if ref.empty() {
		return false
	}
	off := int64(ref.slot) * 2
	for i := int64(0); i < int64(ref.length)*2; i++ {
		x.coords.Set(off+i, removed)
	}
	x.index.Set(id, 0)
	x.maxID = max(x.maxID, id)
	return true
}

func (x *Index) write(slot int64, coords []Coordinate) {
	off := slot * 2
	for i, c := range coords {
		x.coords.Set(off+int64(i)*2, c.Lat)
		x.coords.Set(off+int64(i)*2+1, c.Lon)
	}
}

// reserve grows the coordinate array to hold at least pairs pairs.
func (x *Index) reserve(pairs int64) error {
	need := pairs * 2
	have := x.coords.Length()
	if need <= have {
		return nil
	}
	if err := x.coords.Resize(have + max(x.opts.growthChunk, need-have)); err != nil {
		return fmt.Errorf("failed to grow coordinate array: %w", err)
	}
	return nil
}

// copyPairs moves n pairs from slot src to slot dst. dst must not be inside
// (src, src+n) so an ascending copy never reads overwritten data.
func (x *Index) copyPairs(dst, src, n int64) {
	for i := int64(0); i < n*2; i++ {
		x.coords.Set(dst*2+i, x.coords.Get(src*2+i))
	}
}

func (x *Index) err() error {
	return errors.Join(x.index.Err(), x.coords.Err())
}

// Resize changes the length of the index array. Entries at or above size
// are dropped; their coordinates stay until Compress.
func (x *Index) Resize(size int64) error {
	if size < 0 {
		size = 0
	}
	if err := x.index.Resize(size); err != nil {
		return fmt.Errorf("failed to resize index array: %w", err)
	}
	if x.maxID > size-1 {
		x.maxID = size - 1
	}
	return nil
}

// Trim shrinks the index array to MaxID()+1 entries. Coordinates are left
// alone; call Compress to reclaim abandoned slots.
func (x *Index) Trim() error {
	return x.Resize(x.maxID + 1)
}

// Compress rewrites all live collections into one contiguous run starting
// at pair 0 and shrinks the coordinate array to fit.
//
// Live slots are first copied past the used region in id order, then moved
// down. Each move writes the coordinates before the index entry, so an
// error leaves every entry pointing at complete data.
func (x *Index) Compress() error {
	base := x.nextIdx
	next := base
	last := min(x.maxID+1, x.index.Length())

	var live int64
	for id := int64(0); id < last; id++ {
		ref := unpack(x.index.Get(id))
		if ref.empty() {
			continue
		}
		n := int64(ref.length)
		if err := x.reserve(next + n); err != nil {
			// entries moved so far point past base; keep them allocated
			x.nextIdx = next
			return err
		}
		x.copyPairs(next, int64(ref.slot), n)
		x.index.Set(id, slotRef{slot: uint64(next), length: ref.length}.pack())
		next += n
		live++
	}
	x.nextIdx = next
	if err := x.err(); err != nil {
		return err
	}

	for id := int64(0); id < last; id++ {
		ref := unpack(x.index.Get(id))
		if ref.empty() {
			continue
		}
		slot := int64(ref.slot) - base
		x.copyPairs(slot, int64(ref.slot), int64(ref.length))
		x.index.Set(id, slotRef{slot: uint64(slot), length: ref.length}.pack())
	}

	used := next - base
	x.nextIdx = used
	if err := x.coords.Resize(max(used, 1) * 2); err != nil {
		return fmt.Errorf("failed to shrink coordinate array: %w", err)
	}

	x.opts.logger.Debug("compressed coordinate index",
		zap.Int64("collections", live),
		zap.Int64("pairs", used),
		zap.Int64("reclaimed_pairs", base-used))
	return x.err()
}

// Close releases both arrays.
func (x *Index) Close() error {
	return errors.Join(x.index.Close(), x.coords.Close())
}
