package coordindex

import (
	"iter"

	"github.com/wegman-software/osmhuge/internal/hugearray"
)

// Coordinate is one stored latitude/longitude pair.
type Coordinate struct {
	Lat float32
	Lon float32
}

// Collection is a read-only view of the coordinates stored for one id. It
// holds no cursor, so a Collection can be iterated any number of times and
// by several goroutines at once as long as the backing array supports
// concurrent reads and nobody writes to the index meanwhile.
//
// A Collection reads through to the index; it sees later in-place updates
// and must not be used after the slot was moved by Add, Compress or Close.
type Collection struct {
	coords   hugearray.Array[float32]
	slot     int64
	length   int
	reversed bool
}

// Len returns the number of coordinates.
func (c Collection) Len() int {
	return c.length
}

// At returns the i-th coordinate in iteration order.
func (c Collection) At(i int) Coordinate {
	if i < 0 || i >= c.length {
		panic("coordindex: collection index out of range")
	}
	if c.reversed {
		i = c.length - 1 - i
	}
	off := (c.slot + int64(i)) * 2
	return Coordinate{Lat: c.coords.Get(off), Lon: c.coords.Get(off + 1)}
}

// Reverse returns a view iterating the same coordinates backwards.
func (c Collection) Reverse() Collection {
	c.reversed = !c.reversed
	return c
}

// All yields the coordinates in order.
func (c Collection) All() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		for i := 0; i < c.length; i++ {
			if !yield(c.At(i)) {
				return
			}
		}
	}
}

// Coordinates copies the view into a new slice.
func (c Collection) Coordinates() []Coordinate {
	out := make([]Coordinate, c.length)
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}
