package coordindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmhuge/internal/hugearray"
)

func randomIndex(t *testing.T, rng *rand.Rand, n int) (*Index, map[int64][]Coordinate) {
	t.Helper()
	x := newIndex(t, 100)

	want := make(map[int64][]Coordinate, n)
	for len(want) < n {
		id := rng.Int63n(10_000)
		c := make([]Coordinate, rng.Intn(40)+1)
		for i := range c {
			c[i] = Coordinate{Lat: rng.Float32()*180 - 90, Lon: rng.Float32()*360 - 180}
		}
		require.NoError(t, x.Add(id, c))
		want[id] = c
	}
	return x, want
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "index-*.bin")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func assertSameContent(t *testing.T, want map[int64][]Coordinate, maxID int64, x *Index) {
	t.Helper()
	for id := int64(0); id <= maxID; id++ {
		c, ok := x.Get(id)
		w, live := want[id]
		require.Equal(t, live, ok, "id %d", id)
		if live {
			require.Equal(t, w, c.Coordinates(), "id %d", id)
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		copyData bool
		compress bool
		opts     []Option
	}{
		{"stream view", false, false, nil},
		{"copied to memory", true, false, nil},
		{"compressed then copied", true, true, nil},
		{"copied to mmap", true, true, []Option{WithAllocator(MmapAllocator{Dir: os.TempDir()})}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(i + 1)))
			x, want := randomIndex(t, rng, 300)
			// overwrite some entries with other lengths to leave dead slots
			for id := range want {
				if rng.Intn(4) == 0 {
					c := make([]Coordinate, rng.Intn(10)+1)
					for j := range c {
						c[j] = Coordinate{Lat: float32(j), Lon: float32(id)}
					}
					require.NoError(t, x.Add(id, c))
					want[id] = c
				}
			}
			if tt.compress {
				require.NoError(t, x.Compress())
			}
			maxID := x.MaxID()

			f := tempFile(t)
			n, err := x.Serialize(f)
			require.NoError(t, err)
			size, err := f.Seek(0, io.SeekCurrent)
			require.NoError(t, err)
			assert.Equal(t, size, n)
			assert.Equal(t, int64(headerSize+(maxID+1)*8+x.UsedPairs()*8), n)

			_, err = f.Seek(0, io.SeekStart)
			require.NoError(t, err)
			y, err := Deserialize(f, tt.copyData, tt.opts...)
			require.NoError(t, err)
			defer y.Close()

			assert.Equal(t, maxID, y.MaxID())
			assert.Equal(t, x.UsedPairs(), y.UsedPairs())
			assertSameContent(t, want, maxID, y)

			_, ok := y.Get(maxID + 1)
			assert.False(t, ok)
		})
	}
}

func TestSerializeLayout(t *testing.T) {
	x := newIndex(t, 10)
	require.NoError(t, x.Add(1, coords(1.5, -2.5)))

	var buf bytes.Buffer
	n, err := x.Serialize(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	data := buf.Bytes()
	require.Len(t, data, 16+2*8+2*4)
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(data[0:]), "index length is trimmed to maxID+1")
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[8:]), "one coordinate pair")
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[16:]))
	assert.Equal(t, slotRef{slot: 0, length: 1}.pack(), binary.LittleEndian.Uint64(data[24:]))
	assert.Equal(t, []byte{0x00, 0x00, 0xc0, 0x3f}, data[32:36])
	assert.Equal(t, []byte{0x00, 0x00, 0x20, 0xc0}, data[36:40])
}

func TestDeserializeAtOffset(t *testing.T) {
	x := newIndex(t, 3)
	require.NoError(t, x.Add(2, coords(3, 4, 5, 6)))

	f := tempFile(t)
	_, err := f.WriteString("prefix")
	require.NoError(t, err)
	_, err = x.Serialize(f)
	require.NoError(t, err)
	_, err = f.WriteString("suffix")
	require.NoError(t, err)

	_, err = f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	y, err := Deserialize(f, false)
	require.NoError(t, err)
	defer y.Close()

	assert.Equal(t, coords(3, 4, 5, 6), get(t, y, 2))
}

func TestDeserializedViewUpdates(t *testing.T) {
	x := newIndex(t, 3)
	require.NoError(t, x.Add(1, coords(1, 1, 2, 2)))

	f := tempFile(t)
	_, err := x.Serialize(f)
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	y, err := Deserialize(f, false)
	require.NoError(t, err)

	// same length fits the window
	require.NoError(t, y.Add(1, coords(7, 7, 8, 8)))
	// a new slot does not
	err = y.Add(1, coords(1, 1, 2, 2, 3, 3))
	assert.ErrorIs(t, err, hugearray.ErrWindowExceeded)
	assert.Equal(t, coords(7, 7, 8, 8), get(t, y, 1))
	require.NoError(t, y.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	z, err := Deserialize(f, true)
	require.NoError(t, err)
	defer z.Close()
	assert.Equal(t, coords(7, 7, 8, 8), get(t, z, 1), "in-place update reached the file")

	require.NoError(t, z.Add(1, coords(1, 1, 2, 2, 3, 3)), "copied index can grow")
}

func TestDeserializeTruncated(t *testing.T) {
	x := newIndex(t, 3)
	require.NoError(t, x.Add(3, coords(1, 1, 2, 2)))

	f := tempFile(t)
	n, err := x.Serialize(f)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(n-1))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = Deserialize(f, true)
	assert.ErrorContains(t, err, "truncated index")

	require.NoError(t, f.Truncate(8))
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = Deserialize(f, true)
	assert.Error(t, err)
}
