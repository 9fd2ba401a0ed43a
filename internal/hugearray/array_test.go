package hugearray

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factory[T Element] struct {
	name string
	new  func(t *testing.T, n int64) Array[T]
}

func factories[T Element]() []factory[T] {
	return []factory[T]{
		{"memory", func(t *testing.T, n int64) Array[T] {
			return NewMemory[T](n)
		}},
		{"stream", func(t *testing.T, n int64) Array[T] {
			f, err := os.CreateTemp(t.TempDir(), "stream-*.bin")
			require.NoError(t, err)
			s := NewOwnedStream[T](f, 0)
			require.NoError(t, s.Resize(n))
			return s
		}},
		{"window", func(t *testing.T, n int64) Array[T] {
			f, err := os.CreateTemp(t.TempDir(), "window-*.bin")
			require.NoError(t, err)
			t.Cleanup(func() { f.Close() })
			_, err = f.Write([]byte("some header bytes"))
			require.NoError(t, err)
			s := NewStream[T](NewWindow(f, 17, -1), 0)
			require.NoError(t, s.Resize(n))
			return s
		}},
		{"mmap", func(t *testing.T, n int64) Array[T] {
			a, err := NewTempMmap[T](t.TempDir(), n)
			require.NoError(t, err)
			return a
		}},
	}
}

func TestArrayGetSet(t *testing.T) {
	for _, f := range factories[float32]() {
		t.Run(f.name, func(t *testing.T) {
			a := f.new(t, 100_000)
			defer a.Close()

			require.Equal(t, int64(100_000), a.Length())
			for i := int64(0); i < a.Length(); i += 7 {
				a.Set(i, float32(i)/3)
			}
			for i := int64(0); i < a.Length(); i++ {
				want := float32(0)
				if i%7 == 0 {
					want = float32(i) / 3
				}
				if got := a.Get(i); got != want {
					t.Fatalf("index %d: got %v, want %v", i, got, want)
				}
			}
			assert.NoError(t, a.Err())
		})
	}
}

func TestArrayResizeZeroes(t *testing.T) {
	for _, f := range factories[uint64]() {
		t.Run(f.name, func(t *testing.T) {
			a := f.new(t, 10)
			defer a.Close()

			for i := int64(0); i < 10; i++ {
				a.Set(i, uint64(i+1)<<40)
			}

			require.NoError(t, a.Resize(PageSize+5))
			for i := int64(0); i < 10; i++ {
				assert.Equal(t, uint64(i+1)<<40, a.Get(i))
			}
			assert.Equal(t, uint64(0), a.Get(10))
			assert.Equal(t, uint64(0), a.Get(PageSize+4))

			// shrink, then grow over the dropped range
			require.NoError(t, a.Resize(4))
			require.Equal(t, int64(4), a.Length())
			require.NoError(t, a.Resize(12))
			for i := int64(0); i < 4; i++ {
				assert.Equal(t, uint64(i+1)<<40, a.Get(i))
			}
			for i := int64(4); i < 12; i++ {
				assert.Equal(t, uint64(0), a.Get(i), "index %d", i)
			}
			assert.NoError(t, a.Err())
		})
	}
}

func TestArrayResizeToZero(t *testing.T) {
	for _, f := range factories[int32]() {
		t.Run(f.name, func(t *testing.T) {
			a := f.new(t, 3)
			defer a.Close()

			require.NoError(t, a.Resize(0))
			assert.Equal(t, int64(0), a.Length())
			require.NoError(t, a.Resize(2))
			assert.Equal(t, int32(0), a.Get(1))
		})
	}
}

func TestArrayIndexOutOfRange(t *testing.T) {
	for _, f := range factories[int64]() {
		t.Run(f.name, func(t *testing.T) {
			a := f.new(t, 3)
			defer a.Close()

			assert.Panics(t, func() { a.Get(3) })
			assert.Panics(t, func() { a.Set(-1, 1) })
		})
	}
}

func TestArrayClosed(t *testing.T) {
	for _, f := range factories[float64]() {
		t.Run(f.name, func(t *testing.T) {
			a := f.new(t, 3)
			require.NoError(t, a.Close())
			require.NoError(t, a.Close())

			assert.ErrorIs(t, a.Resize(5), ErrClosed)
			assert.ErrorIs(t, a.Err(), ErrClosed)
			assert.Equal(t, int64(0), a.Length())
		})
	}
}

func TestCopy(t *testing.T) {
	src := NewMemory[float64](1000)
	for i := int64(0); i < src.Length(); i++ {
		src.Set(i, float64(i)*1.5)
	}

	for _, f := range factories[float64]() {
		t.Run(f.name, func(t *testing.T) {
			dst := f.new(t, 3)
			defer dst.Close()

			require.NoError(t, Copy[float64](dst, src))
			require.Equal(t, src.Length(), dst.Length())
			for i := int64(0); i < src.Length(); i++ {
				assert.Equal(t, src.Get(i), dst.Get(i))
			}
		})
	}
}

func TestSizeAndEncoding(t *testing.T) {
	assert.Equal(t, 4, Size[int32]())
	assert.Equal(t, 4, Size[float32]())
	assert.Equal(t, 8, Size[uint64]())
	assert.Equal(t, 8, Size[float64]())

	b := make([]byte, 8)
	put(b, float32(-3.25))
	assert.Equal(t, float32(-3.25), get[float32](b))
	put(b, int64(-42))
	assert.Equal(t, int64(-42), get[int64](b))
	put(b, uint32(0xdeadbeef))
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, b[:4])
}

func TestMmapReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coords.bin")

	a, err := NewMmap[float32](path, 4)
	require.NoError(t, err)
	a.Set(0, 1.5)
	a.Set(3, -2.5)
	require.NoError(t, a.Close())

	b, err := OpenMmap[float32](path)
	require.NoError(t, err)
	defer b.Close()

	require.Equal(t, int64(4), b.Length())
	assert.Equal(t, float32(1.5), b.Get(0))
	assert.Equal(t, float32(-2.5), b.Get(3))
	assert.Equal(t, path, b.Path())
}

func TestTempMmapRemovedOnClose(t *testing.T) {
	a, err := NewTempMmap[uint64](t.TempDir(), 0)
	require.NoError(t, err)
	path := a.Path()

	require.NoError(t, a.Resize(10))
	a.Set(9, 7)
	require.NoError(t, a.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
