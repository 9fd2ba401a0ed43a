package hugearray

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "window-*.bin")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return f
}

func TestWindowReadCapped(t *testing.T) {
	f := tempFile(t, "0123456789")
	w := NewWindow(f, 2, 5)

	data, err := io.ReadAll(w)
	require.NoError(t, err)
	assert.Equal(t, "23456", string(data))

	buf := make([]byte, 4)
	n, err := w.ReadAt(buf, 3)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "56", string(buf[:n]))

	end, err := w.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(5), end)
}

func TestWindowWriteExceeded(t *testing.T) {
	f := tempFile(t, "..........")
	w := NewWindow(f, 2, 4)

	n, err := w.Write([]byte("abcdef"))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, ErrWindowExceeded)

	n, err = w.Write([]byte("x"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrWindowExceeded)

	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "..abcd....", string(raw), "bytes past the limit must stay untouched")
}

func TestWindowUnbounded(t *testing.T) {
	f := tempFile(t, "head")
	w := NewWindow(f, 4, -1)
	assert.Equal(t, int64(-1), w.Limit())
	assert.Equal(t, int64(4), w.Offset())

	_, err := w.Write([]byte("tail"))
	require.NoError(t, err)

	end, err := w.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), end)

	_, err = w.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err := io.ReadAll(w)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, err = w.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestStreamOverCappedWindow(t *testing.T) {
	f := tempFile(t, "")
	require.NoError(t, f.Truncate(64))

	s := NewStream[uint64](NewWindow(f, 16, 32), 4)
	for i := int64(0); i < 4; i++ {
		s.Set(i, uint64(100+i))
	}
	require.NoError(t, s.Flush())

	err := s.Resize(5)
	assert.ErrorIs(t, err, ErrWindowExceeded)
	assert.Equal(t, int64(4), s.Length())

	reread := NewStream[uint64](NewWindow(f, 16, 32), 4)
	for i := int64(0); i < 4; i++ {
		assert.Equal(t, uint64(100+i), reread.Get(i))
	}
	require.NoError(t, reread.Close())
	require.NoError(t, s.Close())
}

func TestStreamStickyError(t *testing.T) {
	f := tempFile(t, "")
	s := NewStream[int32](NewWindow(f, 0, 8), 4)
	require.NoError(t, f.Close())

	assert.Equal(t, int32(0), s.Get(1))
	require.Error(t, s.Err())
	s.Set(2, 5)
	assert.Error(t, s.Resize(8))
	assert.Error(t, s.Close())
}
