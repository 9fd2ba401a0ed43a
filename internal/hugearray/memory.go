package hugearray

// PageSize is the number of elements in one page of a Memory array.
const PageSize = 1 << 16

// Memory is a heap-resident Array split into fixed-size pages, so growing
// never copies existing elements.
type Memory[T Element] struct {
	pages  [][]T
	length int64
	closed bool
}

// NewMemory returns a zeroed Memory array of n elements.
func NewMemory[T Element](n int64) *Memory[T] {
	m := &Memory[T]{}
	_ = m.Resize(n)
	return m
}

func (m *Memory[T]) Get(i int64) T {
	checkIndex(i, m.length)
	return m.pages[i/PageSize][i%PageSize]
}

func (m *Memory[T]) Set(i int64, v T) {
	checkIndex(i, m.length)
	m.pages[i/PageSize][i%PageSize] = v
}

func (m *Memory[T]) Length() int64 {
	return m.length
}

// Resize adds or drops whole pages. The unused tail of the last page is
// zeroed on shrink so a later grow exposes zeros.
func (m *Memory[T]) Resize(n int64) error {
	if m.closed {
		return ErrClosed
	}
	if n < 0 {
		n = 0
	}

	pages := int((n + PageSize - 1) / PageSize)
	switch {
	case pages > len(m.pages):
		for len(m.pages) < pages {
			m.pages = append(m.pages, make([]T, PageSize))
		}
	case pages < len(m.pages):
		clear(m.pages[pages:])
		m.pages = m.pages[:pages]
	}

	if n < m.length && pages > 0 {
		last := m.pages[pages-1]
		clear(last[n-int64(pages-1)*PageSize:])
	}
	m.length = n
	return nil
}

// Err reports ErrClosed after Close. Heap storage has no other failure.
func (m *Memory[T]) Err() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory[T]) Close() error {
	m.pages = nil
	m.length = 0
	m.closed = true
	return nil
}
