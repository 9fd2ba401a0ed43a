package pbf

import "fmt"

// StringTable holds the UTF-8 strings referenced by one primitive block.
// Index 0 is reserved for the empty string once the table is initialized.
type StringTable [][]byte

// NewStringTable returns a table holding only the reserved empty string.
func NewStringTable() StringTable {
	return StringTable{[]byte{}}
}

// Get returns the string stored under id.
func (t StringTable) Get(id uint32) (string, error) {
	if int(id) >= len(t) {
		return "", newFormatError("string table", fmt.Errorf("%w: %d >= %d", ErrStringIndex, id, len(t)))
	}
	return string(t[id]), nil
}

// Strings decodes the whole table once so a block decoder can look up ids
// without converting the same bytes repeatedly.
func (t StringTable) Strings() []string {
	out := make([]string, len(t))
	for i, s := range t {
		out[i] = string(s)
	}
	return out
}

// ReverseTable maps strings already placed in a block's StringTable to their
// ids. It lives for the encoding of a single block.
type ReverseTable map[string]uint32

// Encode returns the id of s, appending s to the table when it has not been
// seen in this block yet. The empty string always maps to 0.
func (r ReverseTable) Encode(table *StringTable, s string) uint32 {
	if len(*table) == 0 {
		*table = append(*table, []byte{})
	}
	if s == "" {
		return 0
	}
	if id, ok := r[s]; ok {
		return id
	}

	id := uint32(len(*table))
	*table = append(*table, []byte(s))
	r[s] = id
	return id
}

// lookup resolves ids against a decoded table with bounds checking.
func lookup(strs []string, id int64) (string, error) {
	if id < 0 || id >= int64(len(strs)) {
		return "", newFormatError("string table", fmt.Errorf("%w: %d >= %d", ErrStringIndex, id, len(strs)))
	}
	return strs[id], nil
}
