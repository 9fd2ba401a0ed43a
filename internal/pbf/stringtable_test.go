package pbf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseTableDedup(t *testing.T) {
	var table StringTable
	rev := make(ReverseTable)

	first := rev.Encode(&table, "highway")
	size := len(table)
	second := rev.Encode(&table, "highway")

	assert.Equal(t, first, second)
	assert.Equal(t, size, len(table), "repeated string must not grow the table")
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, 2, len(table))
}

func TestReverseTableEmptyString(t *testing.T) {
	var table StringTable
	rev := make(ReverseTable)

	assert.Equal(t, uint32(0), rev.Encode(&table, ""))
	require.Len(t, table, 1, "empty string initializes index 0")
	assert.Empty(t, table[0])

	id := rev.Encode(&table, "name")
	got, err := table.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "name", got)
}

func TestStringTableGetOutOfRange(t *testing.T) {
	table := NewStringTable()

	_, err := table.Get(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStringIndex))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "string table", fe.Op)
}

func TestStringTableUTF8(t *testing.T) {
	var table StringTable
	rev := make(ReverseTable)
	id := rev.Encode(&table, "Straße")

	got, err := table.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Straße", got)
	assert.Equal(t, []string{"", "Straße"}, table.Strings())
}
