package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmhuge/internal/coordindex"
)

func TestInspect(t *testing.T) {
	x, err := coordindex.New(4)
	require.NoError(t, err)
	defer x.Close()

	require.NoError(t, x.Add(2, []coordindex.Coordinate{{Lat: 1.5, Lon: 2.5}, {Lat: 3.5, Lon: 4.5}}))
	require.NoError(t, x.Add(3, []coordindex.Coordinate{{Lat: 5, Lon: 6}}))

	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, x, -1, false))
	assert.Contains(t, buf.String(), "collections: 2\n")
	assert.Contains(t, buf.String(), "coordinates: 3\n")
	assert.Contains(t, buf.String(), "max id:      3\n")

	buf.Reset()
	require.NoError(t, inspect(&buf, x, 2, true))
	assert.Equal(t, "3.5000000 4.5000000\n1.5000000 2.5000000\n", buf.String())

	assert.Error(t, inspect(&buf, x, 1, false))
}
