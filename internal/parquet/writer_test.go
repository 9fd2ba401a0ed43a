package parquet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsToJSON(t *testing.T) {
	assert.Equal(t, "{}", TagsToJSON(nil))

	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(TagsToJSON(osm.Tags{{Key: "highway", Value: "primary"}, {Key: "name", Value: "A \"quoted\" road"}})), &m))
	assert.Equal(t, map[string]string{"highway": "primary", "name": "A \"quoted\" road"}, m)
}

func TestGeometryWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ways.parquet")
	w, err := NewGeometryWriter(path, 2)
	require.NoError(t, err)

	rows := []Row{
		{ID: osm.WayID(10).ObjectID(), GeomType: KindLineString, SRID: 4326, Tags: osm.Tags{{Key: "highway", Value: "path"}}, WKB: []byte{1, 2, 3}},
		{ID: osm.WayID(11).ObjectID(), GeomType: KindPolygon, SRID: 4326, WKB: []byte{4, 5}},
		{ID: osm.NodeID(12).ObjectID(), GeomType: KindPoint, SRID: 3857, WKB: []byte{6}},
	}
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	assert.Equal(t, int64(3), w.Rows())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	require.NoError(t, err)
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	require.NoError(t, err)
	tbl, err := reader.ReadTable(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	require.Equal(t, int64(3), tbl.NumRows())
	for i, f := range Schema.Fields() {
		assert.Equal(t, f.Name, tbl.Schema().Field(i).Name)
	}

	ids := tbl.Column(0).Data().Chunks()
	var got []int64
	for _, chunk := range ids {
		got = append(got, chunk.(*array.Int64).Int64Values()...)
	}
	assert.Equal(t, []int64{10, 11, 12}, got)

	var types []string
	for _, chunk := range tbl.Column(1).Data().Chunks() {
		s := chunk.(*array.String)
		for i := 0; i < s.Len(); i++ {
			types = append(types, s.Value(i))
		}
	}
	assert.Equal(t, []string{"way", "way", "node"}, types)

	var geoms [][]byte
	for _, chunk := range tbl.Column(5).Data().Chunks() {
		b := chunk.(*array.Binary)
		for i := 0; i < b.Len(); i++ {
			geoms = append(geoms, append([]byte(nil), b.Value(i)...))
		}
	}
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}, {6}}, geoms)
}

func TestGeometryWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	w, err := NewGeometryWriter(path, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
