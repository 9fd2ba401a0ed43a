package pbf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObjects(t *testing.T, objects osm.Objects, opts ...Option) []byte {
	t.Helper()

	var buf bytes.Buffer
	target, err := NewTarget(&buf, opts...)
	require.NoError(t, err)
	for _, o := range objects {
		require.NoError(t, target.Add(o))
	}
	require.NoError(t, target.Close())
	assert.Equal(t, int64(buf.Len()), target.BytesWritten())
	return buf.Bytes()
}

func readObjects(t *testing.T, src *Source) osm.Objects {
	t.Helper()

	var objects osm.Objects
	for src.MoveNext() {
		objects = append(objects, src.Current())
	}
	require.NoError(t, src.Err())
	return objects
}

func TestEndToEndScenario(t *testing.T) {
	tags := osm.Tags{{Key: "highway", Value: "residential"}}
	objects := osm.Objects{
		&osm.Node{ID: 1, Lat: 1.1, Lon: 1.2, Tags: tags},
		&osm.Way{ID: 1, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}, Tags: tags},
		&osm.Relation{ID: 1, Tags: tags, Members: osm.Members{
			{Type: osm.TypeNode, Ref: 1, Role: "fake role"},
			{Type: osm.TypeWay, Ref: 1, Role: "fake role"},
		}},
	}

	data := writeObjects(t, objects)
	src, err := NewSource(bytes.NewReader(data))
	require.NoError(t, err)
	defer src.Close()

	got := readObjects(t, src)
	require.Len(t, got, 3)

	n := got[0].(*osm.Node)
	assert.Equal(t, osm.NodeID(1), n.ID)
	assert.InDelta(t, 1.1, n.Lat, 1e-4)
	assert.InDelta(t, 1.2, n.Lon, 1e-4)
	assert.Len(t, n.Tags, 1)

	w := got[1].(*osm.Way)
	assert.Equal(t, osm.WayID(1), w.ID)
	assert.Len(t, w.Tags, 1)
	assert.Equal(t, []osm.NodeID{1, 2}, w.Nodes.NodeIDs())

	r := got[2].(*osm.Relation)
	assert.Equal(t, osm.RelationID(1), r.ID)
	assert.Len(t, r.Tags, 1)
	require.Len(t, r.Members, 2)
	assert.Equal(t, osm.Member{Type: osm.TypeNode, Ref: 1, Role: "fake role"}, r.Members[0])
	assert.Equal(t, osm.Member{Type: osm.TypeWay, Ref: 1, Role: "fake role"}, r.Members[1])
}

func TestSourceTargetRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"defaults", nil},
		{"uncompressed", []Option{WithCompression(false)}},
		{"dense", []Option{WithDenseNodes(true)}},
		{"small blocks", []Option{WithBlockSize(1), WithDenseNodes(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := sampleObjects()
			src, err := NewSource(bytes.NewReader(writeObjects(t, objects, tt.opts...)))
			require.NoError(t, err)
			defer src.Close()

			assertObjectsEqual(t, sampleObjects(), readObjects(t, src))
		})
	}
}

func TestSourceHeader(t *testing.T) {
	bounds := &osm.Bounds{MinLat: 52.3, MaxLat: 52.7, MinLon: 13.0, MaxLon: 13.8}
	data := writeObjects(t, nil, WithBounds(bounds), WithWritingProgram("test-writer"), WithDenseNodes(true))

	src, err := NewSource(bytes.NewReader(data))
	require.NoError(t, err)

	h := src.Header()
	require.NotNil(t, h)
	assert.Equal(t, "test-writer", h.WritingProgram)
	assert.Equal(t, []string{FeatureSchema, FeatureDenseNodes}, h.RequiredFeatures)
	require.NotNil(t, h.Bounds)
	assert.InDelta(t, bounds.MinLat, h.Bounds.MinLat, 1e-9)
	assert.InDelta(t, bounds.MaxLat, h.Bounds.MaxLat, 1e-9)
	assert.InDelta(t, bounds.MinLon, h.Bounds.MinLon, 1e-9)
	assert.InDelta(t, bounds.MaxLon, h.Bounds.MaxLon, 1e-9)

	assert.False(t, src.MoveNext())
	assert.NoError(t, src.Err())
}

func TestSourceHeaderReplication(t *testing.T) {
	repl := Replication{
		Timestamp: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Sequence:  4711,
		BaseURL:   "https://planet.openstreetmap.org/replication/minute",
	}
	data := writeObjects(t, nil, WithReplication(repl), WithHeaderSource("planet"))

	src, err := NewSource(bytes.NewReader(data))
	require.NoError(t, err)

	h := src.Header()
	assert.Equal(t, "planet", h.Source)
	assert.True(t, repl.Timestamp.Equal(h.ReplicationTimestamp))
	assert.Equal(t, repl.Sequence, h.ReplicationSequence)
	assert.Equal(t, repl.BaseURL, h.ReplicationBaseURL)
}

func TestSourceReset(t *testing.T) {
	data := writeObjects(t, sampleObjects(), WithBlockSize(2))
	src, err := NewSource(bytes.NewReader(data))
	require.NoError(t, err)
	defer src.Close()

	require.True(t, src.CanReset())
	first := readObjects(t, src)
	require.Len(t, first, 4)

	require.NoError(t, src.Reset())
	second := readObjects(t, src)
	assert.Equal(t, first, second)
}

func TestSourceResetAfterSeekOffset(t *testing.T) {
	// the Source rewinds to where it started, not to offset 0
	prefix := []byte("junk")
	data := append(append([]byte{}, prefix...), writeObjects(t, sampleObjects())...)

	r := bytes.NewReader(data)
	_, err := r.Seek(int64(len(prefix)), io.SeekStart)
	require.NoError(t, err)

	src, err := NewSource(r)
	require.NoError(t, err)
	require.Len(t, readObjects(t, src), 4)
	require.NoError(t, src.Reset())
	assert.Len(t, readObjects(t, src), 4)
}

func TestSourceNotResettable(t *testing.T) {
	data := writeObjects(t, sampleObjects())
	src, err := NewSource(struct{ io.Reader }{bytes.NewReader(data)})
	require.NoError(t, err)

	assert.False(t, src.CanReset())
	err = src.Reset()
	assert.ErrorIs(t, err, ErrNotResettable)
	assert.False(t, errors.Is(err, io.EOF))

	// the failed reset leaves the source usable
	assert.Len(t, readObjects(t, src), 4)
}

func TestSourceMoveNextTyped(t *testing.T) {
	objects := osm.Objects{
		&osm.Node{ID: 1},
		&osm.Way{ID: 10},
		&osm.Node{ID: 2},
		&osm.Relation{ID: 100},
		&osm.Way{ID: 11},
		&osm.Node{ID: 3},
	}

	for _, blockSize := range []int{1, 2, 3, 100} {
		data := writeObjects(t, objects, WithBlockSize(blockSize))

		src, err := NewSource(bytes.NewReader(data))
		require.NoError(t, err)

		require.True(t, src.MoveNextWay())
		assert.Equal(t, osm.WayID(10), src.Current().(*osm.Way).ID)
		require.True(t, src.MoveNextWay())
		assert.Equal(t, osm.WayID(11), src.Current().(*osm.Way).ID)
		assert.False(t, src.MoveNextWay())
		assert.Nil(t, src.Current())
		require.NoError(t, src.Err())

		require.NoError(t, src.Reset())
		require.True(t, src.MoveNextRelation())
		assert.Equal(t, osm.RelationID(100), src.Current().(*osm.Relation).ID)
		require.True(t, src.MoveNextNode())
		assert.Equal(t, osm.NodeID(3), src.Current().(*osm.Node).ID, "block size %d", blockSize)
		assert.False(t, src.MoveNext())
	}
}

func TestSourceIgnoreOptions(t *testing.T) {
	data := writeObjects(t, sampleObjects(), WithDenseNodes(true))

	tests := []struct {
		name string
		opts []Option
		want []osm.Type
	}{
		{"ignore nodes", []Option{IgnoreNodes()}, []osm.Type{osm.TypeWay, osm.TypeRelation}},
		{"ignore ways", []Option{IgnoreWays()}, []osm.Type{osm.TypeNode, osm.TypeNode, osm.TypeRelation}},
		{"ways only", []Option{IgnoreNodes(), IgnoreRelations()}, []osm.Type{osm.TypeWay}},
		{"ignore all", []Option{IgnoreNodes(), IgnoreWays(), IgnoreRelations()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(bytes.NewReader(data), tt.opts...)
			require.NoError(t, err)

			var got []osm.Type
			for _, o := range readObjects(t, src) {
				got = append(got, objectType(o))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceTruncatedStream(t *testing.T) {
	data := writeObjects(t, sampleObjects())
	src, err := NewSource(bytes.NewReader(data[:len(data)-3]))
	require.NoError(t, err)

	for src.MoveNext() {
	}
	err = src.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSourceRejectsMissingHeader(t *testing.T) {
	var buf bytes.Buffer
	bw, err := newBlobWriter(&buf, false, 0)
	require.NoError(t, err)
	_, err = bw.write(BlobTypeData, nil)
	require.NoError(t, err)

	_, err = NewSource(&buf)
	assert.ErrorIs(t, err, ErrUnexpectedBlob)

	_, err = NewSource(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSourceRejectsUnknownFeature(t *testing.T) {
	var buf bytes.Buffer
	bw, err := newBlobWriter(&buf, false, 0)
	require.NoError(t, err)
	h := &HeaderBlock{RequiredFeatures: []string{FeatureSchema, "Teleportation"}}
	_, err = bw.write(BlobTypeHeader, h.Marshal(nil))
	require.NoError(t, err)

	_, err = NewSource(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}

func TestTargetClosed(t *testing.T) {
	target, err := NewTarget(io.Discard)
	require.NoError(t, err)
	require.NoError(t, target.Close())
	require.NoError(t, target.Close())

	assert.ErrorIs(t, target.AddNode(&osm.Node{ID: 1}), ErrClosed)
	assert.ErrorIs(t, target.Flush(), ErrClosed)
}

func TestTargetRejectsChangeset(t *testing.T) {
	target, err := NewTarget(io.Discard)
	require.NoError(t, err)
	assert.Error(t, target.Add(&osm.Changeset{ID: 1}))
}

// The output must be readable by an independent decoder.
func TestInteropWithOsmpbf(t *testing.T) {
	for _, dense := range []bool{true, false} {
		data := writeObjects(t, sampleObjects(), WithDenseNodes(dense), WithBlockSize(3))

		scanner := osmpbf.New(context.Background(), bytes.NewReader(data), 1)
		var got osm.Objects
		for scanner.Scan() {
			got = append(got, scanner.Object())
		}
		require.NoError(t, scanner.Err())
		require.NoError(t, scanner.Close())

		require.Len(t, got, 4, "dense=%v", dense)
		want := sampleObjects()

		n := got[0].(*osm.Node)
		wn := want[0].(*osm.Node)
		assert.Equal(t, wn.ID, n.ID)
		assert.InDelta(t, wn.Lat, n.Lat, 1e-7)
		assert.InDelta(t, wn.Lon, n.Lon, 1e-7)
		assert.Equal(t, wn.Tags, n.Tags)
		assert.Equal(t, wn.User, n.User)
		assert.Equal(t, wn.Version, n.Version)
		assert.True(t, wn.Timestamp.Equal(n.Timestamp))

		w := got[2].(*osm.Way)
		ww := want[2].(*osm.Way)
		assert.Equal(t, ww.ID, w.ID)
		assert.Equal(t, ww.Nodes.NodeIDs(), w.Nodes.NodeIDs())
		assert.Equal(t, ww.Tags, w.Tags)

		r := got[3].(*osm.Relation)
		wr := want[3].(*osm.Relation)
		assert.Equal(t, wr.ID, r.ID)
		require.Len(t, r.Members, len(wr.Members))
		for i := range wr.Members {
			assert.Equal(t, wr.Members[i].Type, r.Members[i].Type)
			assert.Equal(t, wr.Members[i].Ref, r.Members[i].Ref)
			assert.Equal(t, wr.Members[i].Role, r.Members[i].Role)
		}
	}
}
