package pbf

import (
	"fmt"
	"time"

	"github.com/paulmach/osm"
)

// EncoderOptions control the block-wide parameters written by a
// BlockEncoder. Zero values select the format defaults.
type EncoderOptions struct {
	// Dense writes node runs as DenseNodes instead of repeated plain nodes.
	Dense           bool
	Granularity     int32
	DateGranularity int32
	LatOffset       int64
	LonOffset       int64
}

// BlockEncoder turns batches of OSM objects into primitive blocks. It keeps
// no state between calls to Encode other than its options.
type BlockEncoder struct {
	opts    EncoderOptions
	block   *PrimitiveBlock
	strings ReverseTable
}

// NewBlockEncoder returns an encoder for the given options.
func NewBlockEncoder(opts EncoderOptions) *BlockEncoder {
	if opts.Granularity <= 0 {
		opts.Granularity = DefaultGranularity
	}
	if opts.DateGranularity <= 0 {
		opts.DateGranularity = DefaultDateGranularity
	}
	e := &BlockEncoder{opts: opts}
	e.Reset()
	return e
}

// Reset drops the groups and the string table of the block in progress.
func (e *BlockEncoder) Reset() {
	e.block = &PrimitiveBlock{
		StringTable:     NewStringTable(),
		Granularity:     e.opts.Granularity,
		LatOffset:       e.opts.LatOffset,
		LonOffset:       e.opts.LonOffset,
		DateGranularity: e.opts.DateGranularity,
	}
	e.strings = make(ReverseTable)
}

// Encode resets the encoder and fills a new block from objects. Every
// maximal run of objects of the same type becomes one primitive group.
func (e *BlockEncoder) Encode(objects osm.Objects) (*PrimitiveBlock, error) {
	e.Reset()

	for start := 0; start < len(objects); {
		kind := objectType(objects[start])
		end := start + 1
		for end < len(objects) && objectType(objects[end]) == kind {
			end++
		}

		var err error
		switch kind {
		case osm.TypeNode:
			err = e.encodeNodes(objects[start:end])
		case osm.TypeWay:
			err = e.encodeWays(objects[start:end])
		case osm.TypeRelation:
			err = e.encodeRelations(objects[start:end])
		default:
			err = fmt.Errorf("cannot encode object of type %T", objects[start])
		}
		if err != nil {
			return nil, err
		}
		start = end
	}

	return e.block, nil
}

func objectType(o osm.Object) osm.Type {
	switch o.(type) {
	case *osm.Node:
		return osm.TypeNode
	case *osm.Way:
		return osm.TypeWay
	case *osm.Relation:
		return osm.TypeRelation
	}
	return ""
}

func (e *BlockEncoder) str(s string) uint32 {
	return e.strings.Encode(&e.block.StringTable, s)
}

func (e *BlockEncoder) tags(tags osm.Tags) (keys, vals []uint32) {
	if len(tags) == 0 {
		return nil, nil
	}
	keys = make([]uint32, len(tags))
	vals = make([]uint32, len(tags))
	for i, t := range tags {
		keys[i] = e.str(t.Key)
		vals[i] = e.str(t.Value)
	}
	return keys, vals
}

// info builds a fresh Info for every element. All fields are assigned so
// nothing carries over from the previous element.
func (e *BlockEncoder) info(version int, ts time.Time, changeset int64, uid int64, user string, visible bool) *Info {
	return &Info{
		Version:   int32(version),
		Timestamp: EncodeTimestamp(ts, e.opts.DateGranularity),
		Changeset: changeset,
		UID:       int32(uid),
		UserSID:   e.str(user),
		Visible:   visible,
	}
}

func (e *BlockEncoder) encodeNodes(run osm.Objects) error {
	g := &PrimitiveGroup{}
	if e.opts.Dense {
		g.Dense = e.encodeDense(run)
	} else {
		g.Nodes = make([]Node, 0, len(run))
		for _, o := range run {
			n := o.(*osm.Node)
			keys, vals := e.tags(n.Tags)
			g.Nodes = append(g.Nodes, Node{
				ID:   int64(n.ID),
				Keys: keys,
				Vals: vals,
				Info: e.info(n.Version, n.Timestamp, int64(n.ChangesetID), int64(n.UserID), n.User, n.Visible),
				Lat:  EncodeCoordinate(n.Lat, e.opts.LatOffset, e.opts.Granularity),
				Lon:  EncodeCoordinate(n.Lon, e.opts.LonOffset, e.opts.Granularity),
			})
		}
	}
	e.block.Groups = append(e.block.Groups, g)
	return nil
}

func (e *BlockEncoder) encodeDense(run osm.Objects) *DenseNodes {
	size := len(run)
	d := &DenseNodes{
		ID:  make([]int64, 0, size),
		Lat: make([]int64, 0, size),
		Lon: make([]int64, 0, size),
		DenseInfo: &DenseInfo{
			Version:   make([]int32, 0, size),
			Timestamp: make([]int64, 0, size),
			Changeset: make([]int64, 0, size),
			UID:       make([]int32, 0, size),
			UserSID:   make([]int32, 0, size),
			Visible:   make([]bool, 0, size),
		},
	}

	var id, lat, lon, ts, cs, uid, sid deltaEncoder
	di := d.DenseInfo
	for _, o := range run {
		n := o.(*osm.Node)
		d.ID = append(d.ID, id.next(int64(n.ID)))
		d.Lat = append(d.Lat, lat.next(EncodeCoordinate(n.Lat, e.opts.LatOffset, e.opts.Granularity)))
		d.Lon = append(d.Lon, lon.next(EncodeCoordinate(n.Lon, e.opts.LonOffset, e.opts.Granularity)))

		di.Version = append(di.Version, int32(n.Version))
		di.Timestamp = append(di.Timestamp, ts.next(EncodeTimestamp(n.Timestamp, e.opts.DateGranularity)))
		di.Changeset = append(di.Changeset, cs.next(int64(n.ChangesetID)))
		di.UID = append(di.UID, int32(uid.next(int64(n.UserID))))
		di.UserSID = append(di.UserSID, int32(sid.next(int64(e.str(n.User)))))
		di.Visible = append(di.Visible, n.Visible)

		for _, t := range n.Tags {
			d.KeysVals = append(d.KeysVals, int32(e.str(t.Key)), int32(e.str(t.Value)))
		}
		d.KeysVals = append(d.KeysVals, 0)
	}
	return d
}

func (e *BlockEncoder) encodeWays(run osm.Objects) error {
	g := &PrimitiveGroup{Ways: make([]Way, 0, len(run))}
	for _, o := range run {
		w := o.(*osm.Way)
		keys, vals := e.tags(w.Tags)

		var refs []int64
		if len(w.Nodes) > 0 {
			refs = make([]int64, len(w.Nodes))
			var prev deltaEncoder
			for i, wn := range w.Nodes {
				refs[i] = prev.next(int64(wn.ID))
			}
		}

		g.Ways = append(g.Ways, Way{
			ID:   int64(w.ID),
			Keys: keys,
			Vals: vals,
			Info: e.info(w.Version, w.Timestamp, int64(w.ChangesetID), int64(w.UserID), w.User, w.Visible),
			Refs: refs,
		})
	}
	e.block.Groups = append(e.block.Groups, g)
	return nil
}

func (e *BlockEncoder) encodeRelations(run osm.Objects) error {
	g := &PrimitiveGroup{Relations: make([]Relation, 0, len(run))}
	for _, o := range run {
		r := o.(*osm.Relation)
		keys, vals := e.tags(r.Tags)

		rel := Relation{
			ID:   int64(r.ID),
			Keys: keys,
			Vals: vals,
			Info: e.info(r.Version, r.Timestamp, int64(r.ChangesetID), int64(r.UserID), r.User, r.Visible),
		}
		if len(r.Members) > 0 {
			rel.RolesSID = make([]int32, len(r.Members))
			rel.MemIDs = make([]int64, len(r.Members))
			rel.Types = make([]MemberType, len(r.Members))
			var prev deltaEncoder
			for i, m := range r.Members {
				mt, err := memberTypeOf(m.Type)
				if err != nil {
					return fmt.Errorf("relation %d member %d: %w", r.ID, i, err)
				}
				rel.RolesSID[i] = int32(e.str(m.Role))
				rel.MemIDs[i] = prev.next(m.Ref)
				rel.Types[i] = mt
			}
		}
		g.Relations = append(g.Relations, rel)
	}
	e.block.Groups = append(e.block.Groups, g)
	return nil
}

func memberTypeOf(t osm.Type) (MemberType, error) {
	switch t {
	case osm.TypeNode:
		return MemberNode, nil
	case osm.TypeWay:
		return MemberWay, nil
	case osm.TypeRelation:
		return MemberRelation, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrMemberType, t)
}
