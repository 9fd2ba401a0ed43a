package pbf

import (
	"fmt"

	"github.com/paulmach/osm"
)

// DecodeBlock converts a primitive block into OSM objects in wire order.
// Groups rejected by keep are skipped. The returned flag reports whether
// anything was decoded; an empty block is not an error.
func DecodeBlock(block *PrimitiveBlock, keep GroupFilter) (osm.Objects, bool, error) {
	d := newBlockDecoder(block)

	var objects osm.Objects
	for _, g := range block.Groups {
		if keep != nil && !keep(g.Kind()) {
			continue
		}
		var err error
		if objects, err = d.group(objects, g); err != nil {
			return nil, false, err
		}
	}
	return objects, len(objects) > 0, nil
}

type blockDecoder struct {
	block *PrimitiveBlock
	strs  []string
}

func newBlockDecoder(block *PrimitiveBlock) *blockDecoder {
	return &blockDecoder{block: block, strs: block.StringTable.Strings()}
}

// group appends the objects of one group to objects.
func (d *blockDecoder) group(objects osm.Objects, g *PrimitiveGroup) (osm.Objects, error) {
	switch g.Kind() {
	case GroupDense:
		return d.dense(objects, g.Dense)
	case GroupNodes:
		return d.nodes(objects, g.Nodes)
	case GroupWays:
		return d.ways(objects, g.Ways)
	case GroupRelations:
		return d.relations(objects, g.Relations)
	}
	return objects, nil
}

func (d *blockDecoder) str(id int64) (string, error) {
	if len(d.strs) == 0 {
		return "", newFormatError("decode", ErrMissingStringTable)
	}
	return lookup(d.strs, id)
}

// user resolves a user name. Id 0 is the empty name and needs no table.
func (d *blockDecoder) user(sid int64) (string, error) {
	if sid == 0 {
		return "", nil
	}
	return d.str(sid)
}

func (d *blockDecoder) tags(keys, vals []uint32) (osm.Tags, error) {
	if len(keys) != len(vals) {
		return nil, newFormatError("decode", fmt.Errorf("%w: %d keys, %d vals", ErrTagLength, len(keys), len(vals)))
	}
	if len(keys) == 0 {
		return nil, nil
	}
	tags := make(osm.Tags, len(keys))
	for i := range keys {
		k, err := d.str(int64(keys[i]))
		if err != nil {
			return nil, err
		}
		v, err := d.str(int64(vals[i]))
		if err != nil {
			return nil, err
		}
		tags[i] = osm.Tag{Key: k, Value: v}
	}
	return tags, nil
}

func (d *blockDecoder) lat(raw int64) float64 {
	return DecodeCoordinate(raw, d.block.LatOffset, d.block.Granularity)
}

func (d *blockDecoder) lon(raw int64) float64 {
	return DecodeCoordinate(raw, d.block.LonOffset, d.block.Granularity)
}

// meta is the decoded form of Info shared by all element kinds.
type meta struct {
	version   int
	changeset osm.ChangesetID
	uid       osm.UserID
	user      string
	visible   bool
	timestamp int64
}

func (d *blockDecoder) meta(in *Info) (meta, error) {
	if in == nil {
		return meta{visible: true}, nil
	}
	user, err := d.user(int64(in.UserSID))
	if err != nil {
		return meta{}, err
	}
	m := meta{
		changeset: osm.ChangesetID(in.Changeset),
		uid:       osm.UserID(in.UID),
		user:      user,
		visible:   in.Visible,
		timestamp: in.Timestamp,
	}
	if in.Version > 0 {
		m.version = int(in.Version)
	}
	return m, nil
}

func (d *blockDecoder) nodes(objects osm.Objects, nodes []Node) (osm.Objects, error) {
	for i := range nodes {
		n := &nodes[i]
		tags, err := d.tags(n.Keys, n.Vals)
		if err != nil {
			return nil, err
		}
		m, err := d.meta(n.Info)
		if err != nil {
			return nil, err
		}
		objects = append(objects, &osm.Node{
			ID:          osm.NodeID(n.ID),
			Lat:         d.lat(n.Lat),
			Lon:         d.lon(n.Lon),
			User:        m.user,
			UserID:      m.uid,
			Visible:     m.visible,
			Version:     m.version,
			ChangesetID: m.changeset,
			Timestamp:   DecodeTimestamp(m.timestamp, d.block.DateGranularity),
			Tags:        tags,
		})
	}
	return objects, nil
}

func (d *blockDecoder) dense(objects osm.Objects, dn *DenseNodes) (osm.Objects, error) {
	size := len(dn.ID)
	if len(dn.Lat) != size || len(dn.Lon) != size {
		return nil, newFormatError("dense nodes", fmt.Errorf("%w: id %d, lat %d, lon %d", ErrDenseLength, size, len(dn.Lat), len(dn.Lon)))
	}
	di := dn.DenseInfo
	if di != nil {
		for _, l := range []int{len(di.Version), len(di.Timestamp), len(di.Changeset), len(di.UID), len(di.UserSID), len(di.Visible)} {
			if l != 0 && l != size {
				return nil, newFormatError("dense info", fmt.Errorf("%w: column of %d for %d nodes", ErrDenseLength, l, size))
			}
		}
	}

	var id, lat, lon, ts, cs, uid, sid deltaDecoder
	kv := dn.KeysVals
	hasTags := len(kv) > 0
	for i := 0; i < size; i++ {
		n := &osm.Node{
			ID:      osm.NodeID(id.next(dn.ID[i])),
			Lat:     d.lat(lat.next(dn.Lat[i])),
			Lon:     d.lon(lon.next(dn.Lon[i])),
			Visible: true,
		}

		if di != nil {
			if len(di.Version) > 0 && di.Version[i] > 0 {
				n.Version = int(di.Version[i])
			}
			if len(di.Timestamp) > 0 {
				n.Timestamp = DecodeTimestamp(ts.next(di.Timestamp[i]), d.block.DateGranularity)
			}
			if len(di.Changeset) > 0 {
				n.ChangesetID = osm.ChangesetID(cs.next(di.Changeset[i]))
			}
			if len(di.UID) > 0 {
				n.UserID = osm.UserID(uid.next(int64(di.UID[i])))
			}
			if len(di.UserSID) > 0 {
				user, err := d.user(sid.next(int64(di.UserSID[i])))
				if err != nil {
					return nil, err
				}
				n.User = user
			}
			if len(di.Visible) > 0 {
				n.Visible = di.Visible[i]
			}
		}

		if hasTags {
			var err error
			n.Tags, kv, err = d.denseTags(kv)
			if err != nil {
				return nil, err
			}
		}
		objects = append(objects, n)
	}
	return objects, nil
}

// denseTags consumes one node's key/value ids up to and including the 0
// terminator and returns the remainder.
func (d *blockDecoder) denseTags(kv []int32) (osm.Tags, []int32, error) {
	var tags osm.Tags
	for {
		if len(kv) == 0 {
			return nil, nil, newFormatError("dense nodes", ErrKeysVals)
		}
		if kv[0] == 0 {
			return tags, kv[1:], nil
		}
		if len(kv) < 2 {
			return nil, nil, newFormatError("dense nodes", ErrKeysVals)
		}
		k, err := d.str(int64(kv[0]))
		if err != nil {
			return nil, nil, err
		}
		v, err := d.str(int64(kv[1]))
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, osm.Tag{Key: k, Value: v})
		kv = kv[2:]
	}
}

func (d *blockDecoder) ways(objects osm.Objects, ways []Way) (osm.Objects, error) {
	for i := range ways {
		w := &ways[i]
		tags, err := d.tags(w.Keys, w.Vals)
		if err != nil {
			return nil, err
		}
		m, err := d.meta(w.Info)
		if err != nil {
			return nil, err
		}

		var nodes osm.WayNodes
		if len(w.Refs) > 0 {
			nodes = make(osm.WayNodes, len(w.Refs))
			var ref deltaDecoder
			for j, delta := range w.Refs {
				nodes[j] = osm.WayNode{ID: osm.NodeID(ref.next(delta))}
			}
		}

		objects = append(objects, &osm.Way{
			ID:          osm.WayID(w.ID),
			User:        m.user,
			UserID:      m.uid,
			Visible:     m.visible,
			Version:     m.version,
			ChangesetID: m.changeset,
			Timestamp:   DecodeTimestamp(m.timestamp, d.block.DateGranularity),
			Nodes:       nodes,
			Tags:        tags,
		})
	}
	return objects, nil
}

func (d *blockDecoder) relations(objects osm.Objects, rels []Relation) (osm.Objects, error) {
	for i := range rels {
		r := &rels[i]
		tags, err := d.tags(r.Keys, r.Vals)
		if err != nil {
			return nil, err
		}
		m, err := d.meta(r.Info)
		if err != nil {
			return nil, err
		}

		if len(r.RolesSID) != len(r.MemIDs) || len(r.MemIDs) != len(r.Types) {
			return nil, newFormatError("relation", fmt.Errorf("%w: roles %d, ids %d, types %d",
				ErrMemberLength, len(r.RolesSID), len(r.MemIDs), len(r.Types)))
		}

		var members osm.Members
		if len(r.MemIDs) > 0 {
			members = make(osm.Members, len(r.MemIDs))
			var ref deltaDecoder
			for j := range r.MemIDs {
				role, err := d.str(int64(r.RolesSID[j]))
				if err != nil {
					return nil, err
				}
				t, err := osmType(r.Types[j])
				if err != nil {
					return nil, err
				}
				members[j] = osm.Member{Type: t, Ref: ref.next(r.MemIDs[j]), Role: role}
			}
		}

		objects = append(objects, &osm.Relation{
			ID:          osm.RelationID(r.ID),
			User:        m.user,
			UserID:      m.uid,
			Visible:     m.visible,
			Version:     m.version,
			ChangesetID: m.changeset,
			Timestamp:   DecodeTimestamp(m.timestamp, d.block.DateGranularity),
			Tags:        tags,
			Members:     members,
		})
	}
	return objects, nil
}

func osmType(t MemberType) (osm.Type, error) {
	switch t {
	case MemberNode:
		return osm.TypeNode, nil
	case MemberWay:
		return osm.TypeWay, nil
	case MemberRelation:
		return osm.TypeRelation, nil
	}
	return "", newFormatError("relation", fmt.Errorf("%w: %d", ErrMemberType, t))
}
