package pbf

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MemberType is the wire enum of relation member types.
type MemberType int32

const (
	MemberNode MemberType = iota
	MemberWay
	MemberRelation
)

// GroupKind identifies which element list a primitive group carries.
type GroupKind int

const (
	GroupEmpty GroupKind = iota
	GroupNodes
	GroupDense
	GroupWays
	GroupRelations
	GroupChangesets
)

// PrimitiveBlock is the unit of PBF encoding: a string table shared by one or
// more primitive groups plus the block-wide coordinate and date scaling.
type PrimitiveBlock struct {
	StringTable     StringTable
	Groups          []*PrimitiveGroup
	Granularity     int32
	LatOffset       int64
	LonOffset       int64
	DateGranularity int32
}

// PrimitiveGroup holds elements of a single kind.
type PrimitiveGroup struct {
	Nodes     []Node
	Dense     *DenseNodes
	Ways      []Way
	Relations []Relation

	// changesets are counted but never decoded
	changesets int
}

// Kind reports which list the group carries.
func (g *PrimitiveGroup) Kind() GroupKind {
	switch {
	case g.Dense != nil:
		return GroupDense
	case len(g.Nodes) > 0:
		return GroupNodes
	case len(g.Ways) > 0:
		return GroupWays
	case len(g.Relations) > 0:
		return GroupRelations
	case g.changesets > 0:
		return GroupChangesets
	}
	return GroupEmpty
}

// Info is the optional per-element metadata.
type Info struct {
	Version   int32
	Timestamp int64
	Changeset int64
	UID       int32
	UserSID   uint32
	Visible   bool
}

// Node is a non-dense node. Lat and Lon are scaled by the block parameters.
type Node struct {
	ID   int64
	Keys []uint32
	Vals []uint32
	Info *Info
	Lat  int64
	Lon  int64
}

// DenseNodes stores nodes column-wise. ID, Lat, Lon and the DenseInfo
// columns hold deltas exactly as they appear on the wire.
type DenseNodes struct {
	ID        []int64
	DenseInfo *DenseInfo
	Lat       []int64
	Lon       []int64
	KeysVals  []int32
}

// DenseInfo is the column-wise metadata of a dense group.
type DenseInfo struct {
	Version   []int32
	Timestamp []int64
	Changeset []int64
	UID       []int32
	UserSID   []int32
	Visible   []bool
}

// Way references its nodes by delta-encoded ids.
type Way struct {
	ID   int64
	Keys []uint32
	Vals []uint32
	Info *Info
	Refs []int64
}

// Relation lists members as parallel role / delta id / type columns.
type Relation struct {
	ID       int64
	Keys     []uint32
	Vals     []uint32
	Info     *Info
	RolesSID []int32
	MemIDs   []int64
	Types    []MemberType
}

// Field numbers from osmformat.proto.
const (
	fieldBlockStringTable     = 1
	fieldBlockGroup           = 2
	fieldBlockGranularity     = 17
	fieldBlockDateGranularity = 18
	fieldBlockLatOffset       = 19
	fieldBlockLonOffset       = 20

	fieldGroupNodes      = 1
	fieldGroupDense      = 2
	fieldGroupWays       = 3
	fieldGroupRelations  = 4
	fieldGroupChangesets = 5

	fieldStringTableS = 1

	fieldInfoVersion   = 1
	fieldInfoTimestamp = 2
	fieldInfoChangeset = 3
	fieldInfoUID       = 4
	fieldInfoUserSID   = 5
	fieldInfoVisible   = 6

	fieldNodeID   = 1
	fieldNodeKeys = 2
	fieldNodeVals = 3
	fieldNodeInfo = 4
	fieldNodeLat  = 8
	fieldNodeLon  = 9

	fieldDenseID       = 1
	fieldDenseInfo     = 5
	fieldDenseLat      = 8
	fieldDenseLon      = 9
	fieldDenseKeysVals = 10

	fieldWayID   = 1
	fieldWayKeys = 2
	fieldWayVals = 3
	fieldWayInfo = 4
	fieldWayRefs = 8

	fieldRelID       = 1
	fieldRelKeys     = 2
	fieldRelVals     = 3
	fieldRelInfo     = 4
	fieldRelRolesSID = 8
	fieldRelMemIDs   = 9
	fieldRelTypes    = 10
)

// Marshal appends the wire form of the block to dst.
func (b *PrimitiveBlock) Marshal(dst []byte) []byte {
	var st []byte
	for _, s := range b.StringTable {
		st = appendBytesField(st, fieldStringTableS, s)
	}
	dst = appendBytesField(dst, fieldBlockStringTable, st)

	for _, g := range b.Groups {
		dst = appendBytesField(dst, fieldBlockGroup, g.marshal(nil))
	}

	if b.Granularity != 0 && b.Granularity != DefaultGranularity {
		dst = appendVarintField(dst, fieldBlockGranularity, fromInt32(b.Granularity))
	}
	if b.DateGranularity != 0 && b.DateGranularity != DefaultDateGranularity {
		dst = appendVarintField(dst, fieldBlockDateGranularity, fromInt32(b.DateGranularity))
	}
	if b.LatOffset != 0 {
		dst = appendVarintField(dst, fieldBlockLatOffset, uint64(b.LatOffset))
	}
	if b.LonOffset != 0 {
		dst = appendVarintField(dst, fieldBlockLonOffset, uint64(b.LonOffset))
	}
	return dst
}

func (g *PrimitiveGroup) marshal(dst []byte) []byte {
	for i := range g.Nodes {
		dst = appendBytesField(dst, fieldGroupNodes, g.Nodes[i].marshal(nil))
	}
	if g.Dense != nil {
		dst = appendBytesField(dst, fieldGroupDense, g.Dense.marshal(nil))
	}
	for i := range g.Ways {
		dst = appendBytesField(dst, fieldGroupWays, g.Ways[i].marshal(nil))
	}
	for i := range g.Relations {
		dst = appendBytesField(dst, fieldGroupRelations, g.Relations[i].marshal(nil))
	}
	return dst
}

// marshal writes every field unconditionally so a reader never has to fall
// back on proto defaults.
func (in *Info) marshal(dst []byte) []byte {
	dst = appendVarintField(dst, fieldInfoVersion, fromInt32(in.Version))
	dst = appendVarintField(dst, fieldInfoTimestamp, uint64(in.Timestamp))
	dst = appendVarintField(dst, fieldInfoChangeset, uint64(in.Changeset))
	dst = appendVarintField(dst, fieldInfoUID, fromInt32(in.UID))
	dst = appendVarintField(dst, fieldInfoUserSID, uint64(in.UserSID))
	dst = appendBoolField(dst, fieldInfoVisible, in.Visible)
	return dst
}

func (n *Node) marshal(dst []byte) []byte {
	dst = appendSint64Field(dst, fieldNodeID, n.ID)
	dst = appendPacked(dst, fieldNodeKeys, n.Keys, fromUint32)
	dst = appendPacked(dst, fieldNodeVals, n.Vals, fromUint32)
	if n.Info != nil {
		dst = appendBytesField(dst, fieldNodeInfo, n.Info.marshal(nil))
	}
	dst = appendSint64Field(dst, fieldNodeLat, n.Lat)
	dst = appendSint64Field(dst, fieldNodeLon, n.Lon)
	return dst
}

func (d *DenseNodes) marshal(dst []byte) []byte {
	dst = appendPacked(dst, fieldDenseID, d.ID, fromSint64)
	if d.DenseInfo != nil {
		var di []byte
		di = appendPacked(di, 1, d.DenseInfo.Version, fromInt32)
		di = appendPacked(di, 2, d.DenseInfo.Timestamp, fromSint64)
		di = appendPacked(di, 3, d.DenseInfo.Changeset, fromSint64)
		di = appendPacked(di, 4, d.DenseInfo.UID, fromSint32)
		di = appendPacked(di, 5, d.DenseInfo.UserSID, fromSint32)
		di = appendPacked(di, 6, d.DenseInfo.Visible, fromBool)
		dst = appendBytesField(dst, fieldDenseInfo, di)
	}
	dst = appendPacked(dst, fieldDenseLat, d.Lat, fromSint64)
	dst = appendPacked(dst, fieldDenseLon, d.Lon, fromSint64)
	dst = appendPacked(dst, fieldDenseKeysVals, d.KeysVals, fromInt32)
	return dst
}

func (w *Way) marshal(dst []byte) []byte {
	dst = appendVarintField(dst, fieldWayID, uint64(w.ID))
	dst = appendPacked(dst, fieldWayKeys, w.Keys, fromUint32)
	dst = appendPacked(dst, fieldWayVals, w.Vals, fromUint32)
	if w.Info != nil {
		dst = appendBytesField(dst, fieldWayInfo, w.Info.marshal(nil))
	}
	dst = appendPacked(dst, fieldWayRefs, w.Refs, fromSint64)
	return dst
}

func (r *Relation) marshal(dst []byte) []byte {
	dst = appendVarintField(dst, fieldRelID, uint64(r.ID))
	dst = appendPacked(dst, fieldRelKeys, r.Keys, fromUint32)
	dst = appendPacked(dst, fieldRelVals, r.Vals, fromUint32)
	if r.Info != nil {
		dst = appendBytesField(dst, fieldRelInfo, r.Info.marshal(nil))
	}
	dst = appendPacked(dst, fieldRelRolesSID, r.RolesSID, fromInt32)
	dst = appendPacked(dst, fieldRelMemIDs, r.MemIDs, fromSint64)
	dst = appendPacked(dst, fieldRelTypes, r.Types, fromMemberType)
	return dst
}

// GroupFilter decides whether a group of the given kind is decoded at all.
// A nil filter keeps everything.
type GroupFilter func(kind GroupKind) bool

// UnmarshalPrimitiveBlock parses a block. Groups rejected by keep are
// skipped after inspecting their first field, without decoding elements.
func UnmarshalPrimitiveBlock(data []byte, keep GroupFilter) (*PrimitiveBlock, error) {
	b := &PrimitiveBlock{
		Granularity:     DefaultGranularity,
		DateGranularity: DefaultDateGranularity,
	}

	err := forEachField(data, func(f field) error {
		switch f.num {
		case fieldBlockStringTable:
			return forEachField(f.bytes, func(s field) error {
				if s.num == fieldStringTableS {
					b.StringTable = append(b.StringTable, s.bytes)
				}
				return nil
			})
		case fieldBlockGroup:
			if keep != nil && !keep(peekGroupKind(f.bytes)) {
				return nil
			}
			g, err := unmarshalGroup(f.bytes)
			if err != nil {
				return err
			}
			b.Groups = append(b.Groups, g)
		case fieldBlockGranularity:
			b.Granularity = toInt32(f.varint)
		case fieldBlockDateGranularity:
			b.DateGranularity = toInt32(f.varint)
		case fieldBlockLatOffset:
			b.LatOffset = int64(f.varint)
		case fieldBlockLonOffset:
			b.LonOffset = int64(f.varint)
		}
		return nil
	})
	if err != nil {
		return nil, newFormatError("primitive block", err)
	}
	if b.Granularity <= 0 || b.DateGranularity <= 0 {
		return nil, newFormatError("primitive block", fmt.Errorf("%w: granularity %d, date granularity %d", ErrTruncated, b.Granularity, b.DateGranularity))
	}
	return b, nil
}

// peekGroupKind looks at the first field of a group. A group holds a single
// element kind, so this is enough to decide whether to decode it.
func peekGroupKind(data []byte) GroupKind {
	num, _, n := protowire.ConsumeTag(data)
	if n < 0 {
		return GroupEmpty
	}
	switch num {
	case fieldGroupNodes:
		return GroupNodes
	case fieldGroupDense:
		return GroupDense
	case fieldGroupWays:
		return GroupWays
	case fieldGroupRelations:
		return GroupRelations
	case fieldGroupChangesets:
		return GroupChangesets
	}
	return GroupEmpty
}

func unmarshalGroup(data []byte) (*PrimitiveGroup, error) {
	g := &PrimitiveGroup{}
	err := forEachField(data, func(f field) error {
		switch f.num {
		case fieldGroupNodes:
			n, err := unmarshalNode(f.bytes)
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case fieldGroupDense:
			d, err := unmarshalDense(f.bytes)
			if err != nil {
				return err
			}
			g.Dense = d
		case fieldGroupWays:
			w, err := unmarshalWay(f.bytes)
			if err != nil {
				return err
			}
			g.Ways = append(g.Ways, w)
		case fieldGroupRelations:
			r, err := unmarshalRelation(f.bytes)
			if err != nil {
				return err
			}
			g.Relations = append(g.Relations, r)
		case fieldGroupChangesets:
			g.changesets++
		}
		return nil
	})
	return g, err
}

func unmarshalInfo(data []byte) (*Info, error) {
	// visible defaults to true when absent
	in := &Info{Version: -1, Visible: true}
	err := forEachField(data, func(f field) error {
		switch f.num {
		case fieldInfoVersion:
			in.Version = toInt32(f.varint)
		case fieldInfoTimestamp:
			in.Timestamp = int64(f.varint)
		case fieldInfoChangeset:
			in.Changeset = int64(f.varint)
		case fieldInfoUID:
			in.UID = toInt32(f.varint)
		case fieldInfoUserSID:
			in.UserSID = toUint32(f.varint)
		case fieldInfoVisible:
			in.Visible = toBool(f.varint)
		}
		return nil
	})
	return in, err
}

func unmarshalNode(data []byte) (Node, error) {
	var n Node
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case fieldNodeID:
			n.ID = toSint64(f.varint)
		case fieldNodeKeys:
			n.Keys, err = decodePacked(n.Keys, f, toUint32)
		case fieldNodeVals:
			n.Vals, err = decodePacked(n.Vals, f, toUint32)
		case fieldNodeInfo:
			n.Info, err = unmarshalInfo(f.bytes)
		case fieldNodeLat:
			n.Lat = toSint64(f.varint)
		case fieldNodeLon:
			n.Lon = toSint64(f.varint)
		}
		return err
	})
	return n, err
}

func unmarshalDense(data []byte) (*DenseNodes, error) {
	d := &DenseNodes{}
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case fieldDenseID:
			d.ID, err = decodePacked(d.ID, f, toSint64)
		case fieldDenseInfo:
			d.DenseInfo, err = unmarshalDenseInfo(f.bytes)
		case fieldDenseLat:
			d.Lat, err = decodePacked(d.Lat, f, toSint64)
		case fieldDenseLon:
			d.Lon, err = decodePacked(d.Lon, f, toSint64)
		case fieldDenseKeysVals:
			d.KeysVals, err = decodePacked(d.KeysVals, f, toInt32)
		}
		return err
	})
	return d, err
}

func unmarshalDenseInfo(data []byte) (*DenseInfo, error) {
	di := &DenseInfo{}
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			di.Version, err = decodePacked(di.Version, f, toInt32)
		case 2:
			di.Timestamp, err = decodePacked(di.Timestamp, f, toSint64)
		case 3:
			di.Changeset, err = decodePacked(di.Changeset, f, toSint64)
		case 4:
			di.UID, err = decodePacked(di.UID, f, toSint32)
		case 5:
			di.UserSID, err = decodePacked(di.UserSID, f, toSint32)
		case 6:
			di.Visible, err = decodePacked(di.Visible, f, toBool)
		}
		return err
	})
	return di, err
}

func unmarshalWay(data []byte) (Way, error) {
	var w Way
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case fieldWayID:
			w.ID = int64(f.varint)
		case fieldWayKeys:
			w.Keys, err = decodePacked(w.Keys, f, toUint32)
		case fieldWayVals:
			w.Vals, err = decodePacked(w.Vals, f, toUint32)
		case fieldWayInfo:
			w.Info, err = unmarshalInfo(f.bytes)
		case fieldWayRefs:
			w.Refs, err = decodePacked(w.Refs, f, toSint64)
		}
		return err
	})
	return w, err
}

func unmarshalRelation(data []byte) (Relation, error) {
	var r Relation
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case fieldRelID:
			r.ID = int64(f.varint)
		case fieldRelKeys:
			r.Keys, err = decodePacked(r.Keys, f, toUint32)
		case fieldRelVals:
			r.Vals, err = decodePacked(r.Vals, f, toUint32)
		case fieldRelInfo:
			r.Info, err = unmarshalInfo(f.bytes)
		case fieldRelRolesSID:
			r.RolesSID, err = decodePacked(r.RolesSID, f, toInt32)
		case fieldRelMemIDs:
			r.MemIDs, err = decodePacked(r.MemIDs, f, toSint64)
		case fieldRelTypes:
			r.Types, err = decodePacked(r.Types, f, toMemberType)
		}
		return err
	})
	return r, err
}
