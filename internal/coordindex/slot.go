package coordindex

// MaxCollectionSize bounds the length of one collection. Lengths are stored
// modulo this value, so a collection holds at most MaxCollectionSize-1
// coordinates.
const MaxCollectionSize = 65535

// slotRef locates a collection in the coordinate array. slot is the offset
// of the first pair; a zero slotRef means no entry.
type slotRef struct {
	slot   uint64
	length uint32
}

func (r slotRef) pack() uint64 {
	return r.slot*MaxCollectionSize + uint64(r.length)
}

func unpack(v uint64) slotRef {
	return slotRef{slot: v / MaxCollectionSize, length: uint32(v % MaxCollectionSize)}
}

func (r slotRef) empty() bool {
	return r.length == 0
}
