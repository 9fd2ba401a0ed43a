package pbf

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/osm"
)

// Features understood by this package.
const (
	FeatureSchema     = "OsmSchema-V0.6"
	FeatureDenseNodes = "DenseNodes"
	FeatureHistorical = "HistoricalInformation"
)

var knownFeatures = map[string]bool{
	FeatureSchema:     true,
	FeatureDenseNodes: true,
	FeatureHistorical: true,
}

// HeaderBlock is the payload of the leading OSMHeader blob.
type HeaderBlock struct {
	Bounds               *osm.Bounds
	RequiredFeatures     []string
	OptionalFeatures     []string
	WritingProgram       string
	Source               string
	ReplicationTimestamp time.Time
	ReplicationSequence  int64
	ReplicationBaseURL   string
}

const (
	fieldHeaderBBox           = 1
	fieldHeaderRequired       = 4
	fieldHeaderOptional       = 5
	fieldHeaderWritingProgram = 16
	fieldHeaderSource         = 17
	fieldHeaderReplTimestamp  = 32
	fieldHeaderReplSequence   = 33
	fieldHeaderReplBaseURL    = 34
)

// Marshal appends the wire form of the header to dst.
func (h *HeaderBlock) Marshal(dst []byte) []byte {
	if h.Bounds != nil {
		var bb []byte
		bb = appendSint64Field(bb, 1, int64(math.Round(h.Bounds.MinLon/nanoDegree)))
		bb = appendSint64Field(bb, 2, int64(math.Round(h.Bounds.MaxLon/nanoDegree)))
		bb = appendSint64Field(bb, 3, int64(math.Round(h.Bounds.MaxLat/nanoDegree)))
		bb = appendSint64Field(bb, 4, int64(math.Round(h.Bounds.MinLat/nanoDegree)))
		dst = appendBytesField(dst, fieldHeaderBBox, bb)
	}
	for _, f := range h.RequiredFeatures {
		dst = appendStringField(dst, fieldHeaderRequired, f)
	}
	for _, f := range h.OptionalFeatures {
		dst = appendStringField(dst, fieldHeaderOptional, f)
	}
	if h.WritingProgram != "" {
		dst = appendStringField(dst, fieldHeaderWritingProgram, h.WritingProgram)
	}
	if h.Source != "" {
		dst = appendStringField(dst, fieldHeaderSource, h.Source)
	}
	if !h.ReplicationTimestamp.IsZero() {
		dst = appendVarintField(dst, fieldHeaderReplTimestamp, uint64(h.ReplicationTimestamp.Unix()))
	}
	if h.ReplicationSequence != 0 {
		dst = appendVarintField(dst, fieldHeaderReplSequence, uint64(h.ReplicationSequence))
	}
	if h.ReplicationBaseURL != "" {
		dst = appendStringField(dst, fieldHeaderReplBaseURL, h.ReplicationBaseURL)
	}
	return dst
}

// UnmarshalHeaderBlock parses a header and rejects required features this
// package cannot honor.
func UnmarshalHeaderBlock(data []byte) (*HeaderBlock, error) {
	h := &HeaderBlock{}
	err := forEachField(data, func(f field) error {
		switch f.num {
		case fieldHeaderBBox:
			b := &osm.Bounds{}
			err := forEachField(f.bytes, func(bf field) error {
				v := float64(toSint64(bf.varint)) * nanoDegree
				switch bf.num {
				case 1:
					b.MinLon = v
				case 2:
					b.MaxLon = v
				case 3:
					b.MaxLat = v
				case 4:
					b.MinLat = v
				}
				return nil
			})
			if err != nil {
				return err
			}
			h.Bounds = b
		case fieldHeaderRequired:
			h.RequiredFeatures = append(h.RequiredFeatures, string(f.bytes))
		case fieldHeaderOptional:
			h.OptionalFeatures = append(h.OptionalFeatures, string(f.bytes))
		case fieldHeaderWritingProgram:
			h.WritingProgram = string(f.bytes)
		case fieldHeaderSource:
			h.Source = string(f.bytes)
		case fieldHeaderReplTimestamp:
			h.ReplicationTimestamp = time.Unix(int64(f.varint), 0).UTC()
		case fieldHeaderReplSequence:
			h.ReplicationSequence = int64(f.varint)
		case fieldHeaderReplBaseURL:
			h.ReplicationBaseURL = string(f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, newFormatError("header block", err)
	}

	for _, feature := range h.RequiredFeatures {
		if !knownFeatures[feature] {
			return nil, newFormatError("header block", fmt.Errorf("%w: %s", ErrUnsupportedFeature, feature))
		}
	}
	return h, nil
}
