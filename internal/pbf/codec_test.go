package pbf

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoordinateQuantization(t *testing.T) {
	tests := []struct {
		name        string
		offset      int64
		granularity int32
	}{
		{"default", 0, DefaultGranularity},
		{"nanodegree", 0, 1},
		{"coarse", 0, 10000},
		{"offset", 123456789, 100},
		{"negative offset", -987654321, 1000},
	}

	rng := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound := float64(tt.granularity) * nanoDegree
			for i := 0; i < 10000; i++ {
				v := rng.Float64()*360 - 180
				raw := EncodeCoordinate(v, tt.offset, tt.granularity)
				got := DecodeCoordinate(raw, tt.offset, tt.granularity)
				if math.Abs(got-v) > bound+1e-12 {
					t.Fatalf("value %v decoded to %v, error %g exceeds %g", v, got, math.Abs(got-v), bound)
				}
			}
		})
	}
}

func TestCoordinateExtremes(t *testing.T) {
	for _, v := range []float64{-180, -90, 0, 90, 180} {
		raw := EncodeCoordinate(v, 0, DefaultGranularity)
		assert.InDelta(t, v, DecodeCoordinate(raw, 0, DefaultGranularity), 1e-7)
	}
}

func TestTimestampCodec(t *testing.T) {
	ts := time.Date(2021, 6, 1, 12, 30, 45, 0, time.UTC)

	raw := EncodeTimestamp(ts, DefaultDateGranularity)
	assert.Equal(t, ts.Unix(), raw)
	assert.Equal(t, ts, DecodeTimestamp(raw, DefaultDateGranularity))

	// coarser granularity truncates
	raw = EncodeTimestamp(ts.Add(700*time.Millisecond), 500)
	assert.Equal(t, ts.Add(500*time.Millisecond), DecodeTimestamp(raw, 500))
}

func TestTimestampZero(t *testing.T) {
	assert.Equal(t, int64(0), EncodeTimestamp(time.Time{}, DefaultDateGranularity))
	assert.True(t, DecodeTimestamp(0, DefaultDateGranularity).IsZero())
}

func TestDeltaCodecNegative(t *testing.T) {
	values := []int64{100, 5, -3, 50, 50, math.MaxInt32, -math.MaxInt32}

	var enc deltaEncoder
	deltas := make([]int64, len(values))
	for i, v := range values {
		deltas[i] = enc.next(v)
	}
	assert.Equal(t, int64(-95), deltas[1])

	var dec deltaDecoder
	for i, d := range deltas {
		assert.Equal(t, values[i], dec.next(d))
	}
}
