package wire

import (
	"encoding/binary"
	"math"
)

func putFloat64(dst []byte, v float64) {
	binary.BigEndian.PutUint64(dst, math.Float64bits(v))
}

func getFloat64(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}
