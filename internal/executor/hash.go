package executor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"

	"github.com/AmirulAndalib/polars/internal/errors"
)

// hashRow hashes one row of the key columns under a canonical encoding:
// a marker byte distinguishes null from any value, strings carry a length
// prefix so adjacent keys cannot run together, and negative float zero
// collapses onto positive zero so equal values hash equally.
func hashRow(digest *xxhash.Digest, keys []arrow.Array, row int) (uint64, error) {
	digest.Reset()
	var buf [8]byte
	for _, key := range keys {
		if key.IsNull(row) {
			_ = digest.WriteByte(0)
			continue
		}
		_ = digest.WriteByte(1)

		switch a := key.(type) {
		case *array.Boolean:
			_ = digest.WriteByte(byte(boolRank(a.Value(row))))
			continue
		case *array.String:
			v := a.Value(row)
			binary.LittleEndian.PutUint64(buf[:], uint64(len(v)))
			_, _ = digest.Write(buf[:])
			_, _ = digest.WriteString(v)
			continue
		}
		if vals, ok := floatValues(key); ok {
			v := vals(row)
			if v == 0 {
				v = 0 // -0.0 and +0.0 compare equal, so they must hash equally
			}
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = digest.Write(buf[:])
			continue
		}
		if vals, ok := signedValues(key); ok {
			binary.LittleEndian.PutUint64(buf[:], uint64(vals(row)))
			_, _ = digest.Write(buf[:])
			continue
		}
		if vals, ok := unsignedValues(key); ok {
			binary.LittleEndian.PutUint64(buf[:], vals(row))
			_, _ = digest.Write(buf[:])
			continue
		}
		return 0, fmt.Errorf("%w: keys of dtype %s are not hashable", errors.ErrCompute, key.DataType())
	}
	return digest.Sum64(), nil
}

// rowsEqual compares one row of the left key columns against one row of the
// right key columns. Two nulls compare equal, which groups null keys
// together; joins never get here with null keys.
func rowsEqual(left []arrow.Array, i int, right []arrow.Array, j int) bool {
	for k := range left {
		ln, rn := left[k].IsNull(i), right[k].IsNull(j)
		if ln != rn {
			return false
		}
		if ln {
			continue
		}
		if !valueEqual(left[k], i, right[k], j) {
			return false
		}
	}
	return true
}

func valueEqual(a arrow.Array, i int, b arrow.Array, j int) bool {
	switch av := a.(type) {
	case *array.Boolean:
		return av.Value(i) == b.(*array.Boolean).Value(j)
	case *array.String:
		return av.Value(i) == b.(*array.String).Value(j)
	}
	if af, ok := floatValues(a); ok {
		bf, _ := floatValues(b)
		return af(i) == bf(j)
	}
	if as, ok := signedValues(a); ok {
		bs, _ := signedValues(b)
		return as(i) == bs(j)
	}
	if au, ok := unsignedValues(a); ok {
		bu, _ := unsignedValues(b)
		return au(i) == bu(j)
	}
	return false
}

// anyNull reports whether any key column is null at the row.
func anyNull(keys []arrow.Array, row int) bool {
	for _, key := range keys {
		if key.IsNull(row) {
			return true
		}
	}
	return false
}
