// Package targetid packs and unpacks the provenance fields that make
// up a catalog-wide unique TARGETID.
//
// Of the 64 bits, the low 60 encode imaging provenance (object within
// brick, brick, imaging release, mock and sky flags); the top 4 are
// reserved. A second, independent packing stamps survey and
// source-class provenance onto externally supplied identifiers.
package targetid

import "fmt"

// Bit layout of the imaging-provenance packing, least significant
// field first.
const (
	ObjIDShift   = 0
	ObjIDBits    = 22
	BrickIDShift = 22
	BrickIDBits  = 20
	ReleaseShift = 42
	ReleaseBits  = 16
	MockShift    = 58
	MockBits     = 1
	SkyShift     = 59
	SkyBits      = 1
)

// FieldError reports a field value that does not fit its allotted bit
// width. Encoding such a value would silently corrupt the identifier,
// so it is always fatal.
type FieldError struct {
	Field string
	Value int64
	Max   int64
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("targetid: %s value %d exceeds maximum %d for its bit width", e.Field, e.Value, e.Max)
}

func checkField(name string, value int64, bits uint) error {
	max := int64(1)<<bits - 1
	if value < 0 || value > max {
		return &FieldError{Field: name, Value: value, Max: max}
	}
	return nil
}

// Encode packs the five provenance fields into a TARGETID.
func Encode(objid, brickid, release, mock, sky int64) (int64, error) {
	if err := checkField("OBJID", objid, ObjIDBits); err != nil {
		return 0, err
	}
	if err := checkField("BRICKID", brickid, BrickIDBits); err != nil {
		return 0, err
	}
	if err := checkField("RELEASE", release, ReleaseBits); err != nil {
		return 0, err
	}
	if err := checkField("MOCK", mock, MockBits); err != nil {
		return 0, err
	}
	if err := checkField("SKY", sky, SkyBits); err != nil {
		return 0, err
	}
	id := objid<<ObjIDShift |
		brickid<<BrickIDShift |
		release<<ReleaseShift |
		mock<<MockShift |
		sky<<SkyShift
	return id, nil
}

// Decode recovers the five provenance fields from a TARGETID.
func Decode(id int64) (objid, brickid, release, mock, sky int64) {
	objid = id >> ObjIDShift & (1<<ObjIDBits - 1)
	brickid = id >> BrickIDShift & (1<<BrickIDBits - 1)
	release = id >> ReleaseShift & (1<<ReleaseBits - 1)
	mock = id >> MockShift & (1<<MockBits - 1)
	sky = id >> SkyShift & (1<<SkyBits - 1)
	return objid, brickid, release, mock, sky
}

// Fields is a batch of provenance columns. Nil slices are treated as
// all-zero; non-nil slices must share one length.
type Fields struct {
	ObjID   []int64
	BrickID []int64
	Release []int64
	Mock    []int64
	Sky     []int64
}

func (f Fields) length() (int, error) {
	n := -1
	for _, col := range [][]int64{f.ObjID, f.BrickID, f.Release, f.Mock, f.Sky} {
		if col == nil {
			continue
		}
		if n == -1 {
			n = len(col)
		} else if len(col) != n {
			return 0, fmt.Errorf("targetid: field columns have mismatched lengths")
		}
	}
	if n == -1 {
		return 0, fmt.Errorf("targetid: no field columns supplied")
	}
	return n, nil
}

func (f Fields) at(col []int64, i int) int64 {
	if col == nil {
		return 0
	}
	return col[i]
}

// EncodeBatch packs a batch of provenance columns into TARGETIDs.
func EncodeBatch(f Fields) ([]int64, error) {
	n, err := f.length()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		id, err := Encode(f.at(f.ObjID, i), f.at(f.BrickID, i), f.at(f.Release, i), f.at(f.Mock, i), f.at(f.Sky, i))
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// DecodeBatch unpacks a batch of TARGETIDs into provenance columns.
func DecodeBatch(ids []int64) Fields {
	f := Fields{
		ObjID:   make([]int64, len(ids)),
		BrickID: make([]int64, len(ids)),
		Release: make([]int64, len(ids)),
		Mock:    make([]int64, len(ids)),
		Sky:     make([]int64, len(ids)),
	}
	for i, id := range ids {
		f.ObjID[i], f.BrickID[i], f.Release[i], f.Mock[i], f.Sky[i] = Decode(id)
	}
	return f
}
