package catalog

import (
	"encoding/binary"
	"fmt"
	"math"

	"skycat/internal/targets"
)

// Column kinds used by the fixed-width row codec.
const (
	kindI64 = iota
	kindI32
	kindF64
	kindU64
	kindByte
	kindStr8
	kindStr4
)

type column struct {
	name string
	kind int
}

func (c column) width() int {
	switch c.kind {
	case kindI64, kindF64, kindU64, kindStr8:
		return 8
	case kindI32, kindStr4:
		return 4
	case kindByte:
		return 1
	}
	panic(fmt.Sprintf("catalog: column %s has unknown kind %d", c.name, c.kind))
}

// schema is the column layout of one shard file. Rows are fixed width
// with every numeric field big-endian.
type schema struct {
	survey     targets.Survey
	darkBright bool
	cols       []column
	rowSize    int
}

func newSchema(survey targets.Survey, darkBright bool) *schema {
	cols := []column{
		{"TARGETID", kindI64},
		{"RA", kindF64},
		{"DEC", kindF64},
		{"RELEASE", kindI32},
		{"BRICKID", kindI32},
		{"BRICK_OBJID", kindI32},
		{"BRICKNAME", kindStr8},
		{"MORPHTYPE", kindStr4},
		{"PHOTSYS", kindByte},
	}
	for _, name := range survey.Columns() {
		cols = append(cols, column{name, kindU64})
	}
	cols = append(cols,
		column{"SUBPRIORITY", kindF64},
		column{"OBSCONDITIONS", kindI64},
	)
	if darkBright {
		cols = append(cols,
			column{"PRIORITY_INIT_DARK", kindI64},
			column{"NUMOBS_INIT_DARK", kindI64},
			column{"PRIORITY_INIT_BRIGHT", kindI64},
			column{"NUMOBS_INIT_BRIGHT", kindI64},
		)
	} else {
		cols = append(cols,
			column{"PRIORITY_INIT", kindI64},
			column{"NUMOBS_INIT", kindI64},
		)
	}
	cols = append(cols,
		column{"NUMOBS", kindI32},
		column{"HPXPIXEL", kindI64},
	)

	s := &schema{survey: survey, darkBright: darkBright, cols: cols}
	for _, c := range cols {
		s.rowSize += c.width()
	}
	return s
}

// schemaFromHeader rebuilds the schema a shard was written with and
// verifies the header's column list matches it.
func schemaFromHeader(h *Header) (*schema, error) {
	survey, err := targets.ParseSurvey(h.Survey)
	if err != nil {
		return nil, err
	}
	// The survey tag must agree with the classification columns the
	// file actually carries.
	fromCols, err := targets.DetectSurvey(h.Columns)
	if err != nil {
		return nil, err
	}
	if fromCols != survey {
		return nil, fmt.Errorf("catalog: header survey %s but columns are for %s", survey, fromCols)
	}
	s := newSchema(survey, h.DarkBright)
	if len(h.Columns) != len(s.cols) {
		return nil, fmt.Errorf("catalog: header lists %d columns, layout has %d", len(h.Columns), len(s.cols))
	}
	for i, c := range s.cols {
		if h.Columns[i] != c.name {
			return nil, fmt.Errorf("catalog: header column %d is %s, layout expects %s", i, h.Columns[i], c.name)
		}
	}
	return s, nil
}

func (s *schema) columnNames() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.name
	}
	return names
}

// encode writes one target into buf, which must be rowSize bytes.
func (s *schema) encode(t *targets.Target, buf []byte) {
	words := s.survey.Words(t)
	wi := 0
	off := 0
	for _, c := range s.cols {
		switch c.kind {
		case kindU64:
			binary.BigEndian.PutUint64(buf[off:], words[wi])
			wi++
		case kindI64:
			binary.BigEndian.PutUint64(buf[off:], uint64(s.fieldI64(t, c.name)))
		case kindF64:
			binary.BigEndian.PutUint64(buf[off:], math.Float64bits(s.fieldF64(t, c.name)))
		case kindI32:
			binary.BigEndian.PutUint32(buf[off:], uint32(s.fieldI32(t, c.name)))
		case kindByte:
			buf[off] = t.PhotSys
		case kindStr8:
			putPadded(buf[off:off+8], t.BrickName)
		case kindStr4:
			putPadded(buf[off:off+4], t.MorphType)
		}
		off += c.width()
	}
}

// decode reads one target from buf.
func (s *schema) decode(buf []byte) targets.Target {
	var t targets.Target
	words := make([]uint64, 0, 3)
	off := 0
	for _, c := range s.cols {
		switch c.kind {
		case kindU64:
			words = append(words, binary.BigEndian.Uint64(buf[off:]))
		case kindI64:
			s.setI64(&t, c.name, int64(binary.BigEndian.Uint64(buf[off:])))
		case kindF64:
			s.setF64(&t, c.name, math.Float64frombits(binary.BigEndian.Uint64(buf[off:])))
		case kindI32:
			s.setI32(&t, c.name, int32(binary.BigEndian.Uint32(buf[off:])))
		case kindByte:
			t.PhotSys = buf[off]
		case kindStr8:
			t.BrickName = trimPadded(buf[off : off+8])
		case kindStr4:
			t.MorphType = trimPadded(buf[off : off+4])
		}
		off += c.width()
	}
	if s.survey.Kind == targets.SurveyCmx {
		t.CmxTarget = words[0]
	} else {
		t.DesiTarget, t.BGSTarget, t.MWSTarget = words[0], words[1], words[2]
	}
	return t
}

func (s *schema) fieldI64(t *targets.Target, name string) int64 {
	switch name {
	case "TARGETID":
		return t.TargetID
	case "OBSCONDITIONS":
		return t.ObsConditions
	case "PRIORITY_INIT":
		return t.PriorityInit
	case "NUMOBS_INIT":
		return t.NumObsInit
	case "PRIORITY_INIT_DARK":
		return t.PriorityInitDark
	case "NUMOBS_INIT_DARK":
		return t.NumObsInitDark
	case "PRIORITY_INIT_BRIGHT":
		return t.PriorityInitBright
	case "NUMOBS_INIT_BRIGHT":
		return t.NumObsInitBright
	case "HPXPIXEL":
		return t.HPXPixel
	}
	panic("catalog: unknown int64 column " + name)
}

func (s *schema) setI64(t *targets.Target, name string, v int64) {
	switch name {
	case "TARGETID":
		t.TargetID = v
	case "OBSCONDITIONS":
		t.ObsConditions = v
	case "PRIORITY_INIT":
		t.PriorityInit = v
	case "NUMOBS_INIT":
		t.NumObsInit = v
	case "PRIORITY_INIT_DARK":
		t.PriorityInitDark = v
	case "NUMOBS_INIT_DARK":
		t.NumObsInitDark = v
	case "PRIORITY_INIT_BRIGHT":
		t.PriorityInitBright = v
	case "NUMOBS_INIT_BRIGHT":
		t.NumObsInitBright = v
	case "HPXPIXEL":
		t.HPXPixel = v
	default:
		panic("catalog: unknown int64 column " + name)
	}
}

func (s *schema) fieldF64(t *targets.Target, name string) float64 {
	switch name {
	case "RA":
		return t.RA
	case "DEC":
		return t.Dec
	case "SUBPRIORITY":
		return t.SubPriority
	}
	panic("catalog: unknown float64 column " + name)
}

func (s *schema) setF64(t *targets.Target, name string, v float64) {
	switch name {
	case "RA":
		t.RA = v
	case "DEC":
		t.Dec = v
	case "SUBPRIORITY":
		t.SubPriority = v
	default:
		panic("catalog: unknown float64 column " + name)
	}
}

func (s *schema) fieldI32(t *targets.Target, name string) int32 {
	switch name {
	case "RELEASE":
		return t.Release
	case "BRICKID":
		return t.BrickID
	case "BRICK_OBJID":
		return t.ObjID
	case "NUMOBS":
		return t.NumObs
	}
	panic("catalog: unknown int32 column " + name)
}

func (s *schema) setI32(t *targets.Target, name string, v int32) {
	switch name {
	case "RELEASE":
		t.Release = v
	case "BRICKID":
		t.BrickID = v
	case "BRICK_OBJID":
		t.ObjID = v
	case "NUMOBS":
		t.NumObs = v
	default:
		panic("catalog: unknown int32 column " + name)
	}
}

func putPadded(dst []byte, s string) {
	for i := range dst {
		if i < len(s) {
			dst[i] = s[i]
		} else {
			dst[i] = 0
		}
	}
}

func trimPadded(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
