package targets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"skycat/internal/bitmask"
)

// SurveyKind distinguishes the survey generations a batch can belong
// to.
type SurveyKind int

const (
	SurveyMain SurveyKind = iota
	SurveyCmx
	SurveySV
)

// Survey tags a batch with its generation, resolved once from the
// classification columns present instead of re-sniffing names on
// every operation.
type Survey struct {
	Kind SurveyKind
	Gen  int // SV generation, 1-based; zero otherwise
}

// Main-survey canonical column names.
const (
	ColumnDesi = "DESI_TARGET"
	ColumnBGS  = "BGS_TARGET"
	ColumnMWS  = "MWS_TARGET"
	ColumnCmx  = "CMX_TARGET"
)

var svColumn = regexp.MustCompile(`^SV(\d+)_DESI_TARGET$`)

// DetectSurvey resolves the survey generation from a batch's column
// names. An unrecognized combination is a configuration error and
// aborts the batch.
func DetectSurvey(columns []string) (Survey, error) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToUpper(c)] = true
	}
	if have[ColumnCmx] {
		return Survey{Kind: SurveyCmx}, nil
	}
	for _, c := range columns {
		if m := svColumn.FindStringSubmatch(strings.ToUpper(c)); m != nil {
			gen, err := strconv.Atoi(m[1])
			if err != nil || gen < 1 {
				return Survey{}, fmt.Errorf("targets: bad SV classification column %q", c)
			}
			return Survey{Kind: SurveySV, Gen: gen}, nil
		}
	}
	if have[ColumnDesi] {
		return Survey{Kind: SurveyMain}, nil
	}
	return Survey{}, fmt.Errorf("targets: no recognized classification columns in %v", columns)
}

// String renders the generation tag: "main", "cmx", "sv1", ...
func (s Survey) String() string {
	switch s.Kind {
	case SurveyCmx:
		return "cmx"
	case SurveySV:
		return fmt.Sprintf("sv%d", s.Gen)
	default:
		return "main"
	}
}

// ParseSurvey is the inverse of String. It accepts "main", "cmx" and
// "svN" for N >= 1.
func ParseSurvey(tag string) (Survey, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch {
	case tag == "main":
		return Survey{Kind: SurveyMain}, nil
	case tag == "cmx":
		return Survey{Kind: SurveyCmx}, nil
	case strings.HasPrefix(tag, "sv"):
		gen, err := strconv.Atoi(tag[2:])
		if err != nil || gen < 1 {
			return Survey{}, fmt.Errorf("targets: bad survey tag %q", tag)
		}
		return Survey{Kind: SurveySV, Gen: gen}, nil
	}
	return Survey{}, fmt.Errorf("targets: survey must be 'main', 'cmx' or 'svN', not %q", tag)
}

// Columns returns the classification column names for this generation:
// three for main and SV batches, one for commissioning.
func (s Survey) Columns() []string {
	switch s.Kind {
	case SurveyCmx:
		return []string{ColumnCmx}
	case SurveySV:
		p := fmt.Sprintf("SV%d_", s.Gen)
		return []string{p + ColumnDesi, p + ColumnBGS, p + ColumnMWS}
	default:
		return []string{ColumnDesi, ColumnBGS, ColumnMWS}
	}
}

// Masks returns the registry mask tables aligned with Columns. Unknown
// SV generations are a configuration error.
func (s Survey) Masks(reg *bitmask.Registry) ([]*bitmask.Mask, error) {
	switch s.Kind {
	case SurveyCmx:
		return []*bitmask.Mask{reg.Cmx}, nil
	case SurveySV:
		set, ok := reg.SV[s.Gen]
		if !ok {
			return nil, fmt.Errorf("targets: no mask registry for survey generation sv%d", s.Gen)
		}
		return []*bitmask.Mask{set.Desi, set.BGS, set.MWS}, nil
	default:
		return []*bitmask.Mask{reg.Main.Desi, reg.Main.BGS, reg.Main.MWS}, nil
	}
}

// Words returns the classification words of t aligned with Columns.
func (s Survey) Words(t *Target) []uint64 {
	if s.Kind == SurveyCmx {
		return []uint64{t.CmxTarget}
	}
	return []uint64{t.DesiTarget, t.BGSTarget, t.MWSTarget}
}
