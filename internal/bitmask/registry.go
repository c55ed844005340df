package bitmask

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

//go:embed targetmask.toml
var defaultRegistry []byte

// SurveySet groups the three classification masks of a main-style
// survey generation.
type SurveySet struct {
	Desi *Mask
	BGS  *Mask
	MWS  *Mask
}

// Registry is the full selection-bit configuration for every survey
// generation, plus the observing-conditions vocabulary.
type Registry struct {
	Main   SurveySet
	Cmx    *Mask
	SV     map[int]SurveySet
	ObsCon *ObsConditions
}

// SVGens returns the configured survey-validation generation numbers
// in ascending order.
func (r *Registry) SVGens() []int {
	gens := make([]int, 0, len(r.SV))
	for g := range r.SV {
		gens = append(gens, g)
	}
	sort.Ints(gens)
	return gens
}

type fileBit struct {
	Name       string      `toml:"name"`
	Bit        uint        `toml:"bit"`
	Priorities *Priorities `toml:"priorities"`
	NumObs     int64       `toml:"numobs"`
	ObsCon     string      `toml:"obsconditions"`
}

type fileObsCond struct {
	Name string `toml:"name"`
	Bit  uint   `toml:"bit"`
}

type fileSurvey struct {
	Desi []fileBit `toml:"desi"`
	BGS  []fileBit `toml:"bgs"`
	MWS  []fileBit `toml:"mws"`
}

type registryFile struct {
	ObsConditions []fileObsCond         `toml:"obsconditions"`
	Main          fileSurvey            `toml:"main"`
	Cmx           []fileBit             `toml:"cmx"`
	SV            map[string]fileSurvey `toml:"sv"`
}

// Load returns the registry embedded in the binary.
func Load() (*Registry, error) {
	return parse(defaultRegistry)
}

// LoadFile reads a registry from an external TOML file, overriding the
// embedded defaults.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mask registry: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Registry, error) {
	var rf registryFile
	if err := toml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse mask registry: %w", err)
	}

	if len(rf.ObsConditions) == 0 {
		return nil, fmt.Errorf("mask registry defines no observing conditions")
	}
	oc := &ObsConditions{bits: make(map[string]uint, len(rf.ObsConditions))}
	for _, c := range rf.ObsConditions {
		if _, ok := oc.bits[c.Name]; ok {
			return nil, fmt.Errorf("mask registry: duplicate observing condition %s", c.Name)
		}
		oc.bits[c.Name] = c.Bit
		oc.order = append(oc.order, c.Name)
	}

	reg := &Registry{ObsCon: oc, SV: make(map[int]SurveySet)}

	var err error
	if reg.Main, err = buildSurveySet("main", rf.Main, oc); err != nil {
		return nil, err
	}
	if reg.Cmx, err = buildMask("cmx", rf.Cmx, oc); err != nil {
		return nil, err
	}
	for key, fs := range rf.SV {
		gen, convErr := strconv.Atoi(key)
		if convErr != nil || gen < 1 {
			return nil, fmt.Errorf("mask registry: bad SV generation key %q", key)
		}
		set, setErr := buildSurveySet(fmt.Sprintf("sv%d", gen), fs, oc)
		if setErr != nil {
			return nil, setErr
		}
		reg.SV[gen] = set
	}

	return reg, nil
}

func buildSurveySet(prefix string, fs fileSurvey, oc *ObsConditions) (SurveySet, error) {
	var set SurveySet
	var err error
	if set.Desi, err = buildMask(prefix+"/desi", fs.Desi, oc); err != nil {
		return SurveySet{}, err
	}
	if set.BGS, err = buildMask(prefix+"/bgs", fs.BGS, oc); err != nil {
		return SurveySet{}, err
	}
	if set.MWS, err = buildMask(prefix+"/mws", fs.MWS, oc); err != nil {
		return SurveySet{}, err
	}
	return set, nil
}

func buildMask(name string, fbs []fileBit, oc *ObsConditions) (*Mask, error) {
	bits := make([]Bit, 0, len(fbs))
	for _, fb := range fbs {
		if fb.Bit > 63 {
			return nil, fmt.Errorf("mask registry: %s/%s: bit %d out of range", name, fb.Name, fb.Bit)
		}
		// Validate the obsconditions expression now so later lookups
		// cannot fail.
		if _, err := oc.Mask(fb.ObsCon); err != nil {
			return nil, fmt.Errorf("mask registry: %s/%s: %w", name, fb.Name, err)
		}
		bits = append(bits, Bit{
			Name:       fb.Name,
			Bit:        fb.Bit,
			Priorities: fb.Priorities,
			NumObs:     fb.NumObs,
			ObsCon:     fb.ObsCon,
		})
	}
	return newMask(name, bits)
}
