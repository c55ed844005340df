// Package finalize turns per-brick selection output into rows ready
// for the target catalog: it assigns the unique target identifier,
// attaches the classification words for the batch's survey generation
// and computes the initial scheduling columns.
package finalize

import (
	"fmt"

	"skycat/internal/bitmask"
	"skycat/internal/obsstate"
	"skycat/internal/targetid"
	"skycat/internal/targets"
)

// Observing conditions used for the initial scheduling columns.
const (
	obsconAll  = "DARK|GRAY|BRIGHT|POOR|TWILIGHT12|TWILIGHT18"
	obsconDark = "DARK|GRAY"
	obsconBrt  = "BRIGHT"
)

// Options controls finalization of one brick's batch.
type Options struct {
	Survey targets.Survey
	// Sky marks the batch as blank sky positions; it is folded into
	// every TARGETID.
	Sky bool
	// DarkBright populates separate dark-time and bright-time initial
	// scheduling columns instead of a single pair.
	DarkBright bool
}

// Finalize attaches classification words to a brick's targets and
// fills in the derived catalog columns. desi, bgs and mws must be
// aligned with tgts; commissioning batches read only desi, which
// carries the CMX word. SUBPRIORITY is left at zero here and populated
// reproducibly when the catalog is written.
func Finalize(tgts []targets.Target, desi, bgs, mws []uint64, reg *bitmask.Registry, opts Options) ([]targets.Target, error) {
	n := len(tgts)
	if len(desi) != n || len(bgs) != n || len(mws) != n {
		return nil, fmt.Errorf("finalize: %d targets but %d/%d/%d classification words",
			n, len(desi), len(bgs), len(mws))
	}

	var sky int64
	if opts.Sky {
		sky = 1
	}

	out := make([]targets.Target, n)
	seen := make(map[int64]struct{}, n)
	for i := range tgts {
		t := tgts[i]
		if opts.Survey.Kind == targets.SurveyCmx {
			t.CmxTarget = desi[i]
		} else {
			t.DesiTarget = desi[i]
			t.BGSTarget = bgs[i]
			t.MWSTarget = mws[i]
		}

		id, err := targetid.Encode(int64(t.ObjID), int64(t.BrickID), int64(t.Release), 0, sky)
		if err != nil {
			return nil, fmt.Errorf("finalize: record %d: %w", i, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("finalize: duplicate TARGETID %d", id)
		}
		seen[id] = struct{}{}
		t.TargetID = id
		t.SubPriority = 0
		out[i] = t
	}

	if opts.DarkBright {
		pri, nobs, err := obsstate.InitialPriorityNumObs(out, opts.Survey, reg, obsconDark)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].PriorityInitDark, out[i].NumObsInitDark = pri[i], nobs[i]
		}
		pri, nobs, err = obsstate.InitialPriorityNumObs(out, opts.Survey, reg, obsconBrt)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].PriorityInitBright, out[i].NumObsInitBright = pri[i], nobs[i]
		}
	} else {
		pri, nobs, err := obsstate.InitialPriorityNumObs(out, opts.Survey, reg, obsconAll)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].PriorityInit, out[i].NumObsInit = pri[i], nobs[i]
		}
	}

	obscon, err := obsstate.SetObsConditions(out, opts.Survey, reg)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ObsConditions = obscon[i]
	}

	if opts.Survey.Kind == targets.SurveyMain {
		if err := checkLRGPasses(out, reg); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkLRGPasses verifies that every LRG row carries exactly one
// per-pass bit and that no pass bit appears without the parent LRG
// bit.
func checkLRGPasses(tgts []targets.Target, reg *bitmask.Registry) error {
	desi := reg.Main.Desi
	lrg := desi.Value("LRG")
	passes := desi.Value("LRG_1PASS") | desi.Value("LRG_2PASS")
	for i := range tgts {
		isLRG := tgts[i].DesiTarget&lrg != 0
		set := tgts[i].DesiTarget & passes
		switch {
		case isLRG && set == 0, !isLRG && set != 0:
			return fmt.Errorf("finalize: record %d (TARGETID %d): LRG and per-pass bits disagree",
				i, tgts[i].TargetID)
		case set&(set-1) != 0:
			return fmt.Errorf("finalize: record %d (TARGETID %d): more than one LRG pass bit set",
				i, tgts[i].TargetID)
		}
	}
	return nil
}
