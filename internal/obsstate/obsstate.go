// Package obsstate scores targets for the scheduler: it classifies the
// observation state of each target from its redshift history and
// derives priorities, requested observation counts and permitted
// observing conditions from the bit registry.
package obsstate

import (
	"fmt"

	"skycat/internal/bitmask"
	"skycat/internal/targets"
)

// State classifies one redshift-history record. The four states are
// mutually exclusive and cover every record.
func State(z targets.ZCat) (string, error) {
	if z.NumObs == 0 {
		return bitmask.StateUnobs, nil
	}
	if z.NumObsMore < 0 {
		return "", fmt.Errorf("obsstate: negative NUMOBS_MORE %d", z.NumObsMore)
	}
	if z.NumObsMore == 0 {
		return bitmask.StateDone, nil
	}
	if z.ZWarn == 0 {
		return bitmask.StateMoreZGood, nil
	}
	return bitmask.StateMoreZWarn, nil
}

// Redshift at or above which a quasar is worth further Lyman-alpha
// epochs.
const qsoLyALimit = 2.15

// scoreBit folds one selection bit's configured priority for the given
// state into pri.
func scoreBit(pri int64, b *bitmask.Bit, state string) (int64, error) {
	if b.Priorities == nil {
		return pri, nil
	}
	p, err := b.Priorities.ForState(state)
	if err != nil {
		return 0, err
	}
	if p > pri {
		pri = p
	}
	return pri, nil
}

// CalcPriority computes the scheduling priority of each target from
// its set selection bits and its observation state. The highest
// priority across all matching bits wins. zcat must be aligned with
// tgts, one record per target.
func CalcPriority(tgts []targets.Target, zcat []targets.ZCat, survey targets.Survey, reg *bitmask.Registry) ([]int64, error) {
	if len(tgts) != len(zcat) {
		return nil, fmt.Errorf("obsstate: %d targets but %d redshift records", len(tgts), len(zcat))
	}
	masks, err := survey.Masks(reg)
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(tgts))
	for i := range tgts {
		state, err := State(zcat[i])
		if err != nil {
			return nil, fmt.Errorf("obsstate: record %d: %w", i, err)
		}
		pri, err := rowPriority(&tgts[i], zcat[i], state, survey, masks)
		if err != nil {
			return nil, fmt.Errorf("obsstate: record %d: %w", i, err)
		}
		out[i] = pri
	}
	return out, nil
}

func rowPriority(t *targets.Target, z targets.ZCat, state string, survey targets.Survey, masks []*bitmask.Mask) (int64, error) {
	var pri int64

	if survey.Kind == targets.SurveyCmx {
		for _, name := range []string{"SV0_BGS", "SV0_MWS"} {
			b, err := masks[0].Lookup(name)
			if err != nil {
				return 0, err
			}
			if t.CmxTarget&b.Value() != 0 {
				if pri, err = scoreBit(pri, b, state); err != nil {
					return 0, err
				}
			}
		}
		return pri, nil
	}

	desiMask, bgsMask, mwsMask := masks[0], masks[1], masks[2]

	// Dark-time guiding classes. The per-pass LRG split only exists
	// in the main survey; earlier generations carry a single LRG bit.
	guiding := []string{"ELG", "LRG_1PASS", "LRG_2PASS"}
	if survey.Kind == targets.SurveySV {
		guiding = []string{"ELG", "LRG"}
	}
	for _, name := range guiding {
		b, err := desiMask.Lookup(name)
		if err != nil {
			return 0, err
		}
		if t.DesiTarget&b.Value() == 0 {
			continue
		}
		if pri, err = scoreBit(pri, b, state); err != nil {
			return 0, err
		}
	}

	// Quasars keep their reobservation priority only when the redshift
	// confirms a Lyman-alpha candidate; low-z tracers are done after a
	// good epoch.
	qso, err := desiMask.Lookup("QSO")
	if err != nil {
		return 0, err
	}
	if t.DesiTarget&qso.Value() != 0 {
		goodHiZ := state == bitmask.StateMoreZGood && z.Z >= qsoLyALimit && z.ZWarn == 0
		switch {
		case state == bitmask.StateUnobs:
			if pri, err = scoreBit(pri, qso, bitmask.StateUnobs); err != nil {
				return 0, err
			}
		case goodHiZ:
			if pri, err = scoreBit(pri, qso, bitmask.StateMoreZGood); err != nil {
				return 0, err
			}
		case state == bitmask.StateMoreZWarn:
			if pri, err = scoreBit(pri, qso, bitmask.StateMoreZWarn); err != nil {
				return 0, err
			}
		}
		if state != bitmask.StateUnobs && !goodHiZ {
			if pri, err = scoreBit(pri, qso, bitmask.StateDone); err != nil {
				return 0, err
			}
		}
	}

	// Galaxy and stellar classes score every configured bit.
	for _, mw := range []struct {
		mask *bitmask.Mask
		word uint64
	}{{bgsMask, t.BGSTarget}, {mwsMask, t.MWSTarget}} {
		for _, b := range mw.mask.Bits() {
			if mw.word&(1<<b.Bit) == 0 {
				continue
			}
			b := b
			if pri, err = scoreBit(pri, &b, state); err != nil {
				return 0, err
			}
		}
	}

	// Targets inside a bright-object mask are never observed,
	// whatever else selected them.
	if desiMask.Has("IN_BRIGHT_OBJECT") && t.DesiTarget&desiMask.Value("IN_BRIGHT_OBJECT") != 0 {
		pri = -1
	}
	return pri, nil
}

// CalcNumObs returns the requested number of observations for each
// target before any spectroscopy is taken into account. A row selected
// by no class at all is a catalog integrity error.
func CalcNumObs(tgts []targets.Target, survey targets.Survey, reg *bitmask.Registry) ([]int64, error) {
	masks, err := survey.Masks(reg)
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(tgts))
	for i := range tgts {
		t := &tgts[i]
		words := survey.Words(t)
		var any uint64
		for _, w := range words {
			any |= w
		}
		if any == 0 {
			return nil, fmt.Errorf("obsstate: record %d selected by no target class", i)
		}

		nobs := int64(1)
		if survey.Kind != targets.SurveyCmx {
			desiMask, bgsMask := masks[0], masks[1]
			if desiMask.Has("LRG") && t.DesiTarget&desiMask.Value("LRG") != 0 {
				nobs = 2
			}
			for _, pass := range []struct {
				name string
				n    int64
			}{{"LRG_1PASS", 1}, {"LRG_2PASS", 2}, {"LRG_3PASS", 3}} {
				if desiMask.Has(pass.name) && t.DesiTarget&desiMask.Value(pass.name) != 0 {
					nobs = pass.n
				}
			}
			if desiMask.Has("QSO") && t.DesiTarget&desiMask.Value("QSO") != 0 {
				nobs = 4
			}
			// Bright-galaxy classes are reobserved every epoch: always
			// request one more than taken so far.
			for _, name := range []string{"BGS_FAINT", "BGS_BRIGHT", "BGS_WISE"} {
				if bgsMask.Has(name) && t.BGSTarget&bgsMask.Value(name) != 0 {
					nobs = int64(t.NumObs) + 1
				}
			}
		}
		out[i] = nobs
	}
	return out, nil
}

// InitialPriorityNumObs returns, per target, the highest configured
// UNOBS priority and the largest numobs over set bits whose observing
// conditions intersect obscon. Bits without priorities (calibration
// and veto classes) are skipped. Targets matching no qualifying bit
// get priority 0 and the numobs sentinel -1.
func InitialPriorityNumObs(tgts []targets.Target, survey targets.Survey, reg *bitmask.Registry, obscon string) (pri, nobs []int64, err error) {
	masks, err := survey.Masks(reg)
	if err != nil {
		return nil, nil, err
	}
	obsbits, err := reg.ObsCon.Mask(obscon)
	if err != nil {
		return nil, nil, err
	}

	// Resolve the qualifying bits of each mask once, not per row.
	type scored struct {
		value  uint64
		unobs  int64
		numobs int64
	}
	qualifying := make([][]scored, len(masks))
	for mi, m := range masks {
		for _, b := range m.Bits() {
			if b.Priorities == nil {
				continue
			}
			bm, err := reg.ObsCon.Mask(b.ObsCon)
			if err != nil {
				return nil, nil, err
			}
			if bm&obsbits == 0 {
				continue
			}
			qualifying[mi] = append(qualifying[mi], scored{b.Value(), b.Priorities.Unobs, b.NumObs})
		}
	}

	pri = make([]int64, len(tgts))
	nobs = make([]int64, len(tgts))
	for i := range tgts {
		nobs[i] = -1
		words := survey.Words(&tgts[i])
		for mi := range masks {
			for _, q := range qualifying[mi] {
				if words[mi]&q.value == 0 {
					continue
				}
				if q.unobs >= pri[i] {
					pri[i] = q.unobs
				}
				if q.numobs >= nobs[i] {
					nobs[i] = q.numobs
				}
			}
		}
	}
	return pri, nobs, nil
}

// SetObsConditions returns, per target, the OR of the observing
// condition masks of every set selection bit.
func SetObsConditions(tgts []targets.Target, survey targets.Survey, reg *bitmask.Registry) ([]int64, error) {
	masks, err := survey.Masks(reg)
	if err != nil {
		return nil, err
	}

	type condBit struct {
		value uint64
		cond  int64
	}
	conds := make([][]condBit, len(masks))
	for mi, m := range masks {
		for _, b := range m.Bits() {
			if b.ObsCon == "" {
				continue
			}
			bm, err := reg.ObsCon.Mask(b.ObsCon)
			if err != nil {
				return nil, err
			}
			conds[mi] = append(conds[mi], condBit{b.Value(), bm})
		}
	}

	out := make([]int64, len(tgts))
	for i := range tgts {
		words := survey.Words(&tgts[i])
		for mi := range masks {
			for _, cb := range conds[mi] {
				if words[mi]&cb.value != 0 {
					out[i] |= cb.cond
				}
			}
		}
	}
	return out, nil
}
