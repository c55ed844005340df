// Package resolve deduplicates targets in the overlap strip between
// the northern and southern imaging programs: each sky position keeps
// the catalog entry from the program that is authoritative there.
package resolve

import (
	"fmt"

	"skycat/internal/healpix"
	"skycat/internal/targets"
)

// Declination above which northern imaging takes precedence (when the
// position is also north of the Galactic plane).
const Boundary = 32.375

// Imaging data releases and the photometric system each belongs to.
var releasePhotsys = map[int32]byte{
	3000: 'S',
	4000: 'N',
	5000: 'S',
	6000: 'N',
	7000: 'S',
	7999: 'S',
	8000: 'S',
	8001: 'N',
}

// ReleaseToPhotsys maps an imaging data release number to its
// photometric system, 'N' or 'S'. An unrecognized release is fatal.
func ReleaseToPhotsys(release int32) (byte, error) {
	ps, ok := releasePhotsys[release]
	if !ok {
		return 0, fmt.Errorf("resolve: unknown release number %d", release)
	}
	return ps, nil
}

// NorthMask records which ~1 square degree HEALPixels lie north of the
// Galactic plane. Per-target Galactic coordinate transforms are
// avoided by classifying pixel centers once; targets never sit close
// enough to the plane for the pixel-scale approximation to matter.
type NorthMask struct {
	nside int64
	north []bool
}

// NewNorthMask precomputes the Galactic-north flag for every pixel at
// roughly 1 square degree resolution.
func NewNorthMask() *NorthMask {
	nside := healpix.PixAreaToNSide(1)
	m := &NorthMask{nside: nside, north: make([]bool, healpix.NPix(nside))}
	for pix := range m.north {
		ra, dec := healpix.PixToRADec(nside, int64(pix))
		m.north[pix] = healpix.GalacticLatitude(ra, dec) > 0
	}
	return m
}

// InNorthArea reports whether a position falls in the region where
// northern imaging is authoritative.
func (m *NorthMask) InNorthArea(ra, dec float64) bool {
	if dec < Boundary {
		return false
	}
	return m.north[healpix.RADecToPix(m.nside, ra, dec)]
}

// Resolve trims a batch to its authoritative entries: northern
// photometry inside the northern imaging area, southern photometry
// everywhere else. Targets without a PHOTSYS fall back to their
// RELEASE number.
func Resolve(tgts []targets.Target) ([]targets.Target, error) {
	mask := NewNorthMask()
	out := make([]targets.Target, 0, len(tgts))
	for i := range tgts {
		t := &tgts[i]
		ps := t.PhotSys
		if ps == 0 {
			var err error
			ps, err = ReleaseToPhotsys(t.Release)
			if err != nil {
				return nil, err
			}
		}
		if ps != 'N' && ps != 'S' {
			return nil, fmt.Errorf("resolve: record %d has photometric system %q", i, ps)
		}
		photN := ps == 'N'
		areaN := mask.InNorthArea(t.RA, t.Dec)
		if photN == areaN {
			keep := *t
			keep.PhotSys = ps
			out = append(out, keep)
		}
	}
	return out, nil
}
