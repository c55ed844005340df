// Package healpix implements the nested HEALPix pixelization of the
// sphere plus the small amount of spherical geometry the catalog store
// and the imaging resolver need: pixel lookups, resolution changes,
// covering sets for box and cap queries, and exact containment
// predicates.
//
// All public angles are in degrees, with positions expressed as
// RA/Dec. Pixel indices follow the NESTED ordering convention
// throughout.
package healpix

import (
	"fmt"
	"math"
	"sort"
)

// MaxNSide is the largest supported resolution. Pixel indices at this
// resolution still fit comfortably in an int64.
const MaxNSide = 1 << 29

// DegPerSky is the area of the full sphere in square degrees.
const DegPerSky = 4 * math.Pi * (180 / math.Pi) * (180 / math.Pi)

// CheckNSide returns an error unless nside is a power of two in the
// supported range.
func CheckNSide(nside int64) error {
	if nside < 1 || nside > MaxNSide || nside&(nside-1) != 0 {
		return fmt.Errorf("healpix: nside %d is not a power of 2 in [1, %d]", nside, MaxNSide)
	}
	return nil
}

// NPix returns the number of pixels on the sphere at resolution nside.
func NPix(nside int64) int64 {
	return 12 * nside * nside
}

// PixAreaSr returns the area of one pixel in steradians.
func PixAreaSr(nside int64) float64 {
	return 4 * math.Pi / float64(NPix(nside))
}

// PixAreaDeg returns the area of one pixel in square degrees.
func PixAreaDeg(nside int64) float64 {
	return DegPerSky / float64(NPix(nside))
}

// PixAreaToNSide returns the power-of-two nside whose pixel area is
// closest to the requested area in square degrees.
func PixAreaToNSide(areaDeg float64) int64 {
	if areaDeg <= 0 {
		return MaxNSide
	}
	raw := math.Sqrt(DegPerSky / (12 * areaDeg))
	exp := int(math.Round(math.Log2(raw)))
	if exp < 0 {
		exp = 0
	}
	if exp > 29 {
		exp = 29
	}
	return 1 << exp
}

// MaxPixRad returns a conservative upper bound, in degrees, on the
// distance from any pixel center to the farthest point of that pixel.
// It is used to pad covering queries so that no overlapping pixel is
// missed; over-selection is trimmed later by exact predicates.
func MaxPixRad(nside int64) float64 {
	return math.Sqrt(PixAreaSr(nside)) * 180 / math.Pi
}

// RADecToPix returns the nested pixel index containing the position.
func RADecToPix(nside int64, ra, dec float64) int64 {
	theta := (90 - dec) * math.Pi / 180
	phi := ra * math.Pi / 180
	return angToPixNest(nside, theta, phi)
}

// PixToRADec returns the RA/Dec of the pixel center.
func PixToRADec(nside, pix int64) (ra, dec float64) {
	theta, phi := pixToAngNest(nside, pix)
	ra = phi * 180 / math.Pi
	if ra >= 360 {
		ra -= 360
	}
	dec = 90 - theta*180/math.Pi
	return ra, dec
}

// ChangeNSide re-expresses a list of nested pixels at a different
// resolution. Degrading maps each pixel to its parent (deduplicated);
// upgrading expands each pixel to all of its children. The result is
// sorted and unique.
func ChangeNSide(from, to int64, pixels []int64) ([]int64, error) {
	if err := CheckNSide(from); err != nil {
		return nil, err
	}
	if err := CheckNSide(to); err != nil {
		return nil, err
	}
	if from == to {
		out := append([]int64(nil), pixels...)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return uniqueInt64(out), nil
	}
	var out []int64
	if to < from {
		shift := uint(2 * log2(from/to))
		out = make([]int64, 0, len(pixels))
		for _, p := range pixels {
			out = append(out, p>>shift)
		}
	} else {
		shift := uint(2 * log2(to/from))
		children := int64(1) << shift
		out = make([]int64, 0, int64(len(pixels))*children)
		for _, p := range pixels {
			base := p << shift
			for c := int64(0); c < children; c++ {
				out = append(out, base+c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return uniqueInt64(out), nil
}

func log2(v int64) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func uniqueInt64(sorted []int64) []int64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Face row/column offsets from the standard HEALPix face layout.
var (
	jrll = [12]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [12]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}
)

func angToPixNest(nside int64, theta, phi float64) int64 {
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi, 2*math.Pi)
	if tt < 0 {
		tt += 2 * math.Pi
	}
	tt *= 2 / math.Pi // [0,4)

	var face, ix, iy int64
	if za <= 2.0/3.0 {
		// Equatorial region.
		temp1 := float64(nside) * (0.5 + tt)
		temp2 := float64(nside) * z * 0.75
		jp := int64(temp1 - temp2)
		jm := int64(temp1 + temp2)
		ifp := jp / nside
		ifm := jm / nside
		switch {
		case ifp == ifm:
			face = (ifp & 3) + 4
		case ifp < ifm:
			face = ifp & 3
		default:
			face = (ifm & 3) + 8
		}
		ix = jm & (nside - 1)
		iy = nside - (jp & (nside - 1)) - 1
	} else {
		// Polar caps.
		ntt := int64(tt)
		if ntt >= 4 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := float64(nside) * math.Sqrt(3*(1-za))
		jp := int64(tp * tmp)
		jm := int64((1 - tp) * tmp)
		if jp >= nside {
			jp = nside - 1
		}
		if jm >= nside {
			jm = nside - 1
		}
		if z >= 0 {
			face = ntt
			ix = nside - jm - 1
			iy = nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}
	return face*nside*nside + (spreadBits(ix) | spreadBits(iy)<<1)
}

func pixToAngNest(nside, pix int64) (theta, phi float64) {
	npface := nside * nside
	face := pix / npface
	rem := pix % npface
	ix := compressBits(rem)
	iy := compressBits(rem >> 1)

	jr := jrll[face]*nside - ix - iy - 1
	var nr, kshift int64
	var z float64
	switch {
	case jr < nside:
		// North polar cap.
		nr = jr
		z = 1 - float64(nr*nr)/(3*float64(nside)*float64(nside))
		kshift = 0
	case jr > 3*nside:
		// South polar cap.
		nr = 4*nside - jr
		z = -1 + float64(nr*nr)/(3*float64(nside)*float64(nside))
		kshift = 0
	default:
		nr = nside
		z = float64(2*nside-jr) * 2 / (3 * float64(nside))
		kshift = (jr - nside) & 1
	}

	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > 4*nr {
		jp -= 4 * nr
	}
	if jp < 1 {
		jp += 4 * nr
	}

	theta = math.Acos(z)
	phi = (float64(jp) - float64(kshift+1)*0.5) * (math.Pi / (2 * float64(nr)))
	return theta, phi
}

// spreadBits interleaves the low 30 bits of v with zeros.
func spreadBits(v int64) int64 {
	x := uint64(v) & 0x3fffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}

// compressBits keeps the even-position bits of v, packed together.
func compressBits(v int64) int64 {
	x := uint64(v) & 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0x00000000ffffffff
	return int64(x)
}
