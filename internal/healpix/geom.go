package healpix

import (
	"fmt"
	"math"
)

// Box is a rectangle in RA/Dec. RAMin may exceed RAMax, in which case
// the box wraps through RA = 0.
type Box struct {
	RAMin, RAMax   float64
	DecMin, DecMax float64
}

func (b Box) validate() error {
	if b.DecMin < -90 || b.DecMax > 90 || b.DecMin > b.DecMax {
		return fmt.Errorf("healpix: malformed Dec range [%g, %g]", b.DecMin, b.DecMax)
	}
	return nil
}

// Area returns the box area in square degrees.
func (b Box) Area() float64 {
	dra := b.RAMax - b.RAMin
	if dra < 0 {
		dra += 360
	}
	sinSpan := math.Sin(b.DecMax*math.Pi/180) - math.Sin(b.DecMin*math.Pi/180)
	return dra * sinSpan * 180 / math.Pi
}

// Contains reports whether the position lies inside the box.
func (b Box) Contains(ra, dec float64) bool {
	if dec < b.DecMin || dec > b.DecMax {
		return false
	}
	return raInRange(ra, b.RAMin, b.RAMax)
}

// Cap is a circular region ("disc") on the sky.
type Cap struct {
	RA, Dec float64
	Radius  float64 // degrees
}

// Area returns the cap area in square degrees.
func (c Cap) Area() float64 {
	sr := 2 * math.Pi * (1 - math.Cos(c.Radius*math.Pi/180))
	return sr * (180 / math.Pi) * (180 / math.Pi)
}

// Contains reports whether the position lies inside the cap.
func (c Cap) Contains(ra, dec float64) bool {
	return AngularSeparation(ra, dec, c.RA, c.Dec) <= c.Radius
}

// PixInBox returns the nested pixels at nside that could overlap the
// box. The covering is conservative: it may include pixels that only
// graze the box, but never misses one that intersects it.
func PixInBox(nside int64, box Box) ([]int64, error) {
	if err := CheckNSide(nside); err != nil {
		return nil, err
	}
	if err := box.validate(); err != nil {
		return nil, err
	}
	margin := MaxPixRad(nside)
	var pixels []int64
	for pix := int64(0); pix < NPix(nside); pix++ {
		ra, dec := PixToRADec(nside, pix)
		if dec < box.DecMin-margin || dec > box.DecMax+margin {
			continue
		}
		if raInRange(ra, box.RAMin, box.RAMax) {
			pixels = append(pixels, pix)
			continue
		}
		// Near the box in RA: scale the margin by the shrinking
		// circumference at this declination.
		absDec := math.Abs(dec) - margin
		if absDec < 0 {
			absDec = 0
		}
		raMargin := margin / math.Cos(absDec*math.Pi/180)
		if raMargin > 180 {
			raMargin = 180
		}
		if raDistance(ra, box.RAMin) <= raMargin || raDistance(ra, box.RAMax) <= raMargin {
			pixels = append(pixels, pix)
		}
	}
	return pixels, nil
}

// PixInCap returns the nested pixels at nside that could overlap the
// cap, with the same conservative over-selection as PixInBox.
func PixInCap(nside int64, cap Cap) ([]int64, error) {
	if err := CheckNSide(nside); err != nil {
		return nil, err
	}
	margin := MaxPixRad(nside)
	var pixels []int64
	for pix := int64(0); pix < NPix(nside); pix++ {
		ra, dec := PixToRADec(nside, pix)
		if AngularSeparation(ra, dec, cap.RA, cap.Dec) <= cap.Radius+margin {
			pixels = append(pixels, pix)
		}
	}
	return pixels, nil
}

// AngularSeparation returns the great-circle distance in degrees
// between two positions, via the haversine formula.
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	const d2r = math.Pi / 180
	sdDec := math.Sin((dec2 - dec1) * d2r / 2)
	sdRA := math.Sin((ra2 - ra1) * d2r / 2)
	h := sdDec*sdDec + math.Cos(dec1*d2r)*math.Cos(dec2*d2r)*sdRA*sdRA
	return 2 * math.Asin(math.Min(1, math.Sqrt(h))) / d2r
}

func raInRange(ra, min, max float64) bool {
	ra = normRA(ra)
	min, max = normRA(min), normRA(max)
	if min <= max {
		return ra >= min && ra <= max
	}
	return ra >= min || ra <= max
}

// raDistance returns the shortest separation in RA between two
// longitudes, in degrees.
func raDistance(ra, edge float64) float64 {
	d := math.Mod(math.Abs(ra-edge), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func normRA(ra float64) float64 {
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra
}
