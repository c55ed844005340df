package healpix

import "math"

// J2000 equatorial coordinates of the north Galactic pole.
const (
	galPoleRA  = 192.85948
	galPoleDec = 27.12825
)

// GalacticLatitude converts an equatorial J2000 position to Galactic
// latitude b, in degrees. Positive b is north of the Galactic plane.
func GalacticLatitude(ra, dec float64) float64 {
	const d2r = math.Pi / 180
	sb := math.Sin(dec*d2r)*math.Sin(galPoleDec*d2r) +
		math.Cos(dec*d2r)*math.Cos(galPoleDec*d2r)*math.Cos((ra-galPoleRA)*d2r)
	return math.Asin(sb) / d2r
}
