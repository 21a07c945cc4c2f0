package rocketenv

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

const (
	deg2rad = math.Pi / 180
)

// sign returns the sign of a given number.
func sign(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, 1e-12) {
		return 1
	}
	return v / math.Abs(v)
}

// Deg2rad converts degrees to radians, and enforced only positive numbers.
func Deg2rad(a float64) float64 {
	if a < 0 {
		a += 360
	}
	return math.Mod(a*deg2rad, 2*math.Pi)
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	if a < 0 {
		a += 2 * math.Pi
	}
	return math.Mod(a/deg2rad, 360)
}

// mod360 wraps an angle in degrees into [0, 360).
func mod360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// bilinear interpolates a quantity known at the four corners of a lat/lon
// cell, first along latitude then along longitude. x is the fractional
// latitude position in [0, 1], y the fractional longitude position.
func bilinear(x, y, f00, f01, f10, f11 float64) float64 {
	lo := f00 + x*(f10-f00)
	hi := f01 + x*(f11-f01)
	return lo + y*(hi-lo)
}

// locateIndex finds i such that value falls within [axis[i], axis[i+1]]
// (or the reverse for descending axes). The returned ok is false when the
// value lies outside the axis coverage.
func locateIndex(axis []float64, value float64) (int, bool) {
	n := len(axis)
	if n < 2 {
		return 0, false
	}
	asc := axis[n-1] >= axis[0]
	if asc {
		if value < axis[0] || value > axis[n-1] {
			return 0, false
		}
	} else {
		if value > axis[0] || value < axis[n-1] {
			return 0, false
		}
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if (axis[mid] <= value) == asc || axis[mid] == value {
			lo = mid
		} else {
			hi = mid
		}
	}
	// Exact hit on the last axis point retreats one cell so that the
	// bracketing pair stays in range.
	if lo == n-1 {
		lo = n - 2
	}
	return lo, true
}

// normalizeLongitude maps lon into the dataset's longitude convention:
// [0, 360) when the axis runs past 180, [-180, 180) otherwise.
func normalizeLongitude(lon float64, axis []float64) float64 {
	wraps360 := false
	for _, v := range axis {
		if v > 180 {
			wraps360 = true
			break
		}
	}
	if wraps360 {
		lon = math.Mod(lon, 360)
		if lon < 0 {
			lon += 360
		}
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
