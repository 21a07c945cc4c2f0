package rocketenv

import (
	"fmt"
	"math"
)

// Ellipsoid is a reference ellipsoid (datum) for geodetic conversions.
type Ellipsoid struct {
	Name          string
	SemiMajorAxis float64 // meters
	Flattening    float64
}

// EllipsoidFromDatum returns the reference ellipsoid for a named datum.
// Supported datums are SIRGAS2000, SAD69, NAD83 and WGS84.
func EllipsoidFromDatum(datum string) (Ellipsoid, error) {
	switch datum {
	case "SIRGAS2000":
		return Ellipsoid{"SIRGAS2000", 6378137.0, 1 / 298.257223563}, nil
	case "SAD69":
		return Ellipsoid{"SAD69", 6378160.0, 1 / 298.25}, nil
	case "NAD83":
		return Ellipsoid{"NAD83", 6378137.0, 1 / 298.257024899}, nil
	case "WGS84":
		return Ellipsoid{"WGS84", 6378137.0, 1 / 298.257223563}, nil
	}
	return Ellipsoid{}, fmt.Errorf("unknown datum %q (expected SIRGAS2000, SAD69, NAD83 or WGS84)", datum)
}

// UTMCoordinates is the result of projecting a geodetic point onto the
// Universal Transverse Mercator grid.
type UTMCoordinates struct {
	Easting    float64 // meters, always positive
	Northing   float64 // meters, always positive
	Zone       int     // 1 to 60
	ZoneLetter string  // C to X, skipping I and O
	Hemisphere string  // "N" or "S"
	EW         string  // "E", "W", or "W|E" on the prime meridian
}

const utmScaleFactor = 1 - 1.0/2500

// GeodesicToUTM projects lat/lon (degrees) onto the UTM grid using the given
// ellipsoid. Valid for latitudes strictly between -80 and 84 degrees.
func GeodesicToUTM(lat, lon float64, e Ellipsoid) (UTMCoordinates, error) {
	if lat <= -80 || lat >= 84 {
		return UTMCoordinates{}, fmt.Errorf("latitude %g out of UTM projection range (-80, 84)", lat)
	}

	// Central meridian of the UTM zone.
	var lonMC float64
	var ew string
	if lon != 0 {
		s := sign(lon)
		if s > 0 {
			lonMC = math.Floor((lon-3)/6)*6 + 3
			ew = "E"
		} else {
			lonMC = (math.Floor((lon+3)*s/6)*6 + 3) * s
			ew = "W"
		}
	} else {
		lonMC = 3
		ew = "W|E"
	}

	n0 := 0.0
	hemis := "N"
	if lat < 0 {
		n0 = 10000000
		hemis = "S"
	}

	latDeg := lat
	latR := lat * deg2rad
	lonR := lon * deg2rad
	lonMCR := lonMC * deg2rad

	e2 := 2*e.Flattening - e.Flattening*e.Flattening
	e2lin := e2 / (1 - e2)

	// Meridian arc length series.
	e4 := e2 * e2
	e6 := e4 * e2
	arc := e.SemiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*latR -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*latR) +
		(15*e4/256+45*e6/1024)*math.Sin(4*latR) -
		(35*e6/3072)*math.Sin(6*latR))

	nu := e.SemiMajorAxis / math.Sqrt(1-e2*math.Pow(math.Sin(latR), 2))
	t := math.Pow(math.Tan(latR), 2)
	c := e2lin * math.Pow(math.Cos(latR), 2)
	ag := (lonR - lonMCR) * math.Cos(latR)

	j := (1 - t + c) * ag * ag * ag / 6
	k := (5 - 18*t + t*t + 72*c - 58*e2lin) * math.Pow(ag, 5) / 120
	l := (5 - t + 9*c + 4*c*c) * math.Pow(ag, 4) / 24
	m := (61 - 58*t + t*t + 600*c - 330*e2lin) * math.Pow(ag, 6) / 720

	x := 500000 + utmScaleFactor*nu*(ag+j+k)
	y := n0 + utmScaleFactor*(arc+nu*math.Tan(latR)*(ag*ag/2+l+m))

	letters := "CDEFGHJKLMNPQRSTUVWXX"
	letter := letters[int(80+latDeg)>>3]

	return UTMCoordinates{
		Easting:    x,
		Northing:   y,
		Zone:       int((lonMC + 183) / 6),
		ZoneLetter: string(letter),
		Hemisphere: hemis,
		EW:         ew,
	}, nil
}

// UTMToGeodesic is the inverse projection of GeodesicToUTM, returning lat/lon
// in degrees.
func UTMToGeodesic(x, y float64, zone int, hemisphere string, e Ellipsoid) (lat, lon float64, err error) {
	switch hemisphere {
	case "N":
		y += 10000000
	case "S":
	default:
		return 0, 0, fmt.Errorf("unknown hemisphere %q (expected N or S)", hemisphere)
	}
	if zone < 1 || zone > 60 {
		return 0, 0, fmt.Errorf("UTM zone %d out of range [1, 60]", zone)
	}

	centralMeridian := float64(zone*6 - 183)

	e2 := 2*e.Flattening - e.Flattening*e.Flattening
	e2lin := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	e4 := e2 * e2
	e6 := e4 * e2
	e1sq := e1 * e1
	e1cb := e1 * e1sq
	e1qt := e1 * e1cb

	m := (y - 10000000) / utmScaleFactor
	mi := m / (e.SemiMajorAxis * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	lat1 := mi + (3*e1/2-27*e1cb/32)*math.Sin(2*mi) +
		(21*e1sq/16-55*e1qt/32)*math.Sin(4*mi) +
		(151*e1cb/96)*math.Sin(6*mi)

	c1 := e2lin * math.Pow(math.Cos(lat1), 2)
	t1 := math.Pow(math.Tan(lat1), 2)
	n1 := e.SemiMajorAxis / math.Sqrt(1-e2*math.Pow(math.Sin(lat1), 2))
	r1 := e.SemiMajorAxis * (1 - e2) / math.Sqrt(math.Pow(1-e2*math.Sin(lat1)*math.Sin(lat1), 3))
	d := (x - 500000) / (n1 * utmScaleFactor)

	i := (5 + 3*t1 + 10*c1 - 4*c1*c1 - 9*e2lin) * math.Pow(d, 4) / 24
	j := (61 + 90*t1 + 298*c1 + 45*t1*t1 - 252*e2lin - 3*c1*c1) * math.Pow(d, 6) / 720
	k := d - (1+2*t1+c1)*d*d*d/6
	l := (5 - 2*c1 + 28*t1 - 3*c1*c1 + 8*e2lin + 24*t1*t1) * math.Pow(d, 5) / 120

	latR := lat1 - (n1*math.Tan(lat1)/r1)*(d*d/2-i+j)
	lonR := centralMeridian*deg2rad + (k+l)/math.Cos(lat1)

	return latR / deg2rad, lonR / deg2rad, nil
}

// EarthRadius returns the distance in meters from the ellipsoid's center to
// its surface at the given latitude (degrees).
func EarthRadius(lat float64, e Ellipsoid) float64 {
	semiMinorAxis := e.SemiMajorAxis * (1 - e.Flattening)
	latR := lat * deg2rad
	cA := math.Cos(latR) * e.SemiMajorAxis
	sB := math.Sin(latR) * semiMinorAxis
	return math.Sqrt((math.Pow(cA*e.SemiMajorAxis, 2) + math.Pow(sB*semiMinorAxis, 2)) /
		(cA*cA + sB*sB))
}

// DecimalDegreesToArcSeconds splits a decimal-degree angle into degrees, arc
// minutes and arc seconds.
func DecimalDegreesToArcSeconds(angle float64) (deg, min, sec float64) {
	s := 1.0
	if angle < 0 {
		s = -1
	}
	abs := math.Floor(s * angle)
	min = math.Floor((s*angle - abs) * 60)
	sec = ((s*angle-abs)*60 - min) * 60
	return s * abs, min, sec
}
