package rocketenv

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestMod360(t *testing.T) {
	cases := [][2]float64{{0, 0}, {360, 0}, {-90, 270}, {450, 90}, {-450, 270}}
	for _, c := range cases {
		if got := mod360(c[0]); !scalar.EqualWithinAbs(got, c[1], 1e-12) {
			t.Fatalf("mod360(%f) = %f, expected %f", c[0], got, c[1])
		}
	}
}

func TestDegRadRoundTrip(t *testing.T) {
	for _, a := range []float64{0, 45, 90, 180, 270, 359} {
		if got := Rad2deg(Deg2rad(a)); !scalar.EqualWithinAbs(got, a, 1e-10) {
			t.Fatalf("round trip of %f degrees gave %f", a, got)
		}
	}
	if !scalar.EqualWithinAbs(Deg2rad(-90), 3*math.Pi/2, 1e-12) {
		t.Fatal("negative angles must wrap positive")
	}
	// A due-west wind vector yields a 270 degree heading.
	if got := Rad2deg(math.Atan2(-1, 0)); !scalar.EqualWithinAbs(got, 270, 1e-10) {
		t.Fatalf("Rad2deg(atan2(-1, 0)) = %f, expected 270", got)
	}
}

func TestBilinear(t *testing.T) {
	// Vertices reproduce exactly.
	if v := bilinear(0, 0, 1, 2, 3, 4); v != 1 {
		t.Fatalf("corner (0,0) = %f", v)
	}
	if v := bilinear(1, 1, 1, 2, 3, 4); v != 4 {
		t.Fatalf("corner (1,1) = %f", v)
	}
	// Centroid is the mean of the four corners.
	if v := bilinear(0.5, 0.5, 1, 2, 3, 4); !scalar.EqualWithinAbs(v, 2.5, 1e-12) {
		t.Fatalf("centroid = %f, expected 2.5", v)
	}
}

func TestLocateIndexAscending(t *testing.T) {
	axis := []float64{0, 10, 20, 30}
	cases := []struct {
		value float64
		index int
		ok    bool
	}{
		{0, 0, true},
		{5, 0, true},
		{10, 1, true},
		{29, 2, true},
		{30, 2, true}, // last point retreats one cell
		{-1, 0, false},
		{31, 0, false},
	}
	for _, c := range cases {
		i, ok := locateIndex(axis, c.value)
		if ok != c.ok || (ok && i != c.index) {
			t.Fatalf("locateIndex(asc, %f) = (%d, %t), expected (%d, %t)", c.value, i, ok, c.index, c.ok)
		}
	}
}

func TestLocateIndexDescending(t *testing.T) {
	axis := []float64{90, 45, 0, -45, -90}
	cases := []struct {
		value float64
		index int
		ok    bool
	}{
		{90, 0, true},
		{50, 0, true},
		{45, 1, true},
		{-90, 3, true},
		{91, 0, false},
		{-91, 0, false},
	}
	for _, c := range cases {
		i, ok := locateIndex(axis, c.value)
		if ok != c.ok || (ok && i != c.index) {
			t.Fatalf("locateIndex(desc, %f) = (%d, %t), expected (%d, %t)", c.value, i, ok, c.index, c.ok)
		}
	}
}

func TestNormalizeLongitude(t *testing.T) {
	axis360 := []float64{0, 90, 180, 270, 359}
	if got := normalizeLongitude(-60, axis360); !scalar.EqualWithinAbs(got, 300, 1e-12) {
		t.Fatalf("normalize to [0,360): got %f, expected 300", got)
	}
	if got := normalizeLongitude(420, axis360); !scalar.EqualWithinAbs(got, 60, 1e-12) {
		t.Fatalf("normalize to [0,360): got %f, expected 60", got)
	}
	axis180 := []float64{-180, -90, 0, 90, 180}
	if got := normalizeLongitude(270, axis180); !scalar.EqualWithinAbs(got, -90, 1e-12) {
		t.Fatalf("normalize to [-180,180): got %f, expected -90", got)
	}
	if got := normalizeLongitude(-60, axis180); !scalar.EqualWithinAbs(got, -60, 1e-12) {
		t.Fatalf("normalize to [-180,180): got %f, expected -60", got)
	}
}
