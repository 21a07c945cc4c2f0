package rocketenv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestExportRoundTrip(t *testing.T) {
	e := testEnvironment(t)
	if err := e.SetDate(time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC), "America/Denver"); err != nil {
		t.Fatal(err)
	}
	err := e.SetAtmosphericModel(CustomAtmosphere, AtmosphericModelOptions{
		Pressure:    [][2]float64{{0, 101325}, {10000, 26436}},
		Temperature: [][2]float64{{0, 288.15}, {10000, 223.15}},
		WindU:       [][2]float64{{0, 3}, {10000, 3}},
		WindV:       [][2]float64{{0, -1}, {10000, -1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	exp := e.Export()
	if exp.Date != [4]int{2023, 1, 15, 19} {
		t.Fatalf("exported date = %v", exp.Date)
	}
	if exp.TimeZone != "America/Denver" {
		t.Fatalf("exported time zone = %s", exp.TimeZone)
	}
	if exp.AtmosphericModelType != "CustomAtmosphere" {
		t.Fatalf("exported model type = %s", exp.AtmosphericModelType)
	}
	if exp.MaxExpectedHeight != 10000 {
		t.Fatalf("exported ceiling = %f", exp.MaxExpectedHeight)
	}
	if len(exp.PressureProfile) != 2 || exp.PressureProfile[1] != [2]float64{10000, 26436} {
		t.Fatalf("exported pressure profile = %v", exp.PressureProfile)
	}

	rebuilt, err := exp.Environment()
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt.AtmosphericModelType() != CustomAtmosphere {
		t.Fatalf("rebuilt model type = %s", rebuilt.AtmosphericModelType())
	}
	if !rebuilt.Date().Equal(e.Date()) {
		t.Fatalf("rebuilt date = %v, expected %v", rebuilt.Date(), e.Date())
	}
	if rebuilt.TimeZone != "America/Denver" {
		t.Fatalf("rebuilt time zone = %s", rebuilt.TimeZone)
	}
	for _, h := range []float64{0, 5000, 10000} {
		if p, q := e.Pressure().Call(h), rebuilt.Pressure().Call(h); !scalar.EqualWithinAbs(p, q, 1e-6) {
			t.Fatalf("pressure mismatch at %f m: %f vs %f", h, p, q)
		}
		if u, v := e.WindVelocityX().Call(h), rebuilt.WindVelocityX().Call(h); !scalar.EqualWithinAbs(u, v, 1e-9) {
			t.Fatalf("wind mismatch at %f m: %f vs %f", h, u, v)
		}
	}
}

func TestExportJSONKeys(t *testing.T) {
	e := testEnvironment(t)
	payload, err := json.Marshal(e.Export())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		`"railLength"`,
		`"gravity"`,
		`"maxExpectedHeight"`,
		`"atmosphericModelType"`,
		`"atmosphericModelPressureProfile"`,
		`"atmosphericModelWindVelocityXProfile"`,
	} {
		if !strings.Contains(string(payload), key) {
			t.Fatalf("export JSON missing key %s", key)
		}
	}
	// Standard atmosphere carries no dictionary; the field must be omitted.
	if strings.Contains(string(payload), "atmosphericModelDict") {
		t.Fatal("export JSON must omit the dictionary when absent")
	}
}

func TestExportDiscretizesCallableProfiles(t *testing.T) {
	e := testEnvironment(t)
	exp := e.Export()
	// Standard atmosphere profiles are closed-form; the export samples them.
	if len(exp.PressureProfile) != 200 {
		t.Fatalf("discretized pressure profile has %d points", len(exp.PressureProfile))
	}
	if !scalar.EqualWithinAbs(exp.PressureProfile[0][1], 101325, 1e-6) {
		t.Fatalf("sea level export pressure = %f", exp.PressureProfile[0][1])
	}
}

func TestImportEnvironmentExport(t *testing.T) {
	e := testEnvironment(t)
	exp := e.Export()
	payload, err := json.Marshal(exp)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "env.json")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal(err)
	}

	imported, err := ImportEnvironmentExport(path)
	if err != nil {
		t.Fatal(err)
	}
	if imported.Latitude != e.Latitude || imported.Datum != "WGS84" {
		t.Fatalf("imported site = %+v", imported)
	}
	if _, err := ImportEnvironmentExport(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
