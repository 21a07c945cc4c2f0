package rocketenv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestNormalizeWindyModel(t *testing.T) {
	cases := map[string]string{
		"ECMWF":  "ecmwf",
		"GFS":    "gfs",
		"ICONEU": "iconEu",
		"iconEu": "iconEu",
	}
	for in, want := range cases {
		if got := normalizeWindyModel(in); got != want {
			t.Fatalf("normalizeWindyModel(%s) = %s, expected %s", in, got, want)
		}
	}
}

// windyFixtureJSON builds a two-hour meteogram where the second hour blows a
// 5 m/s westerly and the first a 3 m/s one.
func windyFixtureJSON(t *testing.T, t0 time.Time) []byte {
	t.Helper()
	data := map[string]any{
		"hours": []float64{float64(t0.UnixMilli()), float64(t0.Add(3 * time.Hour).UnixMilli())},
	}
	for _, pL := range windyPressureLevels {
		gh := float64(1000-pL) * 11
		data[fmt.Sprintf("gh-%dh", pL)] = []float64{gh, gh}
		data[fmt.Sprintf("temp-%dh", pL)] = []float64{288 - 0.0065*gh, 288 - 0.0065*gh}
		data[fmt.Sprintf("wind_u-%dh", pL)] = []float64{3, 5}
		data[fmt.Sprintf("wind_v-%dh", pL)] = []float64{0, 0}
	}
	payload, err := json.Marshal(map[string]any{
		"header": map[string]any{"elevation": 1401.0},
		"data":   data,
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestWindySounding(t *testing.T) {
	t0 := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	var w windyResponse
	if err := json.Unmarshal(windyFixtureJSON(t, t0), &w); err != nil {
		t.Fatal(err)
	}

	// Launch two hours in: the second forecast hour is nearest.
	c, cov, elevation, err := w.sounding(t0.Add(2*time.Hour), testEarthRadius)
	if err != nil {
		t.Fatal(err)
	}
	if elevation != 1401 {
		t.Fatalf("elevation = %f", elevation)
	}
	if len(c.levels) != len(windyPressureLevels) {
		t.Fatalf("levels = %d", len(c.levels))
	}
	if c.levels[0] != 100000 || c.levels[len(c.levels)-1] != 15000 {
		t.Fatalf("level pressures = %v", c.levels)
	}
	if !scalar.EqualWithinAbs(c.windU[0], 5, 1e-12) {
		t.Fatalf("wind u = %f, expected the second hour's value", c.windU[0])
	}
	if !scalar.EqualWithinAbs(c.windHeading[0], 90, 1e-9) {
		t.Fatalf("wind heading = %f", c.windHeading[0])
	}
	if cov.IntervalHours != 3 || !cov.InitDate.Equal(t0) {
		t.Fatalf("coverage = %+v", cov)
	}
}

func TestEnvironmentWindyModel(t *testing.T) {
	t0 := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	payload := windyFixtureJSON(t, t0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/gfs/") {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()
	oldBase := windyBaseURL
	windyBaseURL = srv.URL
	defer func() { windyBaseURL = oldBase }()

	e, err := NewEnvironment(5.2, 32.99, -106.97, 1400, "WGS84", log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetDate(t0.Add(time.Hour), "UTC"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetAtmosphericModel(Windy, AtmosphericModelOptions{File: "GFS"}); err != nil {
		t.Fatal(err)
	}
	if e.AtmosphericModelType() != Windy || e.AtmosphericModelFile() != "gfs" {
		t.Fatalf("model = %s/%s", e.AtmosphericModelType(), e.AtmosphericModelFile())
	}
	if e.Elevation != 1401 {
		t.Fatalf("elevation = %f", e.Elevation)
	}
	cov := e.Coverage()
	if cov == nil || cov.InitLat != 32.99 || cov.InitLon != -106.97 {
		t.Fatalf("coverage = %+v", cov)
	}
	low := geopotentialToGeometric(0, testEarthRadius)
	if u := e.WindVelocityX().Call(low); !scalar.EqualWithinAbs(u, 3, 1e-9) {
		t.Fatalf("wind u = %f, expected the first hour's value", u)
	}
}

func TestWindyIconEuError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "outside domain", http.StatusBadRequest)
	}))
	defer srv.Close()
	oldBase := windyBaseURL
	windyBaseURL = srv.URL
	defer func() { windyBaseURL = oldBase }()

	_, err := fetchWindyMeteogram("iconEu", -23.2, -45.9)
	if err == nil || !strings.Contains(err.Error(), "inside Europe") {
		t.Fatalf("expected Icon-EU domain error, got %v", err)
	}
}
