package rocketenv

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/floats/scalar"
)

const wyomingPage = `<HTML>
<TITLE>University of Wyoming - Radiosonde Data</TITLE>
<H2>72365 ABQ Albuquerque Observations at 12Z 15 Jan 2023</H2>
<PRE>
-----------------------------------------------------------------------------
   PRES   HGHT   TEMP   DWPT   RELH   MIXR   DRCT   SKNT   THTA   THTE   THTV
    hPa     m      C      C      %    g/kg    deg   knot     K      K      K
-----------------------------------------------------------------------------
 1000.0    100   15.0   10.0     72   7.00    270   10.0  288.0  308.0  289.0
  850.0   1500    5.0    0.0     70   5.00    180   20.0  290.0  305.0  291.0
  700.0   3000   -5.0  -10.0     60                 30.0  295.0  305.0  296.0
  500.0   5500  -20.0  -25.0     50   1.00     90   30.0  300.0  305.0  301.0
</PRE><H3>Station information and sounding indices</H3><PRE>
                         Station identifier: ABQ
                             Station number: 72365
                           Observation time: 230115/1200
                           Station latitude: 35.04
                          Station longitude: -106.62
                          Station elevation: 1619.0
</PRE>
</HTML>`

func TestParseWyomingSounding(t *testing.T) {
	p, err := parseWyomingSounding(wyomingPage, testEarthRadius)
	if err != nil {
		t.Fatal(err)
	}
	if !p.elevationOK || !scalar.EqualWithinAbs(p.elevation, 1619, 1e-9) {
		t.Fatalf("station elevation = %f, ok=%t", p.elevation, p.elevationOK)
	}
	// The 700 hPa row lacks a wind direction and must be dropped whole.
	xs, _ := p.pressure.Samples()
	if len(xs) != 3 {
		t.Fatalf("kept %d rows, expected 3", len(xs))
	}
	if !scalar.EqualWithinAbs(p.maxExpectedHeight, geopotentialToGeometric(5500, testEarthRadius), 1e-6) {
		t.Fatalf("max expected height = %f", p.maxExpectedHeight)
	}

	low := geopotentialToGeometric(100, testEarthRadius)
	if v := p.pressure.Call(low); !scalar.EqualWithinAbs(v, 100000, 1e-6) {
		t.Fatalf("surface pressure = %f", v)
	}
	if v := p.temperature.Call(low); !scalar.EqualWithinAbs(v, 288.15, 1e-9) {
		t.Fatalf("surface temperature = %f", v)
	}
	// Wind from 270 blows toward 90: a pure +x wind at 10 knots.
	if v := p.windHeading.Call(low); !scalar.EqualWithinAbs(v, 90, 1e-9) {
		t.Fatalf("surface wind heading = %f", v)
	}
	if v := p.windDirection.Call(low); !scalar.EqualWithinAbs(v, 270, 1e-9) {
		t.Fatalf("surface wind direction = %f", v)
	}
	if v := p.windU.Call(low); !scalar.EqualWithinAbs(v, 10*knotToMS, 1e-9) {
		t.Fatalf("surface wind u = %f", v)
	}
	if v := p.windV.Call(low); !scalar.EqualWithinAbs(v, 0, 1e-9) {
		t.Fatalf("surface wind v = %f", v)
	}
}

func TestParseWyomingSoundingErrors(t *testing.T) {
	_, err := parseWyomingSounding("Can't get 72365 Observations at 12Z 30 Feb 2023.", testEarthRadius)
	if err == nil || !strings.Contains(err.Error(), "Check station number and date") {
		t.Fatalf("expected station/date error, got %v", err)
	}
	_, err = parseWyomingSounding("Invalid OUTPUT: specified\n", testEarthRadius)
	if err == nil || !strings.Contains(err.Error(), "Text: List") {
		t.Fatalf("expected output format error, got %v", err)
	}
	if _, err := parseWyomingSounding("<PRE>\nno data\n</PRE>", testEarthRadius); err == nil {
		t.Fatal("expected error for malformed page")
	}
}

const gsdPage = `RUC2 analysis valid for grid point 6.8 nm / 336 deg from ABQ:
RUC2        15      Jan    23
   CAPE      0    CIN      0  Helic  99999     PW  99999
      1  23062  72365  35.04 -106.62   1619  99999
      2     70     24  99999  99999  99999  99999
      3           ABQ                99999     kt
      9  10000    100    150     50    270     10
      4   8500   1500     50     20    180     20
      5   7000   3000    -50  99999  99999  99999
      6   5000   5500   -200   -250     90     30
`

func TestParseGSDSounding(t *testing.T) {
	p, err := parseGSDSounding(gsdPage)
	if err != nil {
		t.Fatal(err)
	}
	if !p.elevationOK || p.elevation != 1619 {
		t.Fatalf("station elevation = %f, ok=%t", p.elevation, p.elevationOK)
	}
	// Heights in GSD are geometric already; the ceiling is the last pressure
	// level's height.
	if p.maxExpectedHeight != 5500 {
		t.Fatalf("max expected height = %f", p.maxExpectedHeight)
	}
	if v := p.pressure.Call(100); !scalar.EqualWithinAbs(v, 100000, 1e-6) {
		t.Fatalf("surface pressure = %f", v)
	}
	// Pressure and temperature keep the 3000 m level even though its wind is
	// missing: at 3000 m the temperature is -5 C.
	if v := p.temperature.Call(3000); !scalar.EqualWithinAbs(v, 268.15, 1e-9) {
		t.Fatalf("temperature at 3000 m = %f", v)
	}
	// The wind profile skips 3000 m, interpolating 1500 to 5500 instead.
	xs, _ := p.windSpeed.Samples()
	if len(xs) != 3 {
		t.Fatalf("wind profile has %d levels, expected 3", len(xs))
	}
	if v := p.windHeading.Call(100); !scalar.EqualWithinAbs(v, 90, 1e-9) {
		t.Fatalf("surface wind heading = %f", v)
	}
	if v := p.windSpeed.Call(100); !scalar.EqualWithinAbs(v, 10*knotToMS, 1e-9) {
		t.Fatalf("surface wind speed = %f", v)
	}
}

func TestParseGSDSoundingTooShort(t *testing.T) {
	if _, err := parseGSDSounding("x"); err == nil {
		t.Fatal("expected error for empty response")
	}
	if _, err := parseGSDSounding(strings.Repeat("no usable rows\n", 5)); err == nil {
		t.Fatal("expected error for a page without sounding levels")
	}
}

func TestEnvironmentWyomingSounding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wyomingPage))
	}))
	defer srv.Close()

	e, err := NewEnvironment(5.2, 35.04, -106.62, 0, "WGS84", log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetAtmosphericModel(WyomingSounding, AtmosphericModelOptions{File: srv.URL}); err != nil {
		t.Fatal(err)
	}
	if e.AtmosphericModelType() != WyomingSounding {
		t.Fatalf("model type = %s", e.AtmosphericModelType())
	}
	if e.AtmosphericModelFile() != srv.URL {
		t.Fatalf("model file = %s", e.AtmosphericModelFile())
	}
	if !scalar.EqualWithinAbs(e.Elevation, 1619, 1e-9) {
		t.Fatalf("elevation = %f", e.Elevation)
	}
	low := geopotentialToGeometric(100, testEarthRadius)
	if v := e.Pressure().Call(low); !scalar.EqualWithinAbs(v, 100000, 1e-3) {
		t.Fatalf("pressure = %f", v)
	}
}

func TestEnvironmentSoundingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewEnvironment(5.2, 35.04, -106.62, 0, "WGS84", log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetAtmosphericModel(NOAARucSounding, AtmosphericModelOptions{File: srv.URL}); err == nil {
		t.Fatal("expected error for a failing sounding download")
	}
	// The failed change keeps the standard atmosphere active.
	if e.AtmosphericModelType() != StandardAtmosphere {
		t.Fatalf("model type = %s", e.AtmosphericModelType())
	}
}
