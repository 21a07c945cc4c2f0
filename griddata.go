package rocketenv

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/soniakeys/meeus/v3/julian"
)

// GriddedDataset is a rectangular-grid weather dataset: variables indexed by
// time, (optionally ensemble member,) pressure level, latitude and longitude.
// Implementations report missing values as NaN. The netCDF binding in this
// package implements it; tests use an in-memory fixture.
type GriddedDataset interface {
	// Axis returns the coordinate values of a named axis variable.
	Axis(name string) ([]float64, error)
	// AxisUnits returns the units attribute of a named axis variable,
	// e.g. "hours since 2023-01-15 00:00:00" for a time axis.
	AxisUnits(name string) (string, error)
	// Levels3 reads variable name at a fixed time index over all pressure
	// levels and the 2x2 lat/lon cell. Result is indexed [level][lat][lon].
	Levels3(name string, timeIndex int, latIdx, lonIdx [2]int) ([][2][2]float64, error)
	// Levels4 is Levels3 with an additional leading ensemble-member index.
	Levels4(name string, timeIndex, member int, latIdx, lonIdx [2]int) ([][2][2]float64, error)
	// Surface2 reads a surface (level-less) variable at a fixed time index
	// over the 2x2 lat/lon cell.
	Surface2(name string, timeIndex int, latIdx, lonIdx [2]int) ([2][2]float64, error)
	Close() error
}

// DatasetDictionary maps the canonical variable roles to the short names a
// particular dataset uses. Empty strings mark variables the dataset lacks.
// Either GeopotentialHeight or Geopotential must be present.
type DatasetDictionary struct {
	Time                      string
	Latitude                  string
	Longitude                 string
	Level                     string
	Ensemble                  string
	Temperature               string
	SurfaceGeopotentialHeight string
	GeopotentialHeight        string
	Geopotential              string
	UWind                     string
	VWind                     string
}

// NOAADictionary returns the variable naming used by NOAA's NOMADS OPeNDAP
// server. Ensemble datasets add the member axis and drop the surface field.
func NOAADictionary(ensemble bool) DatasetDictionary {
	d := DatasetDictionary{
		Time:                      "time",
		Latitude:                  "lat",
		Longitude:                 "lon",
		Level:                     "lev",
		Temperature:               "tmpprs",
		SurfaceGeopotentialHeight: "hgtsfc",
		GeopotentialHeight:        "hgtprs",
		UWind:                     "ugrdprs",
		VWind:                     "vgrdprs",
	}
	if ensemble {
		d.Ensemble = "ens"
		d.SurfaceGeopotentialHeight = ""
	}
	return d
}

// ECMWFDictionary returns the variable naming used by ECMWF GRIB-derived
// netCDF files, which carry geopotential instead of geopotential height.
func ECMWFDictionary(ensemble bool) DatasetDictionary {
	d := DatasetDictionary{
		Time:         "time",
		Latitude:     "latitude",
		Longitude:    "longitude",
		Level:        "level",
		Temperature:  "t",
		Geopotential: "z",
		UWind:        "u",
		VWind:        "v",
	}
	if ensemble {
		d.Ensemble = "number"
	}
	return d
}

// DictionaryByName resolves the two preset dictionary names.
func DictionaryByName(name string, ensemble bool) (DatasetDictionary, error) {
	switch name {
	case "NOAA":
		return NOAADictionary(ensemble), nil
	case "ECMWF":
		return ECMWFDictionary(ensemble), nil
	}
	return DatasetDictionary{}, fmt.Errorf("unknown dictionary preset %q (expected NOAA or ECMWF)", name)
}

// DatasetCoverage records the time and spatial extent of the last gridded
// ingestion, for diagnostics.
type DatasetCoverage struct {
	InitDate      time.Time
	EndDate       time.Time
	IntervalHours int
	InitLat       float64
	EndLat        float64
	InitLon       float64
	EndLon        float64
}

// timeAxisConverter converts between time.Time and the numeric offsets of a
// dataset time axis whose units read "<unit> since <epoch>".
type timeAxisConverter struct {
	epochJD float64
	perDay  float64 // axis units per day
}

func newTimeAxisConverter(units string) (*timeAxisConverter, error) {
	fields := strings.SplitN(units, " since ", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("cannot parse time axis units %q", units)
	}
	var perDay float64
	switch strings.ToLower(strings.TrimSpace(fields[0])) {
	case "days", "day":
		perDay = 1
	case "hours", "hour":
		perDay = 24
	case "minutes", "minute":
		perDay = 24 * 60
	case "seconds", "second":
		perDay = 24 * 3600
	default:
		return nil, fmt.Errorf("unsupported time axis unit %q", fields[0])
	}
	epochStr := strings.TrimSpace(fields[1])
	var epoch time.Time
	var err error
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006-1-2 15:4:5",
	} {
		epoch, err = time.Parse(layout, epochStr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse time axis epoch %q", epochStr)
	}
	return &timeAxisConverter{epochJD: julian.TimeToJD(epoch.UTC()), perDay: perDay}, nil
}

func (c *timeAxisConverter) toNum(t time.Time) float64 {
	return (julian.TimeToJD(t.UTC()) - c.epochJD) * c.perDay
}

func (c *timeAxisConverter) toTime(num float64) time.Time {
	return julian.JDToTime(c.epochJD + num/c.perDay).UTC()
}

// nearestTimeIndex finds the axis entry closest to date and verifies date is
// inside the axis coverage. An inexact match is substituted with a warning.
func nearestTimeIndex(axis []float64, conv *timeAxisConverter, date time.Time, logger log.Logger) (int, error) {
	want := conv.toNum(date)
	best := 0
	for i, v := range axis {
		if math.Abs(v-want) < math.Abs(axis[best]-want) {
			best = i
		}
	}
	got := axis[best]
	if best == 0 && want < got {
		return 0, fmt.Errorf("chosen launch time is not available in the dataset, which starts at %v", conv.toTime(got))
	}
	if best == len(axis)-1 && want > got {
		return 0, fmt.Errorf("chosen launch time is not available in the dataset, which ends at %v", conv.toTime(got))
	}
	if want != got {
		logger.Log("level", "warn", "msg", "exact launch time not in dataset, substituting nearest", "using", conv.toTime(got).Format(time.RFC3339))
	}
	return best, nil
}

// locateGridIndex finds the upper index of the cell bracketing value on a
// sorted (either direction) axis, erroring when value is outside coverage.
func locateGridIndex(axis []float64, value float64, what string) (int, error) {
	i, ok := locateIndex(axis, value)
	if !ok {
		return 0, fmt.Errorf("%s %f not inside region covered by dataset, which is from %f to %f", what, value, axis[0], axis[len(axis)-1])
	}
	return i + 1, nil
}

// griddedColumns is one vertical sounding assembled from a gridded dataset:
// parallel per-level slices, already interpolated to the launch point and
// cleaned of levels with missing values.
type griddedColumns struct {
	levels        []float64 // Pa
	height        []float64 // geometric m above sea level
	temperature   []float64 // K
	windU         []float64 // m/s
	windV         []float64 // m/s
	windHeading   []float64 // deg
	windDirection []float64 // deg
	windSpeed     []float64 // m/s
}

// bilinearLevels collapses a [level][2][2] block to per-level values at the
// fractional cell position (fx along latitude, fy along longitude).
func bilinearLevels(block [][2][2]float64, fx, fy float64) []float64 {
	out := make([]float64, len(block))
	for i, cell := range block {
		out[i] = bilinear(fx, fy, cell[0][0], cell[0][1], cell[1][0], cell[1][1])
	}
	return out
}

// assembleColumns derives the full sounding from interpolated geopotential
// height, temperature and wind components, converting units and dropping
// levels with missing values. levels arrive in mbar and leave in Pa.
func assembleColumns(levelsMbar, geopHeight, temperature, windU, windV []float64, earthRadius float64, logger log.Logger) (*griddedColumns, error) {
	n := len(levelsMbar)
	c := &griddedColumns{}
	dropped := false
	for i := 0; i < n; i++ {
		h := geopHeight[i]
		t := temperature[i]
		u := windU[i]
		v := windV[i]
		if math.IsNaN(h) || math.IsNaN(t) || math.IsNaN(u) || math.IsNaN(v) {
			dropped = true
			continue
		}
		heading := Rad2deg(math.Atan2(u, v))
		c.levels = append(c.levels, 100*levelsMbar[i])
		c.height = append(c.height, geopotentialToGeometric(h, earthRadius))
		c.temperature = append(c.temperature, t)
		c.windU = append(c.windU, u)
		c.windV = append(c.windV, v)
		c.windHeading = append(c.windHeading, heading)
		c.windDirection = append(c.windDirection, mod360(heading-180))
		c.windSpeed = append(c.windSpeed, math.Sqrt(u*u+v*v))
	}
	if dropped {
		logger.Log("level", "warn", "msg", "missing values in weather dataset, pressure levels removed")
	}
	if len(c.levels) < 2 {
		return nil, fmt.Errorf("dataset sounding has %d usable pressure levels, need at least 2", len(c.levels))
	}
	return c, nil
}

// gridQuery is the location/time context of one gridded ingestion.
type gridQuery struct {
	timeIndex      int
	latIdx, lonIdx [2]int
	fx, fy         float64 // fractional cell position, latitude then longitude
	coverage       DatasetCoverage
}

// resolveGridQuery locates date, lat and lon on the dataset axes and fills
// the coverage record.
func resolveGridQuery(ds GriddedDataset, dict DatasetDictionary, date time.Time, lat, lon float64, logger log.Logger) (*gridQuery, error) {
	timeAxis, err := ds.Axis(dict.Time)
	if err != nil {
		return nil, fmt.Errorf("reading time axis: %w", err)
	}
	units, err := ds.AxisUnits(dict.Time)
	if err != nil {
		return nil, fmt.Errorf("reading time axis units: %w", err)
	}
	conv, err := newTimeAxisConverter(units)
	if err != nil {
		return nil, err
	}
	timeIndex, err := nearestTimeIndex(timeAxis, conv, date, logger)
	if err != nil {
		return nil, err
	}

	latAxis, err := ds.Axis(dict.Latitude)
	if err != nil {
		return nil, fmt.Errorf("reading latitude axis: %w", err)
	}
	lonAxis, err := ds.Axis(dict.Longitude)
	if err != nil {
		return nil, fmt.Errorf("reading longitude axis: %w", err)
	}

	qlon := normalizeLongitude(lon, lonAxis)
	lonHi, err := locateGridIndex(lonAxis, qlon, "longitude")
	if err != nil {
		return nil, err
	}
	latHi, err := locateGridIndex(latAxis, lat, "latitude")
	if err != nil {
		return nil, err
	}

	x1, x2 := latAxis[latHi-1], latAxis[latHi]
	y1, y2 := lonAxis[lonHi-1], lonAxis[lonHi]

	intervalHours := 0
	if len(timeAxis) > 1 {
		span := conv.toTime(timeAxis[len(timeAxis)-1]).Sub(conv.toTime(timeAxis[0]))
		intervalHours = int(span.Hours()) / (len(timeAxis) - 1)
	}

	return &gridQuery{
		timeIndex: timeIndex,
		latIdx:    [2]int{latHi - 1, latHi},
		lonIdx:    [2]int{lonHi - 1, lonHi},
		fx:        (lat - x1) / (x2 - x1),
		fy:        (qlon - y1) / (y2 - y1),
		coverage: DatasetCoverage{
			InitDate:      conv.toTime(timeAxis[0]),
			EndDate:       conv.toTime(timeAxis[len(timeAxis)-1]),
			IntervalHours: intervalHours,
			InitLat:       latAxis[0],
			EndLat:        latAxis[len(latAxis)-1],
			InitLon:       lonAxis[0],
			EndLon:        lonAxis[len(lonAxis)-1],
		},
	}, nil
}

// readGeopotentialHeight reads the geopotential-height block, falling back to
// geopotential divided by standard gravity when the dataset only carries the
// latter.
func readGeopotentialHeight(ds GriddedDataset, dict DatasetDictionary, q *gridQuery) ([][2][2]float64, error) {
	if dict.GeopotentialHeight != "" {
		block, err := ds.Levels3(dict.GeopotentialHeight, q.timeIndex, q.latIdx, q.lonIdx)
		if err == nil {
			return block, nil
		}
	}
	if dict.Geopotential != "" {
		block, err := ds.Levels3(dict.Geopotential, q.timeIndex, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, fmt.Errorf("reading geopotential: %w", err)
		}
		for i := range block {
			for a := 0; a < 2; a++ {
				for b := 0; b < 2; b++ {
					block[i][a][b] /= StandardG
				}
			}
		}
		return block, nil
	}
	return nil, fmt.Errorf("dataset provides neither geopotential height nor geopotential; check dictionary")
}

// ingestForecast reads one sounding for date/lat/lon from a forecast or
// reanalysis dataset. The returned elevation is the bilinear surface
// geopotential height, with ok=false when the dataset lacks the field.
func ingestForecast(ds GriddedDataset, dict DatasetDictionary, date time.Time, lat, lon, earthRadius float64, logger log.Logger) (c *griddedColumns, cov DatasetCoverage, elevation float64, elevationOK bool, err error) {
	q, err := resolveGridQuery(ds, dict, date, lat, lon, logger)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, err
	}

	levels, err := ds.Axis(dict.Level)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, fmt.Errorf("reading pressure levels: %w", err)
	}
	geop, err := readGeopotentialHeight(ds, dict, q)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, err
	}
	temp, err := ds.Levels3(dict.Temperature, q.timeIndex, q.latIdx, q.lonIdx)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, fmt.Errorf("reading temperature: %w", err)
	}
	windU, err := ds.Levels3(dict.UWind, q.timeIndex, q.latIdx, q.lonIdx)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, fmt.Errorf("reading wind-u component: %w", err)
	}
	windV, err := ds.Levels3(dict.VWind, q.timeIndex, q.latIdx, q.lonIdx)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, fmt.Errorf("reading wind-v component: %w", err)
	}

	c, err = assembleColumns(levels,
		bilinearLevels(geop, q.fx, q.fy),
		bilinearLevels(temp, q.fx, q.fy),
		bilinearLevels(windU, q.fx, q.fy),
		bilinearLevels(windV, q.fx, q.fy),
		earthRadius, logger)
	if err != nil {
		return nil, DatasetCoverage{}, 0, false, err
	}

	if dict.SurfaceGeopotentialHeight != "" {
		cell, err := ds.Surface2(dict.SurfaceGeopotentialHeight, q.timeIndex, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, DatasetCoverage{}, 0, false, fmt.Errorf("reading surface elevation: %w", err)
		}
		elevation = bilinear(q.fx, q.fy, cell[0][0], cell[0][1], cell[1][0], cell[1][1])
		elevationOK = true
	}
	return c, q.coverage, elevation, elevationOK, nil
}
