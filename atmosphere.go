package rocketenv

import (
	"fmt"
	"math"
	"time"
)

// ModelType enumerates the supported atmospheric model sources.
type ModelType uint8

const (
	// StandardAtmosphere is the ISO 2533 standard atmosphere with no wind.
	StandardAtmosphere ModelType = iota
	// CustomAtmosphere uses caller-supplied profiles.
	CustomAtmosphere
	// WyomingSounding reads the Wyoming Upper Air Soundings database.
	WyomingSounding
	// NOAARucSounding reads NOAA RUC soundings in ASCII GSD format.
	NOAARucSounding
	// Forecast reads a gridded weather forecast dataset.
	Forecast
	// Reanalysis reads a gridded reanalysis dataset.
	Reanalysis
	// Ensemble reads a gridded ensemble forecast dataset.
	Ensemble
	// Windy reads a Windy.com meteogram.
	Windy
)

func (m ModelType) String() string {
	switch m {
	case StandardAtmosphere:
		return "StandardAtmosphere"
	case CustomAtmosphere:
		return "CustomAtmosphere"
	case WyomingSounding:
		return "WyomingSounding"
	case NOAARucSounding:
		return "NOAARucSounding"
	case Forecast:
		return "Forecast"
	case Reanalysis:
		return "Reanalysis"
	case Ensemble:
		return "Ensemble"
	case Windy:
		return "Windy"
	}
	panic("cannot stringify unknown atmospheric model type")
}

// ParseModelType is the inverse of ModelType.String.
func ParseModelType(s string) (ModelType, error) {
	for _, m := range []ModelType{StandardAtmosphere, CustomAtmosphere, WyomingSounding, NOAARucSounding, Forecast, Reanalysis, Ensemble, Windy} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown atmospheric model type %q", s)
}

// locationSensitive reports whether the model must be re-ingested when the
// launch location or date changes.
func (m ModelType) locationSensitive() bool {
	return m == Forecast || m == Reanalysis || m == Ensemble
}

// atmosphere is an immutable snapshot of the active atmospheric model: the
// full profile set plus its provenance. Environment swaps whole snapshots,
// so readers never observe a half-updated model.
type atmosphere struct {
	modelType ModelType
	modelFile string
	modelDict *DatasetDictionary

	pressure         *Function
	temperature      *Function
	density          *Function
	speedOfSound     *Function
	dynamicViscosity *Function

	windVelocityX *Function
	windVelocityY *Function
	windSpeed     *Function
	windHeading   *Function
	windDirection *Function

	maxExpectedHeight float64
	coverage          *DatasetCoverage

	ensemble       *EnsembleData
	ensembleMember int
}

// computeDerived fills density, speed of sound and dynamic viscosity from
// pressure and temperature: rho = P/(R T), a = sqrt(1.4 R T) and the ISO
// 2533 Sutherland form u = B T^1.5 / (T + S).
func (a *atmosphere) computeDerived() {
	P, T := a.pressure, a.temperature
	a.density = NewFunction(func(h float64) float64 {
		return P.Call(h) / (AirGasConstant * T.Call(h))
	})
	a.speedOfSound = NewFunction(func(h float64) float64 {
		return math.Sqrt(1.4 * AirGasConstant * T.Call(h))
	})
	a.dynamicViscosity = NewFunction(func(h float64) float64 {
		t := T.Call(h)
		return 1.458e-6 * math.Pow(t, 1.5) / (t + 110.4)
	})
}

// withWindGust returns a copy of the snapshot with the gust profiles added
// to the wind components. Wind heading and speed become closures over the
// summed components; the stored direction profile is kept as-is.
func (a *atmosphere) withWindGust(gustX, gustY *Function) *atmosphere {
	b := *a
	b.windVelocityX = a.windVelocityX.Add(gustX)
	b.windVelocityY = a.windVelocityY.Add(gustY)
	u, v := b.windVelocityX, b.windVelocityY
	b.windHeading = NewFunction(func(h float64) float64 {
		return Rad2deg(math.Atan2(u.Call(h), v.Call(h)))
	})
	b.windSpeed = NewFunction(func(h float64) float64 {
		return math.Hypot(u.Call(h), v.Call(h))
	})
	return &b
}

// newStandardAtmosphere builds the ISO 2533 snapshot with zero wind.
func newStandardAtmosphere(earthRadius float64) *atmosphere {
	pressure, temperature := ISAProfiles(earthRadius)
	zero := NewConstantFunction(0)
	a := &atmosphere{
		modelType:         StandardAtmosphere,
		pressure:          pressure,
		temperature:       temperature,
		windVelocityX:     zero,
		windVelocityY:     zero,
		windSpeed:         zero,
		windHeading:       zero,
		windDirection:     zero,
		maxExpectedHeight: 80000,
	}
	a.computeDerived()
	return a
}

// newCustomAtmosphere builds a snapshot from caller-supplied profile sources.
// Nil pressure or temperature fall back to the standard atmosphere; nil wind
// components default to calm. Sampled inputs raise the expected ceiling to
// their last sample height, floored at 1 km.
func newCustomAtmosphere(pressure, temperature, windU, windV any, earthRadius float64) (*atmosphere, error) {
	isaPressure, isaTemperature := ISAProfiles(earthRadius)
	maxExpectedHeight := 1000.0

	resolve := func(src any, fallback *Function, what string) (*Function, error) {
		if src == nil {
			return fallback, nil
		}
		f, err := ResolveSource(src, Linear, ExtrapConstant)
		if err != nil {
			return nil, fmt.Errorf("resolving %s profile: %w", what, err)
		}
		if _, hi, ok := f.SampleBounds(); ok && hi > maxExpectedHeight {
			maxExpectedHeight = hi
		}
		return f, nil
	}

	zero := NewConstantFunction(0)
	p, err := resolve(pressure, isaPressure, "pressure")
	if err != nil {
		return nil, err
	}
	t, err := resolve(temperature, isaTemperature, "temperature")
	if err != nil {
		return nil, err
	}
	u, err := resolve(windU, zero, "wind-u")
	if err != nil {
		return nil, err
	}
	v, err := resolve(windV, zero, "wind-v")
	if err != nil {
		return nil, err
	}

	a := &atmosphere{
		modelType:         CustomAtmosphere,
		pressure:          p,
		temperature:       t,
		windVelocityX:     u,
		windVelocityY:     v,
		maxExpectedHeight: maxExpectedHeight,
	}
	a.windHeading = NewFunction(func(h float64) float64 {
		return Rad2deg(math.Atan2(u.Call(h), v.Call(h)))
	})
	a.windSpeed = NewFunction(func(h float64) float64 {
		return math.Hypot(u.Call(h), v.Call(h))
	})
	a.windDirection = NewFunction(func(h float64) float64 {
		return mod360(a.windHeading.Call(h) - 180)
	})
	a.computeDerived()
	return a, nil
}

// atmosphereFromColumns builds a snapshot from one assembled sounding. All
// profiles are sampled over geometric height with linear interpolation.
func atmosphereFromColumns(c *griddedColumns, modelType ModelType) (*atmosphere, error) {
	a := &atmosphere{
		modelType:         modelType,
		maxExpectedHeight: math.Max(c.height[0], c.height[len(c.height)-1]),
	}
	var err error
	for _, bind := range []struct {
		dst **Function
		ys  []float64
	}{
		{&a.pressure, c.levels},
		{&a.temperature, c.temperature},
		{&a.windVelocityX, c.windU},
		{&a.windVelocityY, c.windV},
		{&a.windHeading, c.windHeading},
		{&a.windDirection, c.windDirection},
		{&a.windSpeed, c.windSpeed},
	} {
		if *bind.dst, err = newProfile(c.height, bind.ys); err != nil {
			return nil, fmt.Errorf("building atmosphere profile: %w", err)
		}
	}
	a.computeDerived()
	return a, nil
}

// atmosphereFromSounding builds a snapshot from a parsed text sounding.
func atmosphereFromSounding(p *soundingProfiles, modelType ModelType) *atmosphere {
	a := &atmosphere{
		modelType:         modelType,
		pressure:          p.pressure,
		temperature:       p.temperature,
		windVelocityX:     p.windU,
		windVelocityY:     p.windV,
		windSpeed:         p.windSpeed,
		windHeading:       p.windHeading,
		windDirection:     p.windDirection,
		maxExpectedHeight: p.maxExpectedHeight,
	}
	a.computeDerived()
	return a
}

// namedFeed is a weather product served by NOMADS under a timestamped URL.
// Publication lags real time, so ingestion steps the run time back by the
// feed cadence until an attempt succeeds.
type namedFeed struct {
	name         string
	ensemble     bool
	cadenceHours int
	urlFor       func(t time.Time) string
}

var namedFeeds = map[string]namedFeed{
	"GFS": {name: "GFS", cadenceHours: 6, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/gfs_0p25/gfs%04d%02d%02d/gfs_0p25_%02dz",
			t.Year(), t.Month(), t.Day(), 6*(t.Hour()/6))
	}},
	"FV3": {name: "FV3", cadenceHours: 6, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/gfs_0p25_parafv3/gfs%04d%02d%02d/gfs_0p25_parafv3_%02dz",
			t.Year(), t.Month(), t.Day(), 6*(t.Hour()/6))
	}},
	"NAM": {name: "NAM", cadenceHours: 6, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/nam/nam%04d%02d%02d/nam_conusnest_%02dz",
			t.Year(), t.Month(), t.Day(), 6*(t.Hour()/6))
	}},
	"RAP": {name: "RAP", cadenceHours: 1, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/rap/rap%04d%02d%02d/rap_%02dz",
			t.Year(), t.Month(), t.Day(), t.Hour())
	}},
	"GEFS": {name: "GEFS", ensemble: true, cadenceHours: 6, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/gens_bc/gens%04d%02d%02d/gep_all_%02dz",
			t.Year(), t.Month(), t.Day(), 6*(t.Hour()/6))
	}},
	"CMC": {name: "CMC", ensemble: true, cadenceHours: 12, urlFor: func(t time.Time) string {
		return fmt.Sprintf("https://nomads.ncep.noaa.gov/dods/cmcens/cmcens%04d%02d%02d/cmcens_all_%02dz",
			t.Year(), t.Month(), t.Day(), 12*(t.Hour()/12))
	}},
}

const namedFeedAttempts = 10
