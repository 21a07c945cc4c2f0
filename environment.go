package rocketenv

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
)

// Environment models the launch site: geodetic location, date, gravity and
// the active atmospheric model. All atmospheric reads go through an immutable
// snapshot which model changes swap atomically, so a trajectory integration
// running concurrently never sees a half-updated profile set.
type Environment struct {
	RailLength float64
	Latitude   float64
	Longitude  float64
	Elevation  float64
	Datum      string
	TimeZone   string

	// Launch site in UTM coordinates, valid for latitudes in (-80, 84).
	InitialEast       float64
	InitialNorth      float64
	InitialUtmZone    int
	InitialUtmLetter  string
	InitialHemisphere string
	InitialEW         string

	ellipsoid   Ellipsoid
	earthRadius float64
	date        time.Time // UTC
	localDate   time.Time
	gravity     *Function
	atm         atomic.Pointer[atmosphere]
	logger      log.Logger

	// lastFile and lastDict allow re-ingesting location-sensitive models
	// when the launch site or date moves.
	lastFile string
	lastDict *DatasetDictionary

	// openDataset is swapped by tests for an in-memory fixture.
	openDataset func(path string) (GriddedDataset, error)
	now         func() time.Time

	topo *topographicProfile
}

// NewEnvironment creates a launch site environment at the given coordinates,
// initialized with the standard atmosphere and Somigliana gravity. The datum
// names the reference ellipsoid (SIRGAS2000, SAD69, NAD83 or WGS84).
func NewEnvironment(railLength, latitude, longitude, elevation float64, datum string, logger log.Logger) (*Environment, error) {
	if logger == nil {
		logger = log.NewLogfmtLogger(os.Stdout)
	}
	ellipsoid, err := EllipsoidFromDatum(datum)
	if err != nil {
		return nil, err
	}
	e := &Environment{
		RailLength:  railLength,
		Latitude:    latitude,
		Longitude:   longitude,
		Elevation:   elevation,
		Datum:       datum,
		TimeZone:    "UTC",
		ellipsoid:   ellipsoid,
		earthRadius: EarthRadius(latitude, ellipsoid),
		logger:      log.With(logger, "component", "environment"),
		openDataset: OpenNetCDF,
		now:         time.Now,
	}
	if latitude > -80 && latitude < 84 {
		utm, err := GeodesicToUTM(latitude, longitude, ellipsoid)
		if err != nil {
			return nil, err
		}
		e.InitialEast = utm.Easting
		e.InitialNorth = utm.Northing
		e.InitialUtmZone = utm.Zone
		e.InitialUtmLetter = utm.ZoneLetter
		e.InitialHemisphere = utm.Hemisphere
		e.InitialEW = utm.EW
	}
	e.atm.Store(newStandardAtmosphere(e.earthRadius))
	if err := e.SetGravityModel(nil); err != nil {
		return nil, err
	}
	return e, nil
}

// SetDate sets the launch date and time. The date is interpreted in the
// named IANA time zone and stored in UTC. Location-sensitive atmospheric
// models are re-ingested.
func (e *Environment) SetDate(date time.Time, timeZone string) error {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return fmt.Errorf("unknown time zone %q: %w", timeZone, err)
	}
	e.TimeZone = timeZone
	if date.Location() == time.UTC && timeZone != "UTC" {
		// Treat a bare timestamp as local wall-clock time at the site.
		date = time.Date(date.Year(), date.Month(), date.Day(), date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), loc)
	}
	e.localDate = date.In(loc)
	e.date = date.UTC()
	return e.refreshModel()
}

// Date returns the launch date in UTC; zero when unset.
func (e *Environment) Date() time.Time { return e.date }

// LocalDate returns the launch date in the site's time zone.
func (e *Environment) LocalDate() time.Time { return e.localDate }

// SetLocation moves the launch site, recomputing the site's UTM coordinates
// and Earth radius and re-ingesting location-sensitive atmospheric models.
func (e *Environment) SetLocation(latitude, longitude float64) error {
	e.Latitude = latitude
	e.Longitude = longitude
	e.earthRadius = EarthRadius(latitude, e.ellipsoid)
	if latitude > -80 && latitude < 84 {
		utm, err := GeodesicToUTM(latitude, longitude, e.ellipsoid)
		if err != nil {
			return err
		}
		e.InitialEast = utm.Easting
		e.InitialNorth = utm.Northing
		e.InitialUtmZone = utm.Zone
		e.InitialUtmLetter = utm.ZoneLetter
		e.InitialHemisphere = utm.Hemisphere
		e.InitialEW = utm.EW
	}
	return e.refreshModel()
}

// refreshModel re-ingests the active model when it depends on the launch
// location and date.
func (e *Environment) refreshModel() error {
	a := e.atm.Load()
	if !a.modelType.locationSensitive() {
		return nil
	}
	return e.SetAtmosphericModel(a.modelType, AtmosphericModelOptions{File: e.lastFile, Dictionary: e.lastDict})
}

// EarthRadiusAtSite returns the ellipsoid radius at the site latitude.
func (e *Environment) EarthRadiusAtSite() float64 { return e.earthRadius }

// Ellipsoid returns the reference ellipsoid of the configured datum.
func (e *Environment) Ellipsoid() Ellipsoid { return e.ellipsoid }

// openElevationURL is swapped by tests.
var openElevationURL = "https://api.open-elevation.com/api/v1/lookup"

// SetElevation sets the launch site elevation above sea level, in meters.
func (e *Environment) SetElevation(elevation float64) {
	e.Elevation = elevation
}

// SetElevationFromOpenElevation queries the Open-Elevation API for the
// ground elevation at the launch coordinates.
func (e *Environment) SetElevationFromOpenElevation() error {
	url := fmt.Sprintf("%s?locations=%f,%f", openElevationURL, e.Latitude, e.Longitude)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("unable to reach Open-Elevation API servers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unable to reach Open-Elevation API servers: status %d", resp.StatusCode)
	}
	var payload struct {
		Results []struct {
			Elevation float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding Open-Elevation response: %w", err)
	}
	if len(payload.Results) == 0 {
		return fmt.Errorf("Open-Elevation returned no results for %f, %f", e.Latitude, e.Longitude)
	}
	e.Elevation = payload.Results[0].Elevation
	e.logger.Log("msg", "elevation received from Open-Elevation", "elevation", e.Elevation)
	return nil
}

// topographicProfile is a loaded digital elevation model grid, read through
// the gridded dataset binding.
type topographicProfile struct {
	ds       GriddedDataset
	variable string
	latAxis  []float64
	lonAxis  []float64
}

// SetTopographicProfile loads a ground-elevation grid, such as a NASADEM
// tile, for elevation lookups. The variable names the elevation field in the
// dataset, "NASADEM_HGT" when empty; latitude and longitude axes are read as
// "lat" and "lon".
func (e *Environment) SetTopographicProfile(ds GriddedDataset, variable string) error {
	if variable == "" {
		variable = "NASADEM_HGT"
	}
	latAxis, err := ds.Axis("lat")
	if err != nil {
		return fmt.Errorf("reading topographic latitude axis: %w", err)
	}
	lonAxis, err := ds.Axis("lon")
	if err != nil {
		return fmt.Errorf("reading topographic longitude axis: %w", err)
	}
	if len(latAxis) < 2 || len(lonAxis) < 2 {
		return fmt.Errorf("topographic grid too small: %d x %d points", len(latAxis), len(lonAxis))
	}
	e.topo = &topographicProfile{ds: ds, variable: variable, latAxis: latAxis, lonAxis: lonAxis}
	e.logger.Log("msg", "topographic profile loaded",
		"latFrom", latAxis[0], "latTo", latAxis[len(latAxis)-1],
		"lonFrom", lonAxis[0], "lonTo", lonAxis[len(lonAxis)-1])
	return nil
}

// ElevationFromTopographicProfile returns the ground elevation of a point in
// the loaded topographic profile. The longitude is mapped into the grid's
// convention and the value of the grid node just past the point is returned,
// without interpolation.
func (e *Environment) ElevationFromTopographicProfile(lat, lon float64) (float64, error) {
	if e.topo == nil {
		return 0, fmt.Errorf("no topographic profile loaded: call SetTopographicProfile first")
	}
	latHi, err := locateGridIndex(e.topo.latAxis, lat, "latitude")
	if err != nil {
		return 0, err
	}
	qlon := normalizeLongitude(lon, e.topo.lonAxis)
	lonHi, err := locateGridIndex(e.topo.lonAxis, qlon, "longitude")
	if err != nil {
		return 0, err
	}
	cell, err := e.topo.ds.Surface2(e.topo.variable, 0, [2]int{latHi - 1, latHi}, [2]int{lonHi - 1, lonHi})
	if err != nil {
		return 0, fmt.Errorf("reading topographic elevation: %w", err)
	}
	return cell[1][1], nil
}

// SetElevationFromTopographicProfile sets the launch site elevation from the
// loaded topographic profile.
func (e *Environment) SetElevationFromTopographicProfile() error {
	v, err := e.ElevationFromTopographicProfile(e.Latitude, e.Longitude)
	if err != nil {
		return err
	}
	e.Elevation = v
	e.logger.Log("msg", "elevation set from topographic profile", "elevation", v)
	return nil
}

// SomiglianaGravity computes gravity acceleration at a height above the
// ellipsoid with the Somigliana formula and an aviation-accurate height
// correction. Constants are WGS84 but serve other reference ellipsoids well.
func (e *Environment) SomiglianaGravity(height float64) float64 {
	const (
		a            = 6378137.0
		f            = 1 / 298.257223563
		mRot         = 3.449786506841e-3
		gE           = 9.7803253359
		kSomgl       = 1.931852652458e-3
		firstEccSqrd = 6.694379990141e-3
	)
	sinLatSqrd := math.Pow(math.Sin(e.Latitude*deg2rad), 2)
	gravitySomgl := gE * (1 + kSomgl*sinLatSqrd) / math.Sqrt(1-firstEccSqrd*sinLatSqrd)
	heightCorrection := 1 - height*2/a*(1+f+mRot-2*f*sinLatSqrd) + 3*height*height/(a*a)
	return heightCorrection * gravitySomgl
}

// SetGravityModel sets the gravity profile from any profile source. A nil
// source selects the Somigliana model. Either way the profile is discretized
// on 100 points up to the atmospheric ceiling.
func (e *Environment) SetGravityModel(src any) error {
	var f *Function
	if src == nil {
		f = NewFunction(e.SomiglianaGravity)
	} else {
		var err error
		if f, err = ResolveSource(src, Linear, ExtrapConstant); err != nil {
			return fmt.Errorf("resolving gravity model: %w", err)
		}
	}
	disc, err := f.SetDiscrete(0, e.MaxExpectedHeight(), 100, Linear, ExtrapConstant)
	if err != nil {
		return fmt.Errorf("discretizing gravity model: %w", err)
	}
	e.gravity = disc
	return nil
}

// Gravity returns the gravity profile over height above sea level.
func (e *Environment) Gravity() *Function { return e.gravity }

// AtmosphericModelOptions carries the per-model inputs of
// SetAtmosphericModel. File is a URL, local path, named feed (GFS, FV3, NAM,
// RAP, GEFS, CMC) or Windy model name, depending on the model type. Dataset
// overrides File with a pre-opened gridded dataset. Exactly one of
// Dictionary and DictionaryName configures gridded variable naming. The
// profile sources feed the custom atmosphere.
type AtmosphericModelOptions struct {
	File           string
	Dataset        GriddedDataset
	Dictionary     *DatasetDictionary
	DictionaryName string

	Pressure    any
	Temperature any
	WindU       any
	WindV       any
}

// SetAtmosphericModel replaces the active atmospheric model. On success the
// new snapshot, including recomputed density, speed of sound and dynamic
// viscosity profiles, becomes visible atomically; on error the previous
// model stays active.
func (e *Environment) SetAtmosphericModel(modelType ModelType, opts AtmosphericModelOptions) error {
	var (
		a   *atmosphere
		err error
	)
	switch modelType {
	case StandardAtmosphere:
		a = newStandardAtmosphere(e.earthRadius)
	case CustomAtmosphere:
		a, err = newCustomAtmosphere(opts.Pressure, opts.Temperature, opts.WindU, opts.WindV, e.earthRadius)
	case WyomingSounding:
		a, err = e.processWyomingSounding(opts.File)
	case NOAARucSounding:
		a, err = e.processGSDSounding(opts.File)
	case Forecast, Reanalysis:
		a, err = e.processForecastReanalysis(modelType, opts)
	case Ensemble:
		a, err = e.processEnsemble(opts)
	case Windy:
		a, err = e.processWindy(opts.File)
	default:
		return fmt.Errorf("unknown atmospheric model type %d", modelType)
	}
	if err != nil {
		return err
	}
	e.atm.Store(a)
	e.logger.Log("msg", "atmospheric model set", "type", a.modelType.String(), "maxExpectedHeight", a.maxExpectedHeight)
	return nil
}

func (e *Environment) processWyomingSounding(url string) (*atmosphere, error) {
	body, err := fetchSounding(url)
	if err != nil {
		return nil, err
	}
	p, err := parseWyomingSounding(body, e.earthRadius)
	if err != nil {
		return nil, err
	}
	if p.elevationOK {
		e.Elevation = p.elevation
	}
	a := atmosphereFromSounding(p, WyomingSounding)
	a.modelFile = url
	return a, nil
}

func (e *Environment) processGSDSounding(url string) (*atmosphere, error) {
	body, err := fetchSounding(url)
	if err != nil {
		return nil, err
	}
	p, err := parseGSDSounding(body)
	if err != nil {
		return nil, err
	}
	if p.elevationOK {
		e.Elevation = p.elevation
	}
	a := atmosphereFromSounding(p, NOAARucSounding)
	a.modelFile = url
	return a, nil
}

// resolveDictionary picks the dataset dictionary from the options, requiring
// one for non-feed files.
func resolveDictionary(opts AtmosphericModelOptions, ensemble bool) (DatasetDictionary, error) {
	if opts.Dictionary != nil {
		return *opts.Dictionary, nil
	}
	if opts.DictionaryName != "" {
		return DictionaryByName(opts.DictionaryName, ensemble)
	}
	return DatasetDictionary{}, fmt.Errorf("specify a dictionary or choose a preset such as ECMWF or NOAA")
}

func (e *Environment) requireDate() error {
	if e.date.IsZero() {
		return fmt.Errorf("launch date not set: call SetDate before loading a dated atmospheric model")
	}
	return nil
}

func (e *Environment) processForecastReanalysis(modelType ModelType, opts AtmosphericModelOptions) (*atmosphere, error) {
	if err := e.requireDate(); err != nil {
		return nil, err
	}

	if feed, ok := namedFeeds[opts.File]; ok && !feed.ensemble {
		return e.ingestNamedFeed(modelType, feed)
	}

	dict, err := resolveDictionary(opts, false)
	if err != nil {
		return nil, err
	}
	ds := opts.Dataset
	if ds == nil {
		if ds, err = e.openDataset(opts.File); err != nil {
			return nil, fmt.Errorf("opening dataset %s: %w", opts.File, err)
		}
		defer ds.Close()
	}
	a, err := e.forecastSnapshot(modelType, ds, dict)
	if err != nil {
		return nil, err
	}
	a.modelFile = opts.File
	e.lastFile = opts.File
	e.lastDict = &dict
	return a, nil
}

// forecastSnapshot runs one forecast/reanalysis ingestion against an open
// dataset and assembles the snapshot.
func (e *Environment) forecastSnapshot(modelType ModelType, ds GriddedDataset, dict DatasetDictionary) (*atmosphere, error) {
	c, cov, elevation, elevationOK, err := ingestForecast(ds, dict, e.date, e.Latitude, e.Longitude, e.earthRadius, e.logger)
	if err != nil {
		return nil, err
	}
	a, err := atmosphereFromColumns(c, modelType)
	if err != nil {
		return nil, err
	}
	a.coverage = &cov
	a.modelDict = &dict
	if elevationOK {
		e.Elevation = elevation
	}
	return a, nil
}

// ingestNamedFeed walks backward through a feed's publication times until an
// ingestion succeeds, mirroring the publication lag of the NOMADS server.
func (e *Environment) ingestNamedFeed(modelType ModelType, feed namedFeed) (*atmosphere, error) {
	dict := NOAADictionary(feed.ensemble)
	var lastURL string
	var lastErr error
	attemptTime := e.now().UTC()
	for attempt := 0; attempt < namedFeedAttempts; attempt++ {
		attemptTime = attemptTime.Add(-time.Duration(feed.cadenceHours*attempt) * time.Hour)
		lastURL = feed.urlFor(attemptTime)
		ds, err := e.openDataset(lastURL)
		if err != nil {
			lastErr = err
			e.logger.Log("level", "warn", "msg", "weather feed attempt failed", "feed", feed.name, "url", lastURL, "err", err)
			continue
		}
		var a *atmosphere
		if feed.ensemble {
			a, err = e.ensembleSnapshot(ds, dict)
		} else {
			a, err = e.forecastSnapshot(modelType, ds, dict)
		}
		ds.Close()
		if err != nil {
			lastErr = err
			e.logger.Log("level", "warn", "msg", "weather feed attempt failed", "feed", feed.name, "url", lastURL, "err", err)
			continue
		}
		a.modelFile = lastURL
		e.lastFile = feed.name
		e.lastDict = nil
		return a, nil
	}
	return nil, fmt.Errorf("unable to load latest weather data for %s through %s: %w", feed.name, lastURL, lastErr)
}

func (e *Environment) processEnsemble(opts AtmosphericModelOptions) (*atmosphere, error) {
	if err := e.requireDate(); err != nil {
		return nil, err
	}

	if feed, ok := namedFeeds[opts.File]; ok && feed.ensemble {
		return e.ingestNamedFeed(Ensemble, feed)
	}

	dict, err := resolveDictionary(opts, true)
	if err != nil {
		return nil, err
	}
	ds := opts.Dataset
	if ds == nil {
		if ds, err = e.openDataset(opts.File); err != nil {
			return nil, fmt.Errorf("opening dataset %s: %w", opts.File, err)
		}
		defer ds.Close()
	}
	a, err := e.ensembleSnapshot(ds, dict)
	if err != nil {
		return nil, err
	}
	a.modelFile = opts.File
	e.lastFile = opts.File
	e.lastDict = &dict
	return a, nil
}

// ensembleSnapshot ingests all ensemble members and activates member 0.
func (e *Environment) ensembleSnapshot(ds GriddedDataset, dict DatasetDictionary) (*atmosphere, error) {
	data, elevation, elevationOK, err := ingestEnsemble(ds, dict, e.date, e.Latitude, e.Longitude, e.earthRadius, e.logger)
	if err != nil {
		return nil, err
	}
	c, err := data.columns(0, e.logger)
	if err != nil {
		return nil, err
	}
	a, err := atmosphereFromColumns(c, Ensemble)
	if err != nil {
		return nil, err
	}
	a.coverage = &data.Coverage
	a.modelDict = &dict
	a.ensemble = data
	a.ensembleMember = 0
	if elevationOK {
		e.Elevation = elevation
	}
	return a, nil
}

func (e *Environment) processWindy(model string) (*atmosphere, error) {
	if err := e.requireDate(); err != nil {
		return nil, err
	}
	if model == "" {
		model = "ECMWF"
	}
	model = normalizeWindyModel(model)
	w, err := fetchWindyMeteogram(model, e.Latitude, e.Longitude)
	if err != nil {
		return nil, err
	}
	c, cov, elevation, err := w.sounding(e.date, e.earthRadius)
	if err != nil {
		return nil, err
	}
	a, err := atmosphereFromColumns(c, Windy)
	if err != nil {
		return nil, err
	}
	cov.InitLat, cov.EndLat = e.Latitude, e.Latitude
	cov.InitLon, cov.EndLon = e.Longitude, e.Longitude
	a.coverage = &cov
	a.modelFile = model
	e.Elevation = elevation
	return a, nil
}

// SelectEnsembleMember activates one member of the loaded ensemble model,
// rebuilding all profiles from the member's raw sounding. Selecting the
// active member again is a no-op.
func (e *Environment) SelectEnsembleMember(member int) error {
	a := e.atm.Load()
	if a.ensemble == nil {
		return fmt.Errorf("no ensemble model loaded: active model is %s", a.modelType)
	}
	if member == a.ensembleMember {
		return nil
	}
	c, err := a.ensemble.columns(member, e.logger)
	if err != nil {
		return err
	}
	b, err := atmosphereFromColumns(c, Ensemble)
	if err != nil {
		return err
	}
	b.modelFile = a.modelFile
	b.modelDict = a.modelDict
	b.coverage = a.coverage
	b.ensemble = a.ensemble
	b.ensembleMember = member
	e.atm.Store(b)
	return nil
}

// EnsembleMember returns the active ensemble member and the member count;
// ok is false when no ensemble model is loaded.
func (e *Environment) EnsembleMember() (member, count int, ok bool) {
	a := e.atm.Load()
	if a.ensemble == nil {
		return 0, 0, false
	}
	return a.ensembleMember, a.ensemble.Members(), true
}

// AddWindGust adds gust profiles to the current wind components. Sources
// follow the profile source contract (scalar, callable, samples, *Function).
func (e *Environment) AddWindGust(gustX, gustY any) error {
	fx, err := ResolveSource(gustX, Linear, ExtrapConstant)
	if err != nil {
		return fmt.Errorf("resolving wind gust x: %w", err)
	}
	fy, err := ResolveSource(gustY, Linear, ExtrapConstant)
	if err != nil {
		return fmt.Errorf("resolving wind gust y: %w", err)
	}
	e.atm.Store(e.atm.Load().withWindGust(fx, fy))
	return nil
}

// Profile accessors. Each returns the named profile of the active snapshot
// as a function of geometric height above sea level.

func (e *Environment) Pressure() *Function         { return e.atm.Load().pressure }
func (e *Environment) Temperature() *Function      { return e.atm.Load().temperature }
func (e *Environment) Density() *Function          { return e.atm.Load().density }
func (e *Environment) SpeedOfSound() *Function     { return e.atm.Load().speedOfSound }
func (e *Environment) DynamicViscosity() *Function { return e.atm.Load().dynamicViscosity }
func (e *Environment) WindVelocityX() *Function    { return e.atm.Load().windVelocityX }
func (e *Environment) WindVelocityY() *Function    { return e.atm.Load().windVelocityY }
func (e *Environment) WindSpeed() *Function        { return e.atm.Load().windSpeed }
func (e *Environment) WindHeading() *Function      { return e.atm.Load().windHeading }
func (e *Environment) WindDirection() *Function    { return e.atm.Load().windDirection }

// MaxExpectedHeight returns the ceiling of the active atmospheric model.
func (e *Environment) MaxExpectedHeight() float64 { return e.atm.Load().maxExpectedHeight }

// AtmosphericModelType returns the type of the active atmospheric model.
func (e *Environment) AtmosphericModelType() ModelType { return e.atm.Load().modelType }

// AtmosphericModelFile returns the file, URL or feed behind the active
// model, empty for standard and custom atmospheres.
func (e *Environment) AtmosphericModelFile() string { return e.atm.Load().modelFile }

// Coverage returns the dataset coverage of the active model, nil for models
// without one.
func (e *Environment) Coverage() *DatasetCoverage { return e.atm.Load().coverage }
