package rocketenv

import (
	"fmt"
	"math"
	"time"

	"github.com/go-kit/kit/log"
)

// EnsembleData holds the per-member soundings of an ensemble forecast,
// interpolated to the launch point but not yet cleaned of missing levels.
// Ingestion is pure; activating a member is the orchestrator's job.
type EnsembleData struct {
	Levels        []float64   // Pa, shared across members
	Height        [][]float64 // [member][level], geometric m above sea level
	Temperature   [][]float64 // K
	WindU         [][]float64 // m/s
	WindV         [][]float64 // m/s
	WindHeading   [][]float64 // deg
	WindDirection [][]float64 // deg
	WindSpeed     [][]float64 // m/s
	Coverage      DatasetCoverage
}

// Members returns the number of ensemble members.
func (e *EnsembleData) Members() int { return len(e.Height) }

// columns extracts member k as one cleaned sounding, dropping levels with
// missing values. The member index is validated here.
func (e *EnsembleData) columns(k int, logger log.Logger) (*griddedColumns, error) {
	if k < 0 || k >= e.Members() {
		return nil, fmt.Errorf("invalid ensemble member %d: choose member from 0 to %d", k, e.Members()-1)
	}
	c := &griddedColumns{}
	dropped := false
	for i := range e.Levels {
		vals := []float64{e.Height[k][i], e.Temperature[k][i], e.WindU[k][i], e.WindV[k][i]}
		missing := false
		for _, v := range vals {
			if math.IsNaN(v) {
				missing = true
				break
			}
		}
		if missing {
			dropped = true
			continue
		}
		c.levels = append(c.levels, e.Levels[i])
		c.height = append(c.height, e.Height[k][i])
		c.temperature = append(c.temperature, e.Temperature[k][i])
		c.windU = append(c.windU, e.WindU[k][i])
		c.windV = append(c.windV, e.WindV[k][i])
		c.windHeading = append(c.windHeading, e.WindHeading[k][i])
		c.windDirection = append(c.windDirection, e.WindDirection[k][i])
		c.windSpeed = append(c.windSpeed, e.WindSpeed[k][i])
	}
	if dropped {
		logger.Log("level", "warn", "msg", "missing values in weather dataset, pressure levels removed", "member", k)
	}
	if len(c.levels) < 2 {
		return nil, fmt.Errorf("ensemble member %d has %d usable pressure levels, need at least 2", k, len(c.levels))
	}
	return c, nil
}

// ingestEnsemble reads every member's sounding for date/lat/lon from an
// ensemble dataset. Elevation handling matches the forecast path.
func ingestEnsemble(ds GriddedDataset, dict DatasetDictionary, date time.Time, lat, lon, earthRadius float64, logger log.Logger) (e *EnsembleData, elevation float64, elevationOK bool, err error) {
	if dict.Ensemble == "" {
		return nil, 0, false, fmt.Errorf("dictionary has no ensemble axis; check dictionary")
	}
	q, err := resolveGridQuery(ds, dict, date, lat, lon, logger)
	if err != nil {
		return nil, 0, false, err
	}

	members, err := ds.Axis(dict.Ensemble)
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading ensemble axis: %w", err)
	}
	levelsMbar, err := ds.Axis(dict.Level)
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading pressure levels: %w", err)
	}

	e = &EnsembleData{Coverage: q.coverage}
	e.Levels = make([]float64, len(levelsMbar))
	for i, l := range levelsMbar {
		e.Levels[i] = 100 * l
	}

	for k := range members {
		geop, err := readGeopotentialHeightMember(ds, dict, q, k)
		if err != nil {
			return nil, 0, false, err
		}
		temp, err := ds.Levels4(dict.Temperature, q.timeIndex, k, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, 0, false, fmt.Errorf("reading temperature for member %d: %w", k, err)
		}
		windU, err := ds.Levels4(dict.UWind, q.timeIndex, k, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, 0, false, fmt.Errorf("reading wind-u component for member %d: %w", k, err)
		}
		windV, err := ds.Levels4(dict.VWind, q.timeIndex, k, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, 0, false, fmt.Errorf("reading wind-v component for member %d: %w", k, err)
		}

		height := bilinearLevels(geop, q.fx, q.fy)
		t := bilinearLevels(temp, q.fx, q.fy)
		u := bilinearLevels(windU, q.fx, q.fy)
		v := bilinearLevels(windV, q.fx, q.fy)

		heading := make([]float64, len(u))
		direction := make([]float64, len(u))
		speed := make([]float64, len(u))
		for i := range u {
			heading[i] = mod360(math.Atan2(u[i], v[i]) / deg2rad)
			direction[i] = mod360(heading[i] - 180)
			speed[i] = math.Sqrt(u[i]*u[i] + v[i]*v[i])
			height[i] = geopotentialToGeometric(height[i], earthRadius)
		}

		e.Height = append(e.Height, height)
		e.Temperature = append(e.Temperature, t)
		e.WindU = append(e.WindU, u)
		e.WindV = append(e.WindV, v)
		e.WindHeading = append(e.WindHeading, heading)
		e.WindDirection = append(e.WindDirection, direction)
		e.WindSpeed = append(e.WindSpeed, speed)
	}

	if dict.SurfaceGeopotentialHeight != "" {
		cell, err := ds.Surface2(dict.SurfaceGeopotentialHeight, q.timeIndex, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, 0, false, fmt.Errorf("reading surface elevation: %w", err)
		}
		elevation = bilinear(q.fx, q.fy, cell[0][0], cell[0][1], cell[1][0], cell[1][1])
		elevationOK = true
	}
	return e, elevation, elevationOK, nil
}

// readGeopotentialHeightMember is readGeopotentialHeight for one member of
// an ensemble dataset.
func readGeopotentialHeightMember(ds GriddedDataset, dict DatasetDictionary, q *gridQuery, member int) ([][2][2]float64, error) {
	if dict.GeopotentialHeight != "" {
		block, err := ds.Levels4(dict.GeopotentialHeight, q.timeIndex, member, q.latIdx, q.lonIdx)
		if err == nil {
			return block, nil
		}
	}
	if dict.Geopotential != "" {
		block, err := ds.Levels4(dict.Geopotential, q.timeIndex, member, q.latIdx, q.lonIdx)
		if err != nil {
			return nil, fmt.Errorf("reading geopotential for member %d: %w", member, err)
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
