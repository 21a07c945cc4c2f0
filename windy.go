package rocketenv

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// windyPressureLevels are the hPa levels Windy meteograms always report.
var windyPressureLevels = []int{1000, 950, 925, 900, 850, 800, 700, 600, 500, 400, 300, 250, 200, 150}

// windyBaseURL is swapped out by tests.
var windyBaseURL = "https://node.windy.com/forecast/meteogram"

// windyResponse is the meteogram JSON payload. The data block maps field
// names like "gh-500h" to per-hour sample arrays; hours are Unix
// milliseconds.
type windyResponse struct {
	Header struct {
		Elevation float64 `json:"elevation"`
	} `json:"header"`
	Data map[string]json.RawMessage `json:"data"`
}

// normalizeWindyModel lowercases the model name, restoring the camel case
// Windy expects for ICON-EU ("iconEu").
func normalizeWindyModel(model string) string {
	model = strings.ToLower(model)
	if strings.HasSuffix(model, "u") && len(model) > 4 {
		model = model[:4] + strings.ToUpper(model[4:5]) + model[5:]
	}
	return model
}

// fetchWindyMeteogram downloads and decodes the meteogram for a model and
// launch point.
func fetchWindyMeteogram(model string, lat, lon float64) (*windyResponse, error) {
	url := fmt.Sprintf("%s/%s/%v/%v/?step=undefined", windyBaseURL, model, lat, lon)
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if model == "iconEu" {
			return nil, fmt.Errorf("no valid Icon-EU response from Windy (status %d): check that the launch coordinates are inside Europe", resp.StatusCode)
		}
		return nil, fmt.Errorf("unable to load %s: status %d", url, resp.StatusCode)
	}
	var w windyResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		if model == "iconEu" {
			return nil, fmt.Errorf("no valid Icon-EU response from Windy: check that the launch coordinates are inside Europe")
		}
		return nil, fmt.Errorf("decoding meteogram from %s: %w", url, err)
	}
	return &w, nil
}

func (w *windyResponse) floats(field string) ([]float64, error) {
	raw, ok := w.Data[field]
	if !ok {
		return nil, fmt.Errorf("meteogram field %q missing", field)
	}
	var vals []float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("decoding meteogram field %q: %w", field, err)
	}
	return vals, nil
}

// windySounding extracts the sounding nearest to date from a meteogram,
// along with the dataset coverage and reported ground elevation.
func (w *windyResponse) sounding(date time.Time, earthRadius float64) (c *griddedColumns, cov DatasetCoverage, elevation float64, err error) {
	hours, err := w.floats("hours")
	if err != nil {
		return nil, DatasetCoverage{}, 0, err
	}
	if len(hours) == 0 {
		return nil, DatasetCoverage{}, 0, fmt.Errorf("meteogram has no forecast hours")
	}
	want := float64(date.UnixMilli())
	timeIndex := 0
	for i, h := range hours {
		if math.Abs(h-want) < math.Abs(hours[timeIndex]-want) {
			timeIndex = i
		}
	}

	c = &griddedColumns{}
	for _, pL := range windyPressureLevels {
		gh, err := w.floats(fmt.Sprintf("gh-%dh", pL))
		if err != nil {
			return nil, DatasetCoverage{}, 0, err
		}
		temp, err := w.floats(fmt.Sprintf("temp-%dh", pL))
		if err != nil {
			return nil, DatasetCoverage{}, 0, err
		}
		u, err := w.floats(fmt.Sprintf("wind_u-%dh", pL))
		if err != nil {
			return nil, DatasetCoverage{}, 0, err
		}
		v, err := w.floats(fmt.Sprintf("wind_v-%dh", pL))
		if err != nil {
			return nil, DatasetCoverage{}, 0, err
		}
		if timeIndex >= len(gh) || timeIndex >= len(temp) || timeIndex >= len(u) || timeIndex >= len(v) {
			return nil, DatasetCoverage{}, 0, fmt.Errorf("meteogram level %d hPa has fewer samples than forecast hours", pL)
		}
		heading := mod360(math.Atan2(u[timeIndex], v[timeIndex]) / deg2rad)
		c.levels = append(c.levels, 100*float64(pL))
		c.height = append(c.height, geopotentialToGeometric(gh[timeIndex], earthRadius))
		c.temperature = append(c.temperature, temp[timeIndex])
		c.windU = append(c.windU, u[timeIndex])
		c.windV = append(c.windV, v[timeIndex])
		c.windHeading = append(c.windHeading, heading)
		c.windDirection = append(c.windDirection, mod360(heading-180))
		c.windSpeed = append(c.windSpeed, math.Hypot(u[timeIndex], v[timeIndex]))
	}

	intervalHours := 0
	if len(hours) > 1 {
		intervalHours = int((hours[len(hours)-1] - hours[0]) / float64(len(hours)-1) / 3.6e6)
	}
	cov = DatasetCoverage{
		InitDate:      time.UnixMilli(int64(hours[0])).UTC(),
		EndDate:       time.UnixMilli(int64(hours[len(hours)-1])).UTC(),
		IntervalHours: intervalHours,
	}
	return c, cov, w.Header.Elevation, nil
}
