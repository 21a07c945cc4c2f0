package rocketenv

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// soundingProfiles is the result of parsing one upper-air sounding: sampled
// profiles over geometric height, plus the station elevation when reported.
type soundingProfiles struct {
	pressure      *Function
	temperature   *Function
	windU         *Function
	windV         *Function
	windSpeed     *Function
	windHeading   *Function
	windDirection *Function

	elevation         float64
	elevationOK       bool
	maxExpectedHeight float64
}

const knotToMS = 1.852 / 3.6

var (
	wyomingPreSplit    = regexp.MustCompile(`(<.?PRE>)`)
	wyomingNoObsMarker = regexp.MustCompile(`Can't get .+ Observations at .+`)
	wyomingColumns     = regexp.MustCompile(` +`)
	numberPattern      = regexp.MustCompile(`[0-9]+\.[0-9]+|[0-9]+`)
)

// fetchSounding downloads a sounding page, failing on non-200 responses.
func fetchSounding(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("unable to load %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unable to load %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to load %s: %w", url, err)
	}
	return string(body), nil
}

// parseWyomingSounding parses the TEXT:LIST output of the Wyoming Upper Air
// Soundings database. The page holds a fixed-width data table and a station
// information block, each wrapped in PRE tags.
func parseWyomingSounding(body string, earthRadius float64) (*soundingProfiles, error) {
	if m := wyomingNoObsMarker.FindString(body); m != "" {
		return nil, fmt.Errorf("%s Check station number and date", m)
	}
	if body == "Invalid OUTPUT: specified\n" {
		return nil, fmt.Errorf("invalid OUTPUT: specified; make sure the output is Text: List")
	}

	parts := splitKeepDelims(wyomingPreSplit, body)
	if len(parts) < 7 {
		return nil, fmt.Errorf("unexpected sounding page layout: %d sections", len(parts))
	}
	dataTable := parts[2]
	stationInfo := parts[6]

	// Rows with all 12 entries present; the rest lack some measurement.
	var rows [][]float64
	tableLines := strings.Split(dataTable, "\n")
	if len(tableLines) < 6 {
		return nil, fmt.Errorf("sounding data table too short: %d lines", len(tableLines))
	}
	for _, line := range tableLines[5 : len(tableLines)-1] {
		cols := wyomingColumns.Split(line, -1)
		if len(cols) != 12 {
			continue
		}
		row := make([]float64, 11)
		ok := true
		for i, c := range cols[1:] {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sounding data table has %d complete rows, need at least 2", len(rows))
	}

	n := len(rows)
	height := make([]float64, n)
	pressure := make([]float64, n)
	temperature := make([]float64, n)
	direction := make([]float64, n)
	heading := make([]float64, n)
	speed := make([]float64, n)
	windU := make([]float64, n)
	windV := make([]float64, n)
	for i, row := range rows {
		pressure[i] = 100 * row[0] // hPa to Pa
		temperature[i] = row[2] + 273.15
		direction[i] = row[6]
		heading[i] = mod360(row[6] + 180)
		speed[i] = row[7] * knotToMS
		windU[i] = speed[i] * math.Sin(Deg2rad(heading[i]))
		windV[i] = speed[i] * math.Cos(Deg2rad(heading[i]))
		height[i] = geopotentialToGeometric(row[1], earthRadius)
	}

	p := &soundingProfiles{maxExpectedHeight: height[n-1]}
	var err error
	for _, bind := range []struct {
		dst **Function
		ys  []float64
	}{
		{&p.pressure, pressure},
		{&p.temperature, temperature},
		{&p.windDirection, direction},
		{&p.windHeading, heading},
		{&p.windSpeed, speed},
		{&p.windU, windU},
		{&p.windV, windV},
	} {
		if *bind.dst, err = newProfile(height, bind.ys); err != nil {
			return nil, fmt.Errorf("building sounding profile: %w", err)
		}
	}

	// Station elevation is on the seventh line of the info block.
	infoLines := strings.Split(stationInfo, "\n")
	if len(infoLines) > 6 {
		if m := numberPattern.FindString(infoLines[6]); m != "" {
			p.elevation, _ = strconv.ParseFloat(m, 64)
			p.elevationOK = true
		}
	}
	return p, nil
}

// splitKeepDelims splits s around re matches, keeping the matches in the
// result the way a capturing-group re.split does.
func splitKeepDelims(re *regexp.Regexp, s string) []string {
	var out []string
	last := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		out = append(out, s[last:loc[0]], s[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(out, s[last:])
}

const gsdMissing = 99999

// parseGSDSounding parses the ASCII GSD format served by NOAA's RUC
// soundings database. Data rows are typed by their first column: type 1
// carries station identification, types 4 to 9 carry sounding levels. The
// sentinel 99999 marks a missing field; rows are kept per column group, so a
// level missing only wind still contributes pressure and temperature.
// Heights in this format are already geometric.
func parseGSDSounding(body string) (*soundingProfiles, error) {
	if len(body) < 10 {
		return nil, fmt.Errorf("sounding response too short")
	}
	lines := strings.Split(body, "\n")

	p := &soundingProfiles{}

	var pressH, pressV []float64
	var tempH, tempV []float64
	var dirH, dirV, speedV []float64

	for _, line := range lines {
		cols := wyomingColumns.Split(strings.TrimSpace(line), -1)
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		if cols[0] == "1" && len(cols) > 5 && cols[5] != "99999" {
			if v, err := strconv.ParseFloat(cols[5], 64); err == nil {
				p.elevation = v
				p.elevationOK = true
			}
			continue
		}
		if len(cols) < 7 {
			continue
		}
		switch cols[0] {
		case "4", "5", "6", "7", "8", "9":
		default:
			continue
		}
		vals := make([]float64, 7)
		ok := true
		for i := 0; i < 7; i++ {
			v, err := strconv.ParseFloat(cols[i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		h := vals[2]
		if h != gsdMissing && vals[1] != gsdMissing {
			pressH = append(pressH, h)
			pressV = append(pressV, 10*vals[1]) // tenths of hPa to Pa
		}
		if h != gsdMissing && vals[3] != gsdMissing {
			tempH = append(tempH, h)
			tempV = append(tempV, vals[3]/10+273.15) // tenths of deg C to K
		}
		if h != gsdMissing && vals[5] != gsdMissing && vals[6] != gsdMissing {
			dirH = append(dirH, h)
			dirV = append(dirV, vals[5])
			speedV = append(speedV, vals[6]*knotToMS)
		}
	}

	if len(pressH) < 2 || len(tempH) < 2 || len(dirH) < 2 {
		return nil, fmt.Errorf("sounding has too few usable levels: %d pressure, %d temperature, %d wind", len(pressH), len(tempH), len(dirH))
	}

	n := len(dirH)
	heading := make([]float64, n)
	windU := make([]float64, n)
	windV := make([]float64, n)
	for i := range dirH {
		heading[i] = mod360(dirV[i] + 180)
		windU[i] = speedV[i] * math.Sin(Deg2rad(heading[i]))
		windV[i] = speedV[i] * math.Cos(Deg2rad(heading[i]))
	}

	var err error
	for _, bind := range []struct {
		dst **Function
		xs  []float64
		ys  []float64
	}{
		{&p.pressure, pressH, pressV},
		{&p.temperature, tempH, tempV},
		{&p.windDirection, dirH, dirV},
		{&p.windHeading, dirH, heading},
		{&p.windSpeed, dirH, speedV},
		{&p.windU, dirH, windU},
		{&p.windV, dirH, windV},
	} {
		if *bind.dst, err = newProfile(bind.xs, bind.ys); err != nil {
			return nil, fmt.Errorf("building sounding profile: %w", err)
		}
	}
	p.maxExpectedHeight = pressH[len(pressH)-1]
	return p, nil
}
