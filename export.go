package rocketenv

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EnvironmentExport is the JSON payload of an exported Environment. It
// captures everything needed to rebuild an equivalent environment with a
// custom atmosphere, regardless of which model produced the profiles.
type EnvironmentExport struct {
	RailLength        float64 `json:"railLength"`
	Gravity           float64 `json:"gravity"`
	Date              [4]int  `json:"date"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Elevation         float64 `json:"elevation"`
	Datum             string  `json:"datum"`
	TimeZone          string  `json:"timeZone"`
	MaxExpectedHeight float64 `json:"maxExpectedHeight"`

	AtmosphericModelType string             `json:"atmosphericModelType"`
	AtmosphericModelFile string             `json:"atmosphericModelFile"`
	AtmosphericModelDict *DatasetDictionary `json:"atmosphericModelDict,omitempty"`

	PressureProfile      [][2]float64 `json:"atmosphericModelPressureProfile"`
	TemperatureProfile   [][2]float64 `json:"atmosphericModelTemperatureProfile"`
	WindVelocityXProfile [][2]float64 `json:"atmosphericModelWindVelocityXProfile"`
	WindVelocityYProfile [][2]float64 `json:"atmosphericModelWindVelocityYProfile"`
}

// exportProfileSamples flattens a profile to sample pairs. Closed-form
// profiles are discretized over the model's height range so that the export
// always round-trips.
func exportProfileSamples(f *Function, maxHeight float64) [][2]float64 {
	xs, ys := f.Samples()
	if xs == nil {
		disc, err := f.SetDiscrete(0, maxHeight, 200, Linear, ExtrapConstant)
		if err != nil {
			return nil
		}
		xs, ys = disc.Samples()
	}
	out := make([][2]float64, len(xs))
	for i := range xs {
		out[i] = [2]float64{xs[i], ys[i]}
	}
	return out
}

// Export captures the environment's state as an EnvironmentExport.
func (e *Environment) Export() EnvironmentExport {
	a := e.atm.Load()
	var date [4]int
	if d := e.Date(); !d.IsZero() {
		date = [4]int{d.Year(), int(d.Month()), d.Day(), d.Hour()}
	}
	return EnvironmentExport{
		RailLength:           e.RailLength,
		Gravity:              e.gravity.Call(e.Elevation),
		Date:                 date,
		Latitude:             e.Latitude,
		Longitude:            e.Longitude,
		Elevation:            e.Elevation,
		Datum:                e.Datum,
		TimeZone:             e.TimeZone,
		MaxExpectedHeight:    a.maxExpectedHeight,
		AtmosphericModelType: a.modelType.String(),
		AtmosphericModelFile: a.modelFile,
		AtmosphericModelDict: a.modelDict,
		PressureProfile:      exportProfileSamples(a.pressure, a.maxExpectedHeight),
		TemperatureProfile:   exportProfileSamples(a.temperature, a.maxExpectedHeight),
		WindVelocityXProfile: exportProfileSamples(a.windVelocityX, a.maxExpectedHeight),
		WindVelocityYProfile: exportProfileSamples(a.windVelocityY, a.maxExpectedHeight),
	}
}

// ExportToFile writes the environment export as indented JSON to
// <output_path>/<filename>.json, with output_path from the configuration.
func (e *Environment) ExportToFile(filename string) error {
	path := fmt.Sprintf("%s/%s.json", envConfig().outputDir, filename)
	payload, err := json.MarshalIndent(e.Export(), "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling environment export: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("writing environment export: %w", err)
	}
	e.logger.Log("msg", "environment exported", "path", path)
	return nil
}

// ImportEnvironmentExport reads a file written by ExportToFile.
func ImportEnvironmentExport(path string) (*EnvironmentExport, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading environment export: %w", err)
	}
	var exp EnvironmentExport
	if err := json.Unmarshal(payload, &exp); err != nil {
		return nil, fmt.Errorf("decoding environment export: %w", err)
	}
	return &exp, nil
}

// Environment rebuilds an Environment from the export, loading the captured
// profiles as a custom atmosphere.
func (exp *EnvironmentExport) Environment() (*Environment, error) {
	e, err := NewEnvironment(exp.RailLength, exp.Latitude, exp.Longitude, exp.Elevation, exp.Datum, nil)
	if err != nil {
		return nil, err
	}
	if exp.Date != [4]int{} {
		// The exported date components are UTC; restore the instant first
		// and the display zone after.
		d := time.Date(exp.Date[0], time.Month(exp.Date[1]), exp.Date[2], exp.Date[3], 0, 0, 0, time.UTC)
		if err := e.SetDate(d, "UTC"); err != nil {
			return nil, err
		}
		e.TimeZone = exp.TimeZone
	}
	err = e.SetAtmosphericModel(CustomAtmosphere, AtmosphericModelOptions{
		Pressure:    exp.PressureProfile,
		Temperature: exp.TemperatureProfile,
		WindU:       exp.WindVelocityXProfile,
		WindV:       exp.WindVelocityYProfile,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
