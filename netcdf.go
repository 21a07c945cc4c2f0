package rocketenv

import (
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// netcdfDataset adapts a netCDF file to the GriddedDataset interface.
// Variables are expected in the conventional dimension orders:
// [time][level][lat][lon] for level variables, [time][member][level][lat][lon]
// for ensemble level variables and [time][lat][lon] for surface variables.
// Fill values declared by the file surface as NaN.
type netcdfDataset struct {
	group api.Group
}

// OpenNetCDF opens a netCDF (classic or HDF5-backed) file as a
// GriddedDataset. Opening fails fast when the file cannot be parsed, so a
// missing or truncated download is caught before any ingestion runs.
func OpenNetCDF(path string) (GriddedDataset, error) {
	group, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening netCDF file %s: %w", path, err)
	}
	return &netcdfDataset{group: group}, nil
}

func (d *netcdfDataset) Close() error {
	d.group.Close()
	return nil
}

// variable loads a variable's values and its fill value, if declared.
func (d *netcdfDataset) variable(name string) (any, float64, bool, error) {
	vr, err := d.group.GetVariable(name)
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading variable %q: %w", name, err)
	}
	fill := math.NaN()
	hasFill := false
	if vr.Attributes != nil {
		for _, attr := range []string{"_FillValue", "missing_value"} {
			if raw, ok := vr.Attributes.Get(attr); ok {
				if v, err := scalarToFloat(raw); err == nil {
					fill = v
					hasFill = true
					break
				}
			}
		}
	}
	return vr.Values, fill, hasFill, nil
}

func (d *netcdfDataset) Axis(name string) ([]float64, error) {
	values, fill, hasFill, err := d.variable(name)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("variable %q is not one-dimensional", name)
	}
	out := make([]float64, rv.Len())
	for i := range out {
		v, err := scalarToFloat(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out[i] = applyFill(v, fill, hasFill)
	}
	return out, nil
}

func (d *netcdfDataset) AxisUnits(name string) (string, error) {
	vr, err := d.group.GetVariable(name)
	if err != nil {
		return "", fmt.Errorf("reading variable %q: %w", name, err)
	}
	if vr.Attributes != nil {
		if raw, ok := vr.Attributes.Get("units"); ok {
			if s, ok := raw.(string); ok {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("variable %q has no units attribute", name)
}

func (d *netcdfDataset) Levels3(name string, timeIndex int, latIdx, lonIdx [2]int) ([][2][2]float64, error) {
	values, fill, hasFill, err := d.variable(name)
	if err != nil {
		return nil, err
	}
	grid, err := sliceIndex(reflect.ValueOf(values), timeIndex)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return readLevelBlock(grid, name, latIdx, lonIdx, fill, hasFill)
}

func (d *netcdfDataset) Levels4(name string, timeIndex, member int, latIdx, lonIdx [2]int) ([][2][2]float64, error) {
	values, fill, hasFill, err := d.variable(name)
	if err != nil {
		return nil, err
	}
	byMember, err := sliceIndex(reflect.ValueOf(values), timeIndex)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	grid, err := sliceIndex(byMember, member)
	if err != nil {
		return nil, fmt.Errorf("variable %q member %d: %w", name, member, err)
	}
	return readLevelBlock(grid, name, latIdx, lonIdx, fill, hasFill)
}

func (d *netcdfDataset) Surface2(name string, timeIndex int, latIdx, lonIdx [2]int) ([2][2]float64, error) {
	values, fill, hasFill, err := d.variable(name)
	if err != nil {
		return [2][2]float64{}, err
	}
	grid, err := sliceIndex(reflect.ValueOf(values), timeIndex)
	if err != nil {
		return [2][2]float64{}, fmt.Errorf("variable %q: %w", name, err)
	}
	var out [2][2]float64
	for a, li := range latIdx {
		for b, lj := range lonIdx {
			v, err := cellValue(grid, li, lj)
			if err != nil {
				return [2][2]float64{}, fmt.Errorf("variable %q: %w", name, err)
			}
			out[a][b] = applyFill(v, fill, hasFill)
		}
	}
	return out, nil
}

// readLevelBlock extracts the 2x2 lat/lon cell at every level of a
// [level][lat][lon] grid.
func readLevelBlock(grid reflect.Value, name string, latIdx, lonIdx [2]int, fill float64, hasFill bool) ([][2][2]float64, error) {
	if grid.Kind() != reflect.Slice {
		return nil, fmt.Errorf("variable %q has too few dimensions", name)
	}
	out := make([][2][2]float64, grid.Len())
	for i := 0; i < grid.Len(); i++ {
		level := grid.Index(i)
		for a, li := range latIdx {
			for b, lj := range lonIdx {
				v, err := cellValue(level, li, lj)
				if err != nil {
					return nil, fmt.Errorf("variable %q level %d: %w", name, i, err)
				}
				out[i][a][b] = applyFill(v, fill, hasFill)
			}
		}
	}
	return out, nil
}

func cellValue(grid reflect.Value, lat, lon int) (float64, error) {
	row, err := sliceIndex(grid, lat)
	if err != nil {
		return 0, err
	}
	cell, err := sliceIndex(row, lon)
	if err != nil {
		return 0, err
	}
	return scalarToFloat(cell.Interface())
}

func sliceIndex(v reflect.Value, i int) (reflect.Value, error) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("expected a slice dimension, got %s", v.Kind())
	}
	if i < 0 || i >= v.Len() {
		return reflect.Value{}, fmt.Errorf("index %d out of range [0, %d)", i, v.Len())
	}
	return v.Index(i), nil
}

func scalarToFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case int:
		return float64(v), nil
	}
	// Attribute scalars sometimes arrive as single-element slices.
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice && rv.Len() == 1 {
		return scalarToFloat(rv.Index(0).Interface())
	}
	return 0, fmt.Errorf("unsupported numeric type %T", raw)
}

func applyFill(v, fill float64, hasFill bool) float64 {
	if hasFill && v == fill {
		return math.NaN()
	}
	return v
}
