package rocketenv

import (
	"math"
	"sort"
)

// Physical constants shared by the atmosphere models.
const (
	StandardG      = 9.80665   // m/s², standard gravity
	AirGasConstant = 287.05287 // J/(kg·K), specific gas constant of dry air
)

// ISO 2533 layer table, indexed by layer base. Heights are geopotential.
var (
	isaGeopotentialHeight = []float64{-2e3, 0, 11e3, 20e3, 32e3, 47e3, 51e3, 71e3, 80e3}
	isaTemperature        = []float64{301.15, 288.15, 216.65, 216.65, 228.65, 270.65, 270.65, 214.65, 196.65}
	isaBeta               = []float64{-6.5e-3, -6.5e-3, 0, 1e-3, 2.8e-3, 0, -2.8e-3, -2e-3, 0}
	isaPressure           = []float64{1.27774e5, 1.01325e5, 2.26320e4, 5.47487e3, 8.680164e2, 1.10906e2, 6.69384e1, 3.95639e0, 8.86272e-2}
)

// geopotentialToGeometric converts geopotential height H to geometric height
// above sea level, given the local Earth radius.
func geopotentialToGeometric(H, earthRadius float64) float64 {
	return earthRadius * H / (earthRadius - H)
}

// geometricToGeopotential is the inverse of geopotentialToGeometric.
func geometricToGeopotential(h, earthRadius float64) float64 {
	return earthRadius * h / (earthRadius + h)
}

// ISAProfiles returns the International Standard Atmosphere pressure and
// temperature as functions of geometric height above sea level, for the given
// Earth radius. The temperature profile is a sampled linear function over the
// layer bases; the pressure profile is the closed-form barometric solution
// per layer, clamped to the table's end values outside [-2 km, 80 km].
func ISAProfiles(earthRadius float64) (pressure, temperature *Function) {
	heights := make([]float64, len(isaGeopotentialHeight))
	for i, H := range isaGeopotentialHeight {
		heights[i] = geopotentialToGeometric(H, earthRadius)
	}
	temperature, err := NewSampledFunction(heights, isaTemperature, Linear, ExtrapConstant)
	if err != nil {
		panic("ISA temperature table invalid: " + err.Error())
	}

	pressure = NewFunction(func(h float64) float64 {
		H := geometricToGeopotential(h, earthRadius)
		if H < isaGeopotentialHeight[0] {
			return isaPressure[0]
		}
		if H > isaGeopotentialHeight[len(isaGeopotentialHeight)-1] {
			return isaPressure[len(isaPressure)-1]
		}
		layer := sort.SearchFloat64s(isaGeopotentialHeight, H)
		if layer >= len(isaGeopotentialHeight) || isaGeopotentialHeight[layer] != H {
			layer--
		}
		Hb := isaGeopotentialHeight[layer]
		Tb := isaTemperature[layer]
		Pb := isaPressure[layer]
		B := isaBeta[layer]
		if B != 0 {
			return Pb * math.Pow(1+(B/Tb)*(H-Hb), -StandardG/(B*AirGasConstant))
		}
		return Pb * math.Exp(-(H-Hb)*StandardG/(AirGasConstant*Tb))
	})
	return pressure, temperature
}
