package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ChristopherRabotin/ode"
	"github.com/spf13/viper"
	"github.com/thomaspasser/rocketenv"
)

// flightsim integrates a one-degree-of-freedom vertical flight against a
// launch site environment and a draining propellant tank, writing the
// trajectory as CSV. It exists to exercise the full profile contract the way
// an external trajectory solver would.

const defaultScenario = "~~unset~~"

var (
	scenario string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "flight scenario TOML file (without extension)")
	flag.BoolVar(&verbose, "verbose", false, "log every integration status line")
}

// flight is the ode.Integrable: state is [altitude, velocity].
type flight struct {
	env      *rocketenv.Environment
	tank     rocketenv.Tank
	massFlow *rocketenv.Function
	mass     *rocketenv.Function

	dryMass   float64
	dragArea  float64
	dragCd    float64
	exhaustVe float64
	step      float64

	t     float64
	state []float64
	out   *csvWriter
}

func (f *flight) GetState() []float64 {
	return f.state
}

func (f *flight) SetState(t float64, s []float64) {
	f.t = t
	f.state = s
	f.out.writeRow(t, s[0], s[1], f.totalMass(t))
}

func (f *flight) Stop(t float64) bool {
	// Stop at ground impact after a positive excursion, or past the
	// atmosphere ceiling.
	if f.state[0] < 0 && t > f.step {
		return true
	}
	return f.state[0] > f.env.MaxExpectedHeight()
}

func (f *flight) totalMass(t float64) float64 {
	return f.dryMass + f.mass.Call(t)
}

func (f *flight) Func(t float64, s []float64) []float64 {
	alt, vel := s[0], s[1]
	h := alt + f.env.Elevation

	m := f.totalMass(t)
	g := f.env.Gravity().Call(h)
	rho := f.env.Density().Call(h)
	drag := 0.5 * rho * f.dragCd * f.dragArea * vel * vel
	if vel > 0 {
		drag = -drag
	}
	// Net flow is inlet minus outlet, so a draining tank is negative.
	thrust := -f.massFlow.Call(t) * f.exhaustVe

	return []float64{vel, (thrust + drag) / m - g}
}

type csvWriter struct {
	f *os.File
}

func (w *csvWriter) writeRow(t, alt, vel, mass float64) {
	fmt.Fprintf(w.f, "%.3f,%.3f,%.3f,%.3f\n", t, alt, vel, mass)
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	viper.AddConfigPath(".")
	viper.SetConfigName(scenario)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("./%s.toml: %s", scenario, err)
	}

	// Launch site.
	env, err := rocketenv.NewEnvironment(
		viper.GetFloat64("site.rail_length"),
		viper.GetFloat64("site.latitude"),
		viper.GetFloat64("site.longitude"),
		viper.GetFloat64("site.elevation"),
		viper.GetString("site.datum"),
		nil,
	)
	if err != nil {
		log.Fatalf("building environment: %s", err)
	}

	// Propellant tank: a cylinder drained at a constant liquid flow rate.
	geometry, err := rocketenv.NewCylindricalTankGeometry(
		viper.GetFloat64("tank.radius"),
		viper.GetFloat64("tank.height"),
	)
	if err != nil {
		log.Fatalf("building tank geometry: %s", err)
	}
	burnTime := viper.GetFloat64("tank.burn_time")
	liquidMass := viper.GetFloat64("tank.liquid_mass")
	gasMass := viper.GetFloat64("tank.gas_mass")
	tank, err := rocketenv.NewMassFlowRateBasedTank(
		viper.GetString("tank.name"),
		geometry,
		rocketenv.Fluid{Name: viper.GetString("tank.liquid"), Density: viper.GetFloat64("tank.liquid_density")},
		rocketenv.Fluid{Name: viper.GetString("tank.gas"), Density: viper.GetFloat64("tank.gas_density")},
		liquidMass, gasMass,
		0.0, 0.0,
		[][2]float64{{0, liquidMass / burnTime}, {burnTime, liquidMass / burnTime}},
		0.0,
	)
	if err != nil {
		log.Fatalf("building tank: %s", err)
	}
	if verbose {
		com := rocketenv.CenterOfMass(tank)
		log.Printf("tank %s: initial fluid CoM %.4f m", tank.Name(), com.Call(0))
	}

	out, err := os.Create(viper.GetString("output.file"))
	if err != nil {
		log.Fatalf("creating output file: %s", err)
	}
	defer out.Close()
	fmt.Fprintln(out, "time,altitude,velocity,mass")

	step := viper.GetFloat64("mission.step")
	f := &flight{
		env:       env,
		tank:      tank,
		massFlow:  tank.NetMassFlowRate(),
		mass:      tank.Mass(),
		dryMass:   viper.GetFloat64("rocket.dry_mass"),
		dragArea:  viper.GetFloat64("rocket.drag_area"),
		dragCd:    viper.GetFloat64("rocket.drag_cd"),
		exhaustVe: viper.GetFloat64("rocket.exhaust_velocity"),
		step:      step,
		state:     []float64{0, 0},
		out:       &csvWriter{f: out},
	}
	ode.NewRK4(0, step, f).Solve() // Blocking.
	log.Printf("flight done at t=%.1f s, altitude %.1f m", f.t, f.state[0])
}
