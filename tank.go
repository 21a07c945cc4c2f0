package rocketenv

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fluid is a stored propellant or pressurant, assumed incompressible with a
// fixed density in kg/m³.
type Fluid struct {
	Name    string
	Density float64
}

// TankGeometry describes an axisymmetric tank by its filled-volume integrals
// over the height coordinate. Heights run from Bottom to Top; the volume
// functions treat a height h as "filled up to h".
type TankGeometry interface {
	// Volume maps a fill height to the filled volume below it.
	Volume() *Function
	// InverseVolume maps a filled volume back to its fill height.
	InverseVolume() *Function
	// TotalVolume is the tank capacity.
	TotalVolume() float64
	// Balance returns the first moment of filled volume about height zero,
	// as a function of fill height: h -> integral of A(x)*x from lo to h.
	Balance(lo float64) *Function
	// IxVolume returns the volume integral behind the transverse moment of
	// inertia about height zero: h -> integral of A(x)*(x² + r(x)²/4).
	IxVolume(lo float64) *Function
	Top() float64
	Bottom() float64
}

// CylindricalTankGeometry is a flat-capped cylinder centered on height zero.
type CylindricalTankGeometry struct {
	radius float64
	height float64
}

// NewCylindricalTankGeometry builds a cylinder of the given radius and
// height, spanning heights -height/2 to height/2.
func NewCylindricalTankGeometry(radius, height float64) (*CylindricalTankGeometry, error) {
	if radius <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid cylinder dimensions: radius %g, height %g", radius, height)
	}
	return &CylindricalTankGeometry{radius: radius, height: height}, nil
}

func (c *CylindricalTankGeometry) area() float64   { return math.Pi * c.radius * c.radius }
func (c *CylindricalTankGeometry) Top() float64    { return c.height / 2 }
func (c *CylindricalTankGeometry) Bottom() float64 { return -c.height / 2 }

func (c *CylindricalTankGeometry) TotalVolume() float64 {
	return c.area() * c.height
}

func (c *CylindricalTankGeometry) Volume() *Function {
	return NewFunction(func(h float64) float64 {
		return c.area() * (h - c.Bottom())
	})
}

func (c *CylindricalTankGeometry) InverseVolume() *Function {
	return NewFunction(func(v float64) float64 {
		return c.Bottom() + v/c.area()
	})
}

func (c *CylindricalTankGeometry) Balance(lo float64) *Function {
	return NewFunction(func(h float64) float64 {
		return c.area() * (h*h - lo*lo) / 2
	})
}

func (c *CylindricalTankGeometry) IxVolume(lo float64) *Function {
	r2 := c.radius * c.radius
	return NewFunction(func(h float64) float64 {
		return c.area() * ((h*h*h-lo*lo*lo)/3 + r2*(h-lo)/4)
	})
}

// Tank exposes the time-resolved fluid state of one propellant tank. All
// profiles are functions of time in seconds; heights are measured on the
// geometry's height coordinate.
type Tank interface {
	Name() string
	Geometry() TankGeometry
	Liquid() Fluid
	Gas() Fluid

	// Mass is the total fluid mass in the tank.
	Mass() *Function
	// NetMassFlowRate is the rate of change of total mass, negative when
	// the tank drains.
	NetMassFlowRate() *Function
	LiquidVolume() *Function
	GasVolume() *Function
	LiquidHeight() *Function
	// GasHeight is the top of the gas column.
	GasHeight() *Function
	LiquidMass() *Function
	GasMass() *Function
}

// tankBase carries the identity fields shared by all tank variants.
type tankBase struct {
	name     string
	geometry TankGeometry
	liquid   Fluid
	gas      Fluid
}

func (t *tankBase) Name() string           { return t.name }
func (t *tankBase) Geometry() TankGeometry { return t.geometry }
func (t *tankBase) Liquid() Fluid          { return t.liquid }
func (t *tankBase) Gas() Fluid             { return t.gas }

// LiquidCenterOfMass returns the liquid column's center of mass over time,
// measured on the geometry's height coordinate.
func LiquidCenterOfMass(t Tank) *Function {
	balance := t.Geometry().Balance(t.Geometry().Bottom())
	return balance.Compose(t.LiquidHeight()).Div(t.LiquidVolume())
}

// GasCenterOfMass returns the gas column's center of mass over time.
func GasCenterOfMass(t Tank) *Function {
	balance := t.Geometry().Balance(t.Geometry().Bottom())
	upper := balance.Compose(t.GasHeight())
	lower := balance.Compose(t.LiquidHeight())
	return upper.Sub(lower).Div(t.GasVolume())
}

// CenterOfMass returns the mass-weighted center of mass of both fluids.
func CenterOfMass(t Tank) *Function {
	liquid := LiquidCenterOfMass(t).Mul(t.LiquidMass())
	gas := GasCenterOfMass(t).Mul(t.GasMass())
	return liquid.Add(gas).Div(t.Mass())
}

// LiquidInertia returns the liquid's transverse moment of inertia about the
// tank fluids' center of mass, via the parallel axis theorem: the raw
// moment about height zero is shifted to the liquid's own center of mass and
// then out to the combined one.
func LiquidInertia(t Tank) *Function {
	ix := t.Geometry().IxVolume(t.Geometry().Bottom()).Compose(t.LiquidHeight())
	com := LiquidCenterOfMass(t)
	tankCom := CenterOfMass(t)
	vol := t.LiquidVolume()
	ix = ix.Sub(vol.Mul(com).Mul(com))
	shift := com.Sub(tankCom)
	ix = ix.Add(vol.Mul(shift).Mul(shift))
	return ix.Scale(t.Liquid().Density)
}

// GasInertia is LiquidInertia for the gas column between the liquid surface
// and the gas top.
func GasInertia(t Tank) *Function {
	ixVolume := t.Geometry().IxVolume(t.Geometry().Bottom())
	ix := ixVolume.Compose(t.GasHeight()).Sub(ixVolume.Compose(t.LiquidHeight()))
	com := GasCenterOfMass(t)
	tankCom := CenterOfMass(t)
	vol := t.GasVolume()
	ix = ix.Sub(vol.Mul(com).Mul(com))
	shift := com.Sub(tankCom)
	ix = ix.Add(vol.Mul(shift).Mul(shift))
	return ix.Scale(t.Gas().Density)
}

// Inertia returns the total transverse moment of inertia of the tank's
// fluids about their center of mass.
func Inertia(t Tank) *Function {
	return LiquidInertia(t).Add(GasInertia(t))
}

// InertiaTensor returns the fluids' inertia tensor at time tSec, in the tank
// frame with the spin axis along the tank's axis of symmetry. Fluids carry
// no angular momentum about the spin axis, so that component is zero.
func InertiaTensor(t Tank, tSec float64) *mat.SymDense {
	ix := Inertia(t).Call(tSec)
	return mat.NewSymDense(3, []float64{
		ix, 0, 0,
		0, ix, 0,
		0, 0, 0,
	})
}

// MassFlowRateBasedTank derives its state from initial fluid masses and the
// four inlet/outlet mass flow rates. Masses follow by integration, so the
// underfill and overfill checks can only run at evaluation: LiquidMass,
// GasMass and GasHeight panic when the integrated state leaves the tank.
type MassFlowRateBasedTank struct {
	tankBase
	initialLiquidMass float64
	initialGasMass    float64

	netLiquidFlow *Function
	netGasFlow    *Function
}

// NewMassFlowRateBasedTank builds a flow-rate tank. The flow rate sources
// follow the profile source contract and extrapolate to zero outside their
// samples, so a burn simply ends.
func NewMassFlowRateBasedTank(name string, geometry TankGeometry, liquid, gas Fluid,
	initialLiquidMass, initialGasMass float64,
	liquidIn, gasIn, liquidOut, gasOut any) (*MassFlowRateBasedTank, error) {
	if initialLiquidMass < 0 || initialGasMass < 0 {
		return nil, fmt.Errorf("tank %s: negative initial fluid mass", name)
	}
	resolve := func(src any, what string) (*Function, error) {
		f, err := ResolveSource(src, Linear, ExtrapZero)
		if err != nil {
			return nil, fmt.Errorf("tank %s: resolving %s flow rate: %w", name, what, err)
		}
		return f, nil
	}
	lin, err := resolve(liquidIn, "liquid inlet")
	if err != nil {
		return nil, err
	}
	gin, err := resolve(gasIn, "gas inlet")
	if err != nil {
		return nil, err
	}
	lout, err := resolve(liquidOut, "liquid outlet")
	if err != nil {
		return nil, err
	}
	gout, err := resolve(gasOut, "gas outlet")
	if err != nil {
		return nil, err
	}
	return &MassFlowRateBasedTank{
		tankBase:          tankBase{name: name, geometry: geometry, liquid: liquid, gas: gas},
		initialLiquidMass: initialLiquidMass,
		initialGasMass:    initialGasMass,
		netLiquidFlow:     lin.Sub(lout),
		netGasFlow:        gin.Sub(gout),
	}, nil
}

// NetLiquidFlowRate is inlet minus outlet liquid flow.
func (t *MassFlowRateBasedTank) NetLiquidFlowRate() *Function { return t.netLiquidFlow }

// NetGasFlowRate is inlet minus outlet gas flow.
func (t *MassFlowRateBasedTank) NetGasFlowRate() *Function { return t.netGasFlow }

func (t *MassFlowRateBasedTank) NetMassFlowRate() *Function {
	return t.netLiquidFlow.Add(t.netGasFlow)
}

func (t *MassFlowRateBasedTank) LiquidMass() *Function {
	flow := t.netLiquidFlow.IntegralFunction(0)
	return NewFunction(func(x float64) float64 {
		m := t.initialLiquidMass + flow.Call(x)
		if m < 0 {
			panic(fmt.Sprintf("tank %s is underfilled: liquid mass %g at t=%g", t.name, m, x))
		}
		return m
	})
}

func (t *MassFlowRateBasedTank) GasMass() *Function {
	flow := t.netGasFlow.IntegralFunction(0)
	return NewFunction(func(x float64) float64 {
		m := t.initialGasMass + flow.Call(x)
		if m < 0 {
			panic(fmt.Sprintf("tank %s is underfilled: gas mass %g at t=%g", t.name, m, x))
		}
		return m
	})
}

func (t *MassFlowRateBasedTank) Mass() *Function {
	return t.LiquidMass().Add(t.GasMass())
}

func (t *MassFlowRateBasedTank) LiquidVolume() *Function {
	return t.LiquidMass().Scale(1 / t.liquid.Density)
}

func (t *MassFlowRateBasedTank) GasVolume() *Function {
	return t.GasMass().Scale(1 / t.gas.Density)
}

func (t *MassFlowRateBasedTank) LiquidHeight() *Function {
	return t.geometry.InverseVolume().Compose(t.LiquidVolume())
}

func (t *MassFlowRateBasedTank) GasHeight() *Function {
	fluidVolume := t.GasVolume().Add(t.LiquidVolume())
	height := t.geometry.InverseVolume().Compose(fluidVolume)
	top := t.geometry.Top()
	return NewFunction(func(x float64) float64 {
		h := height.Call(x)
		if h > top {
			panic(fmt.Sprintf("tank %s is overfilled: gas height %g above tank top %g at t=%g", t.name, h, top, x))
		}
		return h
	})
}

// UllageBasedTank derives its state from the ullage (gas) volume over time.
// The tank is assumed to stay liquid-filled below the ullage, so the gas
// column always tops out at the tank top.
type UllageBasedTank struct {
	tankBase
	ullage *Function
}

// NewUllageBasedTank builds an ullage tank. Sampled ullage sources are
// validated against the tank capacity at construction.
func NewUllageBasedTank(name string, geometry TankGeometry, liquid, gas Fluid, ullage any) (*UllageBasedTank, error) {
	f, err := ResolveSource(ullage, Linear, ExtrapConstant)
	if err != nil {
		return nil, fmt.Errorf("tank %s: resolving ullage: %w", name, err)
	}
	if _, ys := f.Samples(); ys != nil {
		for _, v := range ys {
			if v < 0 || v > geometry.TotalVolume() {
				return nil, fmt.Errorf("tank %s: ullage volume %g out of bounds [0, %g]", name, v, geometry.TotalVolume())
			}
		}
	}
	return &UllageBasedTank{
		tankBase: tankBase{name: name, geometry: geometry, liquid: liquid, gas: gas},
		ullage:   f,
	}, nil
}

func (t *UllageBasedTank) GasVolume() *Function { return t.ullage }

func (t *UllageBasedTank) LiquidVolume() *Function {
	return NewConstantFunction(t.geometry.TotalVolume()).Sub(t.ullage)
}

func (t *UllageBasedTank) LiquidMass() *Function {
	return t.LiquidVolume().Scale(t.liquid.Density)
}

func (t *UllageBasedTank) GasMass() *Function {
	return t.GasVolume().Scale(t.gas.Density)
}

func (t *UllageBasedTank) Mass() *Function {
	return t.LiquidMass().Add(t.GasMass())
}

func (t *UllageBasedTank) NetMassFlowRate() *Function {
	return t.Mass().DerivativeFunction()
}

func (t *UllageBasedTank) LiquidHeight() *Function {
	return t.geometry.InverseVolume().Compose(t.LiquidVolume())
}

func (t *UllageBasedTank) GasHeight() *Function {
	return NewConstantFunction(t.geometry.Top())
}

// LevelBasedTank derives its state from the liquid level over time, with the
// same liquid-filled assumption as the ullage tank.
type LevelBasedTank struct {
	tankBase
	liquidHeight *Function
}

// NewLevelBasedTank builds a level tank. Sampled level sources are validated
// against the geometry bounds at construction.
func NewLevelBasedTank(name string, geometry TankGeometry, liquid, gas Fluid, liquidHeight any) (*LevelBasedTank, error) {
	f, err := ResolveSource(liquidHeight, Linear, ExtrapConstant)
	if err != nil {
		return nil, fmt.Errorf("tank %s: resolving liquid level: %w", name, err)
	}
	if _, ys := f.Samples(); ys != nil {
		for _, v := range ys {
			if v < geometry.Bottom() || v > geometry.Top() {
				return nil, fmt.Errorf("tank %s: liquid level %g out of bounds [%g, %g]", name, v, geometry.Bottom(), geometry.Top())
			}
		}
	}
	return &LevelBasedTank{
		tankBase:     tankBase{name: name, geometry: geometry, liquid: liquid, gas: gas},
		liquidHeight: f,
	}, nil
}

func (t *LevelBasedTank) LiquidHeight() *Function { return t.liquidHeight }

func (t *LevelBasedTank) LiquidVolume() *Function {
	return t.geometry.Volume().Compose(t.liquidHeight)
}

func (t *LevelBasedTank) GasVolume() *Function {
	return NewConstantFunction(t.geometry.TotalVolume()).Sub(t.LiquidVolume())
}

func (t *LevelBasedTank) LiquidMass() *Function {
	return t.LiquidVolume().Scale(t.liquid.Density)
}

func (t *LevelBasedTank) GasMass() *Function {
	return t.GasVolume().Scale(t.gas.Density)
}

func (t *LevelBasedTank) Mass() *Function {
	return t.LiquidMass().Add(t.GasMass())
}

func (t *LevelBasedTank) NetMassFlowRate() *Function {
	return t.Mass().DerivativeFunction()
}

func (t *LevelBasedTank) GasHeight() *Function {
	return NewConstantFunction(t.geometry.Top())
}

// MassBasedTank derives its state from measured liquid and gas masses over
// time. The gas height is not validated against the tank top: measured mass
// series routinely overshoot capacity within sensor error.
type MassBasedTank struct {
	tankBase
	liquidMass *Function
	gasMass    *Function
}

// NewMassBasedTank builds a mass tank from liquid and gas mass sources.
func NewMassBasedTank(name string, geometry TankGeometry, liquid, gas Fluid, liquidMass, gasMass any) (*MassBasedTank, error) {
	lm, err := ResolveSource(liquidMass, Linear, ExtrapConstant)
	if err != nil {
		return nil, fmt.Errorf("tank %s: resolving liquid mass: %w", name, err)
	}
	gm, err := ResolveSource(gasMass, Linear, ExtrapConstant)
	if err != nil {
		return nil, fmt.Errorf("tank %s: resolving gas mass: %w", name, err)
	}
	return &MassBasedTank{
		tankBase:   tankBase{name: name, geometry: geometry, liquid: liquid, gas: gas},
		liquidMass: lm,
		gasMass:    gm,
	}, nil
}

func (t *MassBasedTank) LiquidMass() *Function { return t.liquidMass }
func (t *MassBasedTank) GasMass() *Function    { return t.gasMass }

func (t *MassBasedTank) Mass() *Function {
	return t.liquidMass.Add(t.gasMass)
}

func (t *MassBasedTank) NetMassFlowRate() *Function {
	return t.Mass().DerivativeFunction()
}

func (t *MassBasedTank) LiquidVolume() *Function {
	return t.liquidMass.Scale(1 / t.liquid.Density)
}

func (t *MassBasedTank) GasVolume() *Function {
	return t.gasMass.Scale(1 / t.gas.Density)
}

func (t *MassBasedTank) LiquidHeight() *Function {
	return t.geometry.InverseVolume().Compose(t.LiquidVolume())
}

func (t *MassBasedTank) GasHeight() *Function {
	fluidVolume := t.GasVolume().Add(t.LiquidVolume())
	return t.geometry.InverseVolume().Compose(fluidVolume)
}
