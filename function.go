package rocketenv

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/interp"
)

// Interpolation selects how a sampled Function evaluates between samples.
type Interpolation uint8

const (
	// Linear joins consecutive samples with straight segments.
	Linear Interpolation = iota
	// Spline fits a natural cubic spline through the samples.
	Spline
	// Akima fits an Akima spline, which limits overshoot near outliers.
	Akima
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case Spline:
		return "spline"
	case Akima:
		return "akima"
	}
	panic("cannot stringify unknown interpolation")
}

// Extrapolation selects how a sampled Function evaluates outside its samples.
type Extrapolation uint8

const (
	// ExtrapConstant holds the boundary sample value.
	ExtrapConstant Extrapolation = iota
	// ExtrapLinear extends the boundary segment's slope.
	ExtrapLinear
	// ExtrapZero returns zero outside the sampled range.
	ExtrapZero
	// ExtrapNatural lets the fitted interpolant extend itself.
	ExtrapNatural
)

func (e Extrapolation) String() string {
	switch e {
	case ExtrapConstant:
		return "constant"
	case ExtrapLinear:
		return "linear"
	case ExtrapZero:
		return "zero"
	case ExtrapNatural:
		return "natural"
	}
	panic("cannot stringify unknown extrapolation")
}

// Function is a continuous scalar function of one variable, backed either by
// a closed-form callable or by an interpolated sample table. Functions are
// immutable: every operation returns a new Function, and compositions are
// lazy, re-evaluating their operands on every call.
type Function struct {
	call          func(float64) float64
	xs, ys        []float64
	pred          interp.Predictor
	interpolation Interpolation
	extrapolation Extrapolation
}

// NewConstantFunction returns a Function with the same value everywhere.
func NewConstantFunction(value float64) *Function {
	return &Function{call: func(float64) float64 { return value }}
}

// NewFunction wraps a callable as a Function.
func NewFunction(f func(float64) float64) *Function {
	return &Function{call: f}
}

// NewSampledFunction builds a Function from (x, y) samples. The xs must be
// strictly increasing and hold at least two entries.
func NewSampledFunction(xs, ys []float64, interpolation Interpolation, extrapolation Extrapolation) (*Function, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("sample length mismatch: %d inputs, %d outputs", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("at least two samples required, got %d", len(xs))
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("sample inputs must be strictly increasing: x[%d]=%g, x[%d]=%g", i-1, xs[i-1], i, xs[i])
		}
	}
	cxs := make([]float64, len(xs))
	cys := make([]float64, len(ys))
	copy(cxs, xs)
	copy(cys, ys)
	var p interp.Predictor
	switch interpolation {
	case Linear:
		pl := &interp.PiecewiseLinear{}
		if err := pl.Fit(cxs, cys); err != nil {
			return nil, fmt.Errorf("fitting linear interpolant: %w", err)
		}
		p = pl
	case Spline:
		nc := &interp.NaturalCubic{}
		if err := nc.Fit(cxs, cys); err != nil {
			return nil, fmt.Errorf("fitting cubic spline: %w", err)
		}
		p = nc
	case Akima:
		ak := &interp.AkimaSpline{}
		if err := ak.Fit(cxs, cys); err != nil {
			return nil, fmt.Errorf("fitting Akima spline: %w", err)
		}
		p = ak
	default:
		return nil, fmt.Errorf("unknown interpolation %d", interpolation)
	}
	return &Function{xs: cxs, ys: cys, pred: p, interpolation: interpolation, extrapolation: extrapolation}, nil
}

// newProfile sorts the samples by x, drops duplicate x entries (first one
// wins) and builds a linear profile. Ingestion adapters deliver level data in
// whatever order the source uses, so this is their common funnel.
func newProfile(xs, ys []float64) (*Function, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("sample length mismatch: %d inputs, %d outputs", len(xs), len(ys))
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	sx := make([]float64, 0, len(xs))
	sy := make([]float64, 0, len(ys))
	for _, i := range idx {
		if len(sx) > 0 && xs[i] == sx[len(sx)-1] {
			continue
		}
		sx = append(sx, xs[i])
		sy = append(sy, ys[i])
	}
	return NewSampledFunction(sx, sy, Linear, ExtrapConstant)
}

// ResolveSource turns a scalar, callable, sample table or existing Function
// into a canonical *Function. Every user-supplied profile input goes through
// this resolution exactly once, at construction; downstream code only ever
// sees the canonical Function.
func ResolveSource(src any, interpolation Interpolation, extrapolation Extrapolation) (*Function, error) {
	switch v := src.(type) {
	case *Function:
		return v, nil
	case float64:
		return NewConstantFunction(v), nil
	case int:
		return NewConstantFunction(float64(v)), nil
	case func(float64) float64:
		return NewFunction(v), nil
	case [][2]float64:
		xs := make([]float64, len(v))
		ys := make([]float64, len(v))
		for i, p := range v {
			xs[i], ys[i] = p[0], p[1]
		}
		return NewSampledFunction(xs, ys, interpolation, extrapolation)
	case nil:
		return nil, fmt.Errorf("nil profile source")
	default:
		return nil, fmt.Errorf("unsupported profile source type %T", src)
	}
}

// Call evaluates the function at x, applying the extrapolation rule when x
// falls outside a sampled function's range.
func (f *Function) Call(x float64) float64 {
	if f.call != nil {
		return f.call(x)
	}
	n := len(f.xs)
	switch {
	case x < f.xs[0]:
		switch f.extrapolation {
		case ExtrapZero:
			return 0
		case ExtrapLinear:
			slope := (f.ys[1] - f.ys[0]) / (f.xs[1] - f.xs[0])
			return f.ys[0] + slope*(x-f.xs[0])
		case ExtrapNatural:
			return f.pred.Predict(x)
		default:
			return f.ys[0]
		}
	case x > f.xs[n-1]:
		switch f.extrapolation {
		case ExtrapZero:
			return 0
		case ExtrapLinear:
			slope := (f.ys[n-1] - f.ys[n-2]) / (f.xs[n-1] - f.xs[n-2])
			return f.ys[n-1] + slope*(x-f.xs[n-1])
		case ExtrapNatural:
			return f.pred.Predict(x)
		default:
			return f.ys[n-1]
		}
	}
	return f.pred.Predict(x)
}

// IsSampled reports whether the function is backed by a sample table.
func (f *Function) IsSampled() bool { return f.call == nil }

// Samples returns copies of the sample table, or nils for callable sources.
func (f *Function) Samples() (xs, ys []float64) {
	if f.call != nil {
		return nil, nil
	}
	xs = make([]float64, len(f.xs))
	ys = make([]float64, len(f.ys))
	copy(xs, f.xs)
	copy(ys, f.ys)
	return xs, ys
}

// SampleBounds returns the sampled input range, or ok=false for callables.
func (f *Function) SampleBounds() (lo, hi float64, ok bool) {
	if f.call != nil {
		return 0, 0, false
	}
	return f.xs[0], f.xs[len(f.xs)-1], true
}

// Add returns the lazy pointwise sum f + g.
func (f *Function) Add(g *Function) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(x) + g.Call(x) })
}

// Sub returns the lazy pointwise difference f - g.
func (f *Function) Sub(g *Function) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(x) - g.Call(x) })
}

// Mul returns the lazy pointwise product f * g.
func (f *Function) Mul(g *Function) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(x) * g.Call(x) })
}

// Div returns the lazy pointwise quotient f / g.
func (f *Function) Div(g *Function) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(x) / g.Call(x) })
}

// Scale returns k * f.
func (f *Function) Scale(k float64) *Function {
	return NewFunction(func(x float64) float64 { return k * f.Call(x) })
}

// Shift returns f + k.
func (f *Function) Shift(k float64) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(x) + k })
}

// Compose returns f∘g, i.e. x ↦ f(g(x)).
func (f *Function) Compose(g *Function) *Function {
	return NewFunction(func(x float64) float64 { return f.Call(g.Call(x)) })
}

// DerivativeFunction returns the numerical derivative of f, via a symmetric
// difference quotient.
func (f *Function) DerivativeFunction() *Function {
	return NewFunction(func(x float64) float64 {
		h := 1e-6 * math.Max(1, math.Abs(x))
		return (f.Call(x+h) - f.Call(x-h)) / (2 * h)
	})
}

// Integral computes the definite integral of f from a to b. For sampled
// linear functions the segment accumulation is exact, including the
// extrapolated tails; other sources use fixed-rule Gauss-Legendre quadrature.
func (f *Function) Integral(a, b float64) float64 {
	if a == b {
		return 0
	}
	if b < a {
		return -f.Integral(b, a)
	}
	if f.call != nil {
		return quad.Fixed(f.call, a, b, 42, nil, 0)
	}
	n := len(f.xs)
	total := 0.0
	// Left tail: every extrapolation rule is affine out here, so the
	// trapezoid of the extrapolated values is exact.
	if a < f.xs[0] {
		hi := math.Min(b, f.xs[0])
		total += (f.Call(a) + f.Call(hi)) / 2 * (hi - a)
	}
	// Right tail.
	if b > f.xs[n-1] {
		lo := math.Max(a, f.xs[n-1])
		total += (f.Call(lo) + f.Call(b)) / 2 * (b - lo)
	}
	// Interior segments clipped to [a, b].
	for i := 0; i < n-1; i++ {
		lo := math.Max(a, f.xs[i])
		hi := math.Min(b, f.xs[i+1])
		if hi <= lo {
			continue
		}
		if f.interpolation == Linear {
			total += (f.Call(lo) + f.Call(hi)) / 2 * (hi - lo)
		} else {
			total += quad.Fixed(f.Call, lo, hi, 8, nil, 0)
		}
	}
	return total
}

// IntegralFunction returns the cumulative integral x ↦ ∫_from^x f. The result
// is lazy; discretize it with SetDiscrete when it sits in a hot loop.
func (f *Function) IntegralFunction(from float64) *Function {
	return NewFunction(func(x float64) float64 { return f.Integral(from, x) })
}

// Inverse finds x in [lo, hi] with f(x) = y by bisection. f must be monotonic
// over the bracket.
func (f *Function) Inverse(y, lo, hi, tol float64) (float64, error) {
	flo := f.Call(lo) - y
	fhi := f.Call(hi) - y
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if flo*fhi > 0 {
		return 0, fmt.Errorf("no solution of f(x)=%g bracketed in [%g, %g]", y, lo, hi)
	}
	for i := 0; i < 200 && hi-lo > tol; i++ {
		mid := (lo + hi) / 2
		fm := f.Call(mid) - y
		if fm == 0 {
			return mid, nil
		}
		if fm*flo < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	return (lo + hi) / 2, nil
}

// SetDiscrete samples f on a uniform n-point grid over [lo, hi], returning a
// sampled Function that is cheap to evaluate repeatedly.
func (f *Function) SetDiscrete(lo, hi float64, n int, interpolation Interpolation, extrapolation Extrapolation) (*Function, error) {
	if n < 2 {
		return nil, fmt.Errorf("at least two grid points required, got %d", n)
	}
	if hi <= lo {
		return nil, fmt.Errorf("invalid discretization range [%g, %g]", lo, hi)
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		xs[i] = lo + float64(i)*step
		ys[i] = f.Call(xs[i])
	}
	return NewSampledFunction(xs, ys, interpolation, extrapolation)
}
