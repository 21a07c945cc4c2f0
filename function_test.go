package rocketenv

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestSampledFunctionValidation(t *testing.T) {
	if _, err := NewSampledFunction([]float64{0, 1}, []float64{0}, Linear, ExtrapConstant); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := NewSampledFunction([]float64{0}, []float64{1}, Linear, ExtrapConstant); err == nil {
		t.Fatal("expected too-few-samples error")
	}
	if _, err := NewSampledFunction([]float64{0, 1, 1}, []float64{0, 1, 2}, Linear, ExtrapConstant); err == nil {
		t.Fatal("expected strictly-increasing error")
	}
}

func TestLinearInterpolation(t *testing.T) {
	f, err := NewSampledFunction([]float64{0, 1, 2}, []float64{0, 10, 0}, Linear, ExtrapConstant)
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(f.Call(0.5), 5, 1e-12) {
		t.Fatalf("f(0.5) = %f, expected 5", f.Call(0.5))
	}
	if !scalar.EqualWithinAbs(f.Call(1), 10, 1e-12) {
		t.Fatalf("f(1) = %f, expected 10", f.Call(1))
	}
	// Constant extrapolation holds the boundary values.
	if f.Call(-5) != 0 || f.Call(5) != 0 {
		t.Fatalf("constant extrapolation failed: f(-5)=%f f(5)=%f", f.Call(-5), f.Call(5))
	}
}

func TestExtrapolationPolicies(t *testing.T) {
	xs := []float64{0, 1, 2}
	ys := []float64{0, 1, 4}
	zero, _ := NewSampledFunction(xs, ys, Linear, ExtrapZero)
	if zero.Call(-1) != 0 || zero.Call(3) != 0 {
		t.Fatal("zero extrapolation must vanish outside the samples")
	}
	lin, _ := NewSampledFunction(xs, ys, Linear, ExtrapLinear)
	// Left slope is 1, right slope is 3.
	if !scalar.EqualWithinAbs(lin.Call(-1), -1, 1e-12) {
		t.Fatalf("left linear extrapolation = %f, expected -1", lin.Call(-1))
	}
	if !scalar.EqualWithinAbs(lin.Call(3), 7, 1e-12) {
		t.Fatalf("right linear extrapolation = %f, expected 7", lin.Call(3))
	}
}

func TestFunctionAlgebra(t *testing.T) {
	f := NewFunction(func(x float64) float64 { return x * x })
	g := NewConstantFunction(2)
	if v := f.Add(g).Call(3); !scalar.EqualWithinAbs(v, 11, 1e-12) {
		t.Fatalf("(x²+2)(3) = %f", v)
	}
	if v := f.Mul(g).Call(3); !scalar.EqualWithinAbs(v, 18, 1e-12) {
		t.Fatalf("(2x²)(3) = %f", v)
	}
	if v := f.Div(g).Call(4); !scalar.EqualWithinAbs(v, 8, 1e-12) {
		t.Fatalf("(x²/2)(4) = %f", v)
	}
	if v := f.Compose(g).Call(100); !scalar.EqualWithinAbs(v, 4, 1e-12) {
		t.Fatalf("(g²)(100) = %f", v)
	}
	if v := f.Scale(3).Call(2); !scalar.EqualWithinAbs(v, 12, 1e-12) {
		t.Fatalf("(3x²)(2) = %f", v)
	}
}

func TestDerivativeFunction(t *testing.T) {
	f := NewFunction(func(x float64) float64 { return x * x * x })
	df := f.DerivativeFunction()
	for _, x := range []float64{-2, 0, 1, 10} {
		if !scalar.EqualWithinAbs(df.Call(x), 3*x*x, 1e-4) {
			t.Fatalf("d(x³)/dx at %f = %f, expected %f", x, df.Call(x), 3*x*x)
		}
	}
}

func TestIntegral(t *testing.T) {
	// Exact for a sampled linear function, including the clipped segments.
	f, _ := NewSampledFunction([]float64{0, 1, 2}, []float64{0, 2, 2}, Linear, ExtrapConstant)
	if v := f.Integral(0, 2); !scalar.EqualWithinAbs(v, 3, 1e-12) {
		t.Fatalf("integral over samples = %f, expected 3", v)
	}
	if v := f.Integral(0.5, 1.5); !scalar.EqualWithinAbs(v, 1.75, 1e-12) {
		t.Fatalf("clipped integral = %f, expected 1.75", v)
	}
	// Constant tails integrate exactly as rectangles.
	if v := f.Integral(2, 4); !scalar.EqualWithinAbs(v, 4, 1e-12) {
		t.Fatalf("tail integral = %f, expected 4", v)
	}
	// Reversed bounds flip the sign.
	if v := f.Integral(2, 0); !scalar.EqualWithinAbs(v, -3, 1e-12) {
		t.Fatalf("reversed integral = %f, expected -3", v)
	}
	// Quadrature path for callables.
	g := NewFunction(math.Sin)
	if v := g.Integral(0, math.Pi); !scalar.EqualWithinAbs(v, 2, 1e-9) {
		t.Fatalf("∫sin over [0,π] = %f, expected 2", v)
	}
}

func TestIntegralFunction(t *testing.T) {
	f := NewConstantFunction(3)
	F := f.IntegralFunction(0)
	if v := F.Call(5); !scalar.EqualWithinAbs(v, 15, 1e-9) {
		t.Fatalf("cumulative integral of 3 at 5 = %f, expected 15", v)
	}
	if v := F.Call(0); !scalar.EqualWithinAbs(v, 0, 1e-12) {
		t.Fatalf("cumulative integral at origin = %f, expected 0", v)
	}
}

func TestInverse(t *testing.T) {
	f := NewFunction(func(x float64) float64 { return x * x })
	x, err := f.Inverse(9, 0, 10, 1e-10)
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(x, 3, 1e-8) {
		t.Fatalf("inverse of x² at 9 = %f, expected 3", x)
	}
	if _, err := f.Inverse(-1, 0, 10, 1e-10); err == nil {
		t.Fatal("expected bracketing error for unreachable value")
	}
}

func TestSetDiscrete(t *testing.T) {
	f := NewFunction(func(x float64) float64 { return 2 * x })
	d, err := f.SetDiscrete(0, 10, 11, Linear, ExtrapConstant)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsSampled() {
		t.Fatal("discretized function must be sampled")
	}
	if !scalar.EqualWithinAbs(d.Call(3.5), 7, 1e-12) {
		t.Fatalf("discretized f(3.5) = %f, expected 7", d.Call(3.5))
	}
}

func TestResolveSource(t *testing.T) {
	if f, err := ResolveSource(5.0, Linear, ExtrapConstant); err != nil || f.Call(123) != 5 {
		t.Fatalf("scalar source: %v, f(123)=%v", err, f.Call(123))
	}
	if f, err := ResolveSource(7, Linear, ExtrapConstant); err != nil || f.Call(0) != 7 {
		t.Fatal("int source failed")
	}
	if f, err := ResolveSource(func(x float64) float64 { return -x }, Linear, ExtrapConstant); err != nil || f.Call(2) != -2 {
		t.Fatal("callable source failed")
	}
	f, err := ResolveSource([][2]float64{{0, 0}, {1, 2}}, Linear, ExtrapConstant)
	if err != nil || !scalar.EqualWithinAbs(f.Call(0.5), 1, 1e-12) {
		t.Fatalf("sample source: %v", err)
	}
	if _, err := ResolveSource(nil, Linear, ExtrapConstant); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := ResolveSource("nope", Linear, ExtrapConstant); err == nil {
		t.Fatal("expected error for unsupported source type")
	}
}

func TestNewProfileSortsAndDedupes(t *testing.T) {
	f, err := newProfile([]float64{2, 0, 1, 1}, []float64{20, 0, 10, 99})
	if err != nil {
		t.Fatal(err)
	}
	xs, ys := f.Samples()
	if len(xs) != 3 {
		t.Fatalf("expected 3 deduped samples, got %d", len(xs))
	}
	if xs[0] != 0 || xs[1] != 1 || xs[2] != 2 {
		t.Fatalf("samples not sorted: %v", xs)
	}
	if ys[1] != 10 {
		t.Fatalf("dedup must keep the first value for a repeated input, got %f", ys[1])
	}
}
