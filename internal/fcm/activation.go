package fcm

import (
	"math"

	"github.com/nvandessel/cogmap/internal/models"
)

// newSquasher returns the per-node update function g(f(λ·x)) for the given
// activation type and target state range.
//
// tanh and sigmoid are mapped linearly from their native range into the
// state range when the two differ. identity has no native range and is
// clamped instead.
func newSquasher(t models.ActivationType, lambda float64, r models.StateRange) func(float64) float64 {
	switch t {
	case models.ActivationSigmoid:
		f := func(x float64) float64 { return sigmoid(lambda * x) }
		return rescale(f, 0, 1, r)
	case models.ActivationIdentity:
		return func(x float64) float64 { return clamp(lambda*x, r.Min(), r.Max()) }
	default:
		f := func(x float64) float64 { return math.Tanh(lambda * x) }
		return rescale(f, -1, 1, r)
	}
}

// rescale maps f's output from [lo, hi] into r. When the ranges already
// match, f is returned as is so results stay bit-exact.
func rescale(f func(float64) float64, lo, hi float64, r models.StateRange) func(float64) float64 {
	if r.Min() == lo && r.Max() == hi {
		return f
	}
	scale := (r.Max() - r.Min()) / (hi - lo)
	return func(x float64) float64 {
		return r.Min() + (f(x)-lo)*scale
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
