package sim

import "math"

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}

// moveTowards steps from (x,y) to (tx,ty) by at most step.
func moveTowards(x, y, tx, ty, step float64) (float64, float64) {
	d := dist(x, y, tx, ty)
	if d <= 1e-6 {
		return x, y
	}
	if d <= step {
		return tx, ty
	}
	return x + (tx-x)/d*step, y + (ty-y)/d*step
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
