package neural

import "math"

// Sigmoid is the logistic function 1/(1+e^-x), evaluated in float64.
// Applied to source values at read time; sinks are never squashed.
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
