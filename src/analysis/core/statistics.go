package core

import "math"

// -----------------------------------------------------------------------------

// CalculateMeanStd computes mean and population standard deviation.
func CalculateMeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	if len(data) == 1 {
		return mean, 0
	}

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(varianceSum / float64(len(data)))
	return mean, std
}

// -----------------------------------------------------------------------------

// CalculateVariance computes the sample variance (N-1 denominator).
func CalculateVariance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	mean, _ := CalculateMeanStd(data)
	ss := 0.0
	for _, v := range data {
		ss += (v - mean) * (v - mean)
	}
	return ss / float64(len(data)-1)
}

// -----------------------------------------------------------------------------

// MAE is mean(|pred - actual|).
func MAE(pred, actual []float64) float64 {
	if len(pred) == 0 || len(pred) != len(actual) {
		return math.NaN()
	}
	s := 0.0
	for i := range pred {
		s += math.Abs(pred[i] - actual[i])
	}
	return s / float64(len(pred))
}

// MAPE is mean(|pred - actual| / actual).
func MAPE(pred, actual []float64) float64 {
	if len(pred) == 0 || len(pred) != len(actual) {
		return math.NaN()
	}
	s := 0.0
	for i := range pred {
		s += math.Abs(pred[i]-actual[i]) / actual[i]
	}
	return s / float64(len(pred))
}

// RMSE is sqrt(mean((pred - actual)^2)).
func RMSE(pred, actual []float64) float64 {
	if len(pred) == 0 || len(pred) != len(actual) {
		return math.NaN()
	}
	s := 0.0
	for i := range pred {
		d := pred[i] - actual[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(pred)))
}
