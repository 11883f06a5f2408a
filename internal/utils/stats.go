package utils

import "math"

// Summary describes a set of samples.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// RoundFloat rounds val to precision decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// Summarize computes count, mean, sample standard deviation, min and max.
// Nil entries are skipped. Results are rounded to four decimals.
func Summarize(data []*float64) Summary {
	values := make([]float64, 0, len(data))
	for _, p := range data {
		if p != nil {
			values = append(values, *p)
		}
	}

	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sum := 0.0
	lo, hi := values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(n)

	s := Summary{Count: n, Mean: RoundFloat(mean, 4), Min: lo, Max: hi}
	if n < 2 {
		return s
	}

	varianceSum := 0.0
	for _, v := range values {
		varianceSum += (v - mean) * (v - mean)
	}
	// sample standard deviation
	s.StdDev = RoundFloat(math.Sqrt(varianceSum/float64(n-1)), 4)
	return s
}
