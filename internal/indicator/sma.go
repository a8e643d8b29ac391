// Package indicator computes moving averages over bar closes.
package indicator

// SMA returns the rolling simple average of closes over period, oldest
// first. The result holds len(closes)-period+1 points, or none when fewer
// than period closes are given.
func SMA(closes []float64, period int) []float64 {
	if period < 1 || len(closes) < period {
		return nil
	}

	out := make([]float64, len(closes)-period+1)
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i-period+1] = sum / float64(period)
		}
	}
	return out
}
