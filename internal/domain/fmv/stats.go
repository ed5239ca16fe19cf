package fmv

import (
	"math"
	"sort"
)

// Percentiles reported in a Distribution.
var percentiles = [...]float64{10, 25, 50, 75, 90}

// weight floors reputation at 1 so that low or negative karma never drops a
// guess below a neutral contributor's influence.
func weight(karma int) float64 {
	if karma < 1 {
		return 1
	}
	return float64(karma)
}

// WeightedMean returns Σ(price·weight)/Σ(weight) with weight = max(1, karma).
// An empty input yields 0; callers must check for emptiness themselves.
func WeightedMean(guesses []WeightedGuess) float64 {
	if len(guesses) == 0 {
		return 0
	}
	var sum, total float64
	for _, g := range guesses {
		w := weight(g.Karma)
		sum += float64(g.GuessedPrice * w)
		total += w
	}
	return sum / total
}

// StdDev returns the population standard deviation of prices. Fewer than two
// samples yield 0.
func StdDev(prices []float64) float64 {
	n := len(prices)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)
	var sq float64
	for _, p := range prices {
		d := p - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n))
}

// TrimOutliers drops guesses further than two standard deviations from the
// weighted mean of the full set.
func TrimOutliers(guesses []WeightedGuess) []WeightedGuess {
	return trimOutliers(guesses, DefaultOutlierSigma)
}

func trimOutliers(guesses []WeightedGuess, sigmas float64) []WeightedGuess {
	out := make([]WeightedGuess, len(guesses))
	copy(out, guesses)
	if len(guesses) < minTrimSample {
		return out
	}

	mean := WeightedMean(guesses)
	sd := StdDev(prices(guesses))
	if sd == 0 {
		return out
	}

	band := sigmas * sd
	kept := make([]WeightedGuess, 0, len(guesses))
	for _, g := range guesses {
		if math.Abs(g.GuessedPrice-mean) <= band {
			kept = append(kept, g)
		}
	}
	// Never hand back an empty set once there was at least one guess.
	if len(kept) == 0 {
		return out
	}
	return kept
}

// PercentileDistribution reports p10..p90 (rounded to whole units) together
// with the exact min and max. Returns nil for an empty input.
func PercentileDistribution(values []float64) *Distribution {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var p [len(percentiles)]float64
	for i, pct := range percentiles {
		p[i] = round(percentile(sorted, pct))
	}
	return &Distribution{
		P10: p[0],
		P25: p[1],
		P50: p[2],
		P75: p[3],
		P90: p[4],
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly between the two closest ranks of an
// ascending slice.
func percentile(sorted []float64, pct float64) float64 {
	idx := pct / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + float64(frac*(sorted[hi]-sorted[lo]))
}

func prices(guesses []WeightedGuess) []float64 {
	out := make([]float64, len(guesses))
	for i, g := range guesses {
		out[i] = g.GuessedPrice
	}
	return out
}
