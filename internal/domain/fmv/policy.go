package fmv

import "math"

// Guess-count thresholds for the confidence tiers.
const (
	lowMaxCount    = 2
	mediumMaxCount = 9
)

// ConfidenceFor maps a pre-trim guess count to a tier:
// 0 none, 1-2 low, 3-9 medium, 10+ high.
func ConfidenceFor(count int) Confidence {
	switch {
	case count <= 0:
		return ConfidenceNone
	case count <= lowMaxCount:
		return ConfidenceLow
	case count <= mediumMaxCount:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// Blend combines the crowd estimate with the official value using the default
// weights. It is never meant to be called for ConfidenceNone.
func Blend(crowd float64, official *float64, tier Confidence) float64 {
	return blend(crowd, official, tier, defaultLowMix, defaultMediumMix)
}

// mix is the pair of weights applied to the official value and the crowd
// estimate for one tier.
type mix struct {
	official float64
	crowd    float64
}

var (
	defaultLowMix    = mix{official: 0.7, crowd: 0.3}
	defaultMediumMix = mix{official: 0.3, crowd: 0.7}
)

// mixFor derives the crowd share from an official weight. The complement is
// snapped to 12 decimals so that 0.7 yields exactly the 0.3 literal.
func mixFor(officialWeight float64) mix {
	crowd := math.Round((1-officialWeight)*1e12) / 1e12
	return mix{official: officialWeight, crowd: crowd}
}

func blend(crowd float64, official *float64, tier Confidence, low, medium mix) float64 {
	if official == nil || *official <= 0 {
		return crowd
	}
	var m mix
	switch tier {
	case ConfidenceLow:
		m = low
	case ConfidenceMedium:
		m = medium
	default:
		// high: ten or more opinions outweigh the official figure entirely.
		return round(crowd)
	}
	// Explicit conversions keep the two products from being fused.
	return round(float64(m.official**official) + float64(m.crowd*crowd))
}

// Divergence is the signed percentage gap between estimate and asking price,
// rounded to two decimals. Positive means the estimate is above asking.
func Divergence(fmv, asking *float64) *float64 {
	if fmv == nil || asking == nil || *asking <= 0 {
		return nil
	}
	d := round(float64((*fmv-*asking) / *asking)*10000) / 100
	return &d
}

// round rounds half up to the nearest integer, matching the rounding the
// estimates have always been published with (-2.5 rounds to -2).
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}
