package fmv

import (
	"math"
)

// Default estimation policy constants.
const (
	DefaultOutlierSigma         = 2.0
	DefaultLowOfficialWeight    = 0.7
	DefaultMediumOfficialWeight = 0.3

	// minTrimSample is the smallest sample on which outlier trimming runs.
	minTrimSample = 3
)

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithOutlierBand sets how many standard deviations from the weighted mean a
// guess may sit before it is trimmed.
func WithOutlierBand(sigmas float64) Option {
	return func(e *Estimator) {
		if sigmas > 0 && !math.IsInf(sigmas, 0) {
			e.outlierSigma = sigmas
		}
	}
}

// WithOfficialWeights sets the share of the official value in the low and
// medium confidence blends. Values outside [0,1] are ignored.
func WithOfficialWeights(low, medium float64) Option {
	return func(e *Estimator) {
		if low >= 0 && low <= 1 {
			e.low = mixFor(low)
		}
		if medium >= 0 && medium <= 1 {
			e.medium = mixFor(medium)
		}
	}
}

// Estimator runs the estimation pipeline under a fixed policy. It holds no
// mutable state and is safe for concurrent use.
type Estimator struct {
	outlierSigma float64
	low          mix
	medium       mix
}

// New creates an Estimator with the default policy, adjusted by opts.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		outlierSigma: DefaultOutlierSigma,
		low:          defaultLowMix,
		medium:       defaultMediumMix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEstimator = New()

// Estimate runs the pipeline with the default policy.
func Estimate(guesses []WeightedGuess, wozValue, askingPrice *float64) Result {
	return defaultEstimator.Estimate(guesses, wozValue, askingPrice)
}

// Estimate reconciles guesses, the official WOZ value and the asking price
// into a Result. Confidence and GuessCount always reflect the untrimmed
// input; the distribution is computed on the untrimmed prices as well.
func (e *Estimator) Estimate(guesses []WeightedGuess, wozValue, askingPrice *float64) Result {
	tier := ConfidenceFor(len(guesses))
	woz := copyFloat(wozValue)
	asking := copyFloat(askingPrice)

	if len(guesses) == 0 {
		return Result{
			FMV:         copyFloat(woz),
			Confidence:  tier,
			GuessCount:  0,
			WOZValue:    woz,
			AskingPrice: asking,
			Divergence:  Divergence(woz, asking),
		}
	}

	effective := trimOutliers(guesses, e.outlierSigma)
	if len(effective) == 0 {
		effective = guesses
	}
	crowd := round(WeightedMean(effective))
	estimate := blend(crowd, woz, tier, e.low, e.medium)

	var fmv *float64
	if estimate != 0 {
		fmv = &estimate
	}

	return Result{
		FMV:             fmv,
		Confidence:      tier,
		GuessCount:      len(guesses),
		Distribution:    PercentileDistribution(prices(guesses)),
		WOZValue:        woz,
		AskingPrice:     asking,
		Divergence:      Divergence(fmv, asking),
		OutliersTrimmed: len(guesses) - len(effective),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
