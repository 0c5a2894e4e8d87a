package layers

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Feature names shared by the evaluators and the heuristic models
const (
	FeatureReturn30d    = "return_30d"
	FeatureReturn7d     = "return_7d"
	FeatureVolatility   = "volatility"
	FeatureSentiment    = "sentiment"
	FeatureMomentum     = "momentum"
	FeatureVolumeTrend  = "volume_trend"
	FeatureVolumeGrowth = "volume_growth"
	FeatureSectorWeight = "sector_weight"
	FeatureRegimeDamp   = "regime_dampening"
	FeatureEMASpread    = "ema_spread"
	FeatureRSI          = "rsi"
)

// neutralSentiment is used when a market series carries no sentiment
const neutralSentiment = 50.0

// periodReturn calculates the return over the last bars (whole series if bars <= 0)
func periodReturn(closes []float64, bars int) float64 {
	if len(closes) < 2 {
		return 0.0
	}

	start := 0
	if bars > 0 && bars < len(closes) {
		start = len(closes) - 1 - bars
	}

	past := closes[start]
	if past == 0 {
		return 0.0
	}
	return (closes[len(closes)-1] - past) / past
}

// barReturns converts closes into bar-to-bar returns
func barReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}

	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// volatility is the sample standard deviation of bar returns
func volatility(closes []float64) float64 {
	returns := barReturns(closes)
	if len(returns) < 2 {
		return 0.0
	}

	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(sd) {
		return 0.0
	}
	return sd
}

// mean returns 0 for empty input
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m, err := stats.Mean(values)
	if err != nil {
		return 0.0
	}
	return m
}

// volumeTrend is the least-squares slope of volume per bar, relative to mean volume
func volumeTrend(volumes []float64) float64 {
	if len(volumes) < 2 {
		return 0.0
	}

	avg := mean(volumes)
	if avg == 0 {
		return 0.0
	}

	series := make(stats.Series, len(volumes))
	for i, v := range volumes {
		series[i] = stats.Coordinate{X: float64(i), Y: v}
	}

	line, err := stats.LinearRegression(series)
	if err != nil || len(line) < 2 {
		return 0.0
	}

	first, last := line[0], line[len(line)-1]
	slope := (last.Y - first.Y) / (last.X - first.X)
	return slope / avg
}

// volumeGrowth compares the recent half of the window against the earlier half
func volumeGrowth(volumes []float64) float64 {
	half := len(volumes) / 2
	if half == 0 {
		return 0.0
	}

	past := mean(volumes[:half])
	recent := mean(volumes[len(volumes)-half:])
	if past == 0 {
		return 0.0
	}
	return (recent - past) / past
}

// emaLast returns the last exponential moving average value
func emaLast(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0.0
	}

	k := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// rsi calculates the Relative Strength Index over the last period bars
func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50.0 // Neutral
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	if gains == 0 && losses == 0 {
		return 50.0
	}
	if losses == 0 {
		return 100.0
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return 100.0 - 100.0/(1.0+rs)
}

// meanSentiment averages the non-zero sentiment readings of the last bars
func meanSentiment(values []float64, bars int) float64 {
	start := 0
	if bars > 0 && bars < len(values) {
		start = len(values) - bars
	}

	readings := make([]float64, 0, len(values)-start)
	for _, v := range values[start:] {
		if v > 0 {
			readings = append(readings, v)
		}
	}
	if len(readings) == 0 {
		return neutralSentiment
	}
	return mean(readings)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func logistic(x, steepness float64) float64 {
	return 1.0 / (1.0 + math.Exp(-steepness*x))
}

// ranked is a scored key used for deterministic ordering
type ranked struct {
	key   string
	group string
	score float64
}

// sortRanked orders by score descending, then key ascending
func sortRanked(items []ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].key < items[j].key
	})
}
