package factors

import (
	"math"

	"market-advisor-bot/internal/marketdata"
)

// calculateSMA calculates a simple moving average over the trailing period
func calculateSMA(klines []marketdata.Kline, period int) float64 {
	if len(klines) < period {
		return 0
	}
	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		sum += klines[i].Close
	}
	return sum / float64(period)
}

// calculateRSI calculates the RSI indicator from klines
func calculateRSI(klines []marketdata.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50
	}

	gains := 0.0
	losses := 0.0

	for i := len(klines) - period; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// swingLevels returns the lowest low and highest high of the trailing period
func swingLevels(klines []marketdata.Kline, period int) (support, resistance float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	start := len(klines) - period
	if start < 0 {
		start = 0
	}
	support = klines[start].Low
	resistance = klines[start].High
	for _, k := range klines[start:] {
		if k.Low < support {
			support = k.Low
		}
		if k.High > resistance {
			resistance = k.High
		}
	}
	return support, resistance
}

// pearson computes the Pearson correlation coefficient of two equal-length
// series. Returns 0 when either series has no variance.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n > len(b) {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	meanA, meanB := mean(a), mean(b)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
