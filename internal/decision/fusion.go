package decision

import (
	"math"

	"github.com/shopspring/decimal"
)

const bankChangeSignal = 0.6

// Fuse combines the independent duplicate, anomaly, bank-change, and text
// signals with a noisy-or. Order-independent and monotone in every input.
func Fuse(dupProb, anomProb float64, bankChange bool, textDupProb float64) float64 {
	bank := 0.0
	if bankChange {
		bank = bankChangeSignal
	}
	p := 1 -
		(1-clamp01(dupProb))*
			(1-clamp01(anomProb))*
			(1-bank)*
			(1-clamp01(textDupProb))
	return clamp01(p)
}

// RiskScore maps a fused probability onto the 0-100 scale, rounded to two
// decimals half away from zero.
func RiskScore(p float64) float64 {
	score, _ := decimal.NewFromFloat(100 * clamp01(p)).Round(2).Float64()
	return score
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
