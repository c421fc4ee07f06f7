// Package feature computes the pairwise header, line-assignment, and text
// similarity features fed to the duplicate scorer. All outputs are
// deterministic for identical inputs.
package feature

import (
	"math"
	"sort"

	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	"github.com/xrash/smetrics"
)

// Weights are the line-cost coefficients.
type Weights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

func DefaultWeights() Weights {
	return Weights{Alpha: 0.7, Beta: 0.2, Gamma: 0.1}
}

// Line is the minimal line view the feature math needs; DescNorm must
// already be normalized.
type Line struct {
	DescNorm  string
	Qty       float64
	UnitPrice float64
	Amount    float64
}

// Vector is a named feature map.
type Vector map[string]float64

// Header computes the header-level features of a query/candidate pair.
func Header(a, b *snapshotdomain.Invoice) Vector {
	features := Vector{}

	aTotal, _ := a.Total.Float64()
	bTotal, _ := b.Total.Float64()
	features["abs_total_diff_pct"] = math.Abs(aTotal-bTotal) / math.Max(math.Abs(aTotal), 1)

	features["days_diff"] = math.Abs(math.Floor(b.InvoiceDate.Sub(a.InvoiceDate).Hours() / 24))

	samePO := 0.0
	if a.PONumber != nil && b.PONumber != nil && *a.PONumber != "" && *a.PONumber == *b.PONumber {
		samePO = 1
	}
	features["same_po"] = samePO

	sameCurrency := 0.0
	if a.Currency == b.Currency {
		sameCurrency = 1
	}
	features["same_currency"] = sameCurrency

	// Absent tax totals compare as zero, so two invoices both missing tax
	// are equal on this dimension.
	sameTax := 0.0
	if a.TaxTotal.Round(2).Equal(b.TaxTotal.Round(2)) {
		sameTax = 1
	}
	features["same_tax_total"] = sameTax

	// Absent-vs-present counts as a change; only equal or both-absent is 0.
	bankChange := 0.0
	if coalesce(a.RemitAccountHash) != coalesce(b.RemitAccountHash) {
		bankChange = 1
	}
	features["bank_change_flag"] = bankChange

	payeeChange := 0.0
	if coalesce(a.RemitName) != coalesce(b.RemitName) {
		payeeChange = 1
	}
	features["payee_name_change_flag"] = payeeChange

	features["invnum_edit"] = 1 - jaroWinkler(a.InvoiceNumberNorm, b.InvoiceNumberNorm)

	return features
}

// LineAssign matches the two line lists with a minimum-cost assignment and
// derives coverage features from the matching.
func LineAssign(aLines, bLines []Line, w Weights) Vector {
	if len(aLines) == 0 || len(bLines) == 0 {
		totalAmount := 0.0
		for _, line := range aLines {
			totalAmount += line.Amount
		}
		frac := 0.0
		if totalAmount != 0 {
			frac = totalAmount / math.Max(totalAmount, 1)
		}
		return Vector{
			"line_coverage_pct":      0,
			"unmatched_amount_frac":  frac,
			"count_new_items":        float64(len(aLines)),
			"median_unit_price_diff": 0,
		}
	}

	n, m := len(aLines), len(bLines)
	cost := make([][]float64, n)
	for i, aLine := range aLines {
		cost[i] = make([]float64, m)
		for j, bLine := range bLines {
			descCost := 1 - jaroWinkler(aLine.DescNorm, bLine.DescNorm)
			upTerm := math.Min(math.Abs(aLine.UnitPrice-bLine.UnitPrice)/math.Max(math.Abs(aLine.UnitPrice), 1), 5)
			qtyTerm := math.Min(math.Abs(aLine.Qty-bLine.Qty)/math.Max(math.Abs(aLine.Qty), 1), 5)
			cost[i][j] = w.Alpha*descCost + w.Beta*upTerm + w.Gamma*qtyTerm
		}
	}

	assigned := solveAssignment(cost)

	matchedAmount := 0.0
	totalAmount := 0.0
	matchedCount := 0
	var priceDiffs []float64
	for i, line := range aLines {
		totalAmount += line.Amount
		if assigned[i] >= 0 {
			matchedAmount += line.Amount
			matchedCount++
			priceDiffs = append(priceDiffs, math.Abs(line.UnitPrice-bLines[assigned[i]].UnitPrice))
		}
	}

	unmatchedAmount := math.Max(totalAmount-matchedAmount, 0)
	frac := 1.0
	if totalAmount != 0 {
		frac = unmatchedAmount / math.Max(totalAmount, 1)
	}

	return Vector{
		"line_coverage_pct":      1 - frac,
		"unmatched_amount_frac":  frac,
		"count_new_items":        math.Max(0, float64(n-matchedCount)),
		"median_unit_price_diff": medianFloat(priceDiffs),
	}
}

// TextCosine is the character-3-gram overlap proxy over the concatenated
// normalized line descriptions: 2·|A∩B| over the summed character lengths
// of the two concatenations. Not true cosine similarity, but deterministic
// in [0,1]; the name is kept for continuity.
func TextCosine(aText, bText string) float64 {
	aGrams := ngramSet(aText, 3)
	bGrams := ngramSet(bText, 3)

	overlap := 0
	for gram := range aGrams {
		if _, ok := bGrams[gram]; ok {
			overlap++
		}
	}
	denom := math.Max(float64(len(aText)+len(bText)), 1)
	return math.Min(1, 2*float64(overlap)/denom)
}

// TextJaccard is set intersection over union of the character 3-grams of
// the two texts. Both empty compares as 0.
func TextJaccard(aText, bText string) float64 {
	aGrams := ngramSet(aText, 3)
	bGrams := ngramSet(bText, 3)
	if len(aGrams) == 0 && len(bGrams) == 0 {
		return 0
	}

	overlap := 0
	for gram := range aGrams {
		if _, ok := bGrams[gram]; ok {
			overlap++
		}
	}
	union := len(aGrams) + len(bGrams) - overlap
	return float64(overlap) / math.Max(float64(union), 1)
}

// Merge unions the partial vectors; later vectors win on name clashes.
func Merge(vectors ...Vector) Vector {
	out := Vector{}
	for _, v := range vectors {
		for name, value := range v {
			out[name] = value
		}
	}
	return out
}

func ngramSet(text string, n int) map[string]struct{} {
	grams := map[string]struct{}{}
	if len(text) < n {
		return grams
	}
	for i := 0; i+n <= len(text); i++ {
		grams[text[i:i+n]] = struct{}{}
	}
	return grams
}

func jaroWinkler(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

func medianFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func coalesce(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
