// Package rules evaluates the deterministic guard rules that can force an
// outcome regardless of the model score.
package rules

import (
	"math"

	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/decision"
	"github.com/sievehq/sieve/internal/feature"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
)

// RulesetVersion identifies the rule definitions stamped on every decision.
const RulesetVersion = "r2"

const (
	ReasonExactInvnum     = "EXACT_INVNUM"
	ReasonSamePONearTotal = "SAME_PO_NEAR_TOTAL"
	ReasonPDFNearDup      = "PDF_NEAR_DUP"
	ReasonBankChange      = "BANK_CHANGE"
	ReasonDataQuality     = "DATA_QUALITY_CHECK_FAIL"

	pdfNearDupJaccard = 0.9
)

// Candidate pairs a retrieved invoice with its normalized text blob.
type Candidate struct {
	Invoice  *snapshotdomain.Invoice
	TextBlob string
}

// Input is everything the rules inspect for one submission. TopCandidate is
// the highest-scoring retrieved invoice, nil when retrieval found nothing.
type Input struct {
	Query        *snapshotdomain.Invoice
	QueryText    string
	TopCandidate *Candidate
	// BankChange is the remit-account novelty signal computed by the
	// anomaly scorer from the pre-write sighting state.
	BankChange bool
	// DataQualityFail marks payloads whose internal consistency checks
	// failed (line sums, dates, currency).
	DataQualityFail bool
}

// Outcome carries the fired reason codes in evaluation order and the
// strictest forced label, empty when no rule constrains the outcome.
type Outcome struct {
	Reasons []string
	Forced  string
}

// Evaluate runs the guard rules. The strictest forced label wins.
func Evaluate(in Input, opts config.ScoringOptions) Outcome {
	var out Outcome
	force := func(reason, label string) {
		out.Reasons = append(out.Reasons, reason)
		out.Forced = decision.Stricter(out.Forced, label)
	}

	if cand := in.TopCandidate; cand != nil && cand.Invoice.InvoiceID != in.Query.InvoiceID {
		if in.Query.InvoiceNumberNorm != "" &&
			in.Query.InvoiceNumberNorm == cand.Invoice.InvoiceNumberNorm {
			force(ReasonExactInvnum, decision.Hold)
		}

		queryTotal, _ := in.Query.Total.Float64()
		candTotal, _ := cand.Invoice.Total.Float64()
		if samePO(in.Query, cand.Invoice) &&
			relativeDiff(queryTotal, candTotal) <= opts.SamePOTotalTol &&
			daysBetween(in.Query, cand.Invoice) <= float64(opts.SamePOWindowDays) {
			force(ReasonSamePONearTotal, decision.Hold)
		}

		if pdfNearDup(in.Query, cand, in.QueryText) {
			force(ReasonPDFNearDup, decision.Hold)
		}
	}

	if in.BankChange {
		force(ReasonBankChange, decision.Review)
	}
	if in.DataQualityFail {
		force(ReasonDataQuality, decision.Review)
	}

	return out
}

func samePO(a, b *snapshotdomain.Invoice) bool {
	return a.PONumber != nil && b.PONumber != nil &&
		*a.PONumber != "" && *a.PONumber == *b.PONumber
}

func relativeDiff(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(a), 1)
}

func daysBetween(a, b *snapshotdomain.Invoice) float64 {
	return math.Abs(a.InvoiceDate.Sub(b.InvoiceDate).Hours() / 24)
}

func pdfNearDup(query *snapshotdomain.Invoice, cand *Candidate, queryText string) bool {
	if query.PDFHash != nil && cand.Invoice.PDFHash != nil && *query.PDFHash == *cand.Invoice.PDFHash {
		return true
	}
	if queryText == "" || cand.TextBlob == "" {
		return false
	}
	return feature.TextJaccard(queryText, cand.TextBlob) >= pdfNearDupJaccard
}
