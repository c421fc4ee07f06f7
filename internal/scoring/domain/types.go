// Package domain defines the scoring request/response contract and its
// validation rules.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItemIn is one submitted invoice line.
type LineItemIn struct {
	SKU        *string         `json:"sku,omitempty"`
	Desc       string          `json:"desc"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Amount     decimal.Decimal `json:"amount"`
	GLCode     *string         `json:"gl_code,omitempty"`
	CostCenter *string         `json:"cost_center,omitempty"`
}

// InvoiceIn is the scoring request payload.
type InvoiceIn struct {
	InvoiceID        string           `json:"invoice_id"`
	VendorID         string           `json:"vendor_id"`
	VendorName       string           `json:"vendor_name"`
	InvoiceNumber    string           `json:"invoice_number"`
	InvoiceDate      string           `json:"invoice_date"`
	Currency         string           `json:"currency"`
	Total            decimal.Decimal  `json:"total"`
	TaxTotal         *decimal.Decimal `json:"tax_total,omitempty"`
	PONumber         *string          `json:"po_number,omitempty"`
	RemitBankAccount *string          `json:"remit_bank_account,omitempty"`
	RemitName        *string          `json:"remit_name,omitempty"`
	PDFHash          *string          `json:"pdf_hash,omitempty"`
	Terms            *string          `json:"terms,omitempty"`
	LineItems        []LineItemIn     `json:"line_items"`
}

// TopMatch is one of the up-to-three strongest candidates.
type TopMatch struct {
	InvoiceID  string             `json:"invoice_id"`
	Similarity float64            `json:"similarity"`
	Features   map[string]float64 `json:"features"`
}

// Explanation names one feature contribution from the strongest match.
type Explanation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// ScoreResponse is the synchronous scoring result.
type ScoreResponse struct {
	RiskScore    float64       `json:"risk_score"`
	Decision     string        `json:"decision"`
	ReasonCodes  []string      `json:"reason_codes"`
	TopMatches   []TopMatch    `json:"top_matches"`
	Explanations []Explanation `json:"explanations"`
	TraceID      string        `json:"trace_id"`
}

// FieldError reports one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the full set of schema violations for one payload.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// ParseDate accepts an ISO-8601 date, with or without a time component.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Validate checks the schema-level rules. Data-quality checks that merely
// bias the decision live in the orchestrator, not here.
func (in InvoiceIn) Validate() ValidationErrors {
	var errs ValidationErrors
	missing := func(field string) {
		errs = append(errs, FieldError{Field: field, Message: "required"})
	}

	if strings.TrimSpace(in.InvoiceID) == "" {
		missing("invoice_id")
	}
	if strings.TrimSpace(in.VendorID) == "" {
		missing("vendor_id")
	}
	if strings.TrimSpace(in.VendorName) == "" {
		missing("vendor_name")
	}
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		missing("invoice_number")
	}

	if strings.TrimSpace(in.InvoiceDate) == "" {
		missing("invoice_date")
	} else if _, err := ParseDate(in.InvoiceDate); err != nil {
		errs = append(errs, FieldError{Field: "invoice_date", Message: "must be an ISO-8601 date"})
	}

	if !isCurrencyShaped(in.Currency) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a 3-letter ISO-4217 code"})
	}

	if len(in.LineItems) == 0 {
		errs = append(errs, FieldError{Field: "line_items", Message: "must be non-empty"})
	}
	for i, line := range in.LineItems {
		if strings.TrimSpace(line.Desc) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("line_items[%d].desc", i),
				Message: "required",
			})
		}
	}

	return errs
}

func isCurrencyShaped(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Service scores one invoice synchronously.
type Service interface {
	ScoreInvoice(ctx context.Context, in InvoiceIn) (*ScoreResponse, error)
}
