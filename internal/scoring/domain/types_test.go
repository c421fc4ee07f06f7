package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validInvoice() InvoiceIn {
	return InvoiceIn{
		InvoiceID:     "inv-1",
		VendorID:      "v1",
		VendorName:    "Acme",
		InvoiceNumber: "INV-123",
		InvoiceDate:   "2026-02-10",
		Currency:      "USD",
		Total:         decimal.NewFromInt(100),
		LineItems: []LineItemIn{
			{Desc: "paper a4", Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(10), Amount: decimal.NewFromInt(100)},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.Empty(t, validInvoice().Validate())
}

func TestValidate_MissingFields(t *testing.T) {
	in := InvoiceIn{}
	errs := in.Validate()

	fields := make(map[string]bool, len(errs))
	for _, fe := range errs {
		fields[fe.Field] = true
	}
	for _, want := range []string{"invoice_id", "vendor_id", "vendor_name", "invoice_number", "invoice_date", "currency", "line_items"} {
		assert.True(t, fields[want], "expected error for %s", want)
	}
}

func TestValidate_BadDate(t *testing.T) {
	in := validInvoice()
	in.InvoiceDate = "10/02/2026"
	errs := in.Validate()
	assert.Len(t, errs, 1)
	assert.Equal(t, "invoice_date", errs[0].Field)
}

func TestValidate_BadCurrency(t *testing.T) {
	in := validInvoice()
	in.Currency = "US"
	assert.Len(t, in.Validate(), 1)

	in.Currency = "U5D"
	assert.Len(t, in.Validate(), 1)

	// Lowercase is schema-valid; casing is a data-quality concern.
	in.Currency = "usd"
	assert.Empty(t, in.Validate())
}

func TestValidate_EmptyLineDesc(t *testing.T) {
	in := validInvoice()
	in.LineItems[0].Desc = "  "
	errs := in.Validate()
	assert.Len(t, errs, 1)
	assert.Equal(t, "line_items[0].desc", errs[0].Field)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-10")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2026-02-10T15:04:05Z")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("not-a-date")
	assert.Error(t, err)
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{{Field: "invoice_id", Message: "required"}}
	assert.Contains(t, errs.Error(), "invoice_id: required")
}
