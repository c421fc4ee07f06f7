package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{" inv-000123 ", "123"},
		{"invoice-001A", "1A"},
		{"", "0"},
		{"0000", "0"},
		{"BILL/2024_07", "202407"},
		{"INV 42", "42"},
		{"abc-42", "ABC42"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InvoiceNumber(tc.in), "input %q", tc.in)
	}
}

func TestInvoiceNumber_Idempotent(t *testing.T) {
	inputs := []string{" inv-000123 ", "invoice-001A", "", "INV-INV-7", "00a00"}
	for _, in := range inputs {
		once := InvoiceNumber(in)
		assert.Equal(t, once, InvoiceNumber(once), "input %q", in)
	}
}

func TestDesc(t *testing.T) {
	assert.Equal(t, "printer ink black", Desc("Printer Ink, Black!!!"))
	assert.Equal(t, "a4 paper 80g", Desc("  A4   Paper (80g) "))
	assert.Equal(t, "", Desc("!!!"))
}

func TestMaskAccountLast4(t *testing.T) {
	acct := "DE89 3704 0044 0532 0130 00"
	masked := MaskAccountLast4(&acct)
	assert.NotNil(t, masked)
	assert.Equal(t, "****3000", *masked)

	short := "12"
	masked = MaskAccountLast4(&short)
	assert.NotNil(t, masked)
	assert.Equal(t, "****12", *masked)

	noDigits := "no-digits"
	masked = MaskAccountLast4(&noDigits)
	assert.NotNil(t, masked)
	assert.Equal(t, "****", *masked)

	assert.Nil(t, MaskAccountLast4(nil))
	empty := ""
	assert.Nil(t, MaskAccountLast4(&empty))
}

func TestHashAccount(t *testing.T) {
	acct := "acct-123"
	first := HashAccount(&acct)
	second := HashAccount(&acct)
	assert.NotNil(t, first)
	assert.Equal(t, *first, *second)
	assert.Len(t, *first, 64)

	other := "acct-124"
	assert.NotEqual(t, *first, *HashAccount(&other))
	assert.Nil(t, HashAccount(nil))
}

func TestTextBlob(t *testing.T) {
	blob := TextBlob(TextSource{
		VendorName: "Acme GmbH",
		PONumber:   "PO-77",
		Terms:      "Net 30",
		LineSKUs:   []string{"SKU1", ""},
		LineDescs:  []string{"Paper A4", "Toner"},
	})
	assert.Equal(t, "acme gmbh po-77 net 30 sku1 paper a4 toner", blob)
}

func TestPayloadHash_Stable(t *testing.T) {
	payload := map[string]string{"invoice_id": "inv-1", "vendor_id": "v-1"}
	first, err := PayloadHash(payload)
	assert.NoError(t, err)
	second, err := PayloadHash(payload)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}
