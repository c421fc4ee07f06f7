// Package normalize derives the canonical invoice fields. Every function is
// a pure transformation: identical inputs yield identical outputs on every
// process and machine, which is what makes snapshots replayable.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

// Version is recorded with each snapshot so decisions can be reproduced
// against the exact normal forms in force when they were taken.
const Version = "n1"

var (
	invPrefix  = regexp.MustCompile(`^(?i)(INVOICE|INV|BILL)`)
	spacePunct = regexp.MustCompile(`[\s\-_/]`)
	nonWord    = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpace = regexp.MustCompile(`\s+`)
	nonDigit   = regexp.MustCompile(`\D`)
)

// InvoiceNumber returns the canonical form of a raw invoice number.
// Prefix and zero stripping run to a fixpoint so the function is idempotent
// on its own output.
func InvoiceNumber(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	value = spacePunct.ReplaceAllString(value, "")
	for {
		next := invPrefix.ReplaceAllString(value, "")
		next = strings.TrimLeft(next, "0")
		if next == value {
			break
		}
		value = next
	}
	if value == "" {
		return "0"
	}
	return value
}

// Desc normalizes free-text descriptions for similarity comparison.
func Desc(value string) string {
	value = strings.ToLower(value)
	value = nonWord.ReplaceAllString(value, " ")
	value = multiSpace.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// MaskAccountLast4 returns the masked last-four digits for display, or nil
// for an absent account.
func MaskAccountLast4(account *string) *string {
	if account == nil || *account == "" {
		return nil
	}
	digits := nonDigit.ReplaceAllString(*account, "")
	masked := "****"
	if len(digits) >= 4 {
		masked = "****" + digits[len(digits)-4:]
	} else if digits != "" {
		masked = "****" + digits
	}
	return &masked
}

// HashAccount returns a one-way hash of the raw account string for
// comparison, or nil for an absent account.
func HashAccount(account *string) *string {
	if account == nil || *account == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(*account))
	hashed := hex.EncodeToString(sum[:])
	return &hashed
}

// TextSource is the subset of an invoice that feeds the searchable blob.
type TextSource struct {
	VendorName string
	PONumber   string
	Terms      string
	LineSKUs   []string
	LineDescs  []string
}

// TextBlob concatenates vendor/header/line text for indexing.
func TextBlob(src TextSource) string {
	parts := []string{src.VendorName, src.PONumber, src.Terms}
	for i := range src.LineDescs {
		if i < len(src.LineSKUs) {
			parts = append(parts, src.LineSKUs[i])
		}
		parts = append(parts, src.LineDescs[i])
	}
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// PayloadHash returns a stable content hash over the canonical JSON
// serialization of the input payload.
func PayloadHash(payload any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
