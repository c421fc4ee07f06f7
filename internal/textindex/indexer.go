// Package textindex writes normalized invoice text into a searchable index
// and serves near-text candidate lookups. The index is an optional
// capability: every caller must tolerate it being absent or failing.
package textindex

import "context"

// Document is one indexed invoice text blob.
type Document struct {
	TenantID  string `json:"tenant_id"`
	VendorID  string `json:"vendor_id"`
	InvoiceID string `json:"invoice_id"`
	TextBlob  string `json:"text_blob"`
}

// Indexer indexes text blobs and finds near-text neighbors.
type Indexer interface {
	Index(ctx context.Context, doc Document) error
	// Neighbors returns invoice IDs of the same vendor whose text blobs are
	// closest to the query blob, excluding the query invoice itself.
	Neighbors(ctx context.Context, tenantID, vendorID, excludeInvoiceID, blob string, limit int) ([]string, error)
}

// Noop is the degraded-mode indexer used when no search host is configured.
type Noop struct{}

func (Noop) Index(ctx context.Context, doc Document) error { return nil }

func (Noop) Neighbors(ctx context.Context, tenantID, vendorID, excludeInvoiceID, blob string, limit int) ([]string, error) {
	return nil, nil
}
