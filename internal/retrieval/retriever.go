// Package retrieval returns the bounded candidate set the pairwise scorer
// runs against. Candidates are always same-tenant and same-vendor; the
// blocking predicates keep the fan-out coarse but cheap.
package retrieval

import (
	"context"
	"time"

	"github.com/sievehq/sieve/internal/observability/metrics"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	"github.com/sievehq/sieve/internal/textindex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Indexer textindex.Indexer
	Metrics *metrics.ScoringMetrics
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	indexer textindex.Indexer
	metrics *metrics.ScoringMetrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("retrieval.service"),
		indexer: p.Indexer,
		metrics: p.Metrics,
	}
}

// Candidates returns up to cap historical invoices of the query's vendor
// matching any blocking predicate, ordered by predicate priority (exact
// invoice number, same PO, amount-and-month) and most recent date first.
// When the structured predicates come back under the cap, the text index is
// consulted for near-text neighbors; index failure skips that path.
func (s *Service) Candidates(ctx context.Context, query *snapshotdomain.Invoice, blob string, cap int) ([]snapshotdomain.Invoice, error) {
	if cap <= 0 {
		return nil, nil
	}

	monthStart := time.Date(query.InvoiceDate.Year(), query.InvoiceDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	roundedTotal := query.Total.Round(2)

	var candidates []snapshotdomain.Invoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT tenant_id, invoice_id, payload_hash, vendor_id, invoice_number,
		        invoice_number_norm, invoice_date, currency, total, tax_total, po_number,
		        remit_account_masked, remit_account_hash, remit_name, pdf_hash, terms,
		        norm_version, raw_json, created_at
		 FROM invoices
		 WHERE tenant_id = ? AND vendor_id = ? AND invoice_id != ?
		   AND (
		     (ROUND(total, 2) = ? AND invoice_date >= ? AND invoice_date < ?)
		     OR (po_number IS NOT NULL AND po_number = ?)
		     OR (invoice_number_norm = ?)
		     OR (remit_account_hash IS NOT NULL AND remit_account_hash = ?)
		   )
		 ORDER BY
		   CASE
		     WHEN invoice_number_norm = ? THEN 0
		     WHEN po_number IS NOT NULL AND po_number = ? THEN 1
		     WHEN ROUND(total, 2) = ? AND invoice_date >= ? AND invoice_date < ? THEN 2
		     ELSE 3
		   END,
		   invoice_date DESC
		 LIMIT ?`,
		query.TenantID,
		query.VendorID,
		query.InvoiceID,
		roundedTotal,
		monthStart,
		nextMonth,
		query.PONumber,
		query.InvoiceNumberNorm,
		query.RemitAccountHash,
		query.InvoiceNumberNorm,
		query.PONumber,
		roundedTotal,
		monthStart,
		nextMonth,
		cap,
	).Scan(&candidates).Error
	if err != nil {
		return nil, err
	}

	if len(candidates) < cap {
		candidates = s.appendTextNeighbors(ctx, query, blob, candidates, cap)
	}
	return candidates, nil
}

func (s *Service) appendTextNeighbors(ctx context.Context, query *snapshotdomain.Invoice, blob string, candidates []snapshotdomain.Invoice, cap int) []snapshotdomain.Invoice {
	neighborIDs, err := s.indexer.Neighbors(ctx, query.TenantID, query.VendorID, query.InvoiceID, blob, cap-len(candidates))
	if err != nil {
		s.log.Warn("near-text retrieval degraded", zap.Error(err))
		if s.metrics != nil {
			s.metrics.DegradedTotal.WithLabelValues("text_index").Inc()
		}
		return candidates
	}
	if len(neighborIDs) == 0 {
		return candidates
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.InvoiceID] = struct{}{}
	}

	for _, id := range neighborIDs {
		if len(candidates) >= cap {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		var row snapshotdomain.Invoice
		err := s.db.WithContext(ctx).Raw(
			`SELECT tenant_id, invoice_id, payload_hash, vendor_id, invoice_number,
			        invoice_number_norm, invoice_date, currency, total, tax_total, po_number,
			        remit_account_masked, remit_account_hash, remit_name, pdf_hash, terms,
			        norm_version, raw_json, created_at
			 FROM invoices
			 WHERE tenant_id = ? AND invoice_id = ? AND vendor_id = ?`,
			query.TenantID,
			id,
			query.VendorID,
		).Scan(&row).Error
		if err != nil || row.InvoiceID == "" {
			continue
		}
		candidates = append(candidates, row)
		seen[id] = struct{}{}
	}
	return candidates
}
