package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, tx *gorm.DB, inv domain.Invoice) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			tenant_id, invoice_id, payload_hash, vendor_id, invoice_number,
			invoice_number_norm, invoice_date, currency, total, tax_total, po_number,
			remit_account_masked, remit_account_hash, remit_name, pdf_hash, terms,
			norm_version, raw_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, invoice_id) DO NOTHING`,
		inv.TenantID,
		inv.InvoiceID,
		inv.PayloadHash,
		inv.VendorID,
		inv.InvoiceNumber,
		inv.InvoiceNumberNorm,
		inv.InvoiceDate,
		inv.Currency,
		inv.Total,
		inv.TaxTotal,
		inv.PONumber,
		inv.RemitAccountMasked,
		inv.RemitAccountHash,
		inv.RemitName,
		inv.PDFHash,
		inv.Terms,
		inv.NormVersion,
		inv.RawJSON,
		inv.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertLine(ctx context.Context, tx *gorm.DB, line domain.InvoiceLine) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_lines (
			tenant_id, invoice_id, line_no, sku, description, qty, unit_price,
			amount, gl_code, cost_center
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.TenantID,
		line.InvoiceID,
		line.LineNo,
		line.SKU,
		line.Description,
		line.Qty,
		line.UnitPrice,
		line.Amount,
		line.GLCode,
		line.CostCenter,
	).Error
}

func (r *repo) UpsertVendor(ctx context.Context, tx *gorm.DB, vendor domain.Vendor) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO vendors (tenant_id, vendor_id, vendor_name)
		 VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id, vendor_id) DO UPDATE SET vendor_name = EXCLUDED.vendor_name`,
		vendor.TenantID,
		vendor.VendorID,
		vendor.VendorName,
	).Error
}

func (r *repo) UpsertSighting(ctx context.Context, tx *gorm.DB, sighting domain.RemitSighting) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO vendor_remit_accounts (
			tenant_id, vendor_id, remit_account_hash, remit_name, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, vendor_id, remit_account_hash)
		  DO UPDATE SET last_seen = EXCLUDED.last_seen, remit_name = EXCLUDED.remit_name`,
		sighting.TenantID,
		sighting.VendorID,
		sighting.RemitAccountHash,
		sighting.RemitName,
		sighting.FirstSeen,
		sighting.LastSeen,
	).Error
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, tenantID, invoiceID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, invoice_id, payload_hash, vendor_id, invoice_number,
		        invoice_number_norm, invoice_date, currency, total, tax_total, po_number,
		        remit_account_masked, remit_account_hash, remit_name, pdf_hash, terms,
		        norm_version, raw_json, created_at
		 FROM invoices
		 WHERE tenant_id = ? AND invoice_id = ?`,
		tenantID,
		invoiceID,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.InvoiceID == "" {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, tenantID, invoiceID string) ([]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, invoice_id, line_no, sku, description, qty, unit_price,
		        amount, gl_code, cost_center
		 FROM invoice_lines
		 WHERE tenant_id = ? AND invoice_id = ?
		 ORDER BY line_no`,
		tenantID,
		invoiceID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) FindSighting(ctx context.Context, db *gorm.DB, tenantID, vendorID, accountHash string) (*domain.RemitSighting, error) {
	var sighting domain.RemitSighting
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, vendor_id, remit_account_hash, remit_name, first_seen, last_seen
		 FROM vendor_remit_accounts
		 WHERE tenant_id = ? AND vendor_id = ? AND remit_account_hash = ?`,
		tenantID,
		vendorID,
		accountHash,
	).Scan(&sighting).Error
	if err != nil {
		return nil, err
	}
	if sighting.RemitAccountHash == "" {
		return nil, nil
	}
	return &sighting, nil
}

func (r *repo) CountVendorInvoices(ctx context.Context, db *gorm.DB, tenantID, vendorID, excludeInvoiceID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoices
		 WHERE tenant_id = ? AND vendor_id = ? AND invoice_id != ?`,
		tenantID,
		vendorID,
		excludeInvoiceID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindBaseline(ctx context.Context, db *gorm.DB, tenantID, vendorID string) (*domain.VendorBaseline, error) {
	var baseline domain.VendorBaseline
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, vendor_id, median_total, mad_like, sample_count, updated_at
		 FROM vendor_amount_baselines
		 WHERE tenant_id = ? AND vendor_id = ?`,
		tenantID,
		vendorID,
	).Scan(&baseline).Error
	if err != nil {
		return nil, err
	}
	if baseline.VendorID == "" {
		return nil, nil
	}
	return &baseline, nil
}

func (r *repo) UpsertBaseline(ctx context.Context, db *gorm.DB, baseline domain.VendorBaseline) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vendor_amount_baselines (
			tenant_id, vendor_id, median_total, mad_like, sample_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, vendor_id)
		  DO UPDATE SET median_total = EXCLUDED.median_total,
		                mad_like = EXCLUDED.mad_like,
		                sample_count = EXCLUDED.sample_count,
		                updated_at = EXCLUDED.updated_at`,
		baseline.TenantID,
		baseline.VendorID,
		baseline.MedianTotal,
		baseline.MadLike,
		baseline.SampleCount,
		baseline.UpdatedAt,
	).Error
}

func (r *repo) ListVendors(ctx context.Context, db *gorm.DB, tenantID string) ([]string, error) {
	var vendorIDs []string
	err := db.WithContext(ctx).Raw(
		`SELECT vendor_id FROM vendors WHERE tenant_id = ? ORDER BY vendor_id`,
		tenantID,
	).Scan(&vendorIDs).Error
	if err != nil {
		return nil, err
	}
	return vendorIDs, nil
}

func (r *repo) VendorTotals(ctx context.Context, db *gorm.DB, tenantID, vendorID string) ([]decimal.Decimal, error) {
	var totals []decimal.Decimal
	err := db.WithContext(ctx).Raw(
		`SELECT total FROM invoices
		 WHERE tenant_id = ? AND vendor_id = ?
		 ORDER BY total`,
		tenantID,
		vendorID,
	).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
