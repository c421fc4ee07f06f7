// Package domain contains persistence models for the invoice corpus.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoice is the immutable snapshot written on first successful scoring of
// an invoice_id. Re-submission never rewrites it.
type Invoice struct {
	TenantID          string          `gorm:"primaryKey;type:text"`
	InvoiceID         string          `gorm:"primaryKey;type:text"`
	PayloadHash       string          `gorm:"type:text;not null"`
	VendorID          string          `gorm:"type:text;not null;index:ix_invoices_vendor"`
	InvoiceNumber     string          `gorm:"type:text;not null"`
	InvoiceNumberNorm string          `gorm:"type:text;not null;index:ix_invoices_invnum_norm"`
	InvoiceDate       time.Time       `gorm:"type:date;not null"`
	Currency          string          `gorm:"type:text;not null"`
	Total             decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TaxTotal          decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	PONumber          *string         `gorm:"type:text"`
	RemitAccountMasked *string        `gorm:"type:text"`
	RemitAccountHash  *string         `gorm:"type:text;index:ix_invoices_remit_hash"`
	RemitName         *string         `gorm:"type:text"`
	PDFHash           *string         `gorm:"type:text"`
	Terms             *string         `gorm:"type:text"`
	NormVersion       string          `gorm:"type:text;not null"`
	RawJSON           datatypes.JSON  `gorm:"type:jsonb;not null"`
	CreatedAt         time.Time       `gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one line of a snapshot, 1-based in submission order.
type InvoiceLine struct {
	TenantID   string          `gorm:"primaryKey;type:text"`
	InvoiceID  string          `gorm:"primaryKey;type:text"`
	LineNo     int             `gorm:"primaryKey"`
	SKU        *string         `gorm:"type:text"`
	Description string         `gorm:"type:text;not null"`
	Qty        decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	GLCode     *string         `gorm:"type:text"`
	CostCenter *string         `gorm:"type:text"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// Vendor keeps the latest display name per vendor.
type Vendor struct {
	TenantID   string `gorm:"primaryKey;type:text"`
	VendorID   string `gorm:"primaryKey;type:text"`
	VendorName string `gorm:"type:text;not null"`
}

func (Vendor) TableName() string { return "vendors" }

// RemitSighting records that a remit account hash has been observed for a
// vendor. first_seen is immutable; last_seen refreshes on every observation.
type RemitSighting struct {
	TenantID         string    `gorm:"primaryKey;type:text"`
	VendorID         string    `gorm:"primaryKey;type:text"`
	RemitAccountHash string    `gorm:"primaryKey;type:text"`
	RemitName        *string   `gorm:"type:text"`
	FirstSeen        time.Time `gorm:"not null"`
	LastSeen         time.Time `gorm:"not null"`
}

func (RemitSighting) TableName() string { return "vendor_remit_accounts" }

// VendorBaseline is the per-vendor amount baseline maintained by the batch
// collaborator. mad_like keeps the writer's percentile artifact under its
// historical name.
type VendorBaseline struct {
	TenantID    string          `gorm:"primaryKey;type:text"`
	VendorID    string          `gorm:"primaryKey;type:text"`
	MedianTotal decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	MadLike     decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	SampleCount int             `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

func (VendorBaseline) TableName() string { return "vendor_amount_baselines" }

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
)

// Snapshot bundles everything persisted for one scored invoice.
type Snapshot struct {
	Invoice Invoice
	Lines   []InvoiceLine
	Vendor  Vendor
	// Sighting is nil when the payload carries no remit account.
	Sighting *RemitSighting
}

// PersistResult reports what the snapshot write found and did.
type PersistResult struct {
	// Inserted is false when the snapshot already existed.
	Inserted bool
	// PriorSighting is the remit sighting as it stood before this write
	// refreshed it; nil when the account had never been seen (or the
	// payload carries no remit account). The bank-change signal needs the
	// pre-write state because the write itself updates last_seen.
	PriorSighting *RemitSighting
}

// Service is the snapshot store: insert-if-absent snapshots, sighting
// upserts, and tenant-scoped reads.
type Service interface {
	// Persist writes snapshot, lines, vendor, and remit sighting in a single
	// transaction.
	Persist(ctx context.Context, snap Snapshot) (PersistResult, error)
	LoadInvoice(ctx context.Context, tenantID, invoiceID string) (*Invoice, error)
	LoadLines(ctx context.Context, tenantID, invoiceID string) ([]InvoiceLine, error)
	FindSighting(ctx context.Context, tenantID, vendorID, accountHash string) (*RemitSighting, error)
	VendorHistoryCount(ctx context.Context, tenantID, vendorID, excludeInvoiceID string) (int64, error)
	LoadBaseline(ctx context.Context, tenantID, vendorID string) (*VendorBaseline, error)
	// DeriveBaseline computes a median/mad_like baseline over the vendor's
	// history when no maintained row exists.
	DeriveBaseline(ctx context.Context, tenantID, vendorID string) (*VendorBaseline, error)
	// RefreshBaseline derives and stores the baseline for one vendor.
	RefreshBaseline(ctx context.Context, tenantID, vendorID string) error
	ListVendors(ctx context.Context, tenantID string) ([]string, error)
}

// Repository is the raw data access behind the service.
type Repository interface {
	InsertInvoice(ctx context.Context, tx *gorm.DB, inv Invoice) (bool, error)
	InsertLine(ctx context.Context, tx *gorm.DB, line InvoiceLine) error
	UpsertVendor(ctx context.Context, tx *gorm.DB, vendor Vendor) error
	UpsertSighting(ctx context.Context, tx *gorm.DB, sighting RemitSighting) error
	FindInvoice(ctx context.Context, db *gorm.DB, tenantID, invoiceID string) (*Invoice, error)
	FindLines(ctx context.Context, db *gorm.DB, tenantID, invoiceID string) ([]InvoiceLine, error)
	FindSighting(ctx context.Context, db *gorm.DB, tenantID, vendorID, accountHash string) (*RemitSighting, error)
	CountVendorInvoices(ctx context.Context, db *gorm.DB, tenantID, vendorID, excludeInvoiceID string) (int64, error)
	FindBaseline(ctx context.Context, db *gorm.DB, tenantID, vendorID string) (*VendorBaseline, error)
	UpsertBaseline(ctx context.Context, db *gorm.DB, baseline VendorBaseline) error
	ListVendors(ctx context.Context, db *gorm.DB, tenantID string) ([]string, error)
	VendorTotals(ctx context.Context, db *gorm.DB, tenantID, vendorID string) ([]decimal.Decimal, error)
}
