package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("snapshot.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Persist writes the snapshot, its lines, the vendor name, and the remit
// sighting atomically. The snapshot insert is insert-if-absent: a second
// submission of the same (tenant, invoice_id) leaves the stored rows
// untouched. The sighting as it stood before the upsert is captured in the
// result so scorers can tell a fresh account from a refreshed one.
func (s *Service) Persist(ctx context.Context, snap domain.Snapshot) (domain.PersistResult, error) {
	var result domain.PersistResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertVendor(ctx, tx, snap.Vendor); err != nil {
			return err
		}

		inserted, err := s.repo.InsertInvoice(ctx, tx, snap.Invoice)
		if err != nil {
			return err
		}
		result.Inserted = inserted

		if inserted {
			for _, line := range snap.Lines {
				if err := s.repo.InsertLine(ctx, tx, line); err != nil {
					return err
				}
			}
		}

		if snap.Sighting != nil {
			prior, err := s.repo.FindSighting(ctx, tx, snap.Sighting.TenantID, snap.Sighting.VendorID, snap.Sighting.RemitAccountHash)
			if err != nil {
				return err
			}
			result.PriorSighting = prior
			if err := s.repo.UpsertSighting(ctx, tx, *snap.Sighting); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.PersistResult{}, err
	}
	if !result.Inserted {
		s.log.Debug("snapshot already present",
			zap.String("tenant_id", snap.Invoice.TenantID),
			zap.String("invoice_id", snap.Invoice.InvoiceID))
	}
	return result, nil
}

func (s *Service) LoadInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.repo.FindInvoice(ctx, s.db, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) LoadLines(ctx context.Context, tenantID, invoiceID string) ([]domain.InvoiceLine, error) {
	return s.repo.FindLines(ctx, s.db, tenantID, invoiceID)
}

func (s *Service) FindSighting(ctx context.Context, tenantID, vendorID, accountHash string) (*domain.RemitSighting, error) {
	return s.repo.FindSighting(ctx, s.db, tenantID, vendorID, accountHash)
}

func (s *Service) VendorHistoryCount(ctx context.Context, tenantID, vendorID, excludeInvoiceID string) (int64, error) {
	return s.repo.CountVendorInvoices(ctx, s.db, tenantID, vendorID, excludeInvoiceID)
}

func (s *Service) LoadBaseline(ctx context.Context, tenantID, vendorID string) (*domain.VendorBaseline, error) {
	return s.repo.FindBaseline(ctx, s.db, tenantID, vendorID)
}

// DeriveBaseline computes the inline fallback baseline over the vendor's
// history: median of totals, and the batch writer's mad_like artifact
// (median of absolute totals), preserved under that name.
func (s *Service) DeriveBaseline(ctx context.Context, tenantID, vendorID string) (*domain.VendorBaseline, error) {
	totals, err := s.repo.VendorTotals(ctx, s.db, tenantID, vendorID)
	if err != nil {
		return nil, err
	}
	if len(totals) == 0 {
		return nil, nil
	}

	median := medianOf(totals)

	abs := make([]decimal.Decimal, len(totals))
	for i, t := range totals {
		abs[i] = t.Abs()
	}
	madLike := medianOf(abs)

	return &domain.VendorBaseline{
		TenantID:    tenantID,
		VendorID:    vendorID,
		MedianTotal: median,
		MadLike:     madLike,
		SampleCount: len(totals),
		UpdatedAt:   s.clock.Now(),
	}, nil
}

// RefreshBaseline derives the vendor's baseline from its stored totals and
// writes it to the maintained table. Vendors with no history are left
// untouched.
func (s *Service) RefreshBaseline(ctx context.Context, tenantID, vendorID string) error {
	baseline, err := s.DeriveBaseline(ctx, tenantID, vendorID)
	if err != nil {
		return err
	}
	if baseline == nil {
		return nil
	}
	return s.repo.UpsertBaseline(ctx, s.db, *baseline)
}

func (s *Service) ListVendors(ctx context.Context, tenantID string) ([]string, error) {
	return s.repo.ListVendors(ctx, s.db, tenantID)
}

func medianOf(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
