package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/clock"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	snapshotrepo "github.com/sievehq/sieve/internal/snapshot/repository"
	snapshotservice "github.com/sievehq/sieve/internal/snapshot/service"
	"github.com/sievehq/sieve/internal/textindex"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestRetriever(t *testing.T, indexer textindex.Indexer) (*Service, snapshotdomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&snapshotdomain.Invoice{},
		&snapshotdomain.InvoiceLine{},
		&snapshotdomain.Vendor{},
		&snapshotdomain.RemitSighting{},
		&snapshotdomain.VendorBaseline{},
	))

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	snapshots := snapshotservice.NewService(snapshotservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  snapshotrepo.Provide(),
	})
	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		Indexer: indexer,
	})
	return svc, snapshots
}

func persistInvoice(t *testing.T, snapshots snapshotdomain.Service, tenant, invoiceID, vendorID, invnumNorm string, po *string, total float64, date time.Time) {
	t.Helper()
	_, err := snapshots.Persist(context.Background(), snapshotdomain.Snapshot{
		Invoice: snapshotdomain.Invoice{
			TenantID:          tenant,
			InvoiceID:         invoiceID,
			PayloadHash:       "hash",
			VendorID:          vendorID,
			InvoiceNumber:     invnumNorm,
			InvoiceNumberNorm: invnumNorm,
			InvoiceDate:       date,
			Currency:          "USD",
			Total:             decimal.NewFromFloat(total),
			PONumber:          po,
			NormVersion:       "n1",
			RawJSON:           datatypes.JSON([]byte(`{}`)),
			CreatedAt:         time.Now().UTC(),
		},
		Vendor: snapshotdomain.Vendor{TenantID: tenant, VendorID: vendorID, VendorName: vendorID},
	})
	assert.NoError(t, err)
}

func queryFor(tenant, invoiceID, invnumNorm string, po *string, total float64, date time.Time) *snapshotdomain.Invoice {
	return &snapshotdomain.Invoice{
		TenantID:          tenant,
		InvoiceID:         invoiceID,
		VendorID:          "v1",
		InvoiceNumberNorm: invnumNorm,
		InvoiceDate:       date,
		Currency:          "USD",
		Total:             decimal.NewFromFloat(total),
		PONumber:          po,
	}
}

func TestCandidates_BlockingPredicates(t *testing.T) {
	svc, snapshots := newTestRetriever(t, textindex.Noop{})
	tenant := "tenant_retr_block"
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	po := "PO1"

	persistInvoice(t, snapshots, tenant, "by-invnum", "v1", "123", nil, 999, date.AddDate(0, -3, 0))
	persistInvoice(t, snapshots, tenant, "by-po", "v1", "777", &po, 500, date.AddDate(0, 0, -10))
	persistInvoice(t, snapshots, tenant, "unrelated", "v1", "888", nil, 42, date.AddDate(0, -6, 0))

	got, err := svc.Candidates(context.Background(), queryFor(tenant, "query", "123", &po, 100, date), "", 200)
	assert.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.InvoiceID)
	}
	assert.Contains(t, ids, "by-invnum")
	assert.Contains(t, ids, "by-po")
	assert.NotContains(t, ids, "unrelated")

	// Exact invoice-number matches outrank PO matches.
	assert.Equal(t, "by-invnum", got[0].InvoiceID)
}

func TestCandidates_ExcludesQueryAndOtherTenants(t *testing.T) {
	svc, snapshots := newTestRetriever(t, textindex.Noop{})
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	persistInvoice(t, snapshots, "tenant_retr_iso_a", "query", "v1", "123", nil, 100, date)
	persistInvoice(t, snapshots, "tenant_retr_iso_b", "other-tenant", "v1", "123", nil, 100, date)

	got, err := svc.Candidates(context.Background(), queryFor("tenant_retr_iso_a", "query", "123", nil, 100, date), "", 200)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidates_RespectsCap(t *testing.T) {
	svc, snapshots := newTestRetriever(t, textindex.Noop{})
	tenant := "tenant_retr_cap"
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	po := "PO1"

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		persistInvoice(t, snapshots, tenant, "inv-"+id, "v1", "n"+id, &po, 100, date)
	}

	got, err := svc.Candidates(context.Background(), queryFor(tenant, "query", "x", &po, 100, date), "", 2)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCandidates_ZeroCap(t *testing.T) {
	svc, _ := newTestRetriever(t, textindex.Noop{})

	got, err := svc.Candidates(context.Background(), queryFor("tenant_retr_zero", "query", "x", nil, 100, time.Now()), "", 0)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

type failingIndexer struct{}

func (failingIndexer) Index(ctx context.Context, doc textindex.Document) error { return nil }

func (failingIndexer) Neighbors(ctx context.Context, tenantID, vendorID, excludeInvoiceID, blob string, limit int) ([]string, error) {
	return nil, errors.New("search host unreachable")
}

func TestCandidates_IndexFailureDegrades(t *testing.T) {
	svc, snapshots := newTestRetriever(t, failingIndexer{})
	tenant := "tenant_retr_degraded"
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	persistInvoice(t, snapshots, tenant, "by-invnum", "v1", "123", nil, 999, date)

	got, err := svc.Candidates(context.Background(), queryFor(tenant, "query", "123", nil, 100, date), "blob", 200)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
}

type fixedIndexer struct{ ids []string }

func (f fixedIndexer) Index(ctx context.Context, doc textindex.Document) error { return nil }

func (f fixedIndexer) Neighbors(ctx context.Context, tenantID, vendorID, excludeInvoiceID, blob string, limit int) ([]string, error) {
	if limit < len(f.ids) {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

func TestCandidates_AppendsTextNeighbors(t *testing.T) {
	svc, snapshots := newTestRetriever(t, fixedIndexer{ids: []string{"near-text"}})
	tenant := "tenant_retr_text"
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	persistInvoice(t, snapshots, tenant, "near-text", "v1", "999", nil, 55, date.AddDate(0, -4, 0))

	got, err := svc.Candidates(context.Background(), queryFor(tenant, "query", "123", nil, 100, date), "blob", 200)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "near-text", got[0].InvoiceID)
}
