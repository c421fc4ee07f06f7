package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/clock"
	appconfig "github.com/sievehq/sieve/internal/config"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	snapshotrepo "github.com/sievehq/sieve/internal/snapshot/repository"
	snapshotservice "github.com/sievehq/sieve/internal/snapshot/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestRunOnce_RefreshesAllVendors(t *testing.T) {
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

	tenant := "tenant_sched"
	ctx := context.Background()
	for i, vendorID := range []string{"v1", "v2"} {
		snap := snapshotdomain.Snapshot{
			Invoice: snapshotdomain.Invoice{
				TenantID:          tenant,
				InvoiceID:         "inv-" + vendorID,
				PayloadHash:       "hash",
				VendorID:          vendorID,
				InvoiceNumber:     "x",
				InvoiceNumberNorm: "x",
				InvoiceDate:       fake.Now().AddDate(0, 0, -i),
				Currency:          "USD",
				Total:             decimal.NewFromInt(int64(100 * (i + 1))),
				NormVersion:       "n1",
				RawJSON:           datatypes.JSON([]byte(`{}`)),
				CreatedAt:         fake.Now(),
			},
			Vendor: snapshotdomain.Vendor{TenantID: tenant, VendorID: vendorID, VendorName: vendorID},
		}
		_, err := snapshots.Persist(ctx, snap)
		assert.NoError(t, err)
	}

	sched := New(Params{
		Log:       zap.NewNop(),
		Clock:     fake,
		AppConfig: appconfig.Config{TenantID: tenant},
		Snapshots: snapshots,
	})
	assert.NoError(t, sched.RunOnce(ctx))

	for _, vendorID := range []string{"v1", "v2"} {
		baseline, err := snapshots.LoadBaseline(ctx, tenant, vendorID)
		assert.NoError(t, err)
		assert.NotNil(t, baseline, "vendor %s", vendorID)
		assert.Equal(t, 1, baseline.SampleCount)
	}
}

func TestRunOnce_StopsOnCancel(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched := New(Params{
		Log:       zap.NewNop(),
		Clock:     fake,
		AppConfig: appconfig.Config{TenantID: "tenant_sched_cancel"},
		Snapshots: stubSnapshots{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sched.RunOnce(ctx), context.Canceled)
}

type stubSnapshots struct{ snapshotdomain.Service }

func (stubSnapshots) ListVendors(ctx context.Context, tenantID string) ([]string, error) {
	return []string{"v1", "v2"}, nil
}
