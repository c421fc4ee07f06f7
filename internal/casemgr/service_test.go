package casemgr

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Case{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Node:  node,
	})
	return svc, fake, db
}

func TestUpsert_OpensOnce(t *testing.T) {
	svc, fake, db := newTestService(t)
	ctx := context.Background()
	tenant := "tenant_cases_upsert"

	caseID, err := svc.Upsert(ctx, db, tenant, "inv-1")
	assert.NoError(t, err)
	assert.NotEmpty(t, caseID)

	// A second flag for the same invoice reuses the open case.
	again, err := svc.Upsert(ctx, db, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, caseID, again)

	stored, err := svc.Get(ctx, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, StatusOpen, stored.Status)
	assert.True(t, stored.SLADue.Equal(fake.Now().Add(48*time.Hour)))
	assert.Nil(t, stored.Disposition)
}

func TestDispose_WriteOnce(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	tenant := "tenant_cases_dispose"

	caseID, err := svc.Upsert(ctx, db, tenant, "inv-1")
	assert.NoError(t, err)

	err = svc.Dispose(ctx, tenant, caseID, "confirmed_duplicate", "same as inv-0", "reviewer@corp")
	assert.NoError(t, err)

	stored, err := svc.Get(ctx, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, StatusClosed, stored.Status)
	assert.NotNil(t, stored.Disposition)
	assert.Equal(t, "confirmed_duplicate", *stored.Disposition)
	assert.NotNil(t, stored.DisposedAt)

	// The verdict is immutable.
	err = svc.Dispose(ctx, tenant, caseID, "false_positive", "", "other@corp")
	assert.ErrorIs(t, err, ErrAlreadyDisposed)

	stored, err = svc.Get(ctx, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, "confirmed_duplicate", *stored.Disposition)
}

func TestUpsert_ReopensDisposedCase(t *testing.T) {
	svc, fake, db := newTestService(t)
	ctx := context.Background()
	tenant := "tenant_cases_reopen"

	caseID, err := svc.Upsert(ctx, db, tenant, "inv-1")
	assert.NoError(t, err)
	assert.NoError(t, svc.Dispose(ctx, tenant, caseID, "false_positive", "", "reviewer@corp"))

	// Re-flagging the same invoice reopens the case with a fresh SLA.
	fake.Advance(24 * time.Hour)
	again, err := svc.Upsert(ctx, db, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, caseID, again)

	stored, err := svc.Get(ctx, tenant, "inv-1")
	assert.NoError(t, err)
	assert.Equal(t, StatusOpen, stored.Status)
	assert.True(t, stored.SLADue.Equal(fake.Now().Add(48*time.Hour)))

	// The recorded verdict stays on the row.
	assert.NotNil(t, stored.Disposition)
	assert.Equal(t, "false_positive", *stored.Disposition)
	assert.NotNil(t, stored.DisposedAt)
}

func TestDispose_UnknownCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Dispose(context.Background(), "tenant_cases_missing", "case_nope", "false_positive", "", "reviewer")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "tenant_cases_missing", "inv-x")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}
