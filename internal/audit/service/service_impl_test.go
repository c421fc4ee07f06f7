package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	"github.com/sievehq/sieve/internal/audit/repository"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestAppendAndList(t *testing.T) {
	svc := newTestService(t)
	tenant := "tenant_audit_basic"
	ctx := context.Background()

	err := svc.Append(ctx, nil, auditdomain.Entry{
		TenantID:   tenant,
		Action:     auditdomain.ActionScore,
		TargetType: "invoice",
		TargetID:   "inv-1",
		Metadata:   map[string]any{"decision": "HOLD"},
	})
	assert.NoError(t, err)

	logs, err := svc.List(ctx, auditdomain.ListFilter{TenantID: tenant})
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionScore, logs[0].Action)
	assert.Equal(t, auditdomain.ActorTypeSystem, logs[0].ActorType)
	assert.Equal(t, "HOLD", logs[0].Metadata["decision"])
}

func TestAppend_ActorAndTraceFromContext(t *testing.T) {
	svc := newTestService(t)
	tenant := "tenant_audit_actor"

	ctx := tenantctx.WithActor(context.Background(), "reviewer@corp")
	ctx = tenantctx.WithTraceID(ctx, "trace-7")

	err := svc.Append(ctx, nil, auditdomain.Entry{
		TenantID:   tenant,
		Action:     auditdomain.ActionDisposition,
		TargetType: "case",
		TargetID:   "case_1",
	})
	assert.NoError(t, err)

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{TenantID: tenant})
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, "user", logs[0].ActorType)
	assert.NotNil(t, logs[0].ActorID)
	assert.Equal(t, "reviewer@corp", *logs[0].ActorID)
	assert.NotNil(t, logs[0].TraceID)
	assert.Equal(t, "trace-7", *logs[0].TraceID)
}

func TestAppend_RejectsEmptyAction(t *testing.T) {
	svc := newTestService(t)

	err := svc.Append(context.Background(), nil, auditdomain.Entry{
		TenantID: "tenant_audit_invalid",
		Action:   "  ",
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestList_Filters(t *testing.T) {
	svc := newTestService(t)
	tenant := "tenant_audit_filters"
	ctx := context.Background()

	assert.NoError(t, svc.Append(ctx, nil, auditdomain.Entry{
		TenantID: tenant, Action: auditdomain.ActionScore, TargetType: "invoice", TargetID: "inv-1",
	}))
	assert.NoError(t, svc.Append(ctx, nil, auditdomain.Entry{
		TenantID: tenant, Action: auditdomain.ActionDisposition, TargetType: "case", TargetID: "case_1",
	}))

	logs, err := svc.List(ctx, auditdomain.ListFilter{TenantID: tenant, Action: auditdomain.ActionScore})
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, "invoice", logs[0].TargetType)

	logs, err = svc.List(ctx, auditdomain.ListFilter{TenantID: "tenant_audit_other"})
	assert.NoError(t, err)
	assert.Empty(t, logs)
}
