package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/anomaly"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	auditrepo "github.com/sievehq/sieve/internal/audit/repository"
	auditservice "github.com/sievehq/sieve/internal/audit/service"
	"github.com/sievehq/sieve/internal/casemgr"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/decision"
	"github.com/sievehq/sieve/internal/dupmodel"
	"github.com/sievehq/sieve/internal/retrieval"
	"github.com/sievehq/sieve/internal/rules"
	"github.com/sievehq/sieve/internal/scoring/domain"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	snapshotrepo "github.com/sievehq/sieve/internal/snapshot/repository"
	snapshotservice "github.com/sievehq/sieve/internal/snapshot/service"
	"github.com/sievehq/sieve/internal/tenantctx"
	"github.com/sievehq/sieve/internal/textindex"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc       domain.Service
	snapshots snapshotdomain.Service
	decisions *decision.Service
	cases     *casemgr.Service
	audit     auditdomain.Service
	clock     *clock.FakeClock
	db        *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&snapshotdomain.Invoice{},
		&snapshotdomain.InvoiceLine{},
		&snapshotdomain.Vendor{},
		&snapshotdomain.RemitSighting{},
		&snapshotdomain.VendorBaseline{},
		&decision.Record{},
		&decision.ConfigEntry{},
		&casemgr.Case{},
		&auditdomain.AuditLog{},
	))

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	snapshots := snapshotservice.NewService(snapshotservice.ServiceParam{
		DB:    db,
		Log:   log,
		Clock: fake,
		Repo:  snapshotrepo.Provide(),
	})
	retriever := retrieval.NewService(retrieval.ServiceParam{
		DB:      db,
		Log:     log,
		Indexer: textindex.Noop{},
	})
	anomalySvc := anomaly.NewService(anomaly.ServiceParam{
		Log:       log,
		Clock:     fake,
		Snapshots: snapshots,
	})
	decisions := decision.NewService(decision.ServiceParam{
		DB:    db,
		Log:   log,
		Clock: fake,
	})
	cases := casemgr.NewService(casemgr.ServiceParam{
		DB:    db,
		Log:   log,
		Clock: fake,
		Node:  node,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		Clock: fake,
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		Clock:     fake,
		Node:      node,
		Snapshots: snapshots,
		Indexer:   textindex.Noop{},
		Retriever: retriever,
		Scorer:    dupmodel.Heuristic(),
		Anomaly:   anomalySvc,
		Decisions: decisions,
		Cases:     cases,
		Audit:     auditSvc,
	})

	return &testEnv{
		svc:       svc,
		snapshots: snapshots,
		decisions: decisions,
		cases:     cases,
		audit:     auditSvc,
		clock:     fake,
		db:        db,
	}
}

func payload(invoiceID, invoiceNumber, date string, total float64, descs ...string) domain.InvoiceIn {
	if len(descs) == 0 {
		descs = []string{"widget"}
	}
	per := total / float64(len(descs))
	lines := make([]domain.LineItemIn, 0, len(descs))
	for _, desc := range descs {
		lines = append(lines, domain.LineItemIn{
			Desc:      desc,
			Qty:       decimal.NewFromInt(1),
			UnitPrice: decimal.NewFromFloat(per),
			Amount:    decimal.NewFromFloat(per),
		})
	}
	return domain.InvoiceIn{
		InvoiceID:     invoiceID,
		VendorID:      "v1",
		VendorName:    "Acme Corp",
		InvoiceNumber: invoiceNumber,
		InvoiceDate:   date,
		Currency:      "USD",
		Total:         decimal.NewFromFloat(total),
		LineItems:     lines,
	}
}

func tenantCtx(tenant string) context.Context {
	return tenantctx.WithTenant(context.Background(), tenant)
}

func TestScoreInvoice_MissingTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ScoreInvoice(context.Background(), payload("inv-1", "A-1", "2026-02-10", 100))
	assert.ErrorIs(t, err, ErrMissingTenant)
}

func TestScoreInvoice_SchemaViolation(t *testing.T) {
	env := newTestEnv(t)

	in := payload("inv-1", "A-1", "2026-02-10", 100)
	in.LineItems = nil
	_, err := env.svc.ScoreInvoice(tenantCtx("tenant_e2e_schema"), in)

	var verrs domain.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	// Schema failures must not persist anything.
	_, err = env.snapshots.LoadInvoice(context.Background(), "tenant_e2e_schema", "inv-1")
	assert.ErrorIs(t, err, snapshotdomain.ErrInvoiceNotFound)
}

func TestScoreInvoice_SamePONearTotalHolds(t *testing.T) {
	env := newTestEnv(t)
	tenant := "tenant_e2e_same_po"
	ctx := tenantCtx(tenant)

	hist := payload("inv-h", "A-100", "2026-02-15", 100.40, "consulting services february")
	po := "PO1"
	hist.PONumber = &po
	_, err := env.svc.ScoreInvoice(ctx, hist)
	assert.NoError(t, err)

	query := payload("inv-q", "B-200", "2026-02-10", 100.00, "site visit and travel")
	query.PONumber = &po
	resp, err := env.svc.ScoreInvoice(ctx, query)
	assert.NoError(t, err)

	assert.Contains(t, resp.ReasonCodes, rules.ReasonSamePONearTotal)
	assert.Equal(t, decision.Hold, resp.Decision)

	// HOLD opens a case and leaves an audit entry.
	c, err := env.cases.Get(context.Background(), tenant, "inv-q")
	assert.NoError(t, err)
	assert.Equal(t, casemgr.StatusOpen, c.Status)

	trail, err := env.audit.List(context.Background(), auditdomain.ListFilter{
		TenantID: tenant,
		Action:   auditdomain.ActionScore,
		TargetID: "inv-q",
	})
	assert.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestScoreInvoice_SamePOOutOfTolerance(t *testing.T) {
	env := newTestEnv(t)
	ctx := tenantCtx("tenant_e2e_tolerance")

	hist := payload("inv-h", "A-100", "2026-02-15", 106.00, "consulting services february")
	po := "PO1"
	hist.PONumber = &po
	_, err := env.svc.ScoreInvoice(ctx, hist)
	assert.NoError(t, err)

	query := payload("inv-q", "B-200", "2026-02-10", 100.00, "site visit and travel")
	query.PONumber = &po
	resp, err := env.svc.ScoreInvoice(ctx, query)
	assert.NoError(t, err)
	assert.NotContains(t, resp.ReasonCodes, rules.ReasonSamePONearTotal)
}

func TestScoreInvoice_ExactInvnumHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := tenantCtx("tenant_e2e_invnum")

	_, err := env.svc.ScoreInvoice(ctx, payload("inv-h", "INV-000123", "2026-01-10", 250, "maintenance retainer"))
	assert.NoError(t, err)

	resp, err := env.svc.ScoreInvoice(ctx, payload("inv-q", "inv 123", "2026-02-10", 250, "maintenance retainer repeat"))
	assert.NoError(t, err)
	assert.Contains(t, resp.ReasonCodes, rules.ReasonExactInvnum)
	assert.Equal(t, decision.Hold, resp.Decision)
}

func TestScoreInvoice_NewRemitAccount(t *testing.T) {
	env := newTestEnv(t)
	tenant := "tenant_e2e_bank"
	ctx := tenantCtx(tenant)

	in := payload("inv-1", "A-1", "2026-02-10", 100)
	acct := "DE89370400440532013000"
	in.RemitBankAccount = &acct
	resp, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)

	assert.Contains(t, resp.ReasonCodes, rules.ReasonBankChange)
	assert.NotEqual(t, decision.Pass, resp.Decision)

	inv, err := env.snapshots.LoadInvoice(context.Background(), tenant, "inv-1")
	assert.NoError(t, err)
	assert.NotNil(t, inv.RemitAccountHash)

	sighting, err := env.snapshots.FindSighting(context.Background(), tenant, "v1", *inv.RemitAccountHash)
	assert.NoError(t, err)
	assert.NotNil(t, sighting)
}

func TestScoreInvoice_IdempotentResubmission(t *testing.T) {
	env := newTestEnv(t)
	tenant := "tenant_e2e_idem"
	ctx := tenantCtx(tenant)

	in := payload("inv-1", "A-1", "2026-02-10", 100, "widget alpha", "widget beta")
	first, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)

	second, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)

	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.ReasonCodes, second.ReasonCodes)

	var invoiceCount int64
	assert.NoError(t, env.db.Raw(
		`SELECT COUNT(*) FROM invoices WHERE tenant_id = ? AND invoice_id = ?`,
		tenant, "inv-1").Scan(&invoiceCount).Error)
	assert.Equal(t, int64(1), invoiceCount)

	var decisionCount int64
	assert.NoError(t, env.db.Raw(
		`SELECT COUNT(*) FROM decisions WHERE tenant_id = ? AND invoice_id = ?`,
		tenant, "inv-1").Scan(&decisionCount).Error)
	assert.Equal(t, int64(2), decisionCount)
}

func TestScoreInvoice_ResubmissionKeepsBankChange(t *testing.T) {
	env := newTestEnv(t)
	tenant := "tenant_e2e_idem_bank"
	ctx := tenantCtx(tenant)

	in := payload("inv-1", "A-1", "2026-02-10", 100)
	acct := "DE89370400440532013000"
	in.RemitBankAccount = &acct

	first, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)
	assert.Contains(t, first.ReasonCodes, rules.ReasonBankChange)

	// The first call upserts the remit sighting; the second must still see
	// the account as new and return the same decision.
	second, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.ReasonCodes, second.ReasonCodes)
}

func TestScoreInvoice_DataQualityBiasesReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := tenantCtx("tenant_e2e_dq")

	in := payload("inv-1", "A-1", "2026-02-10", 100)
	in.LineItems[0].Amount = decimal.NewFromFloat(55)

	resp, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)
	assert.Contains(t, resp.ReasonCodes, rules.ReasonDataQuality)
	assert.NotEqual(t, decision.Pass, resp.Decision)
}

func TestScoreInvoice_CleanFirstInvoicePasses(t *testing.T) {
	env := newTestEnv(t)
	tenant := "tenant_e2e_clean"
	ctx := tenantCtx(tenant)

	resp, err := env.svc.ScoreInvoice(ctx, payload("inv-1", "A-1", "2026-02-10", 100))
	assert.NoError(t, err)
	assert.Equal(t, decision.Pass, resp.Decision)
	assert.Empty(t, resp.ReasonCodes)
	assert.Empty(t, resp.TopMatches)
	assert.NotEmpty(t, resp.TraceID)

	// PASS does not open a case.
	_, err = env.cases.Get(context.Background(), tenant, "inv-1")
	assert.ErrorIs(t, err, casemgr.ErrCaseNotFound)
}

func TestScoreInvoice_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ScoreInvoice(tenantCtx("tenant_e2e_iso_a"), payload("inv-1", "A-1", "2026-02-10", 100))
	assert.NoError(t, err)

	_, err = env.decisions.Latest(context.Background(), "tenant_e2e_iso_b", "inv-1")
	assert.ErrorIs(t, err, decision.ErrDecisionNotFound)

	_, err = env.snapshots.LoadInvoice(context.Background(), "tenant_e2e_iso_b", "inv-1")
	assert.ErrorIs(t, err, snapshotdomain.ErrInvoiceNotFound)
}

func TestScoreInvoice_TopMatchesBounded(t *testing.T) {
	env := newTestEnv(t)
	ctx := tenantCtx("tenant_e2e_topk")

	po := "PO9"
	for _, id := range []string{"inv-a", "inv-b", "inv-c", "inv-d"} {
		in := payload(id, "N-"+id, "2026-02-10", 100, "widget "+id)
		in.PONumber = &po
		_, err := env.svc.ScoreInvoice(ctx, in)
		assert.NoError(t, err)
	}

	in := payload("inv-q", "N-q", "2026-02-11", 100, "widget q")
	in.PONumber = &po
	resp, err := env.svc.ScoreInvoice(ctx, in)
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(resp.TopMatches), 3)
	assert.Len(t, resp.Explanations, len(dupmodel.FeatureOrder))
}
