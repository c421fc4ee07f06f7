// Package casemgr opens and updates review cases for held or flagged
// invoices.
package casemgr

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

var (
	ErrCaseNotFound    = errors.New("case_not_found")
	ErrAlreadyDisposed = errors.New("case_already_disposed")
)

// Case is one review case, keyed by the invoice it concerns. Disposition
// fields are write-once.
type Case struct {
	TenantID        string     `gorm:"primaryKey;type:text"`
	InvoiceID       string     `gorm:"primaryKey;type:text"`
	CaseID          string     `gorm:"type:text;not null;uniqueIndex:ux_cases_case_id"`
	Status          string     `gorm:"type:text;not null"`
	SLADue          time.Time  `gorm:"column:sla_due;not null"`
	Disposition     *string    `gorm:"type:text"`
	DispositionNote *string    `gorm:"type:text"`
	DisposedBy      *string    `gorm:"type:text"`
	DisposedAt      *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (Case) TableName() string { return "cases" }

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Node    *snowflake.Node
	Options *config.ScoringOptionsHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	node    *snowflake.Node
	options *config.ScoringOptionsHolder
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("casemgr.service"),
		clock:   p.Clock,
		node:    p.Node,
		options: p.Options,
	}
}

// Upsert opens a case for the invoice inside the caller's transaction. An
// existing case is reopened: status returns to OPEN and the SLA clock
// restarts, while any recorded disposition stays on the row untouched.
// Returns the effective case_id.
func (s *Service) Upsert(ctx context.Context, tx *gorm.DB, tenantID, invoiceID string) (string, error) {
	now := s.clock.Now()
	slaDue := now.Add(time.Duration(s.options.Current().CaseSLAHours) * time.Hour)
	caseID := "case_" + s.node.Generate().String()

	var row Case
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO cases (tenant_id, invoice_id, case_id, status, sla_due, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, invoice_id)
		DO UPDATE SET status = EXCLUDED.status,
		              sla_due = EXCLUDED.sla_due,
		              updated_at = EXCLUDED.updated_at
		RETURNING case_id`,
		tenantID, invoiceID, caseID, StatusOpen, slaDue, now, now,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	return row.CaseID, nil
}

// Get loads the case for an invoice.
func (s *Service) Get(ctx context.Context, tenantID, invoiceID string) (*Case, error) {
	var rows []Case
	err := s.db.WithContext(ctx).
		Raw(`SELECT * FROM cases WHERE tenant_id = ? AND invoice_id = ?`, tenantID, invoiceID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrCaseNotFound
	}
	return &rows[0], nil
}

// Dispose closes an open case with a reviewer verdict. Disposition fields
// are write-once: a second disposition is rejected, never overwritten.
func (s *Service) Dispose(ctx context.Context, tenantID, caseID, disposition, note, actor string) error {
	now := s.clock.Now()
	res := s.db.WithContext(ctx).Exec(`
		UPDATE cases
		   SET status = ?, disposition = ?, disposition_note = ?,
		       disposed_by = ?, disposed_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND case_id = ? AND disposition IS NULL`,
		StatusClosed, disposition, note, actor, now, now, tenantID, caseID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Raw(`SELECT COUNT(1) FROM cases WHERE tenant_id = ? AND case_id = ?`, tenantID, caseID).
			Scan(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrCaseNotFound
		}
		return ErrAlreadyDisposed
	}
	return nil
}
