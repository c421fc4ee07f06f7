package decision

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one persisted decision. Rows are append-only; the newest row
// per (tenant, invoice) is the observable decision.
type Record struct {
	DecisionID     string         `gorm:"primaryKey;type:text"`
	TenantID       string         `gorm:"type:text;not null;index:ix_decisions_invoice,priority:1"`
	InvoiceID      string         `gorm:"type:text;not null;index:ix_decisions_invoice,priority:2"`
	RiskScore      float64        `gorm:"type:numeric(5,2);not null"`
	Decision       string         `gorm:"type:text;not null"`
	ReasonCodes    datatypes.JSON `gorm:"type:jsonb;not null"`
	TopMatches     datatypes.JSON `gorm:"type:jsonb;not null"`
	Explanations   datatypes.JSON `gorm:"type:jsonb;not null"`
	ModelID        string         `gorm:"type:text;not null"`
	ModelVersion   string         `gorm:"type:text;not null"`
	RulesetVersion string         `gorm:"type:text;not null"`
	TraceID        string         `gorm:"type:text;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "decisions" }

// ConfigEntry is one row of the tenant config store. Scope is either
// "global" or "vendor:{vendor_id}".
type ConfigEntry struct {
	TenantID  string         `gorm:"primaryKey;type:text"`
	Scope     string         `gorm:"primaryKey;type:text"`
	Key       string         `gorm:"primaryKey;type:text"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (ConfigEntry) TableName() string { return "configs" }
