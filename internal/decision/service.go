package decision

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrDecisionNotFound = errors.New("decision_not_found")

const (
	keyHold   = "T_hold"
	keyReview = "T_review"

	thresholdCacheTTL = 30 * time.Second
)

// Thresholds are the effective decision cutoffs for one (tenant, vendor).
type Thresholds struct {
	Hold   float64
	Review float64
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Options *config.ScoringOptionsHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	options *config.ScoringOptionsHolder

	mu    sync.Mutex
	cache map[string]cachedThresholds
}

type cachedThresholds struct {
	thresholds Thresholds
	expires    time.Time
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("decision.service"),
		clock:   p.Clock,
		options: p.Options,
		cache:   map[string]cachedThresholds{},
	}
}

// Thresholds resolves the cutoffs from the config store with scope order
// vendor:{vendor_id} then global, falling back to the configured defaults.
// Resolved values are cached briefly; the store stays authoritative.
func (s *Service) Thresholds(ctx context.Context, tenantID, vendorID string) (Thresholds, error) {
	cacheKey := tenantID + "|" + vendorID
	now := s.clock.Now()

	s.mu.Lock()
	if entry, ok := s.cache[cacheKey]; ok && now.Before(entry.expires) {
		s.mu.Unlock()
		return entry.thresholds, nil
	}
	s.mu.Unlock()

	opts := s.options.Current()
	out := Thresholds{Hold: opts.HoldThreshold, Review: opts.ReviewThreshold}

	vendorScope := "vendor:" + vendorID
	var rows []ConfigEntry
	err := s.db.WithContext(ctx).
		Raw(`SELECT tenant_id, scope, key, value, updated_at
		       FROM configs
		      WHERE tenant_id = ? AND scope IN (?, 'global') AND key IN (?, ?)`,
			tenantID, vendorScope, keyHold, keyReview).
		Scan(&rows).Error
	if err != nil {
		return Thresholds{}, err
	}

	apply := func(scope string) {
		for _, row := range rows {
			if row.Scope != scope {
				continue
			}
			var value float64
			if err := json.Unmarshal(row.Value, &value); err != nil {
				s.log.Warn("unreadable threshold config",
					zap.String("tenant_id", tenantID),
					zap.String("scope", row.Scope),
					zap.String("key", row.Key))
				continue
			}
			switch row.Key {
			case keyHold:
				out.Hold = value
			case keyReview:
				out.Review = value
			}
		}
	}
	// Global first so vendor-scoped rows win.
	apply("global")
	apply(vendorScope)

	s.mu.Lock()
	s.cache[cacheKey] = cachedThresholds{thresholds: out, expires: now.Add(thresholdCacheTTL)}
	s.mu.Unlock()

	return out, nil
}

// Label maps a risk score onto an outcome under the given thresholds.
func Label(riskScore float64, t Thresholds) string {
	switch {
	case riskScore >= t.Hold:
		return Hold
	case riskScore >= t.Review:
		return Review
	default:
		return Pass
	}
}

// Insert appends a decision row inside the caller's transaction.
func (s *Service) Insert(ctx context.Context, tx *gorm.DB, rec Record) error {
	return tx.WithContext(ctx).Exec(`
		INSERT INTO decisions (
			decision_id, tenant_id, invoice_id, risk_score, decision,
			reason_codes, top_matches, explanations,
			model_id, model_version, ruleset_version, trace_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DecisionID, rec.TenantID, rec.InvoiceID, rec.RiskScore, rec.Decision,
		rec.ReasonCodes, rec.TopMatches, rec.Explanations,
		rec.ModelID, rec.ModelVersion, rec.RulesetVersion, rec.TraceID, rec.CreatedAt,
	).Error
}

// Latest returns the newest decision row for the invoice.
func (s *Service) Latest(ctx context.Context, tenantID, invoiceID string) (*Record, error) {
	var rows []Record
	err := s.db.WithContext(ctx).
		Raw(`SELECT * FROM decisions
		      WHERE tenant_id = ? AND invoice_id = ?
		      ORDER BY created_at DESC, decision_id DESC
		      LIMIT 1`, tenantID, invoiceID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrDecisionNotFound
	}
	return &rows[0], nil
}

// SetThreshold writes one threshold override, used by operators and tests.
func (s *Service) SetThreshold(ctx context.Context, tenantID, scope, key string, value float64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO configs (tenant_id, scope, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, scope, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		tenantID, scope, key, string(raw), s.clock.Now(),
	).Error
}
