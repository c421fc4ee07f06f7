// Package anomaly scores an invoice against its vendor's amount baseline
// and remit-account history, independently of any duplicate candidate.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/config"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ReasonAmountOutlier = "AMOUNT_OUTLIER"
	ReasonBankChange    = "BANK_CHANGE"

	outlierZ        = 6.0
	bankChangeFloor = 0.6
	coldStartDamp   = 0.8
	sightingGrace   = time.Minute

	baselineCacheTTL = time.Minute
)

// Result is the anomaly verdict for one submission.
type Result struct {
	Prob       float64
	Reasons    []string
	BankChange bool
}

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Snapshots snapshotdomain.Service
	Redis     *redis.Client `optional:"true"`
	Options   *config.ScoringOptionsHolder
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	snapshots snapshotdomain.Service
	redis     *redis.Client
	options   *config.ScoringOptionsHolder
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:       p.Log.Named("anomaly.service"),
		clock:     p.Clock,
		snapshots: p.Snapshots,
		redis:     p.Redis,
		options:   p.Options,
	}
}

// Score computes the amount z-score against the vendor baseline and the
// bank-change signal. priorSighting is the remit sighting as it stood
// before this submission's snapshot write; nil means the account hash had
// never been seen for the vendor.
func (s *Service) Score(ctx context.Context, inv *snapshotdomain.Invoice, priorSighting *snapshotdomain.RemitSighting) (Result, error) {
	opts := s.options.Current()

	baseline, err := s.resolveBaseline(ctx, inv.TenantID, inv.VendorID)
	if err != nil {
		return Result{}, err
	}

	score := 0.0
	var reasons []string
	if baseline != nil {
		median, _ := baseline.MedianTotal.Float64()
		madLike, _ := baseline.MadLike.Float64()
		total, _ := inv.Total.Float64()

		z := math.Abs(total-median) / math.Max(madLike, 1)
		score = math.Min(z/10, 1)
		if z >= outlierZ {
			reasons = append(reasons, ReasonAmountOutlier)
		}
	}

	history, err := s.snapshots.VendorHistoryCount(ctx, inv.TenantID, inv.VendorID, inv.InvoiceID)
	if err != nil {
		return Result{}, err
	}
	if history < int64(opts.ColdStartInvoices) {
		score *= coldStartDamp
	}

	bankChange := false
	if inv.RemitAccountHash != nil {
		cutoff := s.clock.Now().AddDate(0, -opts.BankChangeLookbackMonths, 0)
		switch {
		case priorSighting == nil:
			bankChange = true
		case priorSighting.LastSeen.Before(cutoff):
			bankChange = true
		case priorSighting.LastSeen.Sub(priorSighting.FirstSeen) <= sightingGrace:
			// A sighting whose whole history fits inside the grace window is
			// the introducing submission's own write; resubmissions keep
			// flagging until the account has an established history.
			bankChange = true
		}
		if bankChange {
			reasons = append(reasons, ReasonBankChange)
			score = math.Max(score, bankChangeFloor)
		}
	}

	return Result{Prob: score, Reasons: reasons, BankChange: bankChange}, nil
}

// resolveBaseline prefers the maintained per-vendor row, falling back to a
// baseline derived inline from the vendor's stored totals. Maintained rows
// are cached briefly when redis is configured.
func (s *Service) resolveBaseline(ctx context.Context, tenantID, vendorID string) (*snapshotdomain.VendorBaseline, error) {
	if cached := s.cachedBaseline(ctx, tenantID, vendorID); cached != nil {
		return cached, nil
	}

	baseline, err := s.snapshots.LoadBaseline(ctx, tenantID, vendorID)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		baseline, err = s.snapshots.DeriveBaseline(ctx, tenantID, vendorID)
		if err != nil {
			return nil, err
		}
	}
	if baseline != nil {
		s.cacheBaseline(ctx, baseline)
	}
	return baseline, nil
}

func baselineKey(tenantID, vendorID string) string {
	return fmt.Sprintf("sieve:baseline:%s:%s", tenantID, vendorID)
}

func (s *Service) cachedBaseline(ctx context.Context, tenantID, vendorID string) *snapshotdomain.VendorBaseline {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, baselineKey(tenantID, vendorID)).Bytes()
	if err != nil {
		return nil
	}
	var baseline snapshotdomain.VendorBaseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil
	}
	return &baseline
}

func (s *Service) cacheBaseline(ctx context.Context, baseline *snapshotdomain.VendorBaseline) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(baseline)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, baselineKey(baseline.TenantID, baseline.VendorID), raw, baselineCacheTTL).Err(); err != nil {
		s.log.Debug("baseline cache write failed", zap.Error(err))
	}
}
