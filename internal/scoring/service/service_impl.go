// Package service drives one scoring request end to end: normalize,
// snapshot, retrieve, score, decide, persist.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sievehq/sieve/internal/anomaly"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	"github.com/sievehq/sieve/internal/casemgr"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/decision"
	"github.com/sievehq/sieve/internal/dupmodel"
	"github.com/sievehq/sieve/internal/feature"
	"github.com/sievehq/sieve/internal/normalize"
	"github.com/sievehq/sieve/internal/observability/metrics"
	"github.com/sievehq/sieve/internal/retrieval"
	"github.com/sievehq/sieve/internal/rules"
	"github.com/sievehq/sieve/internal/scoring/domain"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	"github.com/sievehq/sieve/internal/tenantctx"
	"github.com/sievehq/sieve/internal/textindex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrMissingTenant = errors.New("missing_tenant")

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Node      *snowflake.Node
	Options   *config.ScoringOptionsHolder
	Metrics   *metrics.ScoringMetrics
	Snapshots snapshotdomain.Service
	Indexer   textindex.Indexer
	Retriever *retrieval.Service
	Scorer    dupmodel.Scorer
	Anomaly   *anomaly.Service
	Decisions *decision.Service
	Cases     *casemgr.Service
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	node      *snowflake.Node
	options   *config.ScoringOptionsHolder
	metrics   *metrics.ScoringMetrics
	snapshots snapshotdomain.Service
	indexer   textindex.Indexer
	retriever *retrieval.Service
	scorer    dupmodel.Scorer
	anomaly   *anomaly.Service
	decisions *decision.Service
	cases     *casemgr.Service
	audit     auditdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("scoring.service"),
		clock:     p.Clock,
		node:      p.Node,
		options:   p.Options,
		metrics:   p.Metrics,
		snapshots: p.Snapshots,
		indexer:   p.Indexer,
		retriever: p.Retriever,
		scorer:    p.Scorer,
		anomaly:   p.Anomaly,
		decisions: p.Decisions,
		cases:     p.Cases,
		audit:     p.Audit,
	}
}

// scoredCandidate is one candidate's pairwise result, merged in a stable
// order before top-K selection.
type scoredCandidate struct {
	invoice  *snapshotdomain.Invoice
	dupProb  float64
	features feature.Vector
	textBlob string
}

func (s *Service) ScoreInvoice(ctx context.Context, in domain.InvoiceIn) (*domain.ScoreResponse, error) {
	started := s.clock.Now()

	tenantID, ok := tenantctx.TenantFromContext(ctx)
	if !ok {
		return nil, ErrMissingTenant
	}
	if errs := in.Validate(); len(errs) > 0 {
		return nil, errs
	}
	opts := s.options.Current()

	invoiceDate, err := domain.ParseDate(in.InvoiceDate)
	if err != nil {
		return nil, domain.ValidationErrors{{Field: "invoice_date", Message: "must be an ISO-8601 date"}}
	}

	snap, blob, err := s.buildSnapshot(tenantID, in, invoiceDate)
	if err != nil {
		return nil, err
	}
	dqFail := s.dataQualityFail(in, invoiceDate)

	persisted, err := s.snapshots.Persist(ctx, snap)
	if err != nil {
		return nil, err
	}

	s.indexBlob(ctx, snap.Invoice, blob)

	query, err := s.snapshots.LoadInvoice(ctx, tenantID, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	queryLines, err := s.snapshots.LoadLines(ctx, tenantID, in.InvoiceID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.retriever.Candidates(ctx, query, blob, opts.CandidateCap)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CandidateFanout.Observe(float64(len(candidates)))
	}

	scored, err := s.scoreCandidates(ctx, query, queryLines, candidates, opts)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].dupProb != scored[j].dupProb {
			return scored[i].dupProb > scored[j].dupProb
		}
		return scored[i].invoice.InvoiceID < scored[j].invoice.InvoiceID
	})

	anomRes, err := s.anomaly.Score(ctx, query, persisted.PriorSighting)
	if err != nil {
		return nil, err
	}

	ruleIn := rules.Input{
		Query:           query,
		QueryText:       blob,
		BankChange:      anomRes.BankChange,
		DataQualityFail: dqFail,
	}
	dupProb := 0.0
	textDup := 0.0
	if len(scored) > 0 {
		top := scored[0]
		ruleIn.TopCandidate = &rules.Candidate{Invoice: top.invoice, TextBlob: top.textBlob}
		dupProb = top.dupProb
		textDup = top.features["text_cosine"]
	}
	ruleOut := rules.Evaluate(ruleIn, opts)

	risk := decision.RiskScore(decision.Fuse(dupProb, anomRes.Prob, anomRes.BankChange, textDup))

	thresholds, err := s.decisions.Thresholds(ctx, tenantID, query.VendorID)
	if err != nil {
		return nil, err
	}
	final := decision.Stricter(decision.Label(risk, thresholds), ruleOut.Forced)

	reasons := dedupe(append(append([]string{}, ruleOut.Reasons...), anomRes.Reasons...))
	topMatches := buildTopMatches(scored)
	explanations := buildExplanations(scored)

	traceID := tenantctx.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	if err := s.persistOutcome(ctx, query, risk, final, reasons, topMatches, explanations, traceID); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ScoredTotal.WithLabelValues(final).Inc()
		s.metrics.ScoringDuration.Observe(s.clock.Now().Sub(started).Seconds())
	}
	s.log.Info("invoice scored",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", in.InvoiceID),
		zap.Float64("risk_score", risk),
		zap.String("decision", final),
		zap.Strings("reason_codes", reasons),
		zap.Int("fanout", len(candidates)),
		zap.String("trace_id", traceID))

	return &domain.ScoreResponse{
		RiskScore:    risk,
		Decision:     final,
		ReasonCodes:  reasons,
		TopMatches:   topMatches,
		Explanations: explanations,
		TraceID:      traceID,
	}, nil
}

func (s *Service) buildSnapshot(tenantID string, in domain.InvoiceIn, invoiceDate time.Time) (snapshotdomain.Snapshot, string, error) {
	now := s.clock.Now()

	payloadHash, err := normalize.PayloadHash(in)
	if err != nil {
		return snapshotdomain.Snapshot{}, "", err
	}
	rawJSON, err := json.Marshal(in)
	if err != nil {
		return snapshotdomain.Snapshot{}, "", err
	}

	accountHash := normalize.HashAccount(in.RemitBankAccount)
	taxTotal := decimal.Zero
	if in.TaxTotal != nil {
		taxTotal = *in.TaxTotal
	}

	invoice := snapshotdomain.Invoice{
		TenantID:           tenantID,
		InvoiceID:          in.InvoiceID,
		PayloadHash:        payloadHash,
		VendorID:           in.VendorID,
		InvoiceNumber:      in.InvoiceNumber,
		InvoiceNumberNorm:  normalize.InvoiceNumber(in.InvoiceNumber),
		InvoiceDate:        invoiceDate,
		Currency:           strings.ToUpper(in.Currency),
		Total:              in.Total,
		TaxTotal:           taxTotal,
		PONumber:           in.PONumber,
		RemitAccountMasked: normalize.MaskAccountLast4(in.RemitBankAccount),
		RemitAccountHash:   accountHash,
		RemitName:          in.RemitName,
		PDFHash:            in.PDFHash,
		Terms:              in.Terms,
		NormVersion:        normalize.Version,
		RawJSON:            datatypes.JSON(rawJSON),
		CreatedAt:          now,
	}

	lines := make([]snapshotdomain.InvoiceLine, 0, len(in.LineItems))
	for i, item := range in.LineItems {
		lines = append(lines, snapshotdomain.InvoiceLine{
			TenantID:    tenantID,
			InvoiceID:   in.InvoiceID,
			LineNo:      i + 1,
			SKU:         item.SKU,
			Description: item.Desc,
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
			GLCode:      item.GLCode,
			CostCenter:  item.CostCenter,
		})
	}

	snap := snapshotdomain.Snapshot{
		Invoice: invoice,
		Lines:   lines,
		Vendor: snapshotdomain.Vendor{
			TenantID:   tenantID,
			VendorID:   in.VendorID,
			VendorName: in.VendorName,
		},
	}
	if accountHash != nil {
		snap.Sighting = &snapshotdomain.RemitSighting{
			TenantID:         tenantID,
			VendorID:         in.VendorID,
			RemitAccountHash: *accountHash,
			RemitName:        in.RemitName,
			FirstSeen:        now,
			LastSeen:         now,
		}
	}

	return snap, textBlobFor(in), nil
}

// dataQualityFail runs the consistency checks that bias the decision toward
// REVIEW without rejecting the payload.
func (s *Service) dataQualityFail(in domain.InvoiceIn, invoiceDate time.Time) bool {
	lineSum := decimal.Zero
	for _, item := range in.LineItems {
		lineSum = lineSum.Add(item.Amount)
	}
	deviation := lineSum.Sub(in.Total).Abs()
	tolerance := decimal.NewFromFloat(0.01).Add(in.Total.Abs().Mul(decimal.NewFromFloat(0.005)))
	if deviation.GreaterThan(tolerance) {
		return true
	}

	now := s.clock.Now()
	if invoiceDate.Year() < 1990 || invoiceDate.After(now.AddDate(1, 0, 7)) {
		return true
	}

	if in.Currency != strings.ToUpper(in.Currency) {
		return true
	}
	return false
}

func (s *Service) indexBlob(ctx context.Context, inv snapshotdomain.Invoice, blob string) {
	err := s.indexer.Index(ctx, textindex.Document{
		TenantID:  inv.TenantID,
		VendorID:  inv.VendorID,
		InvoiceID: inv.InvoiceID,
		TextBlob:  blob,
	})
	if err != nil {
		s.log.Warn("text index write skipped",
			zap.String("invoice_id", inv.InvoiceID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.DegradedTotal.WithLabelValues("text_index").Inc()
		}
	}
}

// scoreCandidates fans the pairwise work out across a bounded worker group.
// Results land in per-candidate slots, so parallelism never reorders them.
func (s *Service) scoreCandidates(ctx context.Context, query *snapshotdomain.Invoice, queryLines []snapshotdomain.InvoiceLine, candidates []snapshotdomain.Invoice, opts config.ScoringOptions) ([]scoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	weights := feature.Weights{
		Alpha: opts.LineCostAlpha,
		Beta:  opts.LineCostBeta,
		Gamma: opts.LineCostGamma,
	}
	aLines := featureLines(queryLines)
	aText := joinedDescs(aLines)

	results := make([]scoredCandidate, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.FeatureConcurrency)
	for i := range candidates {
		cand := &candidates[i]
		slot := &results[i]
		g.Go(func() error {
			candLines, err := s.snapshots.LoadLines(gctx, cand.TenantID, cand.InvoiceID)
			if err != nil {
				return err
			}
			bLines := featureLines(candLines)

			vec := feature.Merge(
				feature.Header(query, cand),
				feature.LineAssign(aLines, bLines, weights),
				feature.Vector{"text_cosine": feature.TextCosine(aText, joinedDescs(bLines))},
			)

			*slot = scoredCandidate{
				invoice:  cand,
				dupProb:  s.scorer.PredictDupProb(vec),
				features: vec,
				textBlob: blobFromRaw(cand.RawJSON),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) persistOutcome(ctx context.Context, query *snapshotdomain.Invoice, risk float64, final string, reasons []string, topMatches []domain.TopMatch, explanations []domain.Explanation, traceID string) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	matchesJSON, err := json.Marshal(topMatches)
	if err != nil {
		return err
	}
	explainJSON, err := json.Marshal(explanations)
	if err != nil {
		return err
	}

	rec := decision.Record{
		DecisionID:     "dec_" + s.node.Generate().String(),
		TenantID:       query.TenantID,
		InvoiceID:      query.InvoiceID,
		RiskScore:      risk,
		Decision:       final,
		ReasonCodes:    datatypes.JSON(reasonsJSON),
		TopMatches:     datatypes.JSON(matchesJSON),
		Explanations:   datatypes.JSON(explainJSON),
		ModelID:        s.scorer.ModelID(),
		ModelVersion:   s.scorer.ModelVersion(),
		RulesetVersion: rules.RulesetVersion,
		TraceID:        traceID,
		CreatedAt:      s.clock.Now(),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.decisions.Insert(ctx, tx, rec); err != nil {
			return err
		}

		var caseID string
		if final != decision.Pass {
			caseID, err = s.cases.Upsert(ctx, tx, query.TenantID, query.InvoiceID)
			if err != nil {
				return err
			}
		}

		meta := map[string]any{
			"decision_id": rec.DecisionID,
			"risk_score":  risk,
			"decision":    final,
			"reasons":     reasons,
			"trace_id":    traceID,
		}
		if caseID != "" {
			meta["case_id"] = caseID
		}
		return s.audit.Append(ctx, tx, auditdomain.Entry{
			TenantID:   query.TenantID,
			Action:     auditdomain.ActionScore,
			TargetType: "invoice",
			TargetID:   query.InvoiceID,
			Metadata:   meta,
		})
	})
}

func buildTopMatches(scored []scoredCandidate) []domain.TopMatch {
	matches := make([]domain.TopMatch, 0, 3)
	for _, sc := range scored {
		if len(matches) == 3 {
			break
		}
		matches = append(matches, domain.TopMatch{
			InvoiceID:  sc.invoice.InvoiceID,
			Similarity: sc.dupProb,
			Features:   map[string]float64(sc.features),
		})
	}
	return matches
}

// buildExplanations digests the strongest match's features in the canonical
// order.
func buildExplanations(scored []scoredCandidate) []domain.Explanation {
	explanations := make([]domain.Explanation, 0, len(dupmodel.FeatureOrder))
	if len(scored) == 0 {
		return explanations
	}
	top := scored[0]
	for _, name := range dupmodel.FeatureOrder {
		explanations = append(explanations, domain.Explanation{
			Feature: name,
			Value:   top.features[name],
		})
	}
	return explanations
}

func featureLines(lines []snapshotdomain.InvoiceLine) []feature.Line {
	out := make([]feature.Line, 0, len(lines))
	for _, line := range lines {
		qty, _ := line.Qty.Float64()
		unitPrice, _ := line.UnitPrice.Float64()
		amount, _ := line.Amount.Float64()
		out = append(out, feature.Line{
			DescNorm:  normalize.Desc(line.Description),
			Qty:       qty,
			UnitPrice: unitPrice,
			Amount:    amount,
		})
	}
	return out
}

func joinedDescs(lines []feature.Line) string {
	descs := make([]string, 0, len(lines))
	for _, line := range lines {
		descs = append(descs, line.DescNorm)
	}
	return strings.Join(descs, " ")
}

func textBlobFor(in domain.InvoiceIn) string {
	src := normalize.TextSource{
		VendorName: in.VendorName,
		PONumber:   deref(in.PONumber),
		Terms:      deref(in.Terms),
	}
	for _, item := range in.LineItems {
		src.LineSKUs = append(src.LineSKUs, deref(item.SKU))
		src.LineDescs = append(src.LineDescs, item.Desc)
	}
	return normalize.TextBlob(src)
}

func blobFromRaw(raw datatypes.JSON) string {
	var in domain.InvoiceIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return ""
	}
	return textBlobFor(in)
}

func dedupe(reasons []string) []string {
	out := make([]string, 0, len(reasons))
	seen := map[string]bool{}
	for _, reason := range reasons {
		if seen[reason] {
			continue
		}
		seen[reason] = true
		out = append(out, reason)
	}
	return out
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
