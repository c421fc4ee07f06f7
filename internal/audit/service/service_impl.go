package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Append writes one trail entry inside the caller's transaction, or on the
// service's own connection when tx is nil. Actor and trace ID come from the
// request context.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if tx == nil {
		tx = s.db
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   entry.TenantID,
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(&entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}
	if actor := tenantctx.ActorFromContext(ctx); actor != "" && actor != "unknown" {
		actorType := "user"
		row.ActorType = actorType
		row.ActorID = &actor
	}
	if traceID := tenantctx.TraceIDFromContext(ctx); traceID != "" {
		row.TraceID = &traceID
	}

	if err := s.repo.Insert(ctx, tx, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	if filter.Limit <= 0 || filter.Limit > 250 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, s.db, filter)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
