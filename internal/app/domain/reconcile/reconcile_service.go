package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
	"github.com/FACorreiaa/loci-routes/internal/pkg/events"
)

// Report is the outcome of one reconciliation pass.
type Report struct {
	Released  int64         `json:"released"`
	Reclaimed int64         `json:"reclaimed"`
	Duration  time.Duration `json:"duration"`
}

func (r Report) Repairs() int64 { return r.Released + r.Reclaimed }

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Run(ctx context.Context) (Report, error)
	Start(ctx context.Context, interval time.Duration)
}

type ServiceImpl struct {
	logger    *zap.Logger
	repo      Repository
	publisher events.Publisher
}

func NewService(repo Repository, publisher events.Publisher, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
	}
}

// Run repairs pin consumption against the routes that exist now. Both
// statements are idempotent, so a pass can be repeated safely.
func (s *ServiceImpl) Run(ctx context.Context) (Report, error) {
	ctx, span := otel.Tracer("ReconcileService").Start(ctx, "Run")
	defer span.End()

	l := s.logger.With(zap.String("method", "Run"))
	start := time.Now()
	var report Report

	released, err := s.repo.ReleaseOrphanedPins(ctx)
	if err != nil {
		l.Error("Failed to release orphaned pins", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Released = released

	reclaimed, err := s.repo.ReclaimRoutePins(ctx)
	if err != nil {
		l.Error("Failed to reclaim route pins", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reclaim failed")
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Reclaimed = reclaimed
	report.Duration = time.Since(start)

	m := metrics.Get()
	m.ReconcileRepairsTotal.Add(ctx, released, metric.WithAttributes(attribute.String("repair", "released")))
	m.ReconcileRepairsTotal.Add(ctx, reclaimed, metric.WithAttributes(attribute.String("repair", "reclaimed")))
	span.SetAttributes(
		attribute.Int64("pins.released", released),
		attribute.Int64("pins.reclaimed", reclaimed),
	)

	if report.Repairs() > 0 {
		l.Info("Reconciliation repaired pins",
			zap.Int64("released", released),
			zap.Int64("reclaimed", reclaimed),
			zap.Duration("duration", report.Duration))

		event := events.NewEvent(events.ReconcileCompleted)
		event.Detail = map[string]any{"released": released, "reclaimed": reclaimed}
		if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
			l.Warn("Failed to publish reconcile event", zap.Error(err))
		}
	} else {
		l.Debug("Reconciliation found nothing to repair")
	}

	span.SetStatus(codes.Ok, "reconciled")
	return report, nil
}

// Start runs Run every interval until ctx is done. It blocks.
func (s *ServiceImpl) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("Reconciliation job disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("Reconciliation job started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation job stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Reconciliation pass failed", zap.Error(err))
			}
		}
	}
}
