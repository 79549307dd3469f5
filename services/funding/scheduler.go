package funding

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundtrail/fundtrail/services/funding/ingestion"
	"github.com/google/uuid"
	"github.com/opengovern/og-util/pkg/ticker"
	"go.uber.org/zap"
	"golang.org/x/net/context"
)

const DefaultNASBORefreshInterval = 24 * time.Hour

// Scheduler enqueues a recurring NASBO refresh so the state expenditure
// figures stay current without a manual trigger.
type Scheduler struct {
	logger   *zap.Logger
	jq       JobsProducer
	interval time.Duration
}

func NewScheduler(logger *zap.Logger, q JobsProducer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultNASBORefreshInterval
	}
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		jq:       q,
		interval: interval,
	}
}

func (s *Scheduler) RunNASBORefresh(ctx context.Context) {
	s.logger.Info("Scheduling NASBO refresh on a timer", zap.Duration("interval", s.interval))

	t := ticker.NewTicker(s.interval, time.Second*10)
	defer t.Stop()

	for {
		if err := s.enqueueNASBORefresh(ctx); err != nil {
			s.logger.Error("failed to enqueue NASBO refresh", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) enqueueNASBORefresh(ctx context.Context) error {
	job := ingestion.Job{
		SessionID:  uuid.New().String(),
		Source:     ingestion.SourceNASBO,
		State:      "ALL",
		ExecutedAt: time.Now(),
	}
	bytes, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msgID := fmt.Sprintf("job-%s-%d", job.SessionID, job.ExecutedAt.UnixNano())
	if _, err := s.jq.Produce(ctx, ingestion.JobsQueueTopic, bytes, msgID); err != nil {
		return err
	}

	s.logger.Info("enqueued scheduled NASBO refresh", zap.String("session_id", job.SessionID))
	return nil
}
