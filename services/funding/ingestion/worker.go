package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fundtrail/fundtrail/pkg/classifier"
	"github.com/fundtrail/fundtrail/pkg/postgres"
	"github.com/fundtrail/fundtrail/pkg/sources"
	"github.com/fundtrail/fundtrail/services/funding/config"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/opengovern/og-util/pkg/jq"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

type Worker struct {
	id       string
	jq       *jq.JobQueue
	logger   *zap.Logger
	db       db.Database
	pipeline *Pipeline
	pusher   *push.Pusher
}

func NewWorker(ctx context.Context, id string, logger *zap.Logger, cnf config.WorkerConfig) (w *Worker, err error) {
	if id == "" {
		return nil, fmt.Errorf("'id' must be set to a non empty string")
	}

	w = &Worker{id: id, logger: logger}

	q, err := jq.New(cnf.NATS.URL, logger)
	if err != nil {
		return nil, err
	}
	if err := q.Stream(ctx, StreamName, "funding ingestion job queue", []string{
		JobsQueueTopic, ResultsQueueTopic, ProgressTopicWildcard,
	}, 1000); err != nil {
		return nil, err
	}
	w.jq = q

	orm, err := postgres.NewClient(&postgres.Config{
		Host:    cnf.Postgres.Host,
		Port:    cnf.Postgres.Port,
		User:    cnf.Postgres.Username,
		Passwd:  cnf.Postgres.Password,
		DB:      cnf.Postgres.DB,
		SSLMode: cnf.Postgres.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("new postgres client: %w", err)
	}
	w.db = db.Database{Orm: orm}

	cls, err := classifier.New()
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}

	w.pipeline = NewPipeline(
		logger,
		w.db,
		cls,
		sources.NewUSASpendingClient(cnf.USASpendingBaseURL, logger),
		sources.NewGrantsGovClient(cnf.GrantsGovBaseURL, logger),
	)

	if cnf.PrometheusPushAddress != "" {
		w.pusher = push.New(cnf.PrometheusPushAddress, "ingest-worker")
		w.pusher.Collector(DoIngestionJobsCount).
			Collector(DoIngestionJobsDuration)
	}

	return w, nil
}

func (w *Worker) Run(ctx context.Context) error {
	consumeCtx, err := w.jq.Consume(
		ctx,
		"funding-ingestion",
		StreamName,
		[]string{JobsQueueTopic},
		ConsumerGroup,
		func(msg jetstream.Msg) {
			var job Job
			if err := json.Unmarshal(msg.Data(), &job); err != nil {
				w.logger.Error("Failed to unmarshal job", zap.Error(err))

				// sending ack for message because we cannot do anything
				// more by repeating the process.
				if err = msg.Ack(); err != nil {
					w.logger.Error("Failed to ack the message", zap.Error(err))
				}

				return
			}

			w.logger.Info("Processing job",
				zap.String("sessionId", job.SessionID),
				zap.String("source", string(job.Source)))

			result := w.runJob(ctx, job)

			bytes, err := json.Marshal(result)
			if err != nil {
				return
			}

			if _, err := w.jq.Produce(ctx, ResultsQueueTopic, bytes, fmt.Sprintf("job-result-%s", result.SessionID)); err != nil {
				w.logger.Error("Failed to send results to queue", zap.Error(err))
			}

			if err := msg.Ack(); err != nil {
				w.logger.Error("Failed to ack the message", zap.Error(err))
			}

			if w.pusher != nil {
				if err := w.pusher.Push(); err != nil {
					w.logger.Error("Failed to push metrics", zap.Error(err))
				}
			}
		},
	)
	if err != nil {
		return err
	}

	w.logger.Info("Waiting indefinitely for messages. To exit press CTRL+C")
	<-ctx.Done()
	consumeCtx.Drain()
	consumeCtx.Stop()

	return nil
}

func (w *Worker) runJob(ctx context.Context, job Job) JobResult {
	// Source crosses the wire as a free-form string; normalize it before
	// any progress row is written under its tag.
	source, err := ParseSourceKind(string(job.Source))
	if err != nil {
		w.logger.Error("Rejecting job with unknown source",
			zap.String("sessionId", job.SessionID),
			zap.String("source", string(job.Source)))
		return JobResult{
			SessionID: job.SessionID,
			Source:    job.Source,
			Status:    "FAILED",
			Error:     err.Error(),
		}
	}
	job.Source = source

	tracker, err := StartTracker(ctx, w.logger, w.db, w.jq, job.SessionID, job.Source.SourceTag(), job.State)
	if err != nil {
		w.logger.Error("Failed to start progress tracker", zap.Error(err))
		return JobResult{
			SessionID: job.SessionID,
			Source:    job.Source,
			Status:    "FAILED",
			Error:     err.Error(),
		}
	}

	return job.Do(ctx, w.pipeline, tracker, w.logger)
}

func (w *Worker) Stop() {
	if w.pusher != nil {
		w.pusher.Push()
	}
}
