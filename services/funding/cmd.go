package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundtrail/fundtrail/pkg/classifier"
	"github.com/fundtrail/fundtrail/pkg/httpserver"
	"github.com/fundtrail/fundtrail/pkg/postgres"
	"github.com/fundtrail/fundtrail/pkg/sources"
	"github.com/fundtrail/fundtrail/services/funding/config"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/discovery"
	"github.com/fundtrail/fundtrail/services/funding/ingestion"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/opengovern/og-util/pkg/jq"
	koanfPkg "github.com/opengovern/og-util/pkg/koanf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// GrantTypeSeed maps USAspending assistance award type codes to names.
var GrantTypeSeed = map[string]string{
	"02": "Block Grant",
	"03": "Formula Grant",
	"04": "Project Grant",
	"05": "Cooperative Agreement",
}

func Command() *cobra.Command {
	return &cobra.Command{
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return start(cmd.Context())
		},
	}
}

func start(ctx context.Context) error {
	cnf := koanfPkg.Provide("funding", config.Config{})

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}
	logger = logger.Named("funding")

	orm, err := postgres.NewClient(&postgres.Config{
		Host:    cnf.Postgres.Host,
		Port:    cnf.Postgres.Port,
		User:    cnf.Postgres.Username,
		Passwd:  cnf.Postgres.Password,
		DB:      cnf.Postgres.DB,
		SSLMode: cnf.Postgres.SSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("new postgres client: %w", err)
	}

	database := db.Database{Orm: orm}
	if err := database.Initialize(); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	cls, err := classifier.New()
	if err != nil {
		return fmt.Errorf("load classifier rules: %w", err)
	}
	if err := database.SeedVerticals(cls.Verticals()); err != nil {
		return fmt.Errorf("seed verticals: %w", err)
	}
	if err := database.SeedGrantTypes(GrantTypeSeed); err != nil {
		return fmt.Errorf("seed grant types: %w", err)
	}

	q, err := jq.New(cnf.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("new job queue: %w", err)
	}
	if err := q.Stream(ctx, ingestion.StreamName, "funding ingestion job queue", []string{
		ingestion.JobsQueueTopic, ingestion.ResultsQueueTopic, ingestion.ProgressTopicWildcard,
	}, 1000); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	if err := consumeJobResults(ctx, logger, q); err != nil {
		return fmt.Errorf("consume job results: %w", err)
	}

	scheduler := NewScheduler(logger, q, time.Duration(cnf.NASBORefreshIntervalHours)*time.Hour)
	go scheduler.RunNASBORefresh(ctx)

	orchestrator := discovery.NewOrchestrator(
		logger,
		sources.NewSAMGovClient(cnf.SAMGovBaseURL, cnf.SAMGovAPIKey, logger),
		sources.NewGrantsGovClient(cnf.GrantsGovBaseURL, logger),
		sources.NewUSASpendingClient(cnf.USASpendingBaseURL, logger),
	)

	handler := NewHttpHandler(
		logger,
		database,
		q,
		orchestrator,
		sources.NewNIHReporterClient(cnf.NIHReporterBaseURL, logger),
		sources.NewNSFClient(cnf.NSFBaseURL, logger),
	)

	return httpserver.RegisterAndStart(ctx, logger, cnf.Http.Address, handler)
}

// consumeJobResults logs the terminal outcome of ingestion jobs; the
// authoritative state already lives in the progress snapshot table.
func consumeJobResults(ctx context.Context, logger *zap.Logger, q *jq.JobQueue) error {
	consumeCtx, err := q.Consume(
		ctx,
		"funding-service",
		ingestion.StreamName,
		[]string{ingestion.ResultsQueueTopic},
		"funding-service",
		func(msg jetstream.Msg) {
			var result ingestion.JobResult
			if err := json.Unmarshal(msg.Data(), &result); err != nil {
				logger.Error("failed to unmarshal job result", zap.Error(err))
			} else {
				logger.Info("ingestion job finished",
					zap.String("session_id", result.SessionID),
					zap.String("source", string(result.Source)),
					zap.String("status", result.Status),
					zap.Int("inserted", result.InsertedCount),
					zap.Int("skipped", result.SkippedCount),
					zap.String("error", result.Error))
			}

			if err := msg.Ack(); err != nil {
				logger.Error("failed to ack the message", zap.Error(err))
			}
		},
	)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Drain()
		consumeCtx.Stop()
	}()

	return nil
}
