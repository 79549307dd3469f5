package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	DoIngestionJobsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fundtrail",
		Subsystem: "ingest_worker",
		Name:      "do_ingestion_jobs_total",
		Help:      "Count of ingestion jobs by source in ingest-worker service",
	}, []string{"source", "status"})

	DoIngestionJobsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fundtrail",
		Subsystem: "ingest_worker",
		Name:      "do_ingestion_jobs_duration_seconds",
		Help:      "Duration of ingestion jobs by source in ingest-worker service",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"source", "status"})
)

// Job is the unit of work published to the ingestion jobs topic. Source is
// one of the SourceKind values; State narrows the pull to one state or to
// all states with "ALL" or empty.
type Job struct {
	SessionID  string     `json:"sessionId"`
	Source     SourceKind `json:"source"`
	State      string     `json:"state"`
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate"`
	ExecutedAt time.Time  `json:"executedAt"`
}

type JobResult struct {
	SessionID     string     `json:"sessionId"`
	Source        SourceKind `json:"source"`
	Status        string     `json:"status"`
	InsertedCount int        `json:"insertedCount"`
	SkippedCount  int        `json:"skippedCount"`
	Error         string     `json:"error,omitempty"`
}

type SourceKind string

const (
	SourceUSASpendingPrime SourceKind = "usaspending_prime"
	SourceUSASpendingSub   SourceKind = "usaspending_sub"
	SourceGrantsGov        SourceKind = "grantsgov"
	SourceNASBO            SourceKind = "nasbo"
)

func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(s)) {
	case SourceUSASpendingPrime:
		return SourceUSASpendingPrime, nil
	case SourceUSASpendingSub:
		return SourceUSASpendingSub, nil
	case SourceGrantsGov:
		return SourceGrantsGov, nil
	case SourceNASBO:
		return SourceNASBO, nil
	default:
		return "", fmt.Errorf("unknown ingestion source: %s", s)
	}
}

// SourceTag maps a source kind to the tag stored on funding records.
func (k SourceKind) SourceTag() string {
	switch k {
	case SourceUSASpendingPrime, SourceUSASpendingSub:
		return SourceTagUSASpending
	case SourceGrantsGov:
		return SourceTagGrantsGov
	case SourceNASBO:
		return SourceTagNASBO
	default:
		return string(k)
	}
}

// Do runs the job to completion and always returns a result, converting
// panics into failed results.
func (j Job) Do(ctx context.Context, pipeline *Pipeline, tracker *Tracker, logger *zap.Logger) (result JobResult) {
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("paniced with error", zap.Any("panic", r), zap.String("stack", errors.Wrap(r, 2).ErrorStack()))
			err := fmt.Errorf("ingestion job paniced: %v", r)
			tracker.Fail(ctx, err)
			result = j.failed(tracker, err)
			DoIngestionJobsDuration.WithLabelValues(string(j.Source), "failure").Observe(time.Since(startTime).Seconds())
			DoIngestionJobsCount.WithLabelValues(string(j.Source), "failure").Inc()
		}
	}()

	var err error
	switch j.Source {
	case SourceUSASpendingPrime:
		err = pipeline.IngestUSASpendingPrime(ctx, tracker, j.State, j.StartDate, j.EndDate)
	case SourceUSASpendingSub:
		err = pipeline.IngestUSASpendingSub(ctx, tracker, j.State, j.StartDate, j.EndDate)
	case SourceGrantsGov:
		err = pipeline.IngestGrantsGov(ctx, tracker, j.State, j.StartDate, j.EndDate)
	case SourceNASBO:
		err = pipeline.IngestNASBO(ctx, tracker, j.State)
	default:
		err = fmt.Errorf("unknown ingestion source: %s", j.Source)
	}

	if err != nil {
		tracker.Fail(ctx, err)
		DoIngestionJobsDuration.WithLabelValues(string(j.Source), "failure").Observe(time.Since(startTime).Seconds())
		DoIngestionJobsCount.WithLabelValues(string(j.Source), "failure").Inc()
		return j.failed(tracker, err)
	}

	tracker.Complete(ctx, "done")
	DoIngestionJobsDuration.WithLabelValues(string(j.Source), "successful").Observe(time.Since(startTime).Seconds())
	DoIngestionJobsCount.WithLabelValues(string(j.Source), "successful").Inc()
	return JobResult{
		SessionID:     tracker.SessionID(),
		Source:        j.Source,
		Status:        "SUCCEEDED",
		InsertedCount: tracker.session.InsertedCount,
		SkippedCount:  tracker.session.SkippedCount,
	}
}

func (j Job) failed(tracker *Tracker, err error) JobResult {
	return JobResult{
		SessionID:     tracker.SessionID(),
		Source:        j.Source,
		Status:        "FAILED",
		InsertedCount: tracker.session.InsertedCount,
		SkippedCount:  tracker.session.SkippedCount,
		Error:         err.Error(),
	}
}
