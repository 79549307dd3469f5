package funding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fundtrail/fundtrail/services/funding/ingestion"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureProducer struct {
	mu  sync.Mutex
	err error

	topics   []string
	ids      []string
	payloads [][]byte
}

func (p *captureProducer) Produce(_ context.Context, topic string, data []byte, id string) (*uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.topics = append(p.topics, topic)
	p.ids = append(p.ids, id)
	p.payloads = append(p.payloads, data)
	seq := uint64(len(p.ids))
	return &seq, nil
}

func (p *captureProducer) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

func TestSchedulerEnqueuesNASBORefresh(t *testing.T) {
	producer := &captureProducer{}
	scheduler := NewScheduler(zap.NewNop(), producer, time.Hour)

	require.NoError(t, scheduler.enqueueNASBORefresh(context.Background()))
	require.NoError(t, scheduler.enqueueNASBORefresh(context.Background()))

	require.Equal(t, 2, producer.calls())
	require.Equal(t, ingestion.JobsQueueTopic, producer.topics[0])
	require.NotEqual(t, producer.ids[0], producer.ids[1])

	var job ingestion.Job
	require.NoError(t, json.Unmarshal(producer.payloads[0], &job))
	require.Equal(t, ingestion.SourceNASBO, job.Source)
	require.Equal(t, "ALL", job.State)
	require.NotEmpty(t, job.SessionID)

	var second ingestion.Job
	require.NoError(t, json.Unmarshal(producer.payloads[1], &second))
	require.NotEqual(t, job.SessionID, second.SessionID)
}

func TestSchedulerEnqueueError(t *testing.T) {
	producer := &captureProducer{err: errors.New("nats: no response from stream")}
	scheduler := NewScheduler(zap.NewNop(), producer, time.Hour)

	require.Error(t, scheduler.enqueueNASBORefresh(context.Background()))
}

func TestSchedulerRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	producer := &captureProducer{}
	scheduler := NewScheduler(zap.NewNop(), producer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.RunNASBORefresh(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return producer.calls() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	scheduler := NewScheduler(zap.NewNop(), &captureProducer{}, 0)
	require.Equal(t, DefaultNASBORefreshInterval, scheduler.interval)
}
