package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/google/uuid"
	"github.com/opengovern/og-util/pkg/jq"
	"go.uber.org/zap"
)

const maxRecentErrors = 5

// ProgressEvent is the payload pushed to the per-session progress topic.
type ProgressEvent struct {
	SessionID     string             `json:"sessionId"`
	Source        string             `json:"source"`
	Status        models.FetchStatus `json:"status"`
	CurrentPage   int                `json:"currentPage"`
	InsertedCount int                `json:"insertedCount"`
	SkippedCount  int                `json:"skippedCount"`
	Message       string             `json:"message"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Tracker maintains the persisted progress snapshot of one ingestion job
// and pushes progress events for live observers. The snapshot is the source
// of truth; event delivery is best effort and an observer that disconnects
// simply finds the terminal snapshot later.
type Tracker struct {
	logger *zap.Logger
	db     db.Database
	jq     *jq.JobQueue // nil disables push events

	session      *models.FetchProgressSession
	recentErrors []string
	eventSeq     int
}

// StartTracker creates (or replaces) the progress session for the given id
// and marks it running. An empty sessionID gets a generated one.
func StartTracker(ctx context.Context, logger *zap.Logger, database db.Database, q *jq.JobQueue, sessionID, source, stateFilter string) (*Tracker, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := &models.FetchProgressSession{
		SessionID:   sessionID,
		Source:      source,
		StateFilter: stateFilter,
		Status:      models.FetchStatusRunning,
		Message:     "starting",
	}
	if err := session.RecentErrors.Set([]string{}); err != nil {
		return nil, err
	}

	if err := database.ReplaceProgressSession(session); err != nil {
		return nil, fmt.Errorf("replace progress session: %w", err)
	}

	t := &Tracker{
		logger:  logger.Named("progress"),
		db:      database,
		jq:      q,
		session: session,
	}
	t.publish(ctx)
	return t, nil
}

func (t *Tracker) SessionID() string {
	return t.session.SessionID
}

// AdvancePage records that the job moved on to the given page. The stored
// page number never decreases.
func (t *Tracker) AdvancePage(ctx context.Context, page int, message string) {
	if page > t.session.CurrentPage {
		t.session.CurrentPage = page
	}
	t.session.Message = message
	t.flush(ctx)
}

func (t *Tracker) SetTotalPages(totalPages int) {
	t.session.TotalPages = totalPages
}

// RecordInserted and RecordSkipped only bump in-memory counters; they are
// persisted on the next page advance or terminal transition.
func (t *Tracker) RecordInserted() {
	t.session.InsertedCount++
}

func (t *Tracker) RecordSkipped() {
	t.session.SkippedCount++
}

// Error appends to the capped recent-error list; older errors are dropped.
func (t *Tracker) Error(ctx context.Context, message string) {
	t.recentErrors = append(t.recentErrors, message)
	if len(t.recentErrors) > maxRecentErrors {
		t.recentErrors = t.recentErrors[len(t.recentErrors)-maxRecentErrors:]
	}
	if err := t.session.RecentErrors.Set(t.recentErrors); err != nil {
		t.logger.Warn("failed to set recent errors", zap.Error(err))
	}
	t.flush(ctx)
}

func (t *Tracker) Complete(ctx context.Context, message string) {
	t.session.Status = models.FetchStatusCompleted
	t.session.Message = message
	t.flush(ctx)
}

func (t *Tracker) Fail(ctx context.Context, err error) {
	t.session.Status = models.FetchStatusFailed
	t.session.Message = err.Error()
	t.flush(ctx)
}

func (t *Tracker) flush(ctx context.Context) {
	if err := t.db.UpdateProgressSession(t.session); err != nil {
		t.logger.Warn("failed to update progress session", zap.String("session_id", t.session.SessionID), zap.Error(err))
	}
	t.publish(ctx)
}

func (t *Tracker) publish(ctx context.Context) {
	if t.jq == nil {
		return
	}

	event := ProgressEvent{
		SessionID:     t.session.SessionID,
		Source:        t.session.Source,
		Status:        t.session.Status,
		CurrentPage:   t.session.CurrentPage,
		InsertedCount: t.session.InsertedCount,
		SkippedCount:  t.session.SkippedCount,
		Message:       t.session.Message,
		Timestamp:     time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	t.eventSeq++
	topic := ProgressTopicPrefix + t.session.SessionID
	if _, err := t.jq.Produce(ctx, topic, data, fmt.Sprintf("progress-%s-%d", t.session.SessionID, t.eventSeq)); err != nil {
		t.logger.Warn("failed to publish progress event", zap.String("session_id", t.session.SessionID), zap.Error(err))
	}
}
