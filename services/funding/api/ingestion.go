package api

import (
	"time"

	"github.com/fundtrail/fundtrail/services/funding/db/models"
)

type TriggerIngestionRequest struct {
	State     string `json:"state" validate:"required"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type TriggerIngestionResponse struct {
	SessionID string `json:"sessionId"`
}

type ProgressSession struct {
	SessionID     string             `json:"sessionId"`
	Source        string             `json:"source"`
	StateFilter   string             `json:"stateFilter,omitempty"`
	Status        models.FetchStatus `json:"status"`
	CurrentPage   int                `json:"currentPage"`
	TotalPages    int                `json:"totalPages,omitempty"`
	InsertedCount int                `json:"insertedCount"`
	SkippedCount  int                `json:"skippedCount"`
	Message       string             `json:"message,omitempty"`
	RecentErrors  []string           `json:"recentErrors,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

type ListProgressSessionsResponse struct {
	Sessions []ProgressSession `json:"sessions"`
}

type ClearProgressResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}
