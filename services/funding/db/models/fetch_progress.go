package models

import (
	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

type FetchStatus string

const (
	FetchStatusRunning   FetchStatus = "RUNNING"
	FetchStatusCompleted FetchStatus = "COMPLETED"
	FetchStatusFailed    FetchStatus = "FAILED"
)

// FetchProgressSession is the persisted snapshot of a background ingestion
// job, keyed by a generated session identifier. Status only ever moves
// RUNNING -> COMPLETED or RUNNING -> FAILED, and CurrentPage never
// decreases within a session.
type FetchProgressSession struct {
	gorm.Model

	SessionID   string      `json:"sessionId" gorm:"uniqueIndex"`
	Source      string      `json:"source"`
	StateFilter string      `json:"stateFilter"`
	Status      FetchStatus `json:"status"`

	CurrentPage   int    `json:"currentPage"`
	TotalPages    int    `json:"totalPages"`
	InsertedCount int    `json:"insertedCount"`
	SkippedCount  int    `json:"skippedCount"`
	Message       string `json:"message"`

	// RecentErrors holds at most the five newest error strings.
	RecentErrors pgtype.JSONB `json:"recentErrors" gorm:"type:jsonb"`
}
