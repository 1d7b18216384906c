package models

import "time"

// SubmissionOutcome summarises how a daily entry write ended.
type SubmissionOutcome string

const (
	OutcomeSuccess  SubmissionOutcome = "success"
	OutcomeConflict SubmissionOutcome = "conflict"
	OutcomeRejected SubmissionOutcome = "rejected"
	OutcomeUnknown  SubmissionOutcome = "unknown"
)

// SubmissionRecord is one journaled write against the daily entry store.
type SubmissionRecord struct {
	ID          string            `bson:"_id" json:"id"`
	LotID       string            `bson:"lot_id" json:"lot_id"`
	Date        string            `bson:"date" json:"date"`
	Metric      MetricKind        `bson:"metric" json:"metric"`
	Mode        string            `bson:"mode" json:"mode"`
	Outcome     SubmissionOutcome `bson:"outcome" json:"outcome"`
	Message     string            `bson:"message,omitempty" json:"message,omitempty"`
	ErrorCode   string            `bson:"error_code,omitempty" json:"error_code,omitempty"`
	FeedStockID string            `bson:"feed_stock_id,omitempty" json:"feed_stock_id,omitempty"`
	Body        map[string]any    `bson:"body" json:"body"`
	Source      string            `bson:"source,omitempty" json:"source,omitempty"`
	SubmittedAt time.Time         `bson:"submitted_at" json:"submitted_at"`
}
