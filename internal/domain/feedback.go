package domain

import "time"

// InsightFeedback stores a user's rating of one shown insight. Value is -1
// or +1. The unique index enforces at most one rating per shown insight.
type InsightFeedback struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_user_insight_txn,priority:1"`
	InsightID     string    `json:"insight_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_user_insight_txn,priority:2"`
	TransactionID string    `json:"transaction_id" gorm:"type:char(36);not null;uniqueIndex:ux_user_insight_txn,priority:3"`
	Value         int       `json:"value"          gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for InsightFeedback.
func (InsightFeedback) TableName() string { return "insight_feedback" }
