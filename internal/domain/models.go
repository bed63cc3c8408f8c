// Package domain defines the persistence models for transactions, user
// insight profiles, and shown-insight records. These types are mapped with
// GORM and form the durable half of the insight engine's state; the
// ephemeral device cache lives in the cachestore package and never touches
// the database.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/insight"
)

// Transaction is one saved expense record. The insight engine consumes these
// as its history feed; rows are written once by the save flow and read-only
// afterwards.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner of the record; indexed for history scans.
//   - Date: purchase date as YYYY-MM-DD (kept as text, the feed's format).
//   - Time: optional HH:MM purchase time.
//   - Total: amount in integer cents.
//   - Items: line items, stored as a JSON column.
type Transaction struct {
	ID       string            `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID   string            `json:"user_id"  gorm:"type:varchar(64);not null;index:idx_user_txns"`
	Date     string            `json:"date"     gorm:"type:varchar(10);not null;index:idx_user_txns,priority:2"`
	Time     string            `json:"time,omitempty"     gorm:"type:varchar(8)"`
	Merchant string            `json:"merchant" gorm:"type:varchar(255);not null"`
	City     string            `json:"city,omitempty"     gorm:"type:varchar(128)"`
	Category string            `json:"category" gorm:"type:varchar(64);not null;index"`
	Total    int64             `json:"total"    gorm:"not null"`
	Items    []insight.Item    `json:"items,omitempty"    gorm:"serializer:json"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// Engine converts the row into the engine's plain value type.
func (t Transaction) Engine() insight.Transaction {
	return insight.Transaction{
		ID:       t.ID,
		Date:     t.Date,
		Time:     t.Time,
		Merchant: t.Merchant,
		City:     t.City,
		Category: t.Category,
		Total:    t.Total,
		Items:    t.Items,
	}
}

// InsightProfile is the durable, one-per-user half of the engine state: the
// phase anchor, the transaction counter, and (via InsightRecord rows) the
// cooldown history. Created lazily on a user's first generation; deleted
// only with the user's full data.
type InsightProfile struct {
	UserID        string `json:"user_id" gorm:"type:varchar(64);primaryKey"`
	SchemaVersion int    `json:"schema_version" gorm:"not null;default:1"`

	// FirstTransactionDate anchors phase detection; NULL means no
	// transaction yet.
	FirstTransactionDate *time.Time `json:"first_transaction_date,omitempty"`

	TotalTransactions int `json:"total_transactions" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for InsightProfile.
func (InsightProfile) TableName() string { return "insight_profiles" }

// InsightRecord marks one insight as shown to one user. Rows are
// append-only; the repository trims each user's history to the engine's
// bound on write, oldest first.
type InsightRecord struct {
	ID            string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_records,priority:1"`
	InsightID     string    `json:"insight_id" gorm:"type:varchar(64);not null;index"`
	ShownAt       time.Time `json:"shown_at"   gorm:"not null;index:idx_user_records,priority:2"`
	TransactionID string    `json:"transaction_id,omitempty" gorm:"type:char(36)"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for InsightRecord.
func (InsightRecord) TableName() string { return "insight_records" }

// Engine converts the row into the engine's plain record value.
func (r InsightRecord) Engine() insight.InsightRecord {
	return insight.InsightRecord{
		InsightID:     r.InsightID,
		ShownAt:       r.ShownAt,
		TransactionID: r.TransactionID,
	}
}
