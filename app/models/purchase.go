package models

import "time"

const (
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase records a one-off snippet purchase. The Stripe checkout session id
// is the idempotency key: the unique index guarantees at most one row per
// originating session even when the webhook is redelivered concurrently.
// Rows are insert-only and never updated after creation.
type Purchase struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	SnippetID       string    `gorm:"type:varchar(191);not null;index" json:"snippet_id"`
	Amount          float64   `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	StripeSessionID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_purchases_stripe_session_id" json:"stripe_session_id"`
	Status          string    `gorm:"type:varchar(32);not null;default:'completed'" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
