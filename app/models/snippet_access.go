package models

import "time"

const (
	AccessTypePurchase     = "purchase"
	AccessTypeSubscription = "subscription"
)

// SnippetAccess is an entitlement: the user may view and copy the snippet's
// full code. At most one row exists per (user, snippet) pair regardless of
// how the grant originated or how often the granting event is redelivered.
// A purchase-reason grant is never downgraded to a subscription grant.
type SnippetAccess struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:ux_snippet_accesses_user_snippet,priority:1" json:"user_id"`
	SnippetID  string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_snippet_accesses_user_snippet,priority:2" json:"snippet_id"`
	AccessType string    `gorm:"type:varchar(32);not null;default:'purchase'" json:"access_type"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
