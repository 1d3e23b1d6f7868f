package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the account record the reconciliation handlers attribute payment
// events to. Accounts are created by the external session provider; this
// backend only looks them up (by email or Stripe customer id) and mutates
// their subscription fields.
type User struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Name                  string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email                 string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Status                string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	SubscriptionStatus    string         `gorm:"type:varchar(32);default:''" json:"subscription_status"`
	SubscriptionPlan      string         `gorm:"type:varchar(50);default:''" json:"subscription_plan"`
	StripeCustomerID      string         `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeSubscriptionID  string         `gorm:"type:varchar(191);default:''" json:"stripe_subscription_id"`
	SubscriptionStartDate *time.Time     `gorm:"type:timestamp;default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time     `gorm:"type:timestamp;default:null" json:"subscription_end_date,omitempty"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasActiveSubscription reports whether the user's mirrored subscription
// status currently entitles library-wide access. Grace statuses (trialing,
// past_due) count, matching Subscription.IsEntitling.
func (u *User) HasActiveSubscription() bool {
	s := Subscription{Status: u.SubscriptionStatus}
	return s.IsEntitling()
}

// IsActive reports whether the account itself is usable.
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}
