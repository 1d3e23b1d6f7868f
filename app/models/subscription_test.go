package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionIsEntitling(t *testing.T) {
	entitling := []string{
		SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
	}
	for _, status := range entitling {
		s := &Subscription{Status: status}
		assert.True(t, s.IsEntitling(), "status %q should entitle", status)
	}

	notEntitling := []string{
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusUnpaid,
		"",
		"something_else",
	}
	for _, status := range notEntitling {
		s := &Subscription{Status: status}
		assert.False(t, s.IsEntitling(), "status %q should not entitle", status)
	}
}

func TestUserHasActiveSubscription(t *testing.T) {
	assert.True(t, (&User{SubscriptionStatus: SubscriptionStatusActive}).HasActiveSubscription())
	assert.True(t, (&User{SubscriptionStatus: SubscriptionStatusTrialing}).HasActiveSubscription())
	assert.True(t, (&User{SubscriptionStatus: SubscriptionStatusPastDue}).HasActiveSubscription())
	assert.False(t, (&User{SubscriptionStatus: SubscriptionStatusCanceled}).HasActiveSubscription())
	assert.False(t, (&User{}).HasActiveSubscription())
}

func TestUserValidate(t *testing.T) {
	valid := &User{Email: "a@b.com", Status: STATUS_ACTIVE}
	assert.NoError(t, valid.Validate())

	invalid := &User{Email: "not-an-email", Status: STATUS_ACTIVE}
	assert.Error(t, invalid.Validate())
}
