package payments

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/liquidsnips/liquidsnips/app/models"
)

// Store provides the entitlement-store operations used by the reconciliation
// handlers. Idempotency rests on the schema's unique indexes, not locking:
// conflict-ignoring inserts make the losing writer of a redelivery race a
// benign no-op. Every call is bounded by the request context.
type Store interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	PurchaseExists(ctx context.Context, sessionID string) (bool, error)
	// CreatePurchase inserts the purchase unless a row for its session id
	// already exists; it reports whether a row was actually created.
	CreatePurchase(ctx context.Context, purchase *models.Purchase) (bool, error)

	HasAccess(ctx context.Context, userID uint, snippetID string) (bool, error)
	// GrantAccess inserts the given grants, silently skipping pairs that are
	// already granted, and returns the number of new rows.
	GrantAccess(ctx context.Context, grants ...models.SnippetAccess) (int64, error)
	AccessSnippetIDs(ctx context.Context, userID uint) ([]string, error)

	// UpsertSubscription writes the subscription keyed by its Stripe id,
	// updating only the named columns on conflict (last-write-wins per
	// field; callers decide which fields the event actually carries).
	UpsertSubscription(ctx context.Context, sub *models.Subscription, columns ...string) error

	RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, eventID uint, processingErr error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates an entitlement store backed by GORM. The DB handle is
// injected; its lifecycle belongs to the process entry point.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) UserByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) SaveUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *gormStore) PurchaseExists(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("stripe_session_id = ?", sessionID).Count(&count).Error
	return count > 0, err
}

func (s *gormStore) CreatePurchase(ctx context.Context, purchase *models.Purchase) (bool, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_session_id"}},
		DoNothing: true,
	}).Create(purchase)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) HasAccess(ctx context.Context, userID uint, snippetID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.SnippetAccess{}).
		Where("user_id = ? AND snippet_id = ?", userID, snippetID).Count(&count).Error
	return count > 0, err
}

func (s *gormStore) GrantAccess(ctx context.Context, grants ...models.SnippetAccess) (int64, error) {
	if len(grants) == 0 {
		return 0, nil
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "snippet_id"},
		},
		DoNothing: true,
	}).Create(&grants)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

func (s *gormStore) AccessSnippetIDs(ctx context.Context, userID uint) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.SnippetAccess{}).
		Where("user_id = ?", userID).Pluck("snippet_id", &ids).Error
	return ids, err
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *models.Subscription, columns ...string) error {
	assign := append([]string(nil), columns...)
	assign = append(assign, "updated_at")

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return s.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

func (s *gormStore) RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := s.db.WithContext(ctx).
		Where("stripe_event_id = ?", event.StripeEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) MarkEventProcessed(ctx context.Context, eventID uint, processingErr error) error {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	}
	return s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", eventID).Updates(updates).Error
}
