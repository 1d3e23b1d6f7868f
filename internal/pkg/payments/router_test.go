package payments

import (
	"context"
	"testing"
	"time"

	"github.com/liquidsnips/liquidsnips/app/models"
)

func TestDispatch_UnknownKindIsAcknowledged(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{Email: "a@b.com", StripeCustomerID: "cus_1"})
	router := NewRouter(NewReconciler(store, &fakeCatalog{ids: []string{"mega-menu"}}))

	ev := &Event{ID: "evt_unknown_1", Kind: KindUnknown, RawKind: "payment_intent.succeeded"}
	if err := router.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("unknown kind must be acknowledged, got %v", err)
	}
	if len(store.purchases) != 0 || len(store.accesses) != 0 || len(store.subscriptions) != 0 {
		t.Fatalf("unknown kind must not mutate the store")
	}
}

func TestDispatch_RoutesByKind(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{Email: "a@b.com", StripeCustomerID: "cus_1"})
	router := NewRouter(NewReconciler(store, &fakeCatalog{}))

	ev := &Event{ID: "evt_route_1", Kind: KindSubscriptionDeleted, Subscription: &SubscriptionPayload{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         models.SubscriptionStatusCanceled,
	}}
	if err := router.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.subscriptions["sub_1"] == nil {
		t.Fatalf("expected the deletion handler to run")
	}
}

func TestShouldProcess(t *testing.T) {
	now := time.Now()

	if !ShouldProcess(true, &models.WebhookEvent{}) {
		t.Fatalf("freshly recorded events must be processed")
	}
	if !ShouldProcess(false, &models.WebhookEvent{}) {
		t.Fatalf("redelivery of a never-stamped row must be processed")
	}
	if !ShouldProcess(false, &models.WebhookEvent{ProcessedAt: &now, ProcessingError: "context deadline exceeded"}) {
		t.Fatalf("redelivery after a recorded failure must be processed")
	}
	if ShouldProcess(false, &models.WebhookEvent{ProcessedAt: &now}) {
		t.Fatalf("cleanly processed events must not run twice")
	}
}

// failingOnceStore makes the first user lookup time out, simulating a
// transient store failure during the first delivery.
type failingOnceStore struct {
	*memStore
	failed bool
}

func (s *failingOnceStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if !s.failed {
		s.failed = true
		return nil, context.DeadlineExceeded
	}
	return s.memStore.UserByEmail(ctx, email)
}

func TestRedeliveryAfterFailureIsReprocessed(t *testing.T) {
	inner := newMemStore()
	inner.addUser(models.User{Email: "a@b.com"})
	store := &failingOnceStore{memStore: inner}
	router := NewRouter(NewReconciler(store, &fakeCatalog{}))
	ctx := context.Background()

	ev := checkoutEvent(CheckoutPayload{
		SessionID:   "cs_retry_1",
		Mode:        "payment",
		AmountTotal: 2900,
		Email:       "a@b.com",
		SnippetID:   "mega-menu",
	})
	deliver := func() error {
		created, stored, err := store.RecordEvent(ctx, &models.WebhookEvent{
			StripeEventID: ev.ID,
			EventType:     ev.RawKind,
		})
		if err != nil {
			t.Fatalf("record event: %v", err)
		}
		if !ShouldProcess(created, stored) {
			return nil
		}
		processErr := router.Dispatch(ctx, ev)
		if err := store.MarkEventProcessed(ctx, stored.ID, processErr); err != nil {
			t.Fatalf("mark processed: %v", err)
		}
		return processErr
	}

	// First delivery fails on a store timeout and is answered non-2xx, so
	// the provider redelivers the same event id.
	if err := deliver(); err == nil {
		t.Fatalf("expected the first delivery to fail")
	}
	if len(inner.purchases) != 0 {
		t.Fatalf("failed delivery must not record a purchase")
	}

	if err := deliver(); err != nil {
		t.Fatalf("redelivery must succeed, got %v", err)
	}
	if len(inner.purchases) != 1 || len(inner.accesses) != 1 {
		t.Fatalf("redelivery must apply the purchase, got %d purchases %d grants",
			len(inner.purchases), len(inner.accesses))
	}

	// A third delivery of the now-processed event is a pure duplicate.
	if err := deliver(); err != nil {
		t.Fatalf("duplicate delivery must be acknowledged, got %v", err)
	}
	if len(inner.purchases) != 1 || len(inner.accesses) != 1 {
		t.Fatalf("duplicate delivery must not mutate the store")
	}
}
