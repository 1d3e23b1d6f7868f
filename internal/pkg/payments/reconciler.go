package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/liquidsnips/liquidsnips/app/models"
)

// CatalogService is the read-only catalog collaborator. The reconciler only
// needs to enumerate published snippets when activating a subscription.
type CatalogService interface {
	PublishedSnippetIDs(ctx context.Context) ([]string, error)
}

// Reconciler converts verified payment events into entitlement-store state.
// Handlers are idempotent against redelivery: every mutation is guarded by a
// store-level uniqueness key (session id, subscription id, user+snippet).
//
// Failure policy: an event that cannot be attributed (missing email, unknown
// user) is logged and acknowledged so the provider does not retry a
// permanent condition forever. Store write failures are logged and recorded
// but still acknowledged; only context timeouts propagate, turning into a
// non-2xx response that triggers the provider's own retry.
type Reconciler struct {
	store   Store
	catalog CatalogService
}

func NewReconciler(store Store, catalog CatalogService) *Reconciler {
	return &Reconciler{store: store, catalog: catalog}
}

// fatal reports whether an error must fail the acknowledgment instead of
// being swallowed. Timeouts are retryable by the provider; everything else
// would retry forever without changing the outcome.
func fatal(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// HandleCheckoutCompleted reconciles a completed checkout session. One
// session can carry a one-off snippet purchase, a subscription activation,
// or both; the branches run independently, as the metadata dictates.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, ev *Event) error {
	co := ev.Checkout
	if co == nil {
		log.Printf("checkout event %s has no payload, ignoring", ev.ID)
		return nil
	}

	if co.Email == "" {
		// Cannot map the payment to an account. Acknowledge anyway;
		// redelivery would not change anything.
		log.Printf("checkout session %s has no resolvable customer email, skipping", co.SessionID)
		return nil
	}

	user, err := r.store.UserByEmail(ctx, co.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("no user for email %s, skipping checkout session %s", co.Email, co.SessionID)
			return nil
		}
		return err
	}

	if co.SnippetID != "" {
		if err := r.reconcilePurchase(ctx, user, co); err != nil {
			return err
		}
	}
	if co.Plan != "" {
		if err := r.reconcileActivation(ctx, user, co); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) reconcilePurchase(ctx context.Context, user *models.User, co *CheckoutPayload) error {
	exists, err := r.store.PurchaseExists(ctx, co.SessionID)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("purchase already recorded for session %s", co.SessionID)
		return nil
	}

	purchase := &models.Purchase{
		UserID:          user.ID,
		SnippetID:       co.SnippetID,
		Amount:          majorUnits(co.AmountTotal),
		StripeSessionID: co.SessionID,
		Status:          models.PurchaseStatusCompleted,
	}
	if _, err := r.store.CreatePurchase(ctx, purchase); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error inserting purchase for session %s: %v", co.SessionID, err)
	}

	granted, err := r.store.GrantAccess(ctx, models.SnippetAccess{
		UserID:     user.ID,
		SnippetID:  co.SnippetID,
		AccessType: models.AccessTypePurchase,
	})
	if err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error granting access to snippet %s for user %d: %v", co.SnippetID, user.ID, err)
		return nil
	}
	if granted == 0 {
		log.Printf("user %d already has access to snippet %s", user.ID, co.SnippetID)
	}
	return nil
}

func (r *Reconciler) reconcileActivation(ctx context.Context, user *models.User, co *CheckoutPayload) error {
	if co.SubscriptionID != "" && user.StripeSubscriptionID == co.SubscriptionID {
		log.Printf("subscription %s already processed for user %d", co.SubscriptionID, user.ID)
		return nil
	}

	now := time.Now()
	user.SubscriptionStatus = models.SubscriptionStatusActive
	user.SubscriptionPlan = co.Plan
	user.StripeSubscriptionID = co.SubscriptionID
	user.StripeCustomerID = co.CustomerID
	user.SubscriptionStartDate = &now
	if err := r.store.SaveUser(ctx, user); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error updating subscription fields for user %d: %v", user.ID, err)
	}

	published, err := r.catalog.PublishedSnippetIDs(ctx)
	if err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error listing published snippets: %v", err)
		return nil
	}
	existing, err := r.store.AccessSnippetIDs(ctx, user.ID)
	if err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error listing access rows for user %d: %v", user.ID, err)
		return nil
	}

	missing := missingSnippetIDs(published, existing)
	if len(missing) == 0 {
		log.Printf("user %d already has access to all published snippets", user.ID)
		return nil
	}

	grants := make([]models.SnippetAccess, 0, len(missing))
	for _, id := range missing {
		grants = append(grants, models.SnippetAccess{
			UserID:     user.ID,
			SnippetID:  id,
			AccessType: models.AccessTypeSubscription,
		})
	}
	granted, err := r.store.GrantAccess(ctx, grants...)
	if err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error granting subscription access for user %d: %v", user.ID, err)
		return nil
	}
	log.Printf("granted subscription access to %d snippets for user %d", granted, user.ID)
	return nil
}

// HandleInvoicePaid reconciles a recurring renewal. Renewals never re-trigger
// the checkout-completion path, so this is the only place that extends the
// current period for an existing subscription.
func (r *Reconciler) HandleInvoicePaid(ctx context.Context, ev *Event) error {
	inv := ev.Invoice
	if inv == nil || inv.SubscriptionID == "" {
		log.Printf("invoice event %s carries no subscription id, ignoring", ev.ID)
		return nil
	}

	user, err := r.store.UserByCustomerID(ctx, inv.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("no user for customer %s, skipping invoice %s", inv.CustomerID, inv.InvoiceID)
			return nil
		}
		return err
	}

	sub := &models.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: inv.SubscriptionID,
		StripeCustomerID:     inv.CustomerID,
		Status:               models.SubscriptionStatusActive,
		CurrentPeriodEnd:     inv.PeriodEnd,
	}
	if err := r.store.UpsertSubscription(ctx, sub,
		"user_id", "stripe_customer_id", "status", "current_period_end"); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error upserting subscription %s: %v", inv.SubscriptionID, err)
	}

	user.SubscriptionStatus = models.SubscriptionStatusActive
	if err := r.store.SaveUser(ctx, user); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error updating subscription status for user %d: %v", user.ID, err)
	}
	return nil
}

// HandleSubscriptionUpdated applies the event's full subscription snapshot.
// Out-of-order deliveries leave the record reflecting the last-processed
// event, not the chronologically latest; there is deliberately no
// timestamp-based conflict resolution.
func (r *Reconciler) HandleSubscriptionUpdated(ctx context.Context, ev *Event) error {
	sp := ev.Subscription
	if sp == nil || sp.SubscriptionID == "" {
		log.Printf("subscription event %s carries no subscription id, ignoring", ev.ID)
		return nil
	}

	user, err := r.store.UserByCustomerID(ctx, sp.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("no user for customer %s, skipping subscription %s update", sp.CustomerID, sp.SubscriptionID)
			return nil
		}
		return err
	}

	sub := &models.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: sp.SubscriptionID,
		StripeCustomerID:     sp.CustomerID,
		Status:               sp.Status,
		PriceID:              sp.PriceID,
		Plan:                 sp.Interval,
		CurrentPeriodStart:   sp.CurrentPeriodStart,
		CurrentPeriodEnd:     sp.CurrentPeriodEnd,
	}
	if err := r.store.UpsertSubscription(ctx, sub,
		"user_id", "stripe_customer_id", "status", "price_id", "plan",
		"current_period_start", "current_period_end"); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error upserting subscription %s: %v", sp.SubscriptionID, err)
	}

	user.SubscriptionStatus = sp.Status
	if sp.Interval != "" {
		user.SubscriptionPlan = sp.Interval
	}
	if err := r.store.SaveUser(ctx, user); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error mirroring subscription status onto user %d: %v", user.ID, err)
	}
	return nil
}

// HandleSubscriptionDeleted marks the subscription canceled. Previously
// granted access rows are intentionally left untouched: access, once
// granted, persists past cancellation.
func (r *Reconciler) HandleSubscriptionDeleted(ctx context.Context, ev *Event) error {
	sp := ev.Subscription
	if sp == nil || sp.SubscriptionID == "" {
		log.Printf("subscription event %s carries no subscription id, ignoring", ev.ID)
		return nil
	}

	user, err := r.store.UserByCustomerID(ctx, sp.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("no user for customer %s, skipping subscription %s deletion", sp.CustomerID, sp.SubscriptionID)
			return nil
		}
		return err
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: sp.SubscriptionID,
		Status:               models.SubscriptionStatusCanceled,
		CanceledAt:           &now,
	}
	if err := r.store.UpsertSubscription(ctx, sub,
		"user_id", "status", "canceled_at"); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error marking subscription %s canceled: %v", sp.SubscriptionID, err)
	}

	user.SubscriptionStatus = models.SubscriptionStatusCanceled
	user.SubscriptionEndDate = &now
	if err := r.store.SaveUser(ctx, user); err != nil {
		if fatal(err) {
			return err
		}
		log.Printf("error mirroring cancellation onto user %d: %v", user.ID, err)
	}
	return nil
}

// missingSnippetIDs returns the published ids the user has no grant for yet,
// preserving the published order.
func missingSnippetIDs(published, existing []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	var missing []string
	for _, id := range published {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
