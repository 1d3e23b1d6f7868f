package payments

import (
	"context"
	"log"

	"github.com/liquidsnips/liquidsnips/app/models"
)

// Router dispatches a verified, typed event to exactly one reconciliation
// handler. Unknown kinds are acknowledged as a no-op success: rejecting them
// would make the provider redeliver a permanently unhandleable event forever.
type Router struct {
	reconciler *Reconciler
}

func NewRouter(reconciler *Reconciler) *Router {
	return &Router{reconciler: reconciler}
}

func (r *Router) Dispatch(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return r.reconciler.HandleCheckoutCompleted(ctx, ev)
	case KindInvoicePaid:
		return r.reconciler.HandleInvoicePaid(ctx, ev)
	case KindSubscriptionUpdated:
		return r.reconciler.HandleSubscriptionUpdated(ctx, ev)
	case KindSubscriptionDeleted:
		return r.reconciler.HandleSubscriptionDeleted(ctx, ev)
	default:
		log.Printf("ignoring unhandled webhook event type %q (id %s)", ev.RawKind, ev.ID)
		return nil
	}
}

// ShouldProcess reports whether a recorded delivery still needs dispatching.
// A redelivered event id short-circuits only when an earlier delivery fully
// processed it; rows stamped with a processing error, or never stamped at
// all, are dispatched again. The handlers are idempotent, so re-running them
// is safe and is the only way a transient store failure ever converges.
func ShouldProcess(created bool, stored *models.WebhookEvent) bool {
	if created {
		return true
	}
	return stored.ProcessedAt == nil || stored.ProcessingError != ""
}
