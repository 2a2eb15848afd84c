package autopush

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/application/dispatch"
	"github.com/Zerokoinhub/app-backend/internal/domain"
	"golang.org/x/time/rate"
)

// Service is the unsent-notification scanner. Each ScanOnce pass delivers
// every eligible notification record through the dispatcher and marks the
// record sent when at least one token took the message. Records that reach
// nobody stay unsent and are reconsidered on the next pass — that retry loop
// is the whole recovery story; there is no dead-letter queue.
type Service interface {
	ScanOnce(ctx context.Context) error
}

type notificationStore interface {
	ListUnsent(ctx context.Context) ([]domain.Notification, error)
	MarkSent(ctx context.Context, notificationID string, sentAt time.Time) error
}

type service struct {
	notifications notificationStore
	dispatcher    dispatch.Service
	limiter       *rate.Limiter
	now           func() time.Time
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	Dispatcher       dispatch.Service
	// Pacing bounds burst load on the push transport: at most one
	// record dispatched per Pacing interval.
	Pacing time.Duration
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if deps.Pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(deps.Pacing), 1)
	}
	return &service{
		notifications: deps.NotificationRepo,
		dispatcher:    deps.Dispatcher,
		limiter:       limiter,
		now:           now,
	}
}

func (s *service) ScanOnce(ctx context.Context) error {
	records, err := s.notifications.ListUnsent(ctx)
	if err != nil {
		// Store unreachable: abort the cycle, the timer retries next tick.
		return fmt.Errorf("list unsent notifications: %w", err)
	}

	for i := range records {
		n := &records[i]
		if !n.AutoPushEligible() {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		outcome, err := s.dispatcher.BroadcastAll(ctx, messageFor(n))
		if err != nil {
			log.Printf("autopush: dispatch %q (%s): %v", n.Title, n.NotificationID, err)
			continue
		}
		if outcome.Sent == 0 {
			// Nobody reachable (or total failure). Leave unsent; the next
			// scan picks it up again.
			continue
		}
		if err := s.notifications.MarkSent(ctx, n.NotificationID, s.now()); err != nil {
			// At-least-once delivery: the record may be re-sent next cycle.
			log.Printf("autopush: mark sent %s: %v", n.NotificationID, err)
			continue
		}
		log.Printf("autopush: sent %q to %d device(s), %d failed, %d token(s) pruned",
			n.Title, outcome.Sent, outcome.Failed, outcome.InvalidTokensRemoved)
	}
	return nil
}

func messageFor(n *domain.Notification) dispatch.Message {
	data := map[string]string{
		"notification_id": n.NotificationID,
		"category":        n.Category,
	}
	if n.DeepLink != nil && *n.DeepLink != "" {
		data["deep_link"] = *n.DeepLink
	}
	return dispatch.Message{
		Title:    n.Title,
		Body:     n.Body,
		Data:     data,
		ImageKey: n.ImageKey,
	}
}
