package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/Zerokoinhub/app-backend/internal/infrastructure/push"
)

// imageURLTTL bounds how long a presigned notification image stays fetchable.
const imageURLTTL = 24 * time.Hour

// Message is one logical notification to fan out.
type Message struct {
	Title    string
	Body     string
	Data     map[string]string
	ImageKey *string
}

// Service fans one message out to many device tokens and aggregates the
// per-token outcomes. It holds no mutable state, so concurrent callers
// (both scanners plus ad-hoc API sends) are safe.
type Service interface {
	// BroadcastAll delivers to every active token of every push-enabled user.
	BroadcastAll(ctx context.Context, msg Message) (*domain.DeliveryOutcome, error)
	// SendToUser delivers to the given devices of a single user.
	SendToUser(ctx context.Context, userID string, devices []domain.Device, msg Message) (*domain.DeliveryOutcome, error)
}

type userStore interface {
	ListPushEnabled(ctx context.Context) ([]domain.User, error)
}

type deviceStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	DeactivateByToken(ctx context.Context, token string) error
}

type imageResolver interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type service struct {
	users   userStore
	devices deviceStore
	sender  push.Sender
	images  imageResolver // nil when object storage is unavailable
}

type ServiceDeps struct {
	UserRepo   userStore
	DeviceRepo deviceStore
	Sender     push.Sender
	ImageStore imageResolver
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:   deps.UserRepo,
		devices: deps.DeviceRepo,
		sender:  deps.Sender,
		images:  deps.ImageStore,
	}
}

func (s *service) BroadcastAll(ctx context.Context, msg Message) (*domain.DeliveryOutcome, error) {
	audience, err := s.users.ListPushEnabled(ctx)
	if err != nil {
		return &domain.DeliveryOutcome{}, fmt.Errorf("list push audience: %w", err)
	}

	data := s.payloadData(ctx, msg)
	outcome := &domain.DeliveryOutcome{}
	var invalid []string

	for i := range audience {
		u := &audience[i]
		devices, err := s.devices.ListActiveByUser(ctx, u.UserID)
		if err != nil {
			// One unreadable registry entry must not abort the broadcast.
			log.Printf("dispatch: list devices for user %s: %v", u.UserID, err)
			continue
		}
		if len(devices) == 0 {
			continue
		}
		outcome.TotalUsers++
		invalid = append(invalid, s.deliver(ctx, devices, msg, data, outcome)...)
	}

	outcome.InvalidTokensRemoved = s.prune(ctx, invalid)
	return outcome, nil
}

func (s *service) SendToUser(ctx context.Context, userID string, devices []domain.Device, msg Message) (*domain.DeliveryOutcome, error) {
	data := s.payloadData(ctx, msg)
	outcome := &domain.DeliveryOutcome{}
	var invalid []string

	active := devices[:0:0]
	for _, d := range devices {
		if d.IsActive {
			active = append(active, d)
		}
	}
	if len(active) > 0 {
		outcome.TotalUsers = 1
		invalid = s.deliver(ctx, active, msg, data, outcome)
	}

	if n := s.prune(ctx, invalid); n > 0 {
		outcome.InvalidTokensRemoved = n
		log.Printf("dispatch: pruned %d invalid token(s) for user %s", n, userID)
	}
	return outcome, nil
}

// deliver attempts every token in devices and returns the tokens the
// transport reported as permanently invalid. A failure on one token never
// stops the attempt on the next; partial delivery is the expected mode.
func (s *service) deliver(ctx context.Context, devices []domain.Device, msg Message, data map[string]string, outcome *domain.DeliveryOutcome) []string {
	var invalid []string
	for _, d := range devices {
		res := s.sender.Send(ctx, d.Token, msg.Title, msg.Body, data)
		switch res.Status {
		case push.StatusDelivered:
			outcome.Sent++
		case push.StatusInvalidToken:
			outcome.Failed++
			invalid = append(invalid, d.Token)
		default:
			outcome.Failed++
			log.Printf("dispatch: transient send failure for device %s: %s", d.DeviceID, res.Reason)
		}
	}
	return invalid
}

// prune deactivates permanently invalid tokens in one batch after the send
// loop. Best-effort: a failed prune is logged and retried implicitly the
// next time the transport rejects the token.
func (s *service) prune(ctx context.Context, tokens []string) int {
	removed := 0
	for _, token := range tokens {
		if err := s.devices.DeactivateByToken(ctx, token); err != nil {
			log.Printf("dispatch: prune token: %v", err)
			continue
		}
		removed++
	}
	return removed
}

// payloadData clones the caller's data map and resolves the optional image
// key to a presigned URL. Resolution happens once per dispatch, not per token.
func (s *service) payloadData(ctx context.Context, msg Message) map[string]string {
	data := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	if msg.ImageKey != nil && *msg.ImageKey != "" && s.images != nil {
		url, err := s.images.PresignedURL(ctx, *msg.ImageKey, imageURLTTL)
		if err != nil {
			log.Printf("dispatch: resolve image %s: %v", *msg.ImageKey, err)
		} else {
			data["image"] = url
		}
	}
	return data
}
