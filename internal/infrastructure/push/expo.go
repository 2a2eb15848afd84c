package push

import (
	"context"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// Status classifies the outcome of one per-token send.
type Status int

const (
	// StatusDelivered means the transport accepted the message.
	StatusDelivered Status = iota
	// StatusInvalidToken means the registration is permanently stale;
	// the token must be pruned and never retried.
	StatusInvalidToken
	// StatusTransientError covers every other failure, network errors
	// included. Retry happens on the next scan cycle, not here.
	StatusTransientError
)

// Result is the classified outcome of a single send.
type Result struct {
	Status    Status
	MessageID string
	Reason    string
}

// Sender is the push transport seen by the dispatcher: one token, one
// message, one classified outcome. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) Result
}

// ExpoSender delivers through the Expo push service.
type ExpoSender struct {
	client *expo.PushClient
}

func NewExpoSender() *ExpoSender {
	return &ExpoSender{client: expo.NewPushClient(nil)}
}

func (s *ExpoSender) Send(_ context.Context, token, title, body string, data map[string]string) Result {
	pushToken, err := expo.NewExponentPushToken(token)
	if err != nil {
		// A token that never matched the Expo format can never deliver;
		// treat it like an unregistered device so it gets pruned.
		return Result{Status: StatusInvalidToken, Reason: "malformed push token"}
	}
	resp, err := s.client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{pushToken},
		Title:    title,
		Body:     body,
		Data:     data,
		Sound:    "default",
		Priority: expo.DefaultPriority,
	})
	if err != nil {
		return Result{Status: StatusTransientError, Reason: err.Error()}
	}
	return classify(resp)
}

// classify maps an Expo push ticket onto the dispatcher's outcome taxonomy.
func classify(resp expo.PushResponse) Result {
	if resp.Status == expo.SuccessStatus {
		return Result{Status: StatusDelivered, MessageID: resp.ID}
	}
	if resp.Details != nil && resp.Details["error"] == expo.ErrorDeviceNotRegistered {
		return Result{Status: StatusInvalidToken, Reason: resp.Message}
	}
	return Result{Status: StatusTransientError, Reason: resp.Message}
}

// ValidateToken reports whether a token is plausibly an Expo push token.
// Used at device registration so junk never enters the registry.
func ValidateToken(token string) error {
	_, err := expo.NewExponentPushToken(token)
	return err
}
