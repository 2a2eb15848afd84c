package domain

import "time"

// NotificationPriority values accepted on create.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is an admin-authored broadcast message. The autopush scanner
// delivers every record that is not yet sent and not opted out of automatic
// delivery. Invariant: IsSent == true implies SentAt != nil; a sent record
// is never re-selected for delivery.
type Notification struct {
	NotificationID string     `json:"id" dynamodbav:"notification_id"`
	Title          string     `json:"title" dynamodbav:"title"`
	Body           string     `json:"body" dynamodbav:"body"`
	ImageKey       *string    `json:"image_key,omitempty" dynamodbav:"image_key"`
	DeepLink       *string    `json:"deep_link,omitempty" dynamodbav:"deep_link"`
	Category       string     `json:"category" dynamodbav:"category"`
	Priority       string     `json:"priority" dynamodbav:"priority"`
	IsSent         bool       `json:"is_sent" dynamodbav:"is_sent"`
	SentAt         *time.Time `json:"sent_at,omitempty" dynamodbav:"sent_at"`
	// AutoSendPush defaults to true when absent. Only an explicit false
	// excludes the record from the background scanner.
	AutoSendPush *bool     `json:"auto_send_push,omitempty" dynamodbav:"auto_send_push"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// AutoPushEligible reports whether the scanner may deliver this record.
func (n *Notification) AutoPushEligible() bool {
	if n.IsSent {
		return false
	}
	return n.AutoSendPush == nil || *n.AutoSendPush
}

type CreateNotificationRequest struct {
	Title        string `json:"title" validate:"required"`
	Body         string `json:"body" validate:"required"`
	ImageBase64  string `json:"image_base64"`
	DeepLink     string `json:"deep_link"`
	Category     string `json:"category"`
	Priority     string `json:"priority" validate:"omitempty,oneof=normal high"`
	AutoSendPush *bool  `json:"auto_send_push"`
}
