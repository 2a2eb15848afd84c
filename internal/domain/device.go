package domain

import "time"

// Device is one registered push target. A user owns many devices; only
// IsActive devices receive pushes. The dispatcher deactivates a device when
// the push transport reports its token as permanently invalid.
type Device struct {
	DeviceID   string    `json:"id" dynamodbav:"device_id"`
	UserID     string    `json:"user_id" dynamodbav:"user_id"`
	Token      string    `json:"token" dynamodbav:"token"`
	Platform   string    `json:"platform" dynamodbav:"platform"`
	IsActive   bool      `json:"is_active" dynamodbav:"is_active"`
	LastUsedAt time.Time `json:"last_used_at" dynamodbav:"last_used_at"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated" dynamodbav:"updated_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}
