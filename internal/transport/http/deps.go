package http

import (
	"context"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	List(ctx context.Context) ([]domain.User, error)
	SoftDelete(ctx context.Context, userID string) error
}

// DeviceRepository is the minimal interface the router requires from a device store.
type DeviceRepository interface {
	Put(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, deviceID string) error
}

// NotificationRepository is the minimal interface the router requires from a notification store.
type NotificationRepository interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
	MarkSent(ctx context.Context, notificationID string, sentAt time.Time) error
	Delete(ctx context.Context, notificationID string) error
}

// ObjectStore is the minimal interface the router requires from an object storage backend.
type ObjectStore interface {
	UploadBase64(ctx context.Context, key, data string) (string, error)
	Delete(ctx context.Context, key string) error
}
