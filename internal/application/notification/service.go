package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/Zerokoinhub/app-backend/internal/pkg/id"
)

type Service interface {
	// Create stores a notification record. Unless auto_send_push is false,
	// the background scanner picks it up and broadcasts it.
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
	// MarkSent flags a record sent without dispatching, taking it out of the
	// scanner's queue.
	MarkSent(ctx context.Context, notificationID string) (*domain.Notification, error)
	Delete(ctx context.Context, notificationID string) error
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
	MarkSent(ctx context.Context, notificationID string, sentAt time.Time) error
	Delete(ctx context.Context, notificationID string) error
}

type imageStore interface {
	UploadBase64(ctx context.Context, key, data string) (string, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	repo   notificationStore
	images imageStore
	now    func() time.Time
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	// ImageStore may be nil when no object storage is configured; creating
	// a notification with an image then fails with ErrBadRequest.
	ImageStore imageStore
	Now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: deps.NotificationRepo, images: deps.ImageStore, now: now}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	now := s.now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		Title:          req.Title,
		Body:           req.Body,
		Category:       req.Category,
		Priority:       req.Priority,
		AutoSendPush:   req.AutoSendPush,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.DeepLink != "" {
		link := req.DeepLink
		n.DeepLink = &link
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}

	if req.ImageBase64 != "" {
		if s.images == nil {
			return nil, fmt.Errorf("image storage not configured: %w", domain.ErrBadRequest)
		}
		key := fmt.Sprintf("notifications/%s.png", n.NotificationID)
		if _, err := s.images.UploadBase64(ctx, key, req.ImageBase64); err != nil {
			return nil, fmt.Errorf("upload notification image: %w", err)
		}
		n.ImageKey = &key
	}

	if err := s.repo.Put(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *service) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	return s.repo.Get(ctx, notificationID)
}

func (s *service) List(ctx context.Context) ([]domain.Notification, error) {
	return s.repo.List(ctx)
}

func (s *service) MarkSent(ctx context.Context, notificationID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.IsSent {
		return nil, fmt.Errorf("notification already sent: %w", domain.ErrConflict)
	}
	sentAt := s.now().UTC()
	if err := s.repo.MarkSent(ctx, notificationID, sentAt); err != nil {
		return nil, err
	}
	n.IsSent = true
	n.SentAt = &sentAt
	return n, nil
}

func (s *service) Delete(ctx context.Context, notificationID string) error {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, notificationID); err != nil {
		return err
	}
	// Best-effort image cleanup: the record is gone either way, and an
	// orphaned object only costs storage.
	if n.ImageKey != nil && s.images != nil {
		if err := s.images.Delete(ctx, *n.ImageKey); err != nil {
			log.Printf("notification: delete image %s: %v", *n.ImageKey, err)
		}
	}
	return nil
}
