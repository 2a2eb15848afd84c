package device

import (
	"context"
	"fmt"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/Zerokoinhub/app-backend/internal/infrastructure/push"
	"github.com/Zerokoinhub/app-backend/internal/pkg/id"
)

type Service interface {
	// Register records a push token for the user. Re-registering a known
	// token refreshes it in place; a token moving to a new account is
	// re-owned by the registering user.
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Deactivate(ctx context.Context, userID, deviceID string) error
}

type deviceStore interface {
	Put(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, deviceID string) error
}

type service struct {
	repo deviceStore
	now  func() time.Time
}

type ServiceDeps struct {
	DeviceRepo deviceStore
	Now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: deps.DeviceRepo, now: now}
}

func (s *service) Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	if err := push.ValidateToken(req.Token); err != nil {
		return nil, fmt.Errorf("malformed push token: %w", domain.ErrBadRequest)
	}

	now := s.now().UTC()
	existing, err := s.repo.GetByToken(ctx, req.Token)
	if err == nil {
		updates := map[string]interface{}{
			"user_id":      userID,
			"platform":     req.Platform,
			"is_active":    true,
			"last_used_at": now.Format(time.RFC3339),
		}
		if err := s.repo.Update(ctx, existing.DeviceID, updates); err != nil {
			return nil, err
		}
		existing.UserID = userID
		existing.Platform = req.Platform
		existing.IsActive = true
		existing.LastUsedAt = now
		return existing, nil
	}

	d := &domain.Device{
		DeviceID:   id.New(),
		UserID:     userID,
		Token:      req.Token,
		Platform:   req.Platform,
		IsActive:   true,
		LastUsedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

func (s *service) Deactivate(ctx context.Context, userID, deviceID string) error {
	d, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return fmt.Errorf("device belongs to another user: %w", domain.ErrForbidden)
	}
	return s.repo.Deactivate(ctx, deviceID)
}
