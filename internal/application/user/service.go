package user

import (
	"context"
	"fmt"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/Zerokoinhub/app-backend/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// defaultSessionReward is the coin value credited when a slot is claimed.
const defaultSessionReward = 0.5

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Bearer string
	User   *domain.User
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error)
	// ClaimSession credits the slot's reward and marks it claimed. The slot
	// must already be unlocked and not yet claimed.
	ClaimSession(ctx context.Context, userID string, sessionNumber int) (*domain.User, error)
	// ResetSessions reseeds the four slots to the locked baseline with
	// staggered unlock deadlines.
	ResetSessions(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, userID string) error
}

type userStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	List(ctx context.Context) ([]domain.User, error)
	SoftDelete(ctx context.Context, userID string) error
}

type jwtSigner interface {
	Sign(userID, role string) (string, error)
}

type service struct {
	repo           userStore
	jwtProvider    jwtSigner
	unlockInterval time.Duration
	now            func() time.Time
}

type ServiceDeps struct {
	UserRepo    userStore
	JWTProvider jwtSigner
	// UnlockInterval is the gap between consecutive seeded slot deadlines.
	UnlockInterval time.Duration
	Now            func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:           deps.UserRepo,
		jwtProvider:    deps.JWTProvider,
		unlockInterval: deps.UnlockInterval,
		now:            now,
	}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	slots := s.seedSlots(now)
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		PushEnabled:  true,
		Sessions:     slots,
		NextUnlockAt: domain.MinUnlockDeadline(slots),
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		u, err = s.repo.GetByEmail(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Bearer: bearer, User: u}, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	updates := map[string]interface{}{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.PushEnabled != nil {
		updates["push_enabled"] = *req.PushEnabled
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", domain.ErrBadRequest)
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) ClaimSession(ctx context.Context, userID string, sessionNumber int) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	slots := make([]domain.SessionSlot, len(u.Sessions))
	copy(slots, u.Sessions)
	idx := -1
	for i := range slots {
		if slots[i].SessionNumber == sessionNumber {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("unknown session %d: %w", sessionNumber, domain.ErrBadRequest)
	}
	slot := &slots[idx]
	if slot.IsLocked {
		return nil, fmt.Errorf("session %d is still locked: %w", sessionNumber, domain.ErrBadRequest)
	}
	if slot.IsClaimed {
		return nil, fmt.Errorf("session %d already claimed: %w", sessionNumber, domain.ErrConflict)
	}

	slot.IsClaimed = true
	reward := slot.Reward
	if reward == 0 {
		reward = defaultSessionReward
	}
	newBalance := u.Balance + reward

	if err := s.repo.Update(ctx, userID, map[string]interface{}{
		"sessions": slots,
		"balance":  newBalance,
	}); err != nil {
		return nil, err
	}
	u.Sessions = slots
	u.Balance = newBalance
	return u, nil
}

func (s *service) ResetSessions(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	slots := s.seedSlots(now)
	updates := map[string]interface{}{
		"sessions": slots,
	}
	if next := domain.MinUnlockDeadline(slots); next != nil {
		updates["next_unlock_at"] = next.Unix()
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	u.Sessions = slots
	u.NextUnlockAt = domain.MinUnlockDeadline(slots)
	return u, nil
}

func (s *service) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}

func (s *service) Delete(ctx context.Context, userID string) error {
	return s.repo.SoftDelete(ctx, userID)
}

// seedSlots builds the locked baseline: four slots with staggered deadlines
// so they become claimable one unlock interval apart.
func (s *service) seedSlots(now time.Time) []domain.SessionSlot {
	slots := make([]domain.SessionSlot, 0, domain.SessionSlotCount)
	for n := 1; n <= domain.SessionSlotCount; n++ {
		deadline := now.Add(time.Duration(n) * s.unlockInterval)
		slots = append(slots, domain.SessionSlot{
			SessionNumber: n,
			IsLocked:      true,
			NextUnlockAt:  &deadline,
			Reward:        defaultSessionReward,
		})
	}
	return slots
}
