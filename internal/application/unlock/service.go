package unlock

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/application/dispatch"
	"github.com/Zerokoinhub/app-backend/internal/domain"
)

// Service is the session-unlock scanner. Each ScanOnce pass finds users with
// elapsed locked session slots, flips those slots to unlocked, and notifies
// each affected user once, naming every slot unlocked in the cycle.
//
// The order is deliberate: unlock is persisted before the notification is
// attempted, and a failed notification never rolls the unlock back. Once a
// slot is unlocked it no longer matches the scan query, so the same slot can
// never produce a second notification.
type Service interface {
	ScanOnce(ctx context.Context) error
}

type userStore interface {
	ListUnlockDue(ctx context.Context, now time.Time) ([]domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type deviceStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

type service struct {
	users      userStore
	devices    deviceStore
	dispatcher dispatch.Service
	now        func() time.Time
}

type ServiceDeps struct {
	UserRepo   userStore
	DeviceRepo deviceStore
	Dispatcher dispatch.Service
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:      deps.UserRepo,
		devices:    deps.DeviceRepo,
		dispatcher: deps.Dispatcher,
		now:        now,
	}
}

func (s *service) ScanOnce(ctx context.Context) error {
	now := s.now().UTC()
	users, err := s.users.ListUnlockDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list unlock-due users: %w", err)
	}

	for i := range users {
		u := &users[i]
		unlocked := s.unlockElapsedSlots(ctx, u, now)
		if len(unlocked) == 0 {
			continue
		}
		s.notify(ctx, u, unlocked)
	}
	return nil
}

// unlockElapsedSlots flips every elapsed slot on the user and persists the
// user once, regardless of how many slots moved. Returns the slot numbers
// unlocked, or nil when nothing changed or the write failed (the user is
// simply re-evaluated next cycle).
func (s *service) unlockElapsedSlots(ctx context.Context, u *domain.User, now time.Time) []int {
	var unlocked []int
	slots := make([]domain.SessionSlot, len(u.Sessions))
	copy(slots, u.Sessions)

	for i := range slots {
		slot := &slots[i]
		if !slot.IsLocked || slot.NextUnlockAt == nil || slot.NextUnlockAt.After(now) {
			continue
		}
		slot.IsLocked = false
		slot.NextUnlockAt = nil
		t := now
		slot.UnlockedAt = &t
		unlocked = append(unlocked, slot.SessionNumber)
	}
	if len(unlocked) == 0 {
		return nil
	}

	updates := map[string]interface{}{
		"sessions": slots,
	}
	if next := domain.MinUnlockDeadline(slots); next != nil {
		updates["next_unlock_at"] = next.Unix()
	} else {
		updates["next_unlock_at"] = nil
	}
	if err := s.users.Update(ctx, u.UserID, updates); err != nil {
		log.Printf("unlock: persist user %s: %v", u.UserID, err)
		return nil
	}
	u.Sessions = slots
	return unlocked
}

// notify sends one message per user naming all slots unlocked this cycle.
// Push preference gates the notification only, never the unlock itself.
// Best-effort: the unlock already happened and stays valid either way.
func (s *service) notify(ctx context.Context, u *domain.User, slotNumbers []int) {
	if !u.PushEnabled {
		return
	}
	devices, err := s.devices.ListActiveByUser(ctx, u.UserID)
	if err != nil {
		log.Printf("unlock: list devices for user %s: %v", u.UserID, err)
		return
	}
	if len(devices) == 0 {
		return
	}

	outcome, err := s.dispatcher.SendToUser(ctx, u.UserID, devices, unlockMessage(slotNumbers))
	if err != nil {
		log.Printf("unlock: notify user %s: %v", u.UserID, err)
		return
	}
	log.Printf("unlock: user %s slots %v unlocked, %d sent, %d failed",
		u.UserID, slotNumbers, outcome.Sent, outcome.Failed)
}

// unlockMessage builds the combined notification for one user. Multiple
// slots elapsing in the same cycle produce one message listing all numbers,
// not one message per slot.
func unlockMessage(slotNumbers []int) dispatch.Message {
	nums := make([]string, len(slotNumbers))
	for i, n := range slotNumbers {
		nums[i] = strconv.Itoa(n)
	}

	var title, body string
	if len(slotNumbers) == 1 {
		title = "Session Unlocked"
		body = fmt.Sprintf("Session %s is ready to claim!", nums[0])
	} else {
		title = "Sessions Unlocked"
		body = fmt.Sprintf("Sessions %s are ready to claim!", strings.Join(nums, ", "))
	}
	return dispatch.Message{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"category": "session_unlock",
			"sessions": strings.Join(nums, ","),
		},
	}
}
