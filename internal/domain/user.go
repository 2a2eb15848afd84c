package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SessionSlotCount is the fixed number of mining session slots per user.
const SessionSlotCount = 4

type User struct {
	UserID       string        `json:"id" dynamodbav:"user_id"`
	Username     string        `json:"username" dynamodbav:"username"`
	Email        string        `json:"email" dynamodbav:"email"`
	PasswordHash string        `json:"-" dynamodbav:"password_hash"`
	Role         string        `json:"role" dynamodbav:"role"`
	Balance      float64       `json:"balance" dynamodbav:"balance"`
	PushEnabled  bool          `json:"push_enabled" dynamodbav:"push_enabled"`
	Sessions     []SessionSlot `json:"sessions" dynamodbav:"sessions"`
	// NextUnlockAt is the earliest next_unlock_at across this user's locked
	// slots, denormalized so the unlock scanner can filter users without
	// unpacking the slot list per item. Nil when no slot is locked. Stored
	// as epoch seconds so the scan filter can compare numerically.
	NextUnlockAt *time.Time `json:"next_unlock_at,omitempty" dynamodbav:"next_unlock_at,unixtime"`
	Enable       bool       `json:"enable" dynamodbav:"enable"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// SessionSlot is one of the user's four claimable mining sessions.
// Invariant: IsLocked == false implies NextUnlockAt == nil. A slot moves
// locked -> unlocked exactly once per cycle; re-locking happens only through
// an explicit reset.
type SessionSlot struct {
	SessionNumber int        `json:"session_number" dynamodbav:"session_number"`
	IsLocked      bool       `json:"is_locked" dynamodbav:"is_locked"`
	NextUnlockAt  *time.Time `json:"next_unlock_at,omitempty" dynamodbav:"next_unlock_at"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty" dynamodbav:"unlocked_at"`
	IsClaimed     bool       `json:"is_claimed" dynamodbav:"is_claimed"`
	Reward        float64    `json:"reward" dynamodbav:"reward"`
}

// MinUnlockDeadline returns the earliest deadline across locked slots,
// or nil when every slot is unlocked.
func MinUnlockDeadline(slots []SessionSlot) *time.Time {
	var min *time.Time
	for i := range slots {
		s := slots[i]
		if !s.IsLocked || s.NextUnlockAt == nil {
			continue
		}
		if min == nil || s.NextUnlockAt.Before(*min) {
			t := *s.NextUnlockAt
			min = &t
		}
	}
	return min
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"required,email"`
}

type UpdateUserRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PushEnabled *bool   `json:"push_enabled"`
}
