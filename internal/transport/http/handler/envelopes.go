package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// SafeUser is the outward-facing user view; it never carries the password hash.
type SafeUser struct {
	UserID       string               `json:"id"`
	Username     string               `json:"username"`
	Email        string               `json:"email"`
	Role         string               `json:"role"`
	Balance      float64              `json:"balance"`
	PushEnabled  bool                 `json:"push_enabled"`
	Sessions     []domain.SessionSlot `json:"sessions"`
	NextUnlockAt *time.Time           `json:"next_unlock_at,omitempty"`
	CreatedAt    time.Time            `json:"created"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:       u.UserID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		Balance:      u.Balance,
		PushEnabled:  u.PushEnabled,
		Sessions:     u.Sessions,
		NextUnlockAt: u.NextUnlockAt,
		CreatedAt:    u.CreatedAt,
	}
}

// AuthEnvelope wraps login/register responses.
type AuthEnvelope struct {
	Bearer string    `json:"Bearer,omitempty"`
	User   *SafeUser `json:"user,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
