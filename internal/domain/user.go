// Package domain holds the matchmaking entities, their identifiers and sentinel errors.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36

	// DefaultDisplayName is used when the identity provider gave no name.
	DefaultDisplayName = "Anon"
)

type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty id gets a fresh anonymous one.
func NewUser(id UserID, displayName string) (*User, error) {
	if id == "" {
		id = UserID(uuid.NewString())
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, DisplayName: name}, nil
}

func (u *User) SetDisplayName(displayName string) error {
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return err
	}
	u.DisplayName = name
	return nil
}

func NormalizeDisplayName(displayName string) (string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return DefaultDisplayName, nil
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
