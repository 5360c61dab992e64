// Package domain contains entities without transport or storage logic.
package domain

import (
	"errors"
	"slices"
	"time"
	"unicode/utf8"
)

const (
	MaxUsernameLen = 36
	MinPasswordLen = 6
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrPasswordTooWeak = errors.New("password too short")
)

// Identity is the authenticated user name. The core treats it as opaque.
type Identity string

type User struct {
	ID        uint     `json:"id"`
	Username  Identity `json:"username"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return ErrPasswordTooWeak
	}
	return nil
}

const MaxPublicKeyLen = 16 << 10

var (
	ErrInvalidTheme     = errors.New("unknown theme")
	ErrPublicKeyEmpty   = errors.New("public key empty")
	ErrPublicKeyTooLong = errors.New("public key too long")
)

// Themes a profile may select.
var Themes = []string{"dark", "light"}

// Profile is the public view of a registered user. PublicKey is an
// opaque blob published by the client; the server never parses it.
type Profile struct {
	Username             Identity   `json:"username"`
	AvatarURL            string     `json:"avatar_url"`
	ThemePreference      string     `json:"theme_preference"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	IsActive             bool       `json:"is_active"`
	IsOnline             bool       `json:"is_online"`
	PublicKey            *string    `json:"public_key"`
	LastSeen             *time.Time `json:"last_seen,omitempty"`
}

// Settings is a partial profile update; nil fields are left as they are.
type Settings struct {
	ThemePreference      *string `json:"theme_preference"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

func (s Settings) Validate() error {
	if s.ThemePreference != nil && !slices.Contains(Themes, *s.ThemePreference) {
		return ErrInvalidTheme
	}
	return nil
}

func ValidatePublicKey(key string) error {
	if key == "" {
		return ErrPublicKeyEmpty
	}
	if len(key) > MaxPublicKeyLen {
		return ErrPublicKeyTooLong
	}
	return nil
}

// PresenceStatus is the stored online flag of one identity. LastSeen is
// nil for an identity that never connected.
type PresenceStatus struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen"`
}

// Member is a user listed under a room or call room.
type Member struct {
	Username  Identity `json:"username"`
	AvatarURL string   `json:"avatar_url"`
}
