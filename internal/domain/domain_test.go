package domain

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"alice", nil},
		{"", ErrUsernameEmpty},
		{strings.Repeat("a", MaxUsernameLen), nil},
		{strings.Repeat("a", MaxUsernameLen+1), ErrUsernameTooLong},
		{strings.Repeat("é", MaxUsernameLen), nil},
	}
	for _, tt := range tests {
		if got := ValidateUsername(tt.in); got != tt.want {
			t.Errorf("ValidateUsername(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateRoomName(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"general", false},
		{"dev-talk_2", false},
		{"", true},
		{"has space", true},
		{"../etc", true},
		{strings.Repeat("r", MaxRoomNameLen+1), true},
	}
	for _, tt := range tests {
		err := ValidateRoomName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRoomName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345"); err != ErrPasswordTooWeak {
		t.Errorf("ValidatePassword(short) = %v, want %v", err, ErrPasswordTooWeak)
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Errorf("ValidatePassword(ok) = %v, want nil", err)
	}
}

func TestValidateDirectMessage(t *testing.T) {
	tests := []struct {
		from, to Identity
		content  string
		want     error
	}{
		{"alice", "bob", "hi", nil},
		{"alice", "alice", "hi", ErrSelfMessage},
		{"alice", "bob", "", ErrEmptyMessage},
		{"alice", "bob", strings.Repeat("x", MaxDirectMessageLen+1), ErrMessageTooLong},
	}
	for _, tt := range tests {
		if got := ValidateDirectMessage(tt.from, tt.to, tt.content); got != tt.want {
			t.Errorf("ValidateDirectMessage(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	light, neon := "light", "neon"
	if err := (Settings{ThemePreference: &light}).Validate(); err != nil {
		t.Errorf("light theme rejected: %v", err)
	}
	if err := (Settings{ThemePreference: &neon}).Validate(); err != ErrInvalidTheme {
		t.Errorf("neon theme = %v, want %v", err, ErrInvalidTheme)
	}
	if err := (Settings{}).Validate(); err != nil {
		t.Errorf("empty settings rejected: %v", err)
	}
}

func TestValidatePublicKey(t *testing.T) {
	if err := ValidatePublicKey(""); err != ErrPublicKeyEmpty {
		t.Errorf("empty key = %v", err)
	}
	if err := ValidatePublicKey(strings.Repeat("k", MaxPublicKeyLen+1)); err != ErrPublicKeyTooLong {
		t.Errorf("long key = %v", err)
	}
	if err := ValidatePublicKey(`{"kty":"EC"}`); err != nil {
		t.Errorf("jwk rejected: %v", err)
	}
}

func TestDefaultRooms(t *testing.T) {
	if !IsDefaultRoom(GeneralRoom) || !IsDefaultRoom("dev-team") {
		t.Error("default rooms not recognised")
	}
	if IsDefaultRoom("random") {
		t.Error("random is not a default room")
	}
	if err := ValidateSearchQuery("a"); err != ErrQueryTooShort {
		t.Errorf("one letter query = %v", err)
	}
	if err := ValidateSearchQuery("hé"); err != nil {
		t.Errorf("two letter query = %v", err)
	}
}
