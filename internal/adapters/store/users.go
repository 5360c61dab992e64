package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"gorm.io/gorm"
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	u := User{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		var general Room
		err := tx.Where("slug = ?", string(domain.GeneralRoom)).First(&general).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Create(&RoomMember{RoomID: general.ID, UserID: u.ID, JoinedAt: time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether id names a registered user.
func (s *UserStore) Exists(ctx context.Context, id domain.Identity) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", string(id)).Count(&count).Error
	return count > 0, err
}

func (u *User) Domain() domain.User {
	return domain.User{ID: u.ID, Username: domain.Identity(u.Username), AvatarURL: u.AvatarURL}
}

func (u *User) Profile() domain.Profile {
	return domain.Profile{
		Username:             domain.Identity(u.Username),
		AvatarURL:            u.AvatarURL,
		ThemePreference:      u.ThemePreference,
		NotificationsEnabled: u.NotificationsEnabled,
		IsActive:             u.IsActive,
		PublicKey:            u.PublicKey,
		LastSeen:             u.LastSeen,
	}
}

// List returns every active user ordered by name.
func (s *UserStore) List(ctx context.Context) ([]domain.Member, error) {
	var users []User
	err := s.db.WithContext(ctx).Select("id", "username", "avatar_url").
		Where("is_active = ?", true).Order("username").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return members(users), nil
}

func (s *UserStore) Profile(ctx context.Context, id domain.Identity) (domain.Profile, error) {
	u, err := s.FindByUsername(ctx, string(id))
	if err != nil {
		return domain.Profile{}, err
	}
	return u.Profile(), nil
}

func (s *UserStore) UpdateSettings(ctx context.Context, id domain.Identity, st domain.Settings) (domain.Profile, error) {
	if err := st.Validate(); err != nil {
		return domain.Profile{}, err
	}
	changes := map[string]any{}
	if st.ThemePreference != nil {
		changes["theme_preference"] = *st.ThemePreference
	}
	if st.NotificationsEnabled != nil {
		changes["notifications_enabled"] = *st.NotificationsEnabled
	}
	if len(changes) > 0 {
		if err := s.update(ctx, id, changes); err != nil {
			return domain.Profile{}, err
		}
	}
	return s.Profile(ctx, id)
}

func (s *UserStore) SetAvatar(ctx context.Context, id domain.Identity, url string) error {
	return s.update(ctx, id, map[string]any{"avatar_url": url})
}

func (s *UserStore) SetPublicKey(ctx context.Context, id domain.Identity, key string) error {
	if err := domain.ValidatePublicKey(key); err != nil {
		return err
	}
	return s.update(ctx, id, map[string]any{"public_key": key})
}

// PublicKey returns the key blob id published, or ErrNoPublicKey.
func (s *UserStore) PublicKey(ctx context.Context, id domain.Identity) (string, error) {
	u, err := s.FindByUsername(ctx, string(id))
	if err != nil {
		return "", err
	}
	if u.PublicKey == nil || *u.PublicKey == "" {
		return "", ErrNoPublicKey
	}
	return *u.PublicKey, nil
}

func (s *UserStore) update(ctx context.Context, id domain.Identity, changes map[string]any) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", string(id)).Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
