package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"gorm.io/gorm"
)

// PresenceStore keeps is_online and last_seen on the users table.
type PresenceStore struct {
	db *gorm.DB
}

func NewPresenceStore(db *gorm.DB) *PresenceStore {
	return &PresenceStore{db: db}
}

func (s *PresenceStore) MarkOnline(ctx context.Context, id domain.Identity, at time.Time) error {
	return s.set(ctx, id, true, at)
}

func (s *PresenceStore) MarkOffline(ctx context.Context, id domain.Identity, at time.Time) error {
	return s.set(ctx, id, false, at)
}

func (s *PresenceStore) set(ctx context.Context, id domain.Identity, online bool, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("username = ?", string(id)).
		Updates(map[string]any{"is_online": online, "last_seen": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Status reads the flag back from the users table.
func (s *PresenceStore) Status(ctx context.Context, id domain.Identity) (domain.PresenceStatus, error) {
	var u User
	err := s.db.WithContext(ctx).Select("is_online", "last_seen").Where("username = ?", string(id)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PresenceStatus{}, ErrUserNotFound
	}
	if err != nil {
		return domain.PresenceStatus{}, err
	}
	return domain.PresenceStatus{Online: u.IsOnline, LastSeen: u.LastSeen}, nil
}
