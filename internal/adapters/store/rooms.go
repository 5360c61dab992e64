package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"gorm.io/gorm"
)

// RoomStore manages persisted chat rooms and who belongs to them.
type RoomStore struct {
	db *gorm.DB
}

func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{db: db}
}

// Create adds a room with its creator as the first member.
func (s *RoomStore) Create(ctx context.Context, creator domain.Identity, name string, slug domain.RoomName) (domain.Room, error) {
	if err := domain.ValidateRoomName(string(slug)); err != nil {
		return domain.Room{}, err
	}
	if err := domain.ValidateRoomTitle(name); err != nil {
		return domain.Room{}, err
	}

	var room Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := userByName(tx, creator)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Room{}).Where("slug = ?", string(slug)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoomExists
		}
		room = Room{Name: name, Slug: string(slug)}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&RoomMember{RoomID: room.ID, UserID: user.ID, JoinedAt: time.Now()}).Error
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room.Domain(), nil
}

func (s *RoomStore) Get(ctx context.Context, slug domain.RoomName) (domain.Room, error) {
	r, err := roomByName(s.db.WithContext(ctx), slug)
	if err != nil {
		return domain.Room{}, err
	}
	return r.Domain(), nil
}

// ListFor returns the rooms id is a member of, ordered by slug.
func (s *RoomStore) ListFor(ctx context.Context, id domain.Identity) ([]domain.Room, error) {
	db := s.db.WithContext(ctx)
	user, err := userByName(db, id)
	if err != nil {
		return nil, err
	}
	var rooms []Room
	err = db.Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", user.ID).
		Order("rooms.slug").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Domain())
	}
	return out, nil
}

// Invite adds username to the room.
func (s *RoomStore) Invite(ctx context.Context, slug domain.RoomName, username domain.Identity) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := roomByName(tx, slug)
		if err != nil {
			return err
		}
		user, err := userByName(tx, username)
		if err != nil {
			return err
		}
		var count int64
		err = tx.Model(&RoomMember{}).Where("room_id = ? AND user_id = ?", room.ID, user.ID).Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}
		return tx.Create(&RoomMember{RoomID: room.ID, UserID: user.ID, JoinedAt: time.Now()}).Error
	})
}

// Members lists the room's members in the order they joined.
func (s *RoomStore) Members(ctx context.Context, slug domain.RoomName) ([]domain.Member, error) {
	db := s.db.WithContext(ctx)
	room, err := roomByName(db, slug)
	if err != nil {
		return nil, err
	}
	var users []User
	err = db.Select("users.id", "users.username", "users.avatar_url").
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ?", room.ID).
		Order("room_members.id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return members(users), nil
}

// Delete removes a room with its members, messages and attachment
// records. Default rooms are kept.
func (s *RoomStore) Delete(ctx context.Context, slug domain.RoomName) error {
	if domain.IsDefaultRoom(slug) {
		return ErrDefaultRoom
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := roomByName(tx, slug)
		if err != nil {
			return err
		}
		msgIDs := tx.Model(&Message{}).Select("id").Where("room_id = ?", room.ID)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(room).Error
	})
}

func (r Room) Domain() domain.Room {
	return domain.Room{ID: r.ID, Name: r.Name, Slug: domain.RoomName(r.Slug), Description: r.Description}
}

func userByName(db *gorm.DB, id domain.Identity) (*User, error) {
	var u User
	err := db.Where("username = ?", string(id)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func roomByName(db *gorm.DB, slug domain.RoomName) (*Room, error) {
	var r Room
	err := db.Where("slug = ?", string(slug)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func members(users []User) []domain.Member {
	out := make([]domain.Member, 0, len(users))
	for _, u := range users {
		out = append(out, domain.Member{Username: domain.Identity(u.Username), AvatarURL: u.AvatarURL})
	}
	return out
}
