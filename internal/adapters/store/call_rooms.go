package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"gorm.io/gorm"
)

// CallRoomStore persists named call rooms and their invited members.
// Who is in a call right now is tracked by app.CallRooms, not here.
type CallRoomStore struct {
	db *gorm.DB
}

func NewCallRoomStore(db *gorm.DB) *CallRoomStore {
	return &CallRoomStore{db: db}
}

// Create adds a call room with its creator as the first member.
func (s *CallRoomStore) Create(ctx context.Context, creator domain.Identity, name string, slug domain.CallRoomName, public bool) (domain.CallRoom, error) {
	if err := domain.ValidateRoomName(string(slug)); err != nil {
		return domain.CallRoom{}, err
	}
	if err := domain.ValidateRoomTitle(name); err != nil {
		return domain.CallRoom{}, err
	}
	var room CallRoom
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := userByName(tx, creator)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&CallRoom{}).Where("slug = ?", string(slug)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrCallRoomExists
		}
		room = CallRoom{Name: name, Slug: string(slug), CreatedBy: &user.ID, IsPublic: public}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&CallRoomMember{CallRoomID: room.ID, UserID: user.ID, JoinedAt: time.Now()}).Error
	})
	if err != nil {
		return domain.CallRoom{}, err
	}
	return room.Domain(creator, 1), nil
}

// Accessible returns public call rooms plus those id is a member of.
func (s *CallRoomStore) Accessible(ctx context.Context, id domain.Identity) ([]domain.CallRoom, error) {
	db := s.db.WithContext(ctx)
	user, err := userByName(db, id)
	if err != nil {
		return nil, err
	}
	mine := db.Model(&CallRoomMember{}).Select("call_room_id").Where("user_id = ?", user.ID)

	var rooms []CallRoom
	if err := db.Where("is_public = ? OR id IN (?)", true, mine).Order("slug").Find(&rooms).Error; err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []domain.CallRoom{}, nil
	}

	ids := make([]uint, 0, len(rooms))
	creatorIDs := make([]uint, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
		if r.CreatedBy != nil {
			creatorIDs = append(creatorIDs, *r.CreatedBy)
		}
	}

	var counts []struct {
		CallRoomID uint
		N          int
	}
	err = db.Model(&CallRoomMember{}).Select("call_room_id, count(*) as n").
		Where("call_room_id IN ?", ids).Group("call_room_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byRoom := make(map[uint]int, len(counts))
	for _, c := range counts {
		byRoom[c.CallRoomID] = c.N
	}

	creators := make(map[uint]domain.Identity, len(creatorIDs))
	if len(creatorIDs) > 0 {
		var users []User
		if err := db.Select("id", "username").Where("id IN ?", creatorIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			creators[u.ID] = domain.Identity(u.Username)
		}
	}

	out := make([]domain.CallRoom, 0, len(rooms))
	for _, r := range rooms {
		var by domain.Identity
		if r.CreatedBy != nil {
			by = creators[*r.CreatedBy]
		}
		out = append(out, r.Domain(by, byRoom[r.ID]))
	}
	return out, nil
}

// AddMember makes username a member. Adding an existing member is a
// no-op, so join and invite share it.
func (s *CallRoomStore) AddMember(ctx context.Context, slug domain.CallRoomName, username domain.Identity) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, user, err := callRoomAndUser(tx, slug, username)
		if err != nil {
			return err
		}
		var count int64
		err = tx.Model(&CallRoomMember{}).Where("call_room_id = ? AND user_id = ?", room.ID, user.ID).Count(&count).Error
		if err != nil || count > 0 {
			return err
		}
		return tx.Create(&CallRoomMember{CallRoomID: room.ID, UserID: user.ID, JoinedAt: time.Now()}).Error
	})
}

func (s *CallRoomStore) RemoveMember(ctx context.Context, slug domain.CallRoomName, username domain.Identity) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, user, err := callRoomAndUser(tx, slug, username)
		if err != nil {
			return err
		}
		return tx.Where("call_room_id = ? AND user_id = ?", room.ID, user.ID).Delete(&CallRoomMember{}).Error
	})
}

// Members lists the call room's members in the order they joined.
func (s *CallRoomStore) Members(ctx context.Context, slug domain.CallRoomName) ([]domain.Member, error) {
	db := s.db.WithContext(ctx)
	room, err := callRoomByName(db, slug)
	if err != nil {
		return nil, err
	}
	var users []User
	err = db.Select("users.id", "users.username", "users.avatar_url").
		Joins("JOIN call_room_members ON call_room_members.user_id = users.id").
		Where("call_room_members.call_room_id = ?", room.ID).
		Order("call_room_members.joined_at, users.id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return members(users), nil
}

func (r CallRoom) Domain(createdBy domain.Identity, memberCount int) domain.CallRoom {
	return domain.CallRoom{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          domain.CallRoomName(r.Slug),
		IsPublic:      r.IsPublic,
		CreatedBy:     createdBy,
		MemberCount:   memberCount,
		ActiveMembers: []domain.Identity{},
	}
}

func callRoomByName(db *gorm.DB, slug domain.CallRoomName) (*CallRoom, error) {
	var r CallRoom
	err := db.Where("slug = ?", string(slug)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func callRoomAndUser(db *gorm.DB, slug domain.CallRoomName, username domain.Identity) (*CallRoom, *User, error) {
	room, err := callRoomByName(db, slug)
	if err != nil {
		return nil, nil, err
	}
	user, err := userByName(db, username)
	if err != nil {
		return nil, nil, err
	}
	return room, user, nil
}
