package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	SearchLimit         = 50

	historyTimeout = 10 * time.Second
)

// MessageStore implements core.MessageStore on gorm.
type MessageStore struct {
	db    *gorm.DB
	group singleflight.Group
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Persist stores a message and returns it as clients display it. Rooms
// are created on first use. A reply to a message outside the room is
// stored without the reply link.
func (s *MessageStore) Persist(ctx context.Context, author domain.Identity, room domain.RoomName, content string, replyToID *int64) (*domain.DisplayRecord, error) {
	db := s.db.WithContext(ctx)

	var user User
	if err := db.Where("username = ?", string(author)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %w", core.ErrPersistence, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	r, err := s.roomBySlug(db, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	msg := Message{RoomID: r.ID, UserID: user.ID, Content: content}
	var reply *Message
	if replyToID != nil && *replyToID > 0 {
		var parent Message
		err := db.Where("id = ? AND room_id = ?", uint(*replyToID), r.ID).First(&parent).Error
		switch {
		case err == nil:
			reply = &parent
			msg.ReplyToID = &parent.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
	}

	if err := db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	users := map[uint]User{user.ID: user}
	if reply != nil {
		if err := s.loadUsers(db, users, reply.UserID); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
	}
	rec := display(msg, r.Slug, users, map[uint]Message{}, reply)
	return &rec, nil
}

// History returns up to limit most recent messages of room, oldest
// first. Concurrent loads of the same page share one query.
func (s *MessageStore) History(ctx context.Context, room domain.RoomName, limit int) ([]domain.DisplayRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	key := fmt.Sprintf("%s|%d", room, limit)
	// the shared load must outlive the first caller's request
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(shared, historyTimeout)
		defer cancel()
		return s.history(s.db.WithContext(ctx), room, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DisplayRecord), nil
}

func (s *MessageStore) history(db *gorm.DB, room domain.RoomName, limit int) ([]domain.DisplayRecord, error) {
	var r Room
	err := db.Where("slug = ?", string(room)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []domain.DisplayRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if err := db.Where("room_id = ?", r.ID).Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	replyIDs := make([]uint, 0)
	for _, m := range msgs {
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}
	parents := make(map[uint]Message, len(replyIDs))
	if len(replyIDs) > 0 {
		var found []Message
		if err := db.Where("id IN ?", replyIDs).Find(&found).Error; err != nil {
			return nil, err
		}
		for _, p := range found {
			parents[p.ID] = p
		}
	}

	userIDs := make([]uint, 0, len(msgs)+len(parents))
	for _, m := range msgs {
		userIDs = append(userIDs, m.UserID)
	}
	for _, p := range parents {
		userIDs = append(userIDs, p.UserID)
	}
	users := make(map[uint]User, len(userIDs))
	if err := s.loadUsers(db, users, userIDs...); err != nil {
		return nil, err
	}

	return s.displayAll(db, msgs, r.Slug, users, parents)
}

func (s *MessageStore) displayAll(db *gorm.DB, msgs []Message, slug string, users map[uint]User, parents map[uint]Message) ([]domain.DisplayRecord, error) {
	files, err := attachmentsOf(db, msgs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DisplayRecord, 0, len(msgs))
	for _, m := range msgs {
		rec := display(m, slug, users, parents, nil)
		rec.Attachments = files[m.ID]
		out = append(out, rec)
	}
	return out, nil
}

// Search returns up to SearchLimit messages of room whose content
// contains q, case-insensitively, newest first.
func (s *MessageStore) Search(ctx context.Context, room domain.RoomName, q string) ([]domain.DisplayRecord, error) {
	q = strings.TrimSpace(q)
	if err := domain.ValidateSearchQuery(q); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	r, err := roomByName(db, room)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	err = db.Where("room_id = ? AND LOWER(content) LIKE ? ESCAPE '\\'", r.ID, "%"+likeEscape(strings.ToLower(q))+"%").
		Order("id desc").
		Limit(SearchLimit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		userIDs = append(userIDs, m.UserID)
	}
	users := make(map[uint]User, len(userIDs))
	if err := s.loadUsers(db, users, userIDs...); err != nil {
		return nil, err
	}
	return s.displayAll(db, msgs, r.Slug, users, map[uint]Message{})
}

// Upload describes a file already written to storage.
type Upload struct {
	Filename         string
	OriginalFilename string
	URL              string
	Size             int64
	ContentType      string
}

// PersistUpload stores a message carrying one attachment. Unlike
// Persist it does not create the room.
func (s *MessageStore) PersistUpload(ctx context.Context, author domain.Identity, room domain.RoomName, content string, up Upload) (*domain.DisplayRecord, error) {
	var rec domain.DisplayRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := userByName(tx, author)
		if err != nil {
			return err
		}
		r, err := roomByName(tx, room)
		if err != nil {
			return err
		}
		msg := Message{RoomID: r.ID, UserID: user.ID, Content: content}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		att := Attachment{
			MessageID:        msg.ID,
			UserID:           user.ID,
			Filename:         up.Filename,
			OriginalFilename: up.OriginalFilename,
			FilePath:         up.URL,
			FileSize:         up.Size,
			ContentType:      up.ContentType,
		}
		if err := tx.Create(&att).Error; err != nil {
			return err
		}
		rec = display(msg, r.Slug, map[uint]User{user.ID: *user}, map[uint]Message{}, nil)
		rec.Attachments = []domain.Attachment{att.Domain()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (a Attachment) Domain() domain.Attachment {
	return domain.Attachment{
		ID:               int64(a.ID),
		OriginalFilename: a.OriginalFilename,
		FilePath:         a.FilePath,
		FileSize:         a.FileSize,
		ContentType:      a.ContentType,
	}
}

func attachmentsOf(db *gorm.DB, msgs []Message) (map[uint][]domain.Attachment, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	var found []Attachment
	if err := db.Where("message_id IN ?", ids).Order("id").Find(&found).Error; err != nil {
		return nil, err
	}
	out := make(map[uint][]domain.Attachment, len(found))
	for _, a := range found {
		out[a.MessageID] = append(out[a.MessageID], a.Domain())
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func likeEscape(s string) string {
	return likeEscaper.Replace(s)
}

func (s *MessageStore) roomBySlug(db *gorm.DB, slug domain.RoomName) (*Room, error) {
	var r Room
	err := db.Where(Room{Slug: string(slug)}).Attrs(Room{Name: string(slug)}).FirstOrCreate(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// loadUsers fills users with the given ids that are not in it yet.
func (s *MessageStore) loadUsers(db *gorm.DB, users map[uint]User, ids ...uint) error {
	missing := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := users[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}
	var found []User
	if err := db.Select("id", "username", "avatar_url").Where("id IN ?", missing).Find(&found).Error; err != nil {
		return err
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return nil
}

func display(m Message, slug string, users map[uint]User, parents map[uint]Message, reply *Message) domain.DisplayRecord {
	author := users[m.UserID]
	rec := domain.DisplayRecord{
		ID:        int64(m.ID),
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		Username:  domain.Identity(author.Username),
		RoomSlug:  domain.RoomName(slug),
		AvatarURL: author.AvatarURL,
	}
	if reply == nil && m.ReplyToID != nil {
		if p, ok := parents[*m.ReplyToID]; ok {
			reply = &p
		}
	}
	if reply != nil {
		rec.ReplyTo = &domain.ReplyContext{
			ID:       int64(reply.ID),
			Username: domain.Identity(users[reply.UserID].Username),
			Content:  reply.Content,
		}
	}
	return rec
}
