package store

import (
	"context"

	"github.com/dkeye/chatrelay/internal/domain"
	"gorm.io/gorm"
)

// DirectStore keeps private messages between two users.
type DirectStore struct {
	db *gorm.DB
}

func NewDirectStore(db *gorm.DB) *DirectStore {
	return &DirectStore{db: db}
}

func (s *DirectStore) Send(ctx context.Context, from, to domain.Identity, content string) (domain.DirectMessage, error) {
	if err := domain.ValidateDirectMessage(from, to, content); err != nil {
		return domain.DirectMessage{}, err
	}
	db := s.db.WithContext(ctx)
	sender, err := userByName(db, from)
	if err != nil {
		return domain.DirectMessage{}, err
	}
	receiver, err := userByName(db, to)
	if err != nil {
		return domain.DirectMessage{}, err
	}
	dm := DirectMessage{SenderID: sender.ID, ReceiverID: receiver.ID, Content: content}
	if err := db.Create(&dm).Error; err != nil {
		return domain.DirectMessage{}, err
	}
	return dm.display(from, to), nil
}

// Conversation returns the messages between me and other, oldest
// first, and marks the ones addressed to me as read.
func (s *DirectStore) Conversation(ctx context.Context, me, other domain.Identity) ([]domain.DirectMessage, error) {
	var out []domain.DirectMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		self, err := userByName(tx, me)
		if err != nil {
			return err
		}
		peer, err := userByName(tx, other)
		if err != nil {
			return err
		}

		var msgs []DirectMessage
		err = tx.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			self.ID, peer.ID, peer.ID, self.ID).
			Order("id").
			Find(&msgs).Error
		if err != nil {
			return err
		}

		err = tx.Model(&DirectMessage{}).
			Where("sender_id = ? AND receiver_id = ? AND is_read = ?", peer.ID, self.ID, false).
			Update("is_read", true).Error
		if err != nil {
			return err
		}

		out = make([]domain.DirectMessage, 0, len(msgs))
		for _, m := range msgs {
			if m.ReceiverID == self.ID {
				m.IsRead = true
				out = append(out, m.display(other, me))
			} else {
				out = append(out, m.display(me, other))
			}
		}
		return nil
	})
	return out, err
}

func (s *DirectStore) UnreadCount(ctx context.Context, me domain.Identity) (int64, error) {
	db := s.db.WithContext(ctx)
	self, err := userByName(db, me)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&DirectMessage{}).Where("receiver_id = ? AND is_read = ?", self.ID, false).Count(&n).Error
	return n, err
}

func (m DirectMessage) display(from, to domain.Identity) domain.DirectMessage {
	return domain.DirectMessage{
		ID:        int64(m.ID),
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		Sender:    from,
		Receiver:  to,
		IsRead:    m.IsRead,
	}
}
