package store

import "time"

type User struct {
	ID                   uint    `gorm:"primaryKey"`
	Username             string  `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash         string  `gorm:"not null"`
	AvatarURL            string  `gorm:"size:255"`
	ThemePreference      string  `gorm:"size:16;not null;default:dark"`
	NotificationsEnabled bool    `gorm:"not null;default:true"`
	PublicKey            *string `gorm:"type:text"`
	IsActive             bool    `gorm:"not null;default:true"`
	IsOnline             bool    `gorm:"not null;default:false"`
	LastSeen             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Room struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:128;not null"`
	Slug        string `gorm:"uniqueIndex;size:64;not null"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
}

type RoomMember struct {
	ID       uint `gorm:"primaryKey"`
	RoomID   uint `gorm:"uniqueIndex:idx_room_member;not null"`
	UserID   uint `gorm:"uniqueIndex:idx_room_member;index;not null"`
	JoinedAt time.Time
}

type Message struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    uint   `gorm:"index:idx_msg_room_id;not null"`
	UserID    uint   `gorm:"index;not null"`
	Content   string `gorm:"type:text;not null"`
	ReplyToID *uint  `gorm:"index"`
	CreatedAt time.Time
}

type Attachment struct {
	ID               uint   `gorm:"primaryKey"`
	MessageID        uint   `gorm:"index;not null"`
	UserID           uint   `gorm:"not null"`
	Filename         string `gorm:"size:255;not null"`
	OriginalFilename string `gorm:"size:255;not null"`
	FilePath         string `gorm:"size:512;not null"`
	FileSize         int64  `gorm:"not null"`
	ContentType      string `gorm:"size:128;not null"`
	CreatedAt        time.Time
}

type DirectMessage struct {
	ID         uint   `gorm:"primaryKey"`
	SenderID   uint   `gorm:"index:idx_dm_pair;not null"`
	ReceiverID uint   `gorm:"index:idx_dm_pair;index:idx_dm_unread;not null"`
	Content    string `gorm:"type:text;not null"`
	IsRead     bool   `gorm:"index:idx_dm_unread;not null;default:false"`
	CreatedAt  time.Time
}

type CallRoom struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	Slug      string `gorm:"uniqueIndex;size:64;not null"`
	CreatedBy *uint
	IsPublic  bool `gorm:"not null"`
	CreatedAt time.Time
}

type CallRoomMember struct {
	CallRoomID uint `gorm:"primaryKey"`
	UserID     uint `gorm:"primaryKey"`
	JoinedAt   time.Time
}
