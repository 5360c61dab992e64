// Package store holds the gorm-backed persistence used by the relay:
// users and profiles, rooms and their members, chat history with
// attachments, direct messages, call rooms and the coarse presence flag.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameTaken    = errors.New("username taken")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room with this slug already exists")
	ErrAlreadyMember    = errors.New("user is already a member of this room")
	ErrDefaultRoom      = errors.New("default rooms cannot be deleted")
	ErrCallRoomNotFound = errors.New("call room not found")
	ErrCallRoomExists   = errors.New("call room with this slug already exists")
	ErrNoPublicKey      = errors.New("user has no public key")
)

// Open connects to the configured database. Postgres gets a few retries
// to wait for a container that is still starting.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch driver {
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// one connection keeps ":memory:" databases shared and serialises writers
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	case "postgres":
		var lastErr error
		for i := 0; i < 10; i++ {
			gdb, err := gorm.Open(postgres.Open(dsn), cfg)
			if err == nil {
				sqlDB, err := gdb.DB()
				if err == nil {
					sqlDB.SetMaxIdleConns(5)
					sqlDB.SetMaxOpenConns(20)
					sqlDB.SetConnMaxLifetime(time.Hour)
					return gdb, nil
				}
				lastErr = err
			} else {
				lastErr = err
			}
			log.Warn().Err(lastErr).Str("module", "store").Int("attempt", i+1).Msg("postgres not ready")
			time.Sleep(time.Duration(500+i*200) * time.Millisecond)
		}
		return nil, fmt.Errorf("open postgres: %w", lastErr)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates the schema and the default rooms.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&User{}, &Room{}, &RoomMember{}, &Message{}, &Attachment{},
		&DirectMessage{}, &CallRoom{}, &CallRoomMember{},
	)
	if err != nil {
		return err
	}
	for _, r := range domain.DefaultRooms {
		room := Room{Slug: string(r.Slug), Name: r.Name, Description: r.Description}
		if err := gdb.Where(Room{Slug: room.Slug}).Attrs(room).FirstOrCreate(&room).Error; err != nil {
			return fmt.Errorf("default room %s: %w", r.Slug, err)
		}
	}
	return nil
}
