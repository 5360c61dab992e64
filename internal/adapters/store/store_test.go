package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, names ...string) {
	t.Helper()
	users := NewUserStore(db)
	for _, n := range names {
		_, err := users.Create(context.Background(), n, "hash")
		require.NoError(t, err)
	}
}

func TestUserStore(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserStore(db)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = users.Create(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	found, err := users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = users.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	ok, err := users.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPersistAndHistory(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice", "bob")
	msgs := NewMessageStore(db)
	ctx := context.Background()

	first, err := msgs.Persist(ctx, "alice", "general", "question?", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(first.Username))
	assert.Equal(t, "general", string(first.RoomSlug))
	assert.Nil(t, first.ReplyTo)

	replyID := first.ID
	second, err := msgs.Persist(ctx, "bob", "general", "answer", &replyID)
	require.NoError(t, err)
	require.NotNil(t, second.ReplyTo)
	assert.Equal(t, first.ID, second.ReplyTo.ID)
	assert.Equal(t, "alice", string(second.ReplyTo.Username))
	assert.Equal(t, "question?", second.ReplyTo.Content)

	_, err = msgs.Persist(ctx, "alice", "random", "elsewhere", nil)
	require.NoError(t, err)

	hist, err := msgs.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "question?", hist[0].Content)
	assert.Equal(t, "answer", hist[1].Content)
	require.NotNil(t, hist[1].ReplyTo)
	assert.Equal(t, "alice", string(hist[1].ReplyTo.Username))
}

func TestPersistReplyAcrossRoomsDropsLink(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	msgs := NewMessageStore(db)
	ctx := context.Background()

	other, err := msgs.Persist(ctx, "alice", "random", "over here", nil)
	require.NoError(t, err)

	rec, err := msgs.Persist(ctx, "alice", "general", "reply", &other.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.ReplyTo)
}

func TestPersistUnknownAuthor(t *testing.T) {
	db := setupTestDB(t)
	msgs := NewMessageStore(db)

	_, err := msgs.Persist(context.Background(), "ghost", "general", "boo", nil)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHistoryLimit(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	msgs := NewMessageStore(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := msgs.Persist(ctx, "alice", "general", fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	hist, err := msgs.History(ctx, "general", 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "m2", hist[0].Content)
	assert.Equal(t, "m4", hist[2].Content)

	empty, err := msgs.History(ctx, "nowhere", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPresenceStore(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	presence := NewPresenceStore(db)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, presence.MarkOnline(ctx, "alice", at))
	var u User
	require.NoError(t, db.Where("username = ?", "alice").First(&u).Error)
	assert.True(t, u.IsOnline)
	require.NotNil(t, u.LastSeen)
	assert.True(t, at.Equal(*u.LastSeen))

	require.NoError(t, presence.MarkOffline(ctx, "alice", at.Add(time.Minute)))
	require.NoError(t, db.Where("username = ?", "alice").First(&u).Error)
	assert.False(t, u.IsOnline)

	assert.ErrorIs(t, presence.MarkOnline(ctx, "ghost", at), ErrUserNotFound)
}

func TestHistorySurvivesCanceledCaller(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	msgs := NewMessageStore(db)
	_, err := msgs.Persist(context.Background(), "alice", "general", "still here", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hist, err := msgs.History(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "still here", hist[0].Content)
}

func TestSearch(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice", "bob")
	msgs := NewMessageStore(db)
	ctx := context.Background()

	for _, m := range []struct{ who, room, text string }{
		{"alice", "general", "Deploy tonight?"},
		{"bob", "general", "no deploy, tomorrow"},
		{"bob", "general", "lunch"},
		{"alice", "random", "deploy memes"},
		{"alice", "general", "100% done_now"},
	} {
		_, err := msgs.Persist(ctx, domain.Identity(m.who), domain.RoomName(m.room), m.text, nil)
		require.NoError(t, err)
	}

	got, err := msgs.Search(ctx, "general", "DEPLOY")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "no deploy, tomorrow", got[0].Content, "newest first")
	assert.Equal(t, "Deploy tonight?", got[1].Content)
	assert.Equal(t, "alice", string(got[1].Username))

	got, err = msgs.Search(ctx, "general", "0%")
	require.NoError(t, err)
	require.Len(t, got, 1, "wildcards match literally")

	_, err = msgs.Search(ctx, "general", " d ")
	assert.ErrorIs(t, err, domain.ErrQueryTooShort)
	_, err = msgs.Search(ctx, "nowhere", "deploy")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPersistUploadShowsInHistory(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	msgs := NewMessageStore(db)
	ctx := context.Background()

	rec, err := msgs.PersistUpload(ctx, "alice", "general", "see attached", Upload{
		Filename:         "abc.pdf",
		OriginalFilename: "report.pdf",
		URL:              "/uploads/general/abc.pdf",
		Size:             1234,
		ContentType:      "application/pdf",
	})
	require.NoError(t, err)
	require.Len(t, rec.Attachments, 1)
	assert.Equal(t, "report.pdf", rec.Attachments[0].OriginalFilename)

	hist, err := msgs.History(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Len(t, hist[0].Attachments, 1)
	assert.Equal(t, "/uploads/general/abc.pdf", hist[0].Attachments[0].FilePath)
	assert.Equal(t, int64(1234), hist[0].Attachments[0].FileSize)

	_, err = msgs.PersistUpload(ctx, "alice", "nowhere", "x", Upload{})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestProfile(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice", "bob")
	users := NewUserStore(db)
	ctx := context.Background()

	p, err := users.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "dark", p.ThemePreference)
	assert.True(t, p.NotificationsEnabled)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.PublicKey)

	light, off := "light", false
	p, err = users.UpdateSettings(ctx, "alice", domain.Settings{ThemePreference: &light, NotificationsEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, "light", p.ThemePreference)
	assert.False(t, p.NotificationsEnabled)

	neon := "neon"
	_, err = users.UpdateSettings(ctx, "alice", domain.Settings{ThemePreference: &neon})
	assert.ErrorIs(t, err, domain.ErrInvalidTheme)

	_, err = users.PublicKey(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoPublicKey)
	require.NoError(t, users.SetPublicKey(ctx, "alice", `{"kty":"EC","crv":"P-256"}`))
	key, err := users.PublicKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, `{"kty":"EC","crv":"P-256"}`, key)
	assert.ErrorIs(t, users.SetPublicKey(ctx, "ghost", "k"), ErrUserNotFound)

	require.NoError(t, users.SetAvatar(ctx, "bob", "/uploads/avatars/b.png"))
	list, err := users.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{
		{Username: "alice"},
		{Username: "bob", AvatarURL: "/uploads/avatars/b.png"},
	}, list)
}

func TestPresenceStatus(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	presence := NewPresenceStore(db)
	ctx := context.Background()

	st, err := presence.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Nil(t, st.LastSeen)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, presence.MarkOnline(ctx, "alice", at))
	st, err = presence.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Online)
	require.NotNil(t, st.LastSeen)
	assert.True(t, at.Equal(*st.LastSeen))

	_, err = presence.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
