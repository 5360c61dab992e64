package store

import (
	"context"
	"testing"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsersJoinGeneral(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice")
	rooms := NewRoomStore(db)

	mine, err := rooms.ListFor(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.GeneralRoom, mine[0].Slug)
}

func TestRoomLifecycle(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice", "bob")
	rooms := NewRoomStore(db)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	r, err := rooms.Create(ctx, "alice", "Ops", "ops")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("ops"), r.Slug)
	got, err := rooms.Get(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = rooms.Create(ctx, "bob", "Ops again", "ops")
	assert.ErrorIs(t, err, ErrRoomExists)
	_, err = rooms.Create(ctx, "bob", "Bad", "bad slug")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomName)
	_, err = rooms.Create(ctx, "bob", "", "empty-title")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomTitle)

	members, err := rooms.Members(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{{Username: "alice"}}, members)

	require.NoError(t, rooms.Invite(ctx, "ops", "bob"))
	assert.ErrorIs(t, rooms.Invite(ctx, "ops", "bob"), ErrAlreadyMember)
	assert.ErrorIs(t, rooms.Invite(ctx, "ops", "ghost"), ErrUserNotFound)
	assert.ErrorIs(t, rooms.Invite(ctx, "nowhere", "bob"), ErrRoomNotFound)

	members, err = rooms.Members(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{{Username: "alice"}, {Username: "bob"}}, members)

	bobs, err := rooms.ListFor(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, domain.GeneralRoom, bobs[0].Slug)
	assert.Equal(t, domain.RoomName("ops"), bobs[1].Slug)

	_, err = msgs.Persist(ctx, "alice", "ops", "standup at 10", nil)
	require.NoError(t, err)

	require.NoError(t, rooms.Delete(ctx, "ops"))
	assert.ErrorIs(t, rooms.Delete(ctx, "ops"), ErrRoomNotFound)
	_, err = rooms.Get(ctx, "ops")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, rooms.Delete(ctx, domain.GeneralRoom), ErrDefaultRoom)

	var left int64
	require.NoError(t, db.Model(&Message{}).Count(&left).Error)
	assert.Zero(t, left)
	bobs, err = rooms.ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}
