package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// call sends an authenticated JSON request and decodes the response into out.
func (e *testEnv) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req, out)
}

// upload posts data as the multipart "file" field plus any extra fields.
func (e *testEnv) upload(t *testing.T, path, token, filename string, data []byte, fields map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return e.send(t, req, out)
}

func (e *testEnv) send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestAuthenticatedRoutesRequireIdentity(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.call(t, http.MethodGet, "/api/rooms", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, env.call(t, http.MethodGet, "/api/rooms", "not-a-token", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, env.call(t, http.MethodGet, "/api/users", "", nil, nil))
}

func TestRoomsAPI(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.tokenFor(t, "alice"), env.tokenFor(t, "bob")

	ws := env.dial(t, "general", alice)
	readUntil(t, ws, onlineIs("alice"))

	var list struct {
		Rooms []map[string]any `json:"rooms"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/rooms", alice, nil, &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "general", list.Rooms[0]["slug"])
	assert.EqualValues(t, 1, list.Rooms[0]["online"])

	ops := map[string]string{"name": "Ops", "slug": "ops"}
	assert.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/rooms", alice, ops, nil))
	assert.Equal(t, http.StatusConflict, env.call(t, http.MethodPost, "/api/rooms", alice, ops, nil))
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/api/rooms", alice,
		map[string]string{"name": "Bad", "slug": "bad slug"}, nil))

	bob := map[string]string{"username": "bob"}
	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/rooms/ops/invite", alice, bob, nil))
	assert.Equal(t, http.StatusConflict, env.call(t, http.MethodPost, "/api/rooms/ops/invite", alice, bob, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/rooms/ops/invite", alice,
		map[string]string{"username": "ghost"}, nil))

	var members struct {
		Members []map[string]any `json:"members"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/rooms/ops/members", alice, nil, &members))
	require.Len(t, members.Members, 2)
	assert.Equal(t, "alice", members.Members[0]["username"])
	assert.Equal(t, "bob", members.Members[1]["username"])

	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodDelete, "/api/rooms/general", alice, nil, nil))
	assert.Equal(t, http.StatusNoContent, env.call(t, http.MethodDelete, "/api/rooms/ops", alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodGet, "/api/rooms/ops/members", alice, nil, nil))
}

func TestSearchAndUpload(t *testing.T) {
	env := newTestEnv(t)
	alice := env.tokenFor(t, "alice")
	ws := env.dial(t, "general", alice)
	readUntil(t, ws, onlineIs("alice"))

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "message", "content": "Deploy tonight?"}))
	readUntil(t, ws, ofType("message"))

	var found struct {
		Count   int              `json:"count"`
		Results []map[string]any `json:"results"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/rooms/general/search?q=deploy", alice, nil, &found))
	assert.Equal(t, 1, found.Count)
	assert.Equal(t, "Deploy tonight?", found.Results[0]["content"])
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodGet, "/api/rooms/general/search?q=d", alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodGet, "/api/rooms/nowhere/search?q=deploy", alice, nil, nil))

	var up map[string]any
	require.Equal(t, http.StatusCreated, env.upload(t, "/api/rooms/general/upload", alice, "pixel.png", pngBytes, nil, &up))
	fileURL, _ := up["file_url"].(string)
	assert.True(t, strings.HasPrefix(fileURL, "/uploads/general/"), fileURL)

	msg := readUntil(t, ws, func(m map[string]any) bool { return m["type"] == "message" && m["content"] == "📎 pixel.png" })
	atts := msg["attachments"].([]any)
	require.Len(t, atts, 1)
	assert.Equal(t, "image/png", atts[0].(map[string]any)["content_type"])

	resp, err := http.Get(env.srv.URL + fileURL)
	require.NoError(t, err)
	served, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, pngBytes, served)

	require.Equal(t, http.StatusCreated, env.upload(t, "/api/rooms/general/upload", alice, "notes.txt",
		[]byte("minutes of the meeting\n"), map[string]string{"content": "notes"}, nil))
	readUntil(t, ws, func(m map[string]any) bool { return m["type"] == "message" && m["content"] == "notes" })

	assert.Equal(t, http.StatusNotFound, env.upload(t, "/api/rooms/nowhere/upload", alice, "pixel.png", pngBytes, nil, nil))
	assert.Equal(t, http.StatusBadRequest, env.upload(t, "/api/rooms/general/upload", alice, "empty.txt", nil, nil, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, env.upload(t, "/api/rooms/general/upload", alice, "big.txt",
		bytes.Repeat([]byte("a"), 1<<20+100), nil, nil))

	var hist struct {
		Messages []map[string]any `json:"messages"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, env.srv.URL+"/api/rooms/general/history", &hist))
	require.Len(t, hist.Messages, 3)
	assert.Len(t, hist.Messages[1]["attachments"], 1)
}

func TestDirectMessagesAPI(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.tokenFor(t, "alice"), env.tokenFor(t, "bob")

	var users struct {
		Users []map[string]any `json:"users"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/users", alice, nil, &users))
	require.Len(t, users.Users, 2)

	dm := map[string]string{"receiver_username": "bob", "content": "psst"}
	var sent map[string]any
	require.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/direct-message", alice, dm, &sent))
	assert.Equal(t, "alice", sent["sender_username"])

	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/api/direct-message", alice,
		map[string]string{"receiver_username": "alice", "content": "me"}, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/direct-message", alice,
		map[string]string{"receiver_username": "ghost", "content": "boo"}, nil))

	var unread map[string]int
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/unread-count", bob, nil, &unread))
	assert.Equal(t, 1, unread["unread_count"])

	var conv struct {
		Messages []map[string]any `json:"messages"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/direct-messages/alice", bob, nil, &conv))
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "psst", conv.Messages[0]["content"])
	assert.Equal(t, true, conv.Messages[0]["is_read"])

	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/unread-count", bob, nil, &unread))
	assert.Equal(t, 0, unread["unread_count"])
}

func TestProfileAPI(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.tokenFor(t, "alice"), env.tokenFor(t, "bob")

	var p map[string]any
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/profile/me", alice, nil, &p))
	assert.Equal(t, "dark", p["theme_preference"])
	assert.Equal(t, false, p["is_online"])

	require.Equal(t, http.StatusOK, env.call(t, http.MethodPut, "/api/profile/settings", alice,
		map[string]any{"theme_preference": "light"}, &p))
	assert.Equal(t, "light", p["theme_preference"])
	assert.Equal(t, true, p["notifications_enabled"])
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPut, "/api/profile/settings", alice,
		map[string]any{"theme_preference": "neon"}, nil))

	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodGet, "/api/profile/bob/public-key", alice, nil, nil))
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/api/profile/public-key", alice,
		map[string]string{"public_key": ""}, nil))
	require.Equal(t, http.StatusNoContent, env.call(t, http.MethodPost, "/api/profile/public-key", alice,
		map[string]string{"public_key": "AAAAC3NzaC1lZDI1NTE5"}, nil))
	var key map[string]string
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/profile/alice/public-key", alice, nil, &key))
	assert.Equal(t, "AAAAC3NzaC1lZDI1NTE5", key["public_key"])

	var avatar map[string]string
	require.Equal(t, http.StatusOK, env.upload(t, "/api/profile/avatar", alice, "me.png", pngBytes, nil, &avatar))
	assert.True(t, strings.HasPrefix(avatar["avatar_url"], "/uploads/avatars/"))
	assert.Equal(t, http.StatusUnsupportedMediaType, env.upload(t, "/api/profile/avatar", alice, "me.png",
		[]byte("definitely not a picture"), nil, nil))

	ws := env.dial(t, "general", alice)
	readUntil(t, ws, onlineIs("alice"))
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/profile/alice", alice, nil, &p))
	assert.Equal(t, avatar["avatar_url"], p["avatar_url"])
	assert.Equal(t, true, p["is_online"])
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodGet, "/api/profile/ghost", alice, nil, nil))
}

func TestCallRoomsAPI(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.tokenFor(t, "alice"), env.tokenFor(t, "bob")

	assert.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/call-rooms", alice,
		map[string]any{"name": "Lobby", "slug": "lobby", "is_public": true}, nil))
	var secret map[string]any
	require.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/call-rooms", alice,
		map[string]any{"name": "Secret", "slug": "secret"}, &secret))
	assert.Equal(t, false, secret["is_public"])
	assert.Equal(t, "alice", secret["created_by"])
	assert.Equal(t, http.StatusConflict, env.call(t, http.MethodPost, "/api/call-rooms", bob,
		map[string]any{"name": "Lobby", "slug": "lobby"}, nil))

	type saved struct {
		CallRooms []map[string]any `json:"call_rooms"`
	}
	var list saved
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/call-rooms/saved", bob, nil, &list))
	require.Len(t, list.CallRooms, 1)
	assert.Equal(t, "lobby", list.CallRooms[0]["slug"])

	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/call-rooms/secret/invite/bob", alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/call-rooms/secret/invite/ghost", alice, nil, nil))

	ws := env.dial(t, "general", bob)
	readUntil(t, ws, onlineIs("bob"))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "call-room-join", "callRoom": "secret"}))
	require.Eventually(t, func() bool {
		return len(env.orch.Calls.Participants("secret")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	list = saved{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/call-rooms/saved", bob, nil, &list))
	require.Len(t, list.CallRooms, 2)
	assert.Equal(t, "secret", list.CallRooms[1]["slug"])
	assert.EqualValues(t, 2, list.CallRooms[1]["member_count"])
	assert.Equal(t, []any{"bob"}, list.CallRooms[1]["active_members"])
	assert.Equal(t, []any{}, list.CallRooms[0]["active_members"])

	var live map[string][]map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, env.srv.URL+"/api/call-rooms", &live))
	require.Len(t, live["call_rooms"], 1)
	assert.Equal(t, "secret", live["call_rooms"][0]["name"])

	var members struct {
		Members []map[string]any `json:"members"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/call-rooms/secret/members", alice, nil, &members))
	assert.Len(t, members.Members, 2)

	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/call-rooms/secret/leave", bob, nil, nil))
	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/call-rooms/lobby/join", bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/call-rooms/nowhere/join", bob, nil, nil))

	list = saved{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/api/call-rooms/saved", bob, nil, &list))
	require.Len(t, list.CallRooms, 1)
	assert.EqualValues(t, 2, list.CallRooms[0]["member_count"])
}
