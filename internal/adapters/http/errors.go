package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/adapters/uploads"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusOf = []struct {
	err    error
	status int
}{
	{http.ErrMissingFile, http.StatusBadRequest},
	{http.ErrNotMultipart, http.StatusBadRequest},
	{store.ErrUserNotFound, http.StatusNotFound},
	{store.ErrRoomNotFound, http.StatusNotFound},
	{store.ErrCallRoomNotFound, http.StatusNotFound},
	{store.ErrNoPublicKey, http.StatusNotFound},
	{store.ErrRoomExists, http.StatusConflict},
	{store.ErrCallRoomExists, http.StatusConflict},
	{store.ErrAlreadyMember, http.StatusConflict},
	{store.ErrDefaultRoom, http.StatusBadRequest},
	{uploads.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{uploads.ErrUnsupported, http.StatusUnsupportedMediaType},
	{uploads.ErrEmpty, http.StatusBadRequest},
	{domain.ErrInvalidRoomName, http.StatusBadRequest},
	{domain.ErrInvalidRoomTitle, http.StatusBadRequest},
	{domain.ErrQueryTooShort, http.StatusBadRequest},
	{domain.ErrSelfMessage, http.StatusBadRequest},
	{domain.ErrEmptyMessage, http.StatusBadRequest},
	{domain.ErrMessageTooLong, http.StatusBadRequest},
	{domain.ErrInvalidTheme, http.StatusBadRequest},
	{domain.ErrPublicKeyEmpty, http.StatusBadRequest},
	{domain.ErrPublicKeyTooLong, http.StatusBadRequest},
}

// fail answers with the status matching err. Unknown errors are logged
// and reported as internal.
func fail(c *gin.Context, op string, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": uploads.ErrTooLarge.Error()})
		return
	}
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			c.JSON(s.status, gin.H{"error": err.Error()})
			return
		}
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Str("identity", string(identity(c))).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}
