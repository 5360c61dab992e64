// Package uploads writes user files (message attachments, avatars) to
// the local upload directory served under a URL prefix.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmpty       = errors.New("cannot upload empty file")
	ErrTooLarge    = errors.New("file too large")
	ErrUnsupported = errors.New("file type not allowed")
)

// Attachments are the types accepted in chat rooms.
var Attachments = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	"application/pdf", "application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain", "text/csv",
	"application/zip", "application/x-rar-compressed", "application/x-7z-compressed",
	"video/mp4", "video/mpeg", "video/webm",
	"audio/mpeg", "audio/wav", "audio/webm",
}

// Avatars are the image types accepted as profile pictures.
var Avatars = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Saved is a file written by Store.Save.
type Saved struct {
	Name        string
	Original    string
	URL         string
	Size        int64
	ContentType string
}

type Store struct {
	Dir       string
	URLPrefix string
}

func New(dir, urlPrefix string) *Store {
	return &Store{Dir: dir, URLPrefix: urlPrefix}
}

// Save copies fh into Dir/sub under a random name. The content type is
// detected from the file itself; the client's header is ignored.
func (s *Store) Save(sub string, fh *multipart.FileHeader, maxSize int64, allowed []string) (Saved, error) {
	if fh.Size == 0 {
		return Saved{}, ErrEmpty
	}
	if fh.Size > maxSize {
		return Saved{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, fh.Size, maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return Saved{}, err
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return Saved{}, err
	}
	if !accepted(mtype, allowed) {
		return Saved{}, fmt.Errorf("%w: %s", ErrUnsupported, mtype.String())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return Saved{}, err
	}

	dir := filepath.Join(s.Dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Saved{}, err
	}
	ext := filepath.Ext(fh.Filename)
	if ext == "" {
		ext = mtype.Extension()
	}
	name := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return Saved{}, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, maxSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxSize {
		err = fmt.Errorf("%w: limit %d", ErrTooLarge, maxSize)
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return Saved{}, err
	}

	log.Info().Str("module", "uploads").Str("file", name).Str("type", mtype.String()).Int64("size", n).Msg("stored upload")
	return Saved{
		Name:        name,
		Original:    filepath.Base(fh.Filename),
		URL:         path.Join(s.URLPrefix, sub, name),
		Size:        n,
		ContentType: mtype.String(),
	}, nil
}

func accepted(m *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if m.Is(a) {
			return true
		}
	}
	return false
}
