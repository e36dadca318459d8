package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/bookstore/internal/apperr"
)

const (
	MaxImageSize = 5 << 20
	URLPrefix    = "/uploads"
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// ImageStore keeps uploaded images on local disk. Stored images are
// addressed by URL paths under URLPrefix.
type ImageStore struct {
	Dir string
}

func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageStore{Dir: dir}, nil
}

// Save copies src under a fresh name and returns its URL path.
func (s *ImageStore) Save(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: only jpg, jpeg, png and gif images are allowed", apperr.ErrValidation)
	}

	name := uuid.NewString() + ext
	full := filepath.Join(s.Dir, name)

	dst, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}

	n, err := io.Copy(dst, io.LimitReader(src, MaxImageSize+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxImageSize {
		err = fmt.Errorf("%w: image larger than 5MB", apperr.ErrValidation)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}

	return path.Join(URLPrefix, name), nil
}

// Delete removes the image behind a URL returned by Save. Unknown or
// already removed images are ignored.
func (s *ImageStore) Delete(url string) error {
	if !strings.HasPrefix(url, URLPrefix+"/") {
		return nil
	}
	name := path.Base(url)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
