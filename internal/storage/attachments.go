package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllowedImageTypes lists the MIME types accepted for ticket attachments.
var AllowedImageTypes = []string{"image/jpeg", "image/png"}

// ErrUnsupportedType is returned when an attachment is not an allowed image.
var ErrUnsupportedType = errors.New("storage: unsupported attachment type")

// AttachmentStore persists uploaded files and returns their public URL.
type AttachmentStore interface {
	Store(ctx context.Context, filename string, data []byte, mimeType string) (string, error)
	Remove(ctx context.Context, url string) error
}

// CheckImage verifies both the declared and the detected content type
// belong to the allow-list. It returns the detected type.
func CheckImage(declared string, data []byte) (string, error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if !allowed(declared) {
		return "", fmt.Errorf("%w: declared %q", ErrUnsupportedType, declared)
	}
	detected := mimetype.Detect(data)
	if !allowed(detected.String()) {
		return "", fmt.Errorf("%w: detected %q", ErrUnsupportedType, detected.String())
	}
	return detected.String(), nil
}

func allowed(mime string) bool {
	for _, candidate := range AllowedImageTypes {
		if mime == candidate {
			return true
		}
	}
	return false
}

// LocalStore writes attachments under a directory served at a public prefix.
type LocalStore struct {
	dir    string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewLocalStore creates the upload directory if needed.
func NewLocalStore(dir, publicPrefix string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	prefix := "/" + strings.Trim(publicPrefix, "/")
	return &LocalStore{dir: dir, prefix: prefix, logger: logger, now: time.Now}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store writes data to disk. mimeType is only logged; callers validate with CheckImage.
func (s *LocalStore) Store(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := s.objectName(filename)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	s.logger.Debug("attachment stored", zap.String("file", name), zap.String("mime", mimeType), zap.Int("bytes", len(data)))
	return s.prefix + "/" + name, nil
}

// Remove deletes a file previously returned by Store. Missing files are ignored.
func (s *LocalStore) Remove(_ context.Context, url string) error {
	if !strings.HasPrefix(url, s.prefix+"/") {
		return fmt.Errorf("storage: url %q outside %s", url, s.prefix)
	}
	name := filepath.Base(strings.TrimPrefix(url, s.prefix+"/"))
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) objectName(filename string) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(filename), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	return fmt.Sprintf("ticket-%d-%s-%s", s.now().UnixMilli(), uuid.NewString()[:8], base)
}
