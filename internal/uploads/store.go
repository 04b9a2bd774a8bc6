package uploads

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/models"
	"agromind/internal/security"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store keeps uploaded message images on local disk under a random name.
// Images are served back from constants.UploadsURLPrefix.
type Store struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
	logger   *logrus.Logger
}

func NewStore(cfg models.UploadsConfig, logger *logrus.Logger) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = constants.DefaultUploadsDir
	}
	if err := security.ValidateFilePath(dir); err != nil {
		return nil, errors.NewConfigError("uploads.dir", err.Error())
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.NewUploadError("create directory", err)
	}

	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = constants.DefaultMaxImageSizeMB
	}

	types := cfg.AllowedTypes
	if len(types) == 0 {
		types = constants.DefaultImageTypes
	}
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[strings.ToLower(strings.TrimPrefix(t, "."))] = true
	}

	return &Store{
		dir:      dir,
		maxBytes: int64(maxMB) * constants.BytesPerMegabyte,
		allowed:  allowed,
		logger:   logger,
	}, nil
}

// Dir returns the directory images are written to
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes is the largest accepted image
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save writes an image and returns its public reference, e.g.
// "/uploads/3f0c...9a.png". Non-image content, disallowed extensions and
// oversized files are rejected as validation errors.
func (s *Store) Save(r io.Reader, filename, contentType string) (string, error) {
	ext := s.extension(filename, contentType)
	if !s.allowed[ext] {
		return "", errors.NewValidationError("image", filename, fmt.Sprintf("file type .%s is not allowed", ext))
	}

	br := bufio.NewReader(io.LimitReader(r, s.maxBytes+1))
	head, _ := br.Peek(512)
	if len(head) == 0 {
		return "", errors.NewValidationError("image", filename, "image is empty")
	}
	if sniffed := http.DetectContentType(head); !strings.HasPrefix(sniffed, "image/") {
		return "", errors.NewValidationError("image", filename, "file is not an image")
	}

	name := uuid.NewString() + "." + ext
	path, err := security.ResolveWithinBase(s.dir, name)
	if err != nil {
		return "", errors.NewUploadError("resolve path", err)
	}

	tmp, err := os.CreateTemp(s.dir, "upload_*")
	if err != nil {
		return "", errors.NewUploadError("create file", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, br)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", errors.NewUploadError("write file", err)
	}
	if written > s.maxBytes {
		return "", errors.NewValidationError("image", filename,
			fmt.Sprintf("image too large (max %d MB)", s.maxBytes/constants.BytesPerMegabyte))
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.NewUploadError("store file", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_name":  name,
		"size_bytes": written,
	}).Debug("Image stored")

	return constants.UploadsURLPrefix + name, nil
}

// CleanupOldFiles removes stored images older than maxAge
func (s *Store) CleanupOldFiles(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read uploads directory: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("failed to get file info: %w", err)
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove old file: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

func (s *Store) extension(filename, contentType string) string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")); ext != "" {
		return ext
	}
	for _, ext := range constants.DefaultImageTypes {
		if s.allowed[ext] && constants.ImageMimeTypes["."+ext] == contentType {
			return ext
		}
	}
	return constants.DefaultImageExtension
}
