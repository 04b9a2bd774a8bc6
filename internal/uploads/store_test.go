package uploads

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agromind/internal/errors"
	"agromind/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, maxMB int) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewStore(models.UploadsConfig{Dir: filepath.Join(t.TempDir(), "uploads"), MaxSizeMB: maxMB}, logger)
	require.NoError(t, err)
	return store
}

func pngBytes(t *testing.T, size int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))))
	return buf.Bytes()
}

func TestStore_Save(t *testing.T) {
	store := setupTestStore(t, 1)
	data := pngBytes(t, 8)

	ref, err := store.Save(bytes.NewReader(data), "leaf.png", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	stored, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(ref, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	other, err := store.Save(bytes.NewReader(data), "leaf.png", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, ref, other, "every upload gets a fresh name")
}

func TestStore_SaveUsesContentTypeWithoutExtension(t *testing.T) {
	store := setupTestStore(t, 1)

	ref, err := store.Save(bytes.NewReader(pngBytes(t, 4)), "blob", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"))
}

func TestStore_SaveRejects(t *testing.T) {
	store := setupTestStore(t, 1)

	tests := []struct {
		name     string
		data     []byte
		filename string
	}{
		{"disallowed extension", pngBytes(t, 4), "notes.pdf"},
		{"not an image", []byte("hello, this is plain text"), "fake.png"},
		{"empty", nil, "empty.png"},
		{"too large", append(pngBytes(t, 4), make([]byte, 2<<20)...), "huge.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(bytes.NewReader(tt.data), tt.filename, "")
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestStore_CleanupOldFiles(t *testing.T) {
	store := setupTestStore(t, 1)

	oldPath := filepath.Join(store.Dir(), "old.png")
	newPath := filepath.Join(store.Dir(), "new.png")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(newPath, []byte("x"), 0600))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed, err := store.CleanupOldFiles(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, newPath)
}
