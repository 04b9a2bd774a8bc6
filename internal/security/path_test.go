package security

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative file", "agromind.db", false},
		{"nested relative", "data/agromind.db", false},
		{"absolute", "/var/lib/agromind/agromind.db", false},
		{"empty", "", true},
		{"traversal", "../etc/passwd", true},
		{"embedded traversal", "data/../../secret.db", true},
		{"nul byte", "data\x00.db", true},
		{"dots in name", "my..db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveWithinBase(t *testing.T) {
	base := t.TempDir()

	path, err := ResolveWithinBase(base, "leaf.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "leaf.jpg"), path)

	for _, name := range []string{"", ".", "..", "../x.jpg", "a/b.jpg", `a\b.jpg`, "x\x00.jpg"} {
		_, err := ResolveWithinBase(base, name)
		assert.Error(t, err, "name %q should be rejected", name)
	}
}
