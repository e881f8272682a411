package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploadedFile(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	f, err := NewUploadedFile("reports/Q1.CSV", []byte("a,b\n1,2"), 0, now)
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "Q1.CSV", f.Name)
	assert.Equal(t, int64(7), f.Size)
	assert.Equal(t, "a,b\n1,2", f.Content)
	assert.True(t, f.IsIndexed)
	assert.Equal(t, now, f.UploadDate)
	assert.NotEmpty(t, f.Type)
}

func TestNewUploadedFile_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		file     string
		content  string
		maxBytes int64
		want     string
	}{
		{"unsupported extension", "image.png", "data", 0, "Unsupported file format"},
		{"no extension", "README", "data", 0, "Unsupported file format"},
		{"empty", "notes.txt", "", 0, "corrupted or empty"},
		{"too large", "notes.txt", "0123456789", 5, "too large"},
		{"corrupted json", "data.json", `{"a": `, 0, "Corrupted JSON"},
		{"no name", "  ", "data", 0, "file name is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewUploadedFile(tc.file, []byte(tc.content), tc.maxBytes, time.Now())
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Msg, tc.want)
		})
	}
}

func TestNewUploadedFile_ValidJSON(t *testing.T) {
	f, err := NewUploadedFile("data.json", []byte(`{"a": [1, 2]}`), 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "application/json", f.Type)
}

func TestDetectMIMEType_Fallback(t *testing.T) {
	assert.Equal(t, "text/plain", detectMIMEType(".nosuchext"))
	assert.Equal(t, "application/json", detectMIMEType(".json"))
}
