package core

import (
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contextflow/contextflow/internal/store"
)

var SupportedExtensions = []string{".csv", ".txt", ".json", ".md", ".pdf", ".doc", ".docx", ".xlsx", ".xlsm", ".xls", ".ppt", ".pptx"}

// ValidationError is a user-facing rejection of input; nothing has been written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NewUploadedFile validates an upload and turns it into a file record.
// maxBytes <= 0 disables the size limit.
func NewUploadedFile(name string, content []byte, maxBytes int64, now time.Time) (*store.UploadedFile, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, validationErrorf("A file name is required.")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !isSupportedExtension(ext) {
		return nil, validationErrorf("Unsupported file format. Please upload one of: %s", strings.Join(SupportedExtensions, ", "))
	}
	if len(content) == 0 {
		return nil, validationErrorf("The file appears to be corrupted or empty.")
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, validationErrorf("The file is too large (%d bytes, limit %d).", len(content), maxBytes)
	}
	if ext == ".json" && !json.Valid(content) {
		return nil, validationErrorf("Corrupted JSON detected. Please check your file content.")
	}

	return &store.UploadedFile{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       detectMIMEType(ext),
		Size:       int64(len(content)),
		Content:    string(content),
		UploadDate: now,
		IsIndexed:  true,
	}, nil
}

func isSupportedExtension(ext string) bool {
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func detectMIMEType(ext string) string {
	mimeType := mime.TypeByExtension(ext)
	if idx := strings.Index(mimeType, ";"); idx > 0 {
		mimeType = mimeType[:idx]
	}
	if mimeType == "" {
		return "text/plain"
	}
	return mimeType
}
