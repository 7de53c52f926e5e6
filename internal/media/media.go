// Package media describes source photos and validates them before they are
// admitted to the upload queue.
package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/services"
)

// sniffLen matches the amount http.DetectContentType inspects.
const sniffLen = 512

// Photo captures the metadata snapsync records about a source file before
// hashing. CaptureTime falls back to the filesystem modification time when no
// richer source is available.
type Photo struct {
	Path        string
	FileName    string
	SizeBytes   int64
	MimeType    string
	CaptureTime time.Time
}

// Inspect stats and sniffs path, returning the photo metadata. It does not
// validate; callers pass the result to Validate with their configured limits.
func Inspect(path string) (*Photo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "inspect", "resolve path", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "inspect", "stat source file", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "media", "inspect", fmt.Sprintf("%s is a directory", abs), nil)
	}

	mimeType, err := sniffMimeType(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "inspect", "detect content type", err)
	}

	return &Photo{
		Path:        abs,
		FileName:    filepath.Base(abs),
		SizeBytes:   info.Size(),
		MimeType:    mimeType,
		CaptureTime: info.ModTime().UTC(),
	}, nil
}

// Validate rejects photos that violate the configured admission rules. Errors
// carry services.ErrValidation so callers can distinguish rejection from
// infrastructure failure.
func (p *Photo) Validate(rules config.Validation) error {
	if p.SizeBytes == 0 {
		return services.Wrap(services.ErrValidation, "media", "validate", fmt.Sprintf("%s is empty", p.FileName), nil)
	}
	if p.SizeBytes > rules.MaxFileBytes {
		return services.Wrap(services.ErrValidation, "media", "validate",
			fmt.Sprintf("%s is %d bytes, above the %d byte limit", p.FileName, p.SizeBytes, rules.MaxFileBytes), nil)
	}
	if !mimeAllowed(p.MimeType, rules.AllowedMimeTypes) {
		return services.Wrap(services.ErrValidation, "media", "validate",
			fmt.Sprintf("%s has unsupported type %s", p.FileName, p.MimeType), nil)
	}
	return nil
}

func sniffMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}

	detected := http.DetectContentType(buf[:n])
	if mediaType, _, found := strings.Cut(detected, ";"); found {
		detected = mediaType
	}
	return strings.TrimSpace(strings.ToLower(detected)), nil
}

func mimeAllowed(mimeType string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), mimeType) {
			return true
		}
	}
	return false
}
