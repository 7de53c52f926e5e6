package media_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"snapsync/internal/config"
	"snapsync/internal/media"
	"snapsync/internal/services"
)

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

func TestInspectDetectsPNG(t *testing.T) {
	path := writePNG(t, t.TempDir(), "shot.png")

	photo, err := media.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if photo.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", photo.MimeType)
	}
	if photo.SizeBytes == 0 {
		t.Fatal("expected non-zero size")
	}
	if photo.FileName != "shot.png" {
		t.Fatalf("unexpected file name %q", photo.FileName)
	}
	if photo.CaptureTime.IsZero() {
		t.Fatal("expected capture time from mtime")
	}
}

func TestInspectMissingFile(t *testing.T) {
	_, err := media.Inspect(filepath.Join(t.TempDir(), "absent.jpg"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsOversize(t *testing.T) {
	path := writePNG(t, t.TempDir(), "big.png")
	photo, err := media.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	rules := config.Validation{MaxFileBytes: 1, AllowedMimeTypes: []string{"image/png"}}
	if err := photo.Validate(rules); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("plain text, not a photo"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	photo, err := media.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	rules := config.Default().Validation
	if err := photo.Validate(rules); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateAcceptsAllowedPhoto(t *testing.T) {
	path := writePNG(t, t.TempDir(), "ok.png")
	photo, err := media.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if err := photo.Validate(config.Default().Validation); err != nil {
		t.Fatalf("expected photo to pass validation: %v", err)
	}
}
