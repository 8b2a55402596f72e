package images

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStore_Save(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewStore(dir, "/images")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	url, err := s.Save(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(url, "/images/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/images/")))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("file content = %q", data)
	}
}

func TestStore_SaveExtensionByMIME(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	tests := []struct {
		mime string
		ext  string
	}{
		{"image/jpeg", ".jpg"},
		{"image/webp", ".webp"},
		{"image/png", ".png"},
		{"", ".png"},
	}
	for _, tt := range tests {
		url, err := s.Save(context.Background(), []byte("x"), tt.mime)
		if err != nil {
			t.Fatalf("Save(%q) error = %v", tt.mime, err)
		}
		if !strings.HasSuffix(url, tt.ext) {
			t.Errorf("Save(%q) url = %q, want suffix %q", tt.mime, url, tt.ext)
		}
	}
}

func TestStore_Handler(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	url, err := s.Save(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", url, nil)
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("GET %s = %d", url, rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
