// Package images stores generated images on local disk and serves
// them over HTTP.
package images

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes image bytes under a directory and returns the URL path
// they are served at.
type Store struct {
	dir       string
	urlPrefix string
}

// NewStore creates the image directory if needed. urlPrefix is the
// mount path of Handler, such as "/images".
func NewStore(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Store{dir: dir, urlPrefix: urlPrefix}, nil
}

// Save writes the image and returns its public URL path.
func (s *Store) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + extensionFor(mimeType)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}

	return s.urlPrefix + "/" + name, nil
}

// Handler serves the stored images.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix+"/", http.FileServer(http.Dir(s.dir)))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
