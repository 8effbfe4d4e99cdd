// Package storage keeps uploaded recipe images on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// URLPrefix is the path under which stored images are served
const URLPrefix = "/uploads/"

// ErrForeignURL is returned by Delete for URLs this store did not produce
var ErrForeignURL = errors.New("image url not managed by this store")

// LocalStore writes images into a directory with random file names
type LocalStore struct {
	dir string
	log zerolog.Logger
}

// NewLocalStore creates the upload directory if needed
func NewLocalStore(dir string, log zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{
		dir: dir,
		log: log.With().Str("component", "storage").Logger(),
	}, nil
}

// Dir returns the directory images are written to
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save copies r into a new file and returns its public URL
func (s *LocalStore) Save(ctx context.Context, ext string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	filename := uuid.New().String() + ext
	filePath := filepath.Join(s.dir, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.log.Debug().Str("file", filename).Int64("size_bytes", n).Msg("Image stored")
	return URLPrefix + filename, nil
}

// Delete removes the file behind url; a missing file is not an error
func (s *LocalStore) Delete(url string) error {
	if !strings.HasPrefix(url, URLPrefix) {
		return ErrForeignURL
	}
	name := path.Base(strings.TrimPrefix(url, URLPrefix))
	if name == "." || name == "/" || name == ".." {
		return ErrForeignURL
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}
