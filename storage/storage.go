// Package storage archives sweep reports and page snapshots on the local filesystem
// or in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/linkscout/slug"
)

// Archive stores immutable documents under generated keys
type Archive interface {
	// Save stores data under kind/YYYY/MM/<slugged name><ext> and returns the key used
	Save(ctx context.Context, kind, name string, data []byte, contentType string) (string, error)
	// Read returns the document stored under key
	Read(ctx context.Context, key string) ([]byte, error)
}

var (
	_ Archive = (*Storage)(nil)
	_ Archive = (*S3Storage)(nil)
)

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// Save writes data to the filesystem. Existing files are never overwritten; a numeric
// suffix is appended instead. Returns the path relative to the base directory.
func (s *Storage) Save(ctx context.Context, kind, name string, data []byte, contentType string) (string, error) {
	dir, base, ext := objectPath(kind, name, contentType, time.Now())
	dirPath := filepath.Join(s.config.BasePath, filepath.FromSlash(dir))

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	filePath := filepath.Join(dirPath, base+ext)

	// Check if file already exists and make unique if necessary
	counter := 1
	for fileExists(filePath) {
		filePath = filepath.Join(dirPath, fmt.Sprintf("%s-%d%s", base, counter, ext))
		counter++
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", kind, err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// Read reads a stored file by its relative path
func (s *Storage) Read(ctx context.Context, relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.GetFullPath(relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, filepath.FromSlash(relPath))
}

// objectPath splits the key of a document into its directory, base name and extension
func objectPath(kind, name, contentType string, now time.Time) (dir, base, ext string) {
	dir = slug.Key(kind, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
	base = slug.GenerateWithFallback(name, "document")
	ext = extensionFromContentType(contentType)
	if ext == "" {
		ext = ".bin"
	}
	return dir, base, ext
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// extensionFromContentType returns the file extension for a content type
func extensionFromContentType(contentType string) string {
	// Normalize content type (remove charset, etc.)
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	contentType = strings.TrimSpace(contentType)

	switch contentType {
	case "application/json":
		return ".json"
	case "text/html":
		return ".html"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}
