// Package media stores uploaded files on the local filesystem. Files are
// validated (MIME allow-list, size cap) before any bytes reach the upload
// directory and are written under generated collision-resistant names.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// MaxBatchSize caps the number of files accepted in one multi-upload.
const MaxBatchSize = 10

// Validation and lookup failures surfaced to the HTTP boundary.
var (
	ErrInvalidFileType = errors.New("media: file type not allowed")
	ErrTooLarge        = errors.New("media: file too large")
	ErrTooManyFiles    = errors.New("media: too many files")
	ErrNotFound        = errors.New("media: file not found")
)

// FileInfo describes a stored upload. Blog posts reference uploads by
// filename only; the file itself stays owned by this store.
type FileInfo struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalname,omitempty"`
	Mimetype     string    `json:"mimetype,omitempty"`
	Size         int64     `json:"size"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	URL          string    `json:"url,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Store owns the upload directory.
type Store struct {
	dir     string
	allowed map[string]struct{}
	maxSize int64
	logger  *zap.Logger
}

// NewStore creates the upload directory if needed. allowedTypes defaults to
// the usual web image set; maxSize defaults to 10MB.
func NewStore(dir string, allowedTypes []string, maxSize int64, logger *zap.Logger) (*Store, error) {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Store{dir: dir, allowed: allowed, maxSize: maxSize, logger: logger}, nil
}

// Dir returns the root of the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Validate checks declared type and size without touching the filesystem.
// Callers run it over a whole batch before persisting anything.
func (s *Store) Validate(declaredType string, size int64) error {
	if size > s.maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, s.maxSize)
	}
	if _, ok := s.allowed[normalizeType(declaredType)]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFileType, declaredType)
	}
	return nil
}

// StoreOne validates and persists a single upload. The content is sniffed
// as well: a disallowed payload with an allow-listed declared type is still
// rejected before any write.
func (s *Store) StoreOne(originalName, declaredType string, size int64, r io.Reader) (FileInfo, error) {
	if err := s.Validate(declaredType, size); err != nil {
		return FileInfo{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return FileInfo{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return FileInfo{}, fmt.Errorf("%w: stream exceeds %d bytes", ErrTooLarge, s.maxSize)
	}
	sniffed := normalizeType(http.DetectContentType(data))
	if _, ok := s.allowed[sniffed]; !ok {
		return FileInfo{}, fmt.Errorf("%w: content sniffed as %s", ErrInvalidFileType, sniffed)
	}

	filename := s.generateName(originalName)
	// Direct write, no temp-and-rename: a concurrent reader may observe a
	// partial file. Acceptable for admin-uploaded images.
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return FileInfo{}, fmt.Errorf("write upload: %w", err)
	}

	info := FileInfo{
		Filename:     filename,
		OriginalName: originalName,
		Mimetype:     sniffed,
		Size:         int64(len(data)),
		UploadedAt:   time.Now().UTC(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info, nil
}

// Get returns filesystem metadata for a stored file.
func (s *Store) Get(filename string) (FileInfo, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return FileInfo{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("stat upload: %w", err)
	}
	return FileInfo{
		Filename:   filename,
		Size:       stat.Size(),
		UploadedAt: stat.ModTime().UTC(),
	}, nil
}

// List returns metadata for every stored file.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Filename:   entry.Name(),
			Size:       stat.Size(),
			UploadedAt: stat.ModTime().UTC(),
		})
	}
	return infos, nil
}

// Delete removes a stored file. Missing files report ErrNotFound so the
// caller can treat repeat deletes as a no-op.
func (s *Store) Delete(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// resolve confines filename to the upload directory.
func (s *Store) resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, filename), nil
}

// generateName builds a collision-resistant name: fixed prefix, timestamp,
// random suffix, original extension.
func (s *Store) generateName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("blog-%d-%s%s", time.Now().UnixMilli(), suffix, ext)
}

func normalizeType(t string) string {
	if i := strings.Index(t, ";"); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
