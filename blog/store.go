// Package blog persists the post collection as a single JSON file. Every
// mutation is a whole-collection read-modify-write guarded by one mutex, so
// concurrent admin writes serialize instead of losing updates.
package blog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nordmedica/siteapi/media"
)

// Failures surfaced to the HTTP boundary.
var (
	ErrNotFound     = errors.New("blog: post not found")
	ErrInvalidInput = errors.New("blog: title and body are required")
)

// Post is a single blog entry. Posts are kept newest-first; new posts are
// prepended.
type Post struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Subtitle  string           `json:"subtitle,omitempty"`
	Body      string           `json:"body"`
	Date      string           `json:"date"`
	Author    string           `json:"author,omitempty"`
	Photos    []media.FileInfo `json:"photos"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Draft carries the fields of a post to be created.
type Draft struct {
	Title    string
	Subtitle string
	Body     string
	Date     string
	Author   string
	Photos   []media.FileInfo
}

// Patch carries a partial update. Merge policy: title, body, date, and
// author only overwrite when non-empty (an empty string keeps the old
// value); subtitle overwrites whenever it is present, so it can be cleared;
// photos overwrite whenever the field is present, including an empty list.
type Patch struct {
	Title     *string
	Subtitle  *string
	Body      *string
	Date      *string
	Author    *string
	Photos    []media.FileInfo
	HasPhotos bool
}

// FileRemover deletes a stored upload by filename. Satisfied by
// *media.Store.
type FileRemover interface {
	Delete(filename string) error
}

// Store owns the persisted post collection.
type Store struct {
	mu     sync.Mutex
	path   string
	files  FileRemover
	logger *zap.Logger
}

// NewStore ensures the data directory exists. The collection file itself is
// created lazily on first write; a missing file reads as an empty
// collection.
func NewStore(path string, files FileRemover, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create blog data dir: %w", err)
	}
	return &Store{path: path, files: files, logger: logger}, nil
}

// List returns every post, newest first.
func (s *Store) List() ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// Get returns one post by id.
func (s *Store) Get(id int64) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := s.readAll()
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

// Create validates the draft, assigns a unique id and timestamps, prepends
// the post, and persists the whole collection.
func (s *Store) Create(d Draft) (Post, error) {
	if d.Title == "" || d.Body == "" {
		return Post{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.readAll()
	if err != nil {
		return Post{}, err
	}
	now := time.Now().UTC()
	post := Post{
		ID:        nextID(posts, now),
		Title:     d.Title,
		Subtitle:  d.Subtitle,
		Body:      d.Body,
		Date:      d.Date,
		Author:    d.Author,
		Photos:    d.Photos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if post.Date == "" {
		post.Date = now.Format("2006-01-02")
	}
	if post.Photos == nil {
		post.Photos = []media.FileInfo{}
	}
	posts = append([]Post{post}, posts...)
	if err := s.writeAll(posts); err != nil {
		return Post{}, err
	}
	return post, nil
}

// Update merges the patch over the stored post (see Patch for the policy)
// and persists the whole collection.
func (s *Store) Update(id int64, p Patch) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.readAll()
	if err != nil {
		return Post{}, err
	}
	idx := indexOf(posts, id)
	if idx < 0 {
		return Post{}, ErrNotFound
	}
	post := posts[idx]
	if p.Title != nil && *p.Title != "" {
		post.Title = *p.Title
	}
	if p.Subtitle != nil {
		post.Subtitle = *p.Subtitle
	}
	if p.Body != nil && *p.Body != "" {
		post.Body = *p.Body
	}
	if p.Date != nil && *p.Date != "" {
		post.Date = *p.Date
	}
	if p.Author != nil && *p.Author != "" {
		post.Author = *p.Author
	}
	if p.HasPhotos {
		post.Photos = p.Photos
		if post.Photos == nil {
			post.Photos = []media.FileInfo{}
		}
	}
	post.UpdatedAt = time.Now().UTC()
	posts[idx] = post
	if err := s.writeAll(posts); err != nil {
		return Post{}, err
	}
	return post, nil
}

// Delete removes a post and best-effort deletes its referenced upload
// files. Per-file deletion failures are logged, never fatal; the post
// record is removed regardless.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.readAll()
	if err != nil {
		return err
	}
	idx := indexOf(posts, id)
	if idx < 0 {
		return ErrNotFound
	}
	if s.files != nil {
		for _, photo := range posts[idx].Photos {
			if photo.Filename == "" {
				continue
			}
			if err := s.files.Delete(photo.Filename); err != nil && !errors.Is(err, media.ErrNotFound) {
				s.logger.Warn("cascade photo deletion failed",
					zap.Int64("post_id", id),
					zap.String("filename", photo.Filename),
					zap.Error(err),
				)
			}
		}
	}
	posts = append(posts[:idx], posts[idx+1:]...)
	return s.writeAll(posts)
}

// Search returns posts whose title, subtitle, body, or author contain the
// query, case-insensitively. An empty query matches nothing. The result is
// never nil.
func (s *Store) Search(query string) ([]Post, error) {
	matches := []Post{}
	query = strings.ToLower(query)
	if query == "" {
		return matches, nil
	}
	posts, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.Title), query) ||
			strings.Contains(strings.ToLower(p.Subtitle), query) ||
			strings.Contains(strings.ToLower(p.Body), query) ||
			strings.Contains(strings.ToLower(p.Author), query) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// readAll loads the whole collection. Caller must hold the mutex.
func (s *Store) readAll() ([]Post, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Post{}, nil
		}
		return nil, fmt.Errorf("read blog data: %w", err)
	}
	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("parse blog data: %w", err)
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// writeAll persists the whole collection. Caller must hold the mutex.
func (s *Store) writeAll(posts []Post) error {
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blog data: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write blog data: %w", err)
	}
	return nil
}

// nextID derives a millisecond-timestamp id, bumped past the current
// maximum when two creates land in the same millisecond. Plain wall-clock
// ids would collide in that case.
func nextID(posts []Post, now time.Time) int64 {
	id := now.UnixMilli()
	for _, p := range posts {
		if p.ID >= id {
			id = p.ID + 1
		}
	}
	return id
}

func indexOf(posts []Post, id int64) int {
	for i, p := range posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}
