package fs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	authservice "github.com/Matidza/Auth-Service"
)

// FSPostStore stores one JSON file per post.
type FSPostStore struct {
	StoragePath string
	mu          sync.RWMutex
}

func NewFSPostStore(storagePath string) *FSPostStore {
	return &FSPostStore{StoragePath: storagePath}
}

func (s *FSPostStore) postsDir() string {
	return filepath.Join(s.StoragePath, "posts")
}

func (s *FSPostStore) getPostPath(id string) string {
	return filepath.Join(s.postsDir(), filepath.Base(id)+".json")
}

func (s *FSPostStore) CreatePost(ctx context.Context, post *authservice.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	return writeJSON(s.getPostPath(post.ID), post)
}

func (s *FSPostStore) GetPost(ctx context.Context, id string) (*authservice.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readPost(id)
}

func (s *FSPostStore) ListPosts(ctx context.Context, offset, limit int) ([]*authservice.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.postsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*authservice.Post{}, nil
		}
		return nil, err
	}

	posts := make([]*authservice.Post, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		post, err := s.readPost(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	offset = max(offset, 0)
	if offset >= len(posts) {
		return []*authservice.Post{}, nil
	}
	end := len(posts)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return posts[offset:end], nil
}

func (s *FSPostStore) SavePost(ctx context.Context, post *authservice.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.readPost(post.ID); err != nil {
		return err
	}
	return writeJSON(s.getPostPath(post.ID), post)
}

func (s *FSPostStore) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.getPostPath(id)); err != nil {
		if os.IsNotExist(err) {
			return authservice.ErrPostNotFound
		}
		return err
	}
	return nil
}

func (s *FSPostStore) readPost(id string) (*authservice.Post, error) {
	if id == "" {
		return nil, authservice.ErrPostNotFound
	}
	var post authservice.Post
	if err := readJSON(s.getPostPath(id), &post); err != nil {
		if os.IsNotExist(err) {
			return nil, authservice.ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}
