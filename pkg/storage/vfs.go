// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// vfsStore is a filesystem-backed blob store for development and tests. It
// serves remote URLs under a fake base URL.
type vfsStore struct {
	mu      sync.Mutex
	fs      vfs.FileSystem
	root    string
	baseURL string
}

// NewVFSStore creates a blob store on top of a virtual filesystem. Keys map
// to files below root; returned URLs are <baseURL>/<key>.
func NewVFSStore(fs vfs.FileSystem, root, baseURL string) BlobStore {
	return &vfsStore{fs: fs, root: root, baseURL: baseURL}
}

func (s *vfsStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := path.Join(s.root, key)
	if err := s.fs.MkdirAll(path.Dir(target), os.ModePerm); err != nil {
		return "", fmt.Errorf("unable to create blob directory for %s: %w", key, err)
	}
	file, err := s.fs.Create(target)
	if err != nil {
		return "", fmt.Errorf("unable to create blob %s: %w", key, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("unable to write blob %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

func (s *vfsStore) Download(ctx context.Context, key string, w io.Writer) error {
	file, err := s.fs.Open(path.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("unable to open blob %s: %w", key, err)
	}
	defer file.Close()
	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("unable to read blob %s: %w", key, err)
	}
	return nil
}

func (s *vfsStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(path.Join(s.root, key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("unable to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *vfsStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	expiry = ClampAPIExpiry(expiry)
	expires := time.Now().Add(expiry).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", s.baseURL, key, expires), nil
}
