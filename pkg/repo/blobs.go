package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Blob keys for operation state.
const (
	mergeMsgBlob    = "MERGE_MSG"
	conflictsBlob   = "conflicts"
	rebaseStateBlob = "rebase/state"
)

// BlobStore keeps small named values that are not content-addressed, such
// as pending merge messages and in-progress rebase state. Each blob is a
// file under the store directory, replaced atomically on write.
type BlobStore struct {
	dir string
}

// NewBlobStore returns a blob store rooted at dir.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{dir: dir}
}

func (b *BlobStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(b.dir, filepath.FromSlash(key)), nil
}

// Put stores data under key, replacing any previous value.
func (b *BlobStore) Put(key string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(p, data); err != nil {
		return fmt.Errorf("blob %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key, reporting false when it is absent.
func (b *BlobStore) Get(key string) ([]byte, bool, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blob %s: %w", key, err)
	}
	return data, true, nil
}

// Delete removes key. Removing a missing key is not an error.
func (b *BlobStore) Delete(key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, err)
	}
	return nil
}
