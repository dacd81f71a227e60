// Package cache provides a file-per-entry research cache backend.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dotcommander/yar/internal/storage"
)

const (
	cacheExt       = ".json"
	shardPrefixLen = 2
)

var errInvalidID = errors.New("invalid id")

// Cache stores each namespace/topic entry in its own file under baseDir.
type Cache struct {
	baseDir string
}

// New creates a new cache rooted at baseDir.
func New(baseDir string) (*Cache, error) {
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil { //nolint:gosec
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{baseDir: baseDir}, nil
}

func (c *Cache) filePath(namespace, id string) string {
	dir := filepath.Join(c.baseDir, namespace)
	if len(id) < shardPrefixLen {
		return filepath.Join(dir, id+cacheExt)
	}
	return filepath.Join(dir, id[:shardPrefixLen], id+cacheExt)
}

// Read opens the entry for id and hands it to readFn.
func (c *Cache) Read(namespace, id string, readFn func(io.Reader) error) error {
	if id == "" || namespace == "" {
		return fmt.Errorf("read: %w", errInvalidID)
	}
	file, err := os.Open(c.filePath(namespace, id))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if err := readFn(file); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// Write atomically replaces the entry for id with whatever writeFn produces.
func (c *Cache) Write(namespace, id string, writeFn func(io.Writer) error) error {
	if id == "" || namespace == "" {
		return fmt.Errorf("write: %w", errInvalidID)
	}

	path := c.filePath(namespace, id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil { //nolint:gosec
		return fmt.Errorf("write: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeFn(tmp); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load returns the value stored for topic; ok is false when nothing is stored.
func (c *Cache) Load(namespace, topic string) ([]byte, bool, error) {
	var buf bytes.Buffer
	err := c.Read(namespace, storage.TopicKey(topic), func(r io.Reader) error {
		_, err := io.Copy(&buf, r)
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// Save stores value for topic.
func (c *Cache) Save(namespace, topic string, value []byte) error {
	return c.Write(namespace, storage.TopicKey(topic), func(w io.Writer) error {
		_, err := w.Write(value)
		return err
	})
}

// Delete removes the entry for topic. Missing entries are not an error.
func (c *Cache) Delete(namespace, topic string) error {
	err := os.Remove(c.filePath(namespace, storage.TopicKey(topic)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Close is a no-op; files are closed after every operation.
func (c *Cache) Close() error { return nil }
