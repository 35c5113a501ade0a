package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dailymotiv/quote-service/internal/observ"
)

// fileEnvelope is the on-disk format. Values are base64 so the state file
// stays valid JSON regardless of what callers store.
type fileEnvelope struct {
	Version     int               `json:"version"`
	LastUpdated string            `json:"last_updated"`
	Entries     map[string]string `json:"entries"`
}

const fileFormatVersion = 1

// FileStore is a Store backed by a single JSON file. Writes go to a temp
// file followed by rename so a crash never leaves a torn state file.
// An optional background loop flushes dirty state periodically.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	data     map[string][]byte
	dirty    bool
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// NewFileStore loads existing state from path, creating directories as
// needed. flushInterval <= 0 disables the background flush loop; every
// mutation is then written through synchronously.
func NewFileStore(path string, flushInterval time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	fs := &FileStore{
		path:     path,
		data:     make(map[string][]byte),
		interval: flushInterval,
		stopCh:   make(chan struct{}),
	}

	if err := fs.load(); err != nil {
		return nil, err
	}

	if flushInterval > 0 {
		fs.wg.Add(1)
		go fs.flushLoop()
	}

	observ.Log("file_store_opened", map[string]any{
		"path":    path,
		"entries": len(fs.data),
	})

	return fs, nil
}

func (fs *FileStore) load() error {
	b, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	for k, v := range env.Entries {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			// Skip undecodable entries rather than refusing to start.
			observ.Log("file_store_bad_entry", map[string]any{"key": k})
			continue
		}
		fs.data[k] = raw
	}
	return nil
}

func (fs *FileStore) Get(key string) ([]byte, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	b, ok := fs.data[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true
}

func (fs *FileStore) Set(key string, value []byte) error {
	fs.mu.Lock()
	cp := make([]byte, len(value))
	copy(cp, value)
	fs.data[key] = cp
	fs.dirty = true
	fs.mu.Unlock()
	return fs.maybeFlush()
}

func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	delete(fs.data, key)
	fs.dirty = true
	fs.mu.Unlock()
	return fs.maybeFlush()
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	fs.data = make(map[string][]byte)
	fs.dirty = true
	fs.mu.Unlock()
	return fs.maybeFlush()
}

func (fs *FileStore) Keys() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	keys := make([]string, 0, len(fs.data))
	for k := range fs.data {
		keys = append(keys, k)
	}
	return keys
}

// Close stops the flush loop and performs a final write. Safe to call more
// than once.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	if fs.stopped {
		fs.mu.Unlock()
		return nil
	}
	fs.stopped = true
	fs.mu.Unlock()

	close(fs.stopCh)
	fs.wg.Wait()
	return fs.flush()
}

// maybeFlush writes through when no background loop is running.
func (fs *FileStore) maybeFlush() error {
	if fs.interval > 0 {
		return nil
	}
	return fs.flush()
}

func (fs *FileStore) flushLoop() {
	defer fs.wg.Done()
	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopCh:
			return
		case <-ticker.C:
			fs.mu.RLock()
			dirty := fs.dirty
			fs.mu.RUnlock()
			if !dirty {
				continue
			}
			if err := fs.flush(); err != nil {
				observ.Log("file_store_flush_error", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

func (fs *FileStore) flush() error {
	fs.mu.Lock()
	env := fileEnvelope{
		Version:     fileFormatVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Entries:     make(map[string]string, len(fs.data)),
	}
	for k, v := range fs.data {
		env.Entries[k] = base64.StdEncoding.EncodeToString(v)
	}
	fs.dirty = false
	fs.mu.Unlock()

	if err := fs.write(env); err != nil {
		// Re-mark dirty so the flush loop retries even when no further
		// mutation arrives.
		fs.mu.Lock()
		fs.dirty = true
		fs.mu.Unlock()
		return err
	}
	return nil
}

func (fs *FileStore) write(env fileEnvelope) error {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
