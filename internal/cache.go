package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheManager is a small file-backed key/value cache with per-read TTLs.
// One YAML file per key; writes go through a temp file and rename so
// concurrent writers never leave a torn entry behind.
type CacheManager struct {
	cacheDir string
	now      func() time.Time
}

// CacheEntry is the on-disk form of a cached value.
type CacheEntry struct {
	Key       string    `yaml:"key"`
	Value     string    `yaml:"value"`
	WrittenAt time.Time `yaml:"written_at"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
		now:      time.Now,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0755)
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// GetEntryPath returns the file holding key.
func (cm *CacheManager) GetEntryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(cm.cacheDir, hex.EncodeToString(sum[:16])+".yaml")
}

// Get returns the value for key if it was written less than ttl ago.
// Expired or unreadable entries are misses; nothing is swept.
func (cm *CacheManager) Get(key string, ttl time.Duration) (string, bool) {
	data, err := os.ReadFile(cm.GetEntryPath(key))
	if err != nil {
		return "", false
	}

	var entry CacheEntry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		LogDebug("Ignoring corrupt cache entry %s: %v", key, err)
		return "", false
	}
	if entry.Key != key {
		return "", false
	}
	if ttl > 0 && cm.now().Sub(entry.WrittenAt) >= ttl {
		return "", false
	}
	return entry.Value, true
}

// Set stores value for key. Last writer wins.
func (cm *CacheManager) Set(key, value string) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(CacheEntry{Key: key, Value: value, WrittenAt: cm.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(cm.cacheDir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), cm.GetEntryPath(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (cm *CacheManager) Delete(key string) error {
	if err := os.Remove(cm.GetEntryPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ClearCache clears the cache
func (cm *CacheManager) ClearCache() error {
	entries, err := os.ReadDir(cm.cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if err := os.Remove(filepath.Join(cm.cacheDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// CollectorCache holds the values the collector manager caches between runs:
// the last commit time per repo and resolved repository roots.
type CollectorCache struct {
	cache     *CacheManager
	anchorTTL time.Duration
	repoTTL   time.Duration
}

// NewCollectorCache wraps cm with the TTLs from cfg.
func NewCollectorCache(cm *CacheManager, cfg CollectionConfig) *CollectorCache {
	return &CollectorCache{
		cache:     cm,
		anchorTTL: cfg.AnchorTTL,
		repoTTL:   cfg.RepoTTL,
	}
}

// LastCommitTime returns the cached last commit time (ms) for repo.
func (c *CollectorCache) LastCommitTime(repo string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.cache.Get("last-commit:"+repo, c.anchorTTL)
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// SetLastCommitTime caches the last commit time (ms) for repo.
func (c *CollectorCache) SetLastCommitTime(repo string, ts int64) {
	if c == nil {
		return
	}
	if err := c.cache.Set("last-commit:"+repo, strconv.FormatInt(ts, 10)); err != nil {
		LogDebug("Failed to cache last commit time for %s: %v", repo, err)
	}
}

// ForgetLastCommitTime drops the cached last commit time for repo.
func (c *CollectorCache) ForgetLastCommitTime(repo string) {
	if c == nil {
		return
	}
	if err := c.cache.Delete("last-commit:" + repo); err != nil {
		LogDebug("Failed to drop cached commit time for %s: %v", repo, err)
	}
}

// Clear removes every cached entry.
func (c *CollectorCache) Clear() error {
	if c == nil {
		return nil
	}
	return c.cache.ClearCache()
}

// Dir returns where entries are written.
func (c *CollectorCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.cache.GetCacheDir()
}

// RepoRoot returns the cached repository root for dir. An empty root means
// dir was checked and is not inside a repository.
func (c *CollectorCache) RepoRoot(dir string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.cache.Get("repo-root:"+dir, c.repoTTL)
}

// SetRepoRoot caches the repository root for dir.
func (c *CollectorCache) SetRepoRoot(dir, root string) {
	if c == nil {
		return
	}
	if err := c.cache.Set("repo-root:"+dir, root); err != nil {
		LogDebug("Failed to cache repo root for %s: %v", dir, err)
	}
}
