package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"picturebook/internal/domain/story"

	"github.com/sirupsen/logrus"
)

const languageCacheFile = "languages_cache.json"

// LanguageCache handles fetching and caching the backend's language list
type LanguageCache struct {
	source    Service
	cacheDir  string
	cacheFile string
	maxAge    time.Duration
}

// CachedLanguages represents the cached language data
type CachedLanguages struct {
	Languages   []story.LanguageCode `json:"languages"`
	LastUpdated time.Time            `json:"last_updated"`
}

// CacheInfo describes the cache file for status output.
type CacheInfo struct {
	Exists       bool
	Path         string
	Size         int64
	LastModified time.Time
	Fresh        bool
	MaxAge       time.Duration
}

// NewLanguageCache creates a new language cache in front of source
func NewLanguageCache(source Service, cacheDir string, maxAge time.Duration) *LanguageCache {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create cache directory")
	}

	return &LanguageCache{
		source:    source,
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, languageCacheFile),
		maxAge:    maxAge,
	}
}

// Languages returns the language list, from cache when fresh and from the backend otherwise.
func (lc *LanguageCache) Languages(ctx context.Context) ([]story.LanguageCode, error) {
	if lc.isCacheFresh() {
		if cached, err := lc.loadFromCache(); err == nil {
			return cached, nil
		}
	}

	languages, err := lc.source.SupportedLanguages(ctx)
	if err != nil {
		// If the backend fails, try the cache even if stale
		logrus.WithError(err).Warn("Language fetch failed, trying stale cache")
		if cached, cacheErr := lc.loadFromCache(); cacheErr == nil {
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch languages and no cache available: %w", err)
	}

	if err := lc.saveToCache(languages); err != nil {
		logrus.WithError(err).Warn("Failed to save languages to cache")
	}
	return languages, nil
}

func (lc *LanguageCache) isCacheFresh() bool {
	info, err := os.Stat(lc.cacheFile)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < lc.maxAge
}

func (lc *LanguageCache) loadFromCache() ([]story.LanguageCode, error) {
	file, err := os.Open(lc.cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	var cached CachedLanguages
	if err := json.NewDecoder(file).Decode(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cache file: %w", err)
	}
	if len(cached.Languages) == 0 {
		return nil, fmt.Errorf("cache file holds no languages")
	}

	logrus.WithFields(logrus.Fields{
		"languages":    len(cached.Languages),
		"last_updated": cached.LastUpdated.Format(time.RFC3339),
	}).Debug("Loaded languages from cache")

	return cached.Languages, nil
}

func (lc *LanguageCache) saveToCache(languages []story.LanguageCode) error {
	cached := CachedLanguages{
		Languages:   languages,
		LastUpdated: time.Now(),
	}

	file, err := os.Create(lc.cacheFile)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cached); err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"languages": len(languages),
		"file":      lc.cacheFile,
	}).Debug("Saved languages to cache")
	return nil
}

// Clear removes the cache file
func (lc *LanguageCache) Clear() error {
	if err := os.Remove(lc.cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	logrus.Info("Cleared language cache")
	return nil
}

// Info returns information about the cache
func (lc *LanguageCache) Info() CacheInfo {
	info := CacheInfo{Path: lc.cacheFile, MaxAge: lc.maxAge}
	if stat, err := os.Stat(lc.cacheFile); err == nil {
		info.Exists = true
		info.Size = stat.Size()
		info.LastModified = stat.ModTime()
		info.Fresh = lc.isCacheFresh()
	}
	return info
}
