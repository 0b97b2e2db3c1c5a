package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "clips.index"

// DiskCache stores clips as zstd-compressed files under one directory,
// evicting the least recently used entries beyond its capacity.
type DiskCache struct {
	basePath string
	capacity int64
	ttl      time.Duration

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	size  int64
	index map[string]*diskEntry
	stats Stats
}

// diskEntry is persisted in the gob index.
type diskEntry struct {
	Key        string
	FilePath   string
	Size       int64 // on disk
	Samples    int64
	SampleRate int
	Timestamp  time.Time
	LastAccess time.Time
	Hits       int64
}

// Key derives the cache key for text spoken with voice.
func Key(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "|" + text))
	return hex.EncodeToString(sum[:])
}

// NewDiskCache opens or creates a cache in basePath. Entries older than ttl
// are dropped on open; ttl <= 0 keeps them forever.
func NewDiskCache(basePath string, capacity int64, level int, ttl time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		ttl:      ttl,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}
	if err := dc.loadIndex(); err != nil {
		// A broken index only costs the cached clips.
		dc.index = make(map[string]*diskEntry)
	}
	dc.calculateSize()
	if ttl > 0 {
		dc.RemoveOlderThan(time.Now().Add(-ttl))
	}
	return dc, nil
}

// Get returns the clip stored under key.
func (dc *DiskCache) Get(key string) (*audio.Clip, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	clip, err := dc.read(entry)
	if err != nil {
		dc.removeLocked(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	entry.Hits++
	dc.stats.Hits++
	dc.stats.LastAccess = entry.LastAccess
	return clip, true
}

func (dc *DiskCache) read(entry *diskEntry) (*audio.Clip, error) {
	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		return nil, err
	}
	raw, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}
	if len(raw) < 4 {
		return nil, ErrCacheCorrupted
	}
	rate := int(binary.LittleEndian.Uint32(raw[:4]))
	return audio.NewClip(raw[4:], rate)
}

// Put stores clip under key, replacing any previous entry.
func (dc *DiskCache) Put(key string, clip *audio.Clip) error {
	raw := make([]byte, 4, 4+len(clip.PCM))
	binary.LittleEndian.PutUint32(raw, uint32(clip.SampleRate))
	raw = append(raw, clip.PCM...)
	data := dc.encoder.EncodeAll(raw, nil)
	diskSize := int64(len(data))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if existing, ok := dc.index[key]; ok {
		dc.removeLocked(key, existing)
	}
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}
	for dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	path := filepath.Join(dc.basePath, key[:32]+".zst")
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:        key,
		FilePath:   path,
		Size:       diskSize,
		Samples:    int64(clip.Samples()),
		SampleRate: clip.SampleRate,
		Timestamp:  now,
		LastAccess: now,
	}
	dc.size += diskSize
	return nil
}

// Contains reports whether key is cached without touching its access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_, ok := dc.index[key]
	return ok
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for _, entry := range dc.index {
		os.Remove(entry.FilePath)
	}
	dc.index = make(map[string]*diskEntry)
	dc.size = 0
	return dc.saveIndex()
}

// RemoveOlderThan drops entries cached before cutoff and returns how many
// were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	removed := 0
	for key, entry := range dc.index {
		if entry.Timestamp.Before(cutoff) {
			dc.removeLocked(key, entry)
			removed++
		}
	}
	return removed
}

// Stats returns a copy of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// Close saves the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.decoder.Close()
	return dc.saveIndex()
}

func (dc *DiskCache) removeLocked(key string, entry *diskEntry) {
	os.Remove(entry.FilePath)
	dc.size -= entry.Size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, entry := range dc.index {
		if oldestKey == "" || entry.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccess
		}
	}
	if oldestKey != "" {
		dc.removeLocked(oldestKey, dc.index[oldestKey])
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

func (dc *DiskCache) calculateSize() {
	dc.size = 0
	for key, entry := range dc.index {
		if _, err := os.Stat(entry.FilePath); err != nil {
			delete(dc.index, key)
			continue
		}
		dc.size += entry.Size
	}
}

func (dc *DiskCache) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.basePath, indexFile)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(dc.index)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}
	return os.Rename(tempPath, path)
}

// writeFile writes to a temp file and renames it into place.
func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
