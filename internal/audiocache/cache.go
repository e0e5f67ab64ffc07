// Package audiocache keeps synthesized story audio in Badger so replaying
// a story does not cost another text-to-speech call.
package audiocache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/alreadydone/alreadydone-server/internal/metrics"
)

// DefaultTTL is how long a clip stays cached.
const DefaultTTL = 7 * 24 * time.Hour

const (
	keyPrefix  = "tts:"
	gcInterval = 10 * time.Minute
	gcDiscard  = 0.5
)

// Clip is a cached audio payload.
type Clip struct {
	Data        []byte
	ContentType string
}

// Cache is a TTL'd key/value store of audio clips.
type Cache struct {
	db       *badger.DB
	ttl      time.Duration
	inMemory bool
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// Open opens (or creates) a cache directory at path.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.CompactL0OnClose = true
	return open(opts, ttl, false, logger)
}

// OpenInMemory opens a cache that lives only as long as the process.
func OpenInMemory(ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, ttl, true, logger)
}

func open(opts badger.Options, ttl time.Duration, inMemory bool, logger *slog.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audio cache: %w", err)
	}
	c := &Cache{db: db, ttl: ttl, inMemory: inMemory, logger: logger, done: make(chan struct{})}
	if !inMemory {
		go c.gcLoop()
	}
	return c, nil
}

// Key derives the cache key for one synthesis request. Any change to the
// voice, model, speed or text produces a different key.
func Key(voiceID, modelID string, speed float64, text string) string {
	h := sha256.New()
	for _, part := range []string{voiceID, modelID, strconv.FormatFloat(speed, 'f', 2, 64), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the clip stored under key. ok is false on a miss.
func (c *Cache) Get(key string) (clip Clip, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			clip, err = decodeClip(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.TTSCacheLookup(false)
		return Clip{}, false, nil
	}
	if err != nil {
		return Clip{}, false, fmt.Errorf("read audio cache: %w", err)
	}
	metrics.TTSCacheLookup(true)
	return clip, true, nil
}

// Put stores clip under key for the cache TTL.
func (c *Cache) Put(key string, clip Clip) error {
	entry := badger.NewEntry([]byte(keyPrefix+key), encodeClip(clip)).WithTTL(c.ttl)
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("write audio cache: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Close stops garbage collection and closes the database.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	return c.db.Close()
}

// Shutdown lets the DI container close the cache.
func (c *Cache) Shutdown() error {
	return c.Close()
}

func (c *Cache) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// RunValueLogGC reclaims one file per call; loop until it has nothing to do.
			for c.db.RunValueLogGC(gcDiscard) == nil {
			}
		}
	}
}

// A stored value is the content type, a NUL, then the audio bytes.
func encodeClip(clip Clip) []byte {
	buf := make([]byte, 0, len(clip.ContentType)+1+len(clip.Data))
	buf = append(buf, clip.ContentType...)
	buf = append(buf, 0)
	return append(buf, clip.Data...)
}

func decodeClip(val []byte) (Clip, error) {
	i := bytes.IndexByte(val, 0)
	if i < 0 {
		return Clip{}, errors.New("corrupt audio cache entry")
	}
	data := make([]byte, len(val)-i-1)
	copy(data, val[i+1:])
	return Clip{ContentType: string(val[:i]), Data: data}, nil
}
