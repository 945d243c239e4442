// Package cache keeps synthesized speech on disk so repeated narration does
// not go back to the speech API.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"tourguide/internal/domain"
	"tourguide/internal/ports"
)

const defaultTTL = 7 * 24 * time.Hour

type Config struct {
	// Dir is the badger directory. Empty keeps the cache in memory.
	Dir string
	TTL time.Duration
}

// Namespaced synthesizers separate cache entries per provider and voice.
type Namespaced interface {
	CacheNamespace() string
}

// SpeechCache stores SpeechAudio keyed by voice namespace and text.
type SpeechCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

func Open(cfg Config, logger *zap.Logger) (*SpeechCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}

	dir := strings.TrimSpace(cfg.Dir)
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open speech cache: %w", err)
	}
	return &SpeechCache{db: db, ttl: cfg.TTL, logger: logger.Named("speech_cache")}, nil
}

func (c *SpeechCache) Close() error {
	return c.db.Close()
}

// Get returns the cached audio and whether it was found.
func (c *SpeechCache) Get(key string) (domain.SpeechAudio, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.SpeechAudio{}, false, nil
	}
	if err != nil {
		return domain.SpeechAudio{}, false, err
	}

	encoding, data, ok := bytes.Cut(value, []byte{0})
	if !ok || len(data) == 0 {
		return domain.SpeechAudio{}, false, fmt.Errorf("corrupt speech cache entry %q", key)
	}
	return domain.SpeechAudio{Data: data, Encoding: string(encoding)}, true, nil
}

func (c *SpeechCache) Put(key string, audio domain.SpeechAudio) error {
	value := make([]byte, 0, len(audio.Encoding)+1+len(audio.Data))
	value = append(value, audio.Encoding...)
	value = append(value, 0)
	value = append(value, audio.Data...)

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(c.ttl))
	})
}

// Wrap returns a Synthesizer that consults the cache before calling next.
// Cache failures are logged and never fail synthesis.
func (c *SpeechCache) Wrap(next ports.Synthesizer) ports.Synthesizer {
	namespace := "default"
	if n, ok := next.(Namespaced); ok && n.CacheNamespace() != "" {
		namespace = n.CacheNamespace()
	}
	return &cachedSynthesizer{cache: c, next: next, namespace: namespace}
}

type cachedSynthesizer struct {
	cache     *SpeechCache
	next      ports.Synthesizer
	namespace string
}

func (s *cachedSynthesizer) Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error) {
	key := Key(s.namespace, text)
	audio, ok, err := s.cache.Get(key)
	if err != nil {
		s.cache.logger.Warn("speech cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		s.cache.logger.Debug("speech cache hit", zap.String("key", key))
		return audio, nil
	}

	audio, err = s.next.Synthesize(ctx, text)
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	if err := s.cache.Put(key, audio); err != nil {
		s.cache.logger.Warn("speech cache write failed", zap.String("key", key), zap.Error(err))
	}
	return audio, nil
}

// Key derives the cache key for text spoken in a voice namespace.
func Key(namespace string, text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return "tts/" + namespace + "/" + hex.EncodeToString(sum[:])
}
