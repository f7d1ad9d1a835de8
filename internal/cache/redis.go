package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEmbeddingTTL keeps embeddings for a week
const DefaultEmbeddingTTL = 7 * 24 * time.Hour

// EmbeddingCache stores embeddings in Redis keyed by a hash of the embedded
// text and the model that produced them
type EmbeddingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewClient connects to Redis from a redis:// URL
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	return redis.NewClient(opts), nil
}

// NewEmbeddingCache creates an EmbeddingCache. prefix usually names the
// embedding model so vectors of different models never mix.
func NewEmbeddingCache(client *redis.Client, prefix string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	return &EmbeddingCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key returns the cache key of a text
func (c *EmbeddingCache) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + ":emb:" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding of text, if any
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.Key(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
	}

	return embedding, true, nil
}

// Set stores the embedding of text
func (c *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, c.Key(text), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Ping checks the connection
func (c *EmbeddingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
