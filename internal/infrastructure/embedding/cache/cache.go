package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

const keyPrefix = "dispute:embedding:"

// Embedder caches query embeddings in a process-local LRU and, when a Redis
// client is supplied, in Redis so replicas share warm vectors. Cache failures
// never fail a request.
type Embedder struct {
	next      ports.Embedder
	namespace string
	local     *expirable.LRU[string, []float32]
	redis     *redis.Client
	ttl       time.Duration
	logger    *slog.Logger
}

type Options struct {
	// Namespace separates vectors of different models.
	Namespace string
	Size      int
	TTL       time.Duration
	Redis     *redis.Client
	Logger    *slog.Logger
}

func New(next ports.Embedder, options Options) *Embedder {
	size := options.Size
	if size <= 0 {
		size = 1024
	}
	ttl := options.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		next:      next,
		namespace: options.Namespace,
		local:     expirable.NewLRU[string, []float32](size, nil, ttl),
		redis:     options.Redis,
		ttl:       ttl,
		logger:    logger,
	}
}

// Embed is not cached; batch calls are rare on the query path.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vector, ok := e.local.Get(key); ok {
		return cloneVector(vector), nil
	}
	if vector, ok := e.fromRedis(ctx, key); ok {
		e.local.Add(key, vector)
		return cloneVector(vector), nil
	}

	vector, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.local.Add(key, cloneVector(vector))
	e.toRedis(ctx, key, vector)
	return vector, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.namespace + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (e *Embedder) fromRedis(ctx context.Context, key string) ([]float32, bool) {
	if e.redis == nil {
		return nil, false
	}
	raw, err := e.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.logger.Warn("embedding_cache_read_failed", "error", err)
		}
		return nil, false
	}
	vector, err := decodeVector(raw)
	if err != nil {
		e.logger.Warn("embedding_cache_decode_failed", "error", err)
		return nil, false
	}
	return vector, true
}

func (e *Embedder) toRedis(ctx context.Context, key string, vector []float32) {
	if e.redis == nil {
		return
	}
	if err := e.redis.Set(ctx, key, encodeVector(vector), e.ttl).Err(); err != nil {
		e.logger.Warn("embedding_cache_write_failed", "error", err)
	}
}

func encodeVector(vector []float32) []byte {
	out := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}
