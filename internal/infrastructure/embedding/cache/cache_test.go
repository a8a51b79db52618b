package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingEmbedder struct {
	calls  int
	vector []float32
	err    error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := c.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vector, nil
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEmbedQueryUsesLocalCache(t *testing.T) {
	next := &countingEmbedder{vector: []float32{0.5, 0.25}}
	cached := New(next, Options{Namespace: "m", Size: 8, TTL: time.Minute})

	for i := 0; i < 3; i++ {
		v, err := cached.EmbedQuery(context.Background(), "환불")
		if err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
		if len(v) != 2 || v[1] != 0.25 {
			t.Fatalf("unexpected vector %v", v)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
}

func TestEmbedQuerySharesThroughRedis(t *testing.T) {
	mr, client := newMiniredis(t)
	first := &countingEmbedder{vector: []float32{1, -2, 3.5}}
	second := &countingEmbedder{vector: []float32{9}}

	if _, err := New(first, Options{Namespace: "m", Redis: client}).EmbedQuery(context.Background(), "세탁기"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one redis key, got %v", mr.Keys())
	}

	v, err := New(second, Options{Namespace: "m", Redis: client}).EmbedQuery(context.Background(), "세탁기")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("expected redis hit, upstream called %d times", second.calls)
	}
	if len(v) != 3 || v[2] != 3.5 {
		t.Fatalf("unexpected vector from redis %v", v)
	}
}

func TestEmbedQueryNamespacesKeys(t *testing.T) {
	_, client := newMiniredis(t)
	first := &countingEmbedder{vector: []float32{1}}
	other := &countingEmbedder{vector: []float32{2}}

	_, _ = New(first, Options{Namespace: "model-a", Redis: client}).EmbedQuery(context.Background(), "q")
	v, _ := New(other, Options{Namespace: "model-b", Redis: client}).EmbedQuery(context.Background(), "q")
	if other.calls != 1 || v[0] != 2 {
		t.Fatalf("expected separate namespace to miss, got %v after %d calls", v, other.calls)
	}
}

func TestEmbedQuerySurvivesRedisOutage(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.Close()
	next := &countingEmbedder{vector: []float32{0.1}}

	v, err := New(next, Options{Redis: client}).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("redis outage must not fail embedding: %v", err)
	}
	if len(v) != 1 || next.calls != 1 {
		t.Fatalf("unexpected result %v after %d calls", v, next.calls)
	}
}

func TestEmbedQueryDoesNotCacheErrors(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	cached := New(next, Options{})

	for i := 0; i < 2; i++ {
		if _, err := cached.EmbedQuery(context.Background(), "q"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", next.calls)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
	v, err := decodeVector(encodeVector([]float32{-0.5, 42}))
	if err != nil || v[0] != -0.5 || v[1] != 42 {
		t.Fatalf("unexpected decode %v, %v", v, err)
	}
}
