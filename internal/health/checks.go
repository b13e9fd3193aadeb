package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/redis/go-redis/v9"
)

// RedisChecker checks the render cache connection. The cache is optional,
// so a failure degrades the service instead of taking it down.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Optional() bool { return true }

func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	info, err := r.client.Info(ctx, "clients").Result()
	if err != nil {
		return fmt.Errorf("failed to get redis info: %w", err)
	}
	if len(info) == 0 {
		return fmt.Errorf("empty redis info response")
	}
	return nil
}

// GeneratorChecker runs a tiny render through the shared generator.
type GeneratorChecker struct {
	probe func() error
}

// NewGeneratorChecker wraps probe, which should assemble at least one frame
// with the live options.
func NewGeneratorChecker(probe func() error) *GeneratorChecker {
	return &GeneratorChecker{probe: probe}
}

func (g *GeneratorChecker) Name() string { return "generator" }

func (g *GeneratorChecker) Check(ctx context.Context) error {
	if err := g.probe(); err != nil {
		return fmt.Errorf("generator probe failed: %w", err)
	}
	return ctx.Err()
}

// MemoryChecker fails once the live heap grows past a limit. Long renders
// hold the whole waveform in memory.
type MemoryChecker struct {
	maxHeapBytes uint64
}

func NewMemoryChecker(maxHeapBytes uint64) *MemoryChecker {
	return &MemoryChecker{maxHeapBytes: maxHeapBytes}
}

func (m *MemoryChecker) Name() string { return "memory" }

func (m *MemoryChecker) Optional() bool { return true }

func (m *MemoryChecker) Check(ctx context.Context) error {
	if m.maxHeapBytes == 0 {
		return nil
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc > m.maxHeapBytes {
		return fmt.Errorf("heap in use %d bytes exceeds %d", stats.HeapAlloc, m.maxHeapBytes)
	}
	return nil
}
