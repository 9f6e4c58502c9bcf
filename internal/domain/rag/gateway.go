package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "docqa/internal/platform/log"
)

// 进程内缓存的软上限，超过后整体清空重建
const gatewayCacheCap = 4096

// Gateway 包装底层 Embedder：批次切分、精确文本缓存、有界退避重试、
// 维度契约校验。缓存仅为进程内优化，不承诺持久化。
type Gateway struct {
	inner       Embedder
	batchSize   int
	maxAttempts int
	baseBackoff time.Duration

	mu    sync.RWMutex
	cache map[string][]float32
}

// GatewayConfig Gateway 配置
type GatewayConfig struct {
	BatchSize   int           // 单次模型调用最大条数，默认 64
	MaxAttempts int           // 瞬时失败最大尝试次数，默认 3
	BaseBackoff time.Duration // 退避基准间隔，默认 500ms
}

// NewGateway 创建 Embedding Gateway
func NewGateway(inner Embedder, cfg GatewayConfig) *Gateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Gateway{
		inner:       inner,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		cache:       make(map[string][]float32),
	}
}

// Dims 返回向量维度
func (g *Gateway) Dims() int {
	return g.inner.Dims()
}

// Embed 批量生成向量，保持输入顺序与长度（每条输入恰好一个向量）。
// 命中缓存的文本不再请求模型；部分批次失败即整体失败，不静默丢弃。
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	// 1. 查缓存，收集缺失项
	var missing []int
	g.mu.RLock()
	for i, t := range texts {
		if v, ok := g.cache[t]; ok {
			vectors[i] = v
		} else {
			missing = append(missing, i)
		}
	}
	g.mu.RUnlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	// 2. 缺失项分批请求
	for start := 0; start < len(missing); start += g.batchSize {
		end := start + g.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		idxs := missing[start:end]

		batch := make([]string, len(idxs))
		for j, i := range idxs {
			batch[j] = texts[i]
		}

		got, err := g.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idxs {
			vectors[i] = got[j]
		}
	}

	// 3. 回填缓存
	g.mu.Lock()
	if len(g.cache) > gatewayCacheCap {
		g.cache = make(map[string][]float32)
	}
	for _, i := range missing {
		g.cache[texts[i]] = vectors[i]
	}
	g.mu.Unlock()

	return vectors, nil
}

// embedWithRetry 单批次调用，瞬时失败有界指数退避，维度不符立即失败
func (g *Gateway) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		got, err := g.inner.Embed(ctx, batch)
		if err == nil {
			if err := g.checkDims(got, len(batch)); err != nil {
				return nil, err
			}
			return got, nil
		}

		// 维度契约错误不重试
		if errors.Is(err, ErrModelContractViolation) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctxErr)
		}

		lastErr = err
		if attempt < g.maxAttempts {
			backoff := g.baseBackoff * time.Duration(1<<(attempt-1))
			applog.Warn("[RAG/Gateway] Embed attempt failed, backing off",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if errors.Is(lastErr, ErrModelUnavailable) {
		return nil, fmt.Errorf("embed after %d attempts: %w", g.maxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w: embed after %d attempts: %v", ErrModelUnavailable, g.maxAttempts, lastErr)
}

// checkDims 校验返回数量与每个向量的维度
func (g *Gateway) checkDims(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrModelContractViolation, len(vectors), want)
	}
	dims := g.inner.Dims()
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", ErrModelContractViolation, i, len(v), dims)
		}
	}
	return nil
}

// CacheSize 返回当前缓存条数（测试与指标用）
func (g *Gateway) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}
