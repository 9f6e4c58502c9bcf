package rag_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docqa/internal/domain/rag"
)

// fakeEmbedder 可编程的 Embedder 桩
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	calls    int
	batches  [][]string
	failures int   // 前 failures 次调用返回瞬时错误
	err      error // failures 期间返回的错误
	badDims  bool  // 返回错误维度的向量
}

func (f *fakeEmbedder) Dims() int { return f.dims }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))

	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("%w: transient failure", rag.ErrModelUnavailable)
	}

	dims := f.dims
	if f.badDims {
		dims = f.dims - 1
	}
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v := make([]float32, dims)
		// 向量首位编码文本长度，便于断言顺序
		if dims > 0 {
			v[0] = float32(len(txt))
		}
		out[i] = v
	}
	return out, nil
}

// TestGatewayBatchOrder 跨批次保持输入顺序，一条输入恰好一个向量
func TestGatewayBatchOrder(t *testing.T) {
	inner := &fakeEmbedder{dims: 4}
	g := rag.NewGateway(inner, rag.GatewayConfig{BatchSize: 3})

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0) // 长度递增的文本
	}

	vectors, err := g.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vector %d does not match input order: got %v, want length %d", i, v[0], len(texts[i]))
		}
	}
	if len(inner.batches) != 4 { // 10 条 / 批 3 → 4 批
		t.Errorf("expected 4 batches, got %d", len(inner.batches))
	}

	t.Logf("✅ %d texts embedded across %d batches in order", len(texts), len(inner.batches))
}

// TestGatewayCacheHit 相同文本第二次请求不再调用模型
func TestGatewayCacheHit(t *testing.T) {
	inner := &fakeEmbedder{dims: 4}
	g := rag.NewGateway(inner, rag.GatewayConfig{})

	texts := []string{"alpha", "beta"}
	if _, err := g.Embed(context.Background(), texts); err != nil {
		t.Fatalf("first Embed failed: %v", err)
	}
	callsAfterFirst := inner.calls

	if _, err := g.Embed(context.Background(), texts); err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}
	if inner.calls != callsAfterFirst {
		t.Fatalf("expected cache hit, but model was called again (%d -> %d)", callsAfterFirst, inner.calls)
	}

	// 部分命中：只有缺失项进模型
	mixed, err := g.Embed(context.Background(), []string{"alpha", "gamma"})
	if err != nil {
		t.Fatalf("mixed Embed failed: %v", err)
	}
	if len(mixed) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(mixed))
	}
	last := inner.batches[len(inner.batches)-1]
	if len(last) != 1 || last[0] != "gamma" {
		t.Fatalf("expected only the miss to reach the model, got batch %v", last)
	}

	t.Logf("✅ cache served repeats, only misses reached the model")
}

// TestGatewayRetryThenSuccess 瞬时失败退避后成功
func TestGatewayRetryThenSuccess(t *testing.T) {
	inner := &fakeEmbedder{dims: 4, failures: 2}
	g := rag.NewGateway(inner, rag.GatewayConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	vectors, err := g.Embed(context.Background(), []string{"retry me"})
	if err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}

	t.Logf("✅ recovered after %d attempts", inner.calls)
}

// TestGatewayRetriesExhausted 重试耗尽 → ErrModelUnavailable
func TestGatewayRetriesExhausted(t *testing.T) {
	inner := &fakeEmbedder{dims: 4, failures: 100}
	g := rag.NewGateway(inner, rag.GatewayConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	_, err := g.Embed(context.Background(), []string{"doomed"})
	if !errors.Is(err, rag.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", inner.calls)
	}

	t.Logf("✅ retries exhausted surfaced as ErrModelUnavailable")
}

// TestGatewayDimMismatch 维度不符 → ErrModelContractViolation，不重试
func TestGatewayDimMismatch(t *testing.T) {
	inner := &fakeEmbedder{dims: 4, badDims: true}
	g := rag.NewGateway(inner, rag.GatewayConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	_, err := g.Embed(context.Background(), []string{"bad dims"})
	if !errors.Is(err, rag.ErrModelContractViolation) {
		t.Fatalf("expected ErrModelContractViolation, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("contract violation must not be retried, got %d calls", inner.calls)
	}

	t.Logf("✅ contract violation failed fast without retry")
}

// TestGatewayEmptyInput 空输入直接返回
func TestGatewayEmptyInput(t *testing.T) {
	inner := &fakeEmbedder{dims: 4}
	g := rag.NewGateway(inner, rag.GatewayConfig{})

	vectors, err := g.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected nil vectors for empty input")
	}
	if inner.calls != 0 {
		t.Errorf("model must not be called for empty input")
	}
}
