package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docqa/internal/domain/rag"
)

// recordingStore 记录写入与删除的 VectorStore 桩
type recordingStore struct {
	mu        sync.Mutex
	docs      map[string]*rag.Document
	chunks    map[string][]rag.Chunk
	storeErr  error
	createErr error
	deleted   []string
	seq       int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		docs:   make(map[string]*rag.Document),
		chunks: make(map[string][]rag.Chunk),
	}
}

func (s *recordingStore) Ping(context.Context) error              { return nil }
func (s *recordingStore) EnsureSchema(context.Context, int) error { return nil }

func (s *recordingStore) CreateDocument(_ context.Context, filename string) (*rag.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.seq++
	doc := &rag.Document{ID: fmt.Sprintf("doc-%d", s.seq), Filename: filename, UploadedAt: time.Now()}
	s.docs[doc.ID] = doc
	return doc, nil
}

func (s *recordingStore) GetDocument(_ context.Context, docID string) (*rag.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[docID]; ok {
		return doc, nil
	}
	return nil, rag.ErrNotFound
}

func (s *recordingStore) ListDocuments(context.Context) ([]rag.DocumentInfo, error) {
	return nil, nil
}

func (s *recordingStore) StoreChunks(_ context.Context, docID string, chunks []rag.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.chunks[docID] = append([]rag.Chunk(nil), chunks...)
	return nil
}

func (s *recordingStore) Search(context.Context, []float32, rag.SearchOptions) ([]rag.ScoredChunk, error) {
	return nil, nil
}

func (s *recordingStore) DeleteDocument(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	delete(s.chunks, docID)
	s.deleted = append(s.deleted, docID)
	return nil
}

func newTestIngestor(t *testing.T, store rag.VectorStore, cfg *rag.Config) *rag.Ingestor {
	t.Helper()
	if cfg == nil {
		cfg = rag.DefaultConfig()
	}
	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	gateway := rag.NewGateway(&fakeEmbedder{dims: 4}, rag.GatewayConfig{})
	cfg.EmbeddingDims = 4
	ing, err := rag.NewIngestor(chunker, gateway, store, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	return ing
}

// TestIngestHappyPath 文本入库：分块有序，向量与元数据齐备
func TestIngestHappyPath(t *testing.T) {
	store := newRecordingStore()
	ing := newTestIngestor(t, store, nil)

	text := strings.Repeat("a", 2500)
	result, err := ing.Ingest(context.Background(), "notes.txt", text, map[string]string{"format": "txt"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if result.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", result.ChunkCount)
	}
	chunks := store.chunks[result.DocID]
	if len(chunks) != 3 {
		t.Fatalf("expected 3 stored chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkID != i {
			t.Errorf("chunk %d has id %d", i, c.ChunkID)
		}
		if len(c.Embedding) != 4 {
			t.Errorf("chunk %d has %d dims", i, len(c.Embedding))
		}
		if c.Metadata["filename"] != "notes.txt" || c.Metadata["format"] != "txt" {
			t.Errorf("chunk %d metadata incomplete: %v", i, c.Metadata)
		}
	}

	t.Logf("✅ ingested %s with %d chunks", result.DocID, result.ChunkCount)
}

// TestIngestEmptyText 空文本为 no-op：不建档、不报错
func TestIngestEmptyText(t *testing.T) {
	store := newRecordingStore()
	ing := newTestIngestor(t, store, nil)

	for _, text := range []string{"", "   \n\t  "} {
		result, err := ing.Ingest(context.Background(), "empty.txt", text, nil)
		if err != nil {
			t.Fatalf("empty text must not error: %v", err)
		}
		if result.DocID != "" || result.ChunkCount != 0 {
			t.Fatalf("expected zero-value result, got %+v", result)
		}
	}
	if len(store.docs) != 0 {
		t.Fatalf("no document must be created for empty text")
	}

	t.Logf("✅ empty text skipped without side effects")
}

// TestIngestStoreFailureCleansUp 分块写入失败 → 删除文档记录 + ErrIngestionFailed
func TestIngestStoreFailureCleansUp(t *testing.T) {
	store := newRecordingStore()
	store.storeErr = fmt.Errorf("disk full")
	ing := newTestIngestor(t, store, nil)

	_, err := ing.Ingest(context.Background(), "doomed.txt", "some content", nil)
	if !errors.Is(err, rag.ErrIngestionFailed) {
		t.Fatalf("expected ErrIngestionFailed, got: %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatalf("orphan document record must be cleaned up")
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected exactly one cleanup delete, got %d", len(store.deleted))
	}

	t.Logf("✅ failed ingest retained nothing")
}

// TestIngestEmbedFailureNoDocument 向量化失败发生在建档之前，不触达存储
func TestIngestEmbedFailureNoDocument(t *testing.T) {
	store := newRecordingStore()

	cfg := rag.DefaultConfig()
	cfg.EmbeddingDims = 4
	chunker, _ := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	gateway := rag.NewGateway(&fakeEmbedder{dims: 4, failures: 100}, rag.GatewayConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond})
	ing, err := rag.NewIngestor(chunker, gateway, store, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}

	_, err = ing.Ingest(context.Background(), "doc.txt", "content", nil)
	if !errors.Is(err, rag.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got: %v", err)
	}
	if len(store.docs) != 0 || len(store.deleted) != 0 {
		t.Fatalf("embedding failure must not touch the store")
	}

	t.Logf("✅ embedding failure surfaced before any storage writes")
}

// TestIngestOversizedInput 超限输入在任何副作用之前被拒绝
func TestIngestOversizedInput(t *testing.T) {
	store := newRecordingStore()
	cfg := rag.DefaultConfig()
	cfg.MaxFileSize = 1 // 1MB
	ing := newTestIngestor(t, store, cfg)

	big := strings.Repeat("x", 2<<20)
	_, err := ing.Ingest(context.Background(), "big.txt", big, nil)
	if !errors.Is(err, rag.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got: %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatalf("oversized input must not create documents")
	}
}

// TestIngestDelete 删除幂等
func TestIngestDelete(t *testing.T) {
	store := newRecordingStore()
	ing := newTestIngestor(t, store, nil)

	result, err := ing.Ingest(context.Background(), "doc.txt", "hello world", nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if err := ing.Delete(context.Background(), result.DocID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatalf("document must be gone after delete")
	}
	if err := ing.Delete(context.Background(), result.DocID); err != nil {
		t.Fatalf("repeated delete must be idempotent: %v", err)
	}
}
