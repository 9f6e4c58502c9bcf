package rag

import (
	"context"
	"fmt"
	"strings"

	applog "docqa/internal/platform/log"
)

// Ingestor 文档入库流水线：分块 → 向量化 → 建档 → 事务写入分块
//
// 任何一步失败都不留下半成品：分块写入失败时删除已建的文档记录，
// 对外表现为文档从未进入过系统。
type Ingestor struct {
	chunker *Chunker
	gateway *Gateway
	store   VectorStore
	cache   SearchCacheStore // 可选
	cfg     *Config
}

// NewIngestor 创建入库流水线。cache 可为 nil。
func NewIngestor(chunker *Chunker, gateway *Gateway, store VectorStore, cache SearchCacheStore, cfg *Config) (*Ingestor, error) {
	if chunker == nil || gateway == nil || store == nil {
		return nil, fmt.Errorf("%w: chunker, gateway and store are required", ErrInvalidInput)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ingestor{chunker: chunker, gateway: gateway, store: store, cache: cache, cfg: cfg}, nil
}

// Ingest 将一段已抽取的纯文本入库
// 空文本是合法的 no-op：不建档、不报错，返回零值结果。
// extraMeta 会附加到每个分块的 metadata（如解析器给出的页数、格式）。
func (ing *Ingestor) Ingest(ctx context.Context, filename, text string, extraMeta map[string]string) (*IngestResult, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is empty", ErrInvalidInput)
	}
	if maxBytes := ing.cfg.MaxFileSize * 1024 * 1024; maxBytes > 0 && len(text) > maxBytes {
		return nil, fmt.Errorf("%w: text size %d exceeds limit of %d MB", ErrInvalidInput, len(text), ing.cfg.MaxFileSize)
	}

	passages := ing.chunker.Chunk(strings.TrimSpace(text))
	if len(passages) == 0 {
		applog.Info("[RAG] empty document skipped", "filename", filename)
		return &IngestResult{}, nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := ing.gateway.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	doc, err := ing.store.CreateDocument(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: create document: %v", ErrIngestionFailed, err)
	}

	chunks := make([]Chunk, len(passages))
	for i, p := range passages {
		meta := map[string]string{"filename": filename}
		for k, v := range extraMeta {
			meta[k] = v
		}
		chunks[i] = Chunk{
			DocID:     doc.ID,
			ChunkID:   p.Index,
			Content:   p.Content,
			Embedding: vectors[i],
			Metadata:  meta,
		}
	}

	if err := ing.store.StoreChunks(ctx, doc.ID, chunks); err != nil {
		// 回收孤儿文档记录，失败的入库不留任何痕迹
		if delErr := ing.store.DeleteDocument(ctx, doc.ID); delErr != nil {
			applog.Warn("[RAG] orphan document cleanup failed", "doc_id", doc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: store chunks: %v", ErrIngestionFailed, err)
	}

	if ing.cache != nil {
		ing.cache.InvalidateAll(ctx)
	}

	applog.Info("[RAG] document ingested", "doc_id", doc.ID, "filename", filename, "chunks", len(chunks))
	return &IngestResult{DocID: doc.ID, ChunkCount: len(chunks)}, nil
}

// Delete 删除文档及其全部分块，幂等；同时清空检索缓存
func (ing *Ingestor) Delete(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: doc id is empty", ErrInvalidInput)
	}
	if err := ing.store.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if ing.cache != nil {
		ing.cache.InvalidateAll(ctx)
	}
	applog.Info("[RAG] document deleted", "doc_id", docID)
	return nil
}
