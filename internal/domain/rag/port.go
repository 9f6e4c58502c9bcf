package rag

import "context"

// VectorStore 向量存储端口：文档/分块的持久化与相似度检索。
// 所有写操作在返回前落盘；StoreChunks 单文档全有或全无。
type VectorStore interface {
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context, dims int) error

	// CreateDocument 创建文档记录并返回生成的 doc_id
	CreateDocument(ctx context.Context, filename string) (*Document, error)
	// GetDocument 按 id 查询文档，不存在返回 ErrNotFound
	GetDocument(ctx context.Context, docID string) (*Document, error)
	// ListDocuments 按上传时间倒序列出文档（含分块数）
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// StoreChunks 事务写入一个文档的全部分块；任一失败则全部回滚
	StoreChunks(ctx context.Context, docID string, chunks []Chunk) error
	// Search 余弦相似度 top-k，降序；同分按 chunk_id、doc_id 升序。
	// 空库返回空序列而非错误。
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]ScoredChunk, error)
	// DeleteDocument 级联删除文档与其全部分块；id 不存在时为幂等 no-op
	DeleteDocument(ctx context.Context, docID string) error
}

// SearchCacheStore 检索结果缓存端口（可选组件，纯优化）
type SearchCacheStore interface {
	Get(ctx context.Context, query string, opts SearchOptions) ([]ScoredChunk, bool)
	Set(ctx context.Context, query string, opts SearchOptions, chunks []ScoredChunk)
	// InvalidateAll 入库/删除后清空，保证不会返回已删除文档的分块
	InvalidateAll(ctx context.Context)
}
