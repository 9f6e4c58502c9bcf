package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// VectorStore lib/pq + pgvector 实现的向量存储
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore 创建 PostgreSQL 向量存储
func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

func (s *VectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema 确保 vector 扩展与 documents/chunks 表存在
// chunks 主键 (doc_id, chunk_id)，外键级联删除保证文档删除后不残留分块。
func (s *VectorStore) EnsureSchema(ctx context.Context, dims int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS documents (
		id          UUID PRIMARY KEY,
		filename    VARCHAR(512) NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		doc_id    UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_id  INT NOT NULL,
		content   TEXT NOT NULL,
		embedding vector(%d),
		metadata  JSONB,
		PRIMARY KEY (doc_id, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
	`, dims)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure document tables: %w", err)
	}

	// ivfflat 索引在空表上建会降低召回，失败仅告警（小库全表扫描足够快）
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	); err != nil {
		applog.Warn("[Storage] ivfflat index creation failed", "error", err)
	}
	return nil
}

func (s *VectorStore) CreateDocument(ctx context.Context, filename string) (*rag.Document, error) {
	doc := &rag.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, uploaded_at) VALUES ($1, $2, $3)`,
		doc.ID, doc.Filename, doc.UploadedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *VectorStore) GetDocument(ctx context.Context, docID string) (*rag.Document, error) {
	doc := &rag.Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, uploaded_at FROM documents WHERE id = $1`,
		docID,
	).Scan(&doc.ID, &doc.Filename, &doc.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", docID, rag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *VectorStore) ListDocuments(ctx context.Context) ([]rag.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.filename, d.uploaded_at, COUNT(c.chunk_id)
		 FROM documents d
		 LEFT JOIN chunks c ON c.doc_id = d.id
		 GROUP BY d.id, d.filename, d.uploaded_at
		 ORDER BY d.uploaded_at DESC, d.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]rag.DocumentInfo, 0)
	for rows.Next() {
		var d rag.DocumentInfo
		if err := rows.Scan(&d.ID, &d.Filename, &d.UploadedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// StoreChunks 单事务写入一个文档的全部分块，任一失败整体回滚
func (s *VectorStore) StoreChunks(ctx context.Context, docID string, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (doc_id, chunk_id, content, embedding, metadata) VALUES ($1, $2, $3, $4, $5)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var meta any
		if len(c.Metadata) > 0 {
			b, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshal chunk metadata: %w", err)
			}
			meta = b
		}
		if _, err := stmt.ExecContext(ctx, docID, c.ChunkID, c.Content, pgvector.NewVector(c.Embedding), meta); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Search 余弦相似度 top-k
// 相似度 = 1 - 余弦距离；同分按 chunk_id、doc_id 升序保证结果确定。
func (s *VectorStore) Search(ctx context.Context, embedding []float32, opts rag.SearchOptions) ([]rag.ScoredChunk, error) {
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", rag.ErrInvalidInput, opts.TopK)
	}

	query := `SELECT c.doc_id, c.chunk_id, c.content, c.metadata, d.filename,
			1 - (c.embedding <=> $1) AS similarity
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE c.embedding IS NOT NULL`
	args := []any{pgvector.NewVector(embedding)}
	if opts.MinScore > 0 {
		query += ` AND 1 - (c.embedding <=> $1) >= $3`
		args = append(args, opts.TopK, opts.MinScore)
	} else {
		args = append(args, opts.TopK)
	}
	query += ` ORDER BY c.embedding <=> $1 ASC, c.chunk_id ASC, c.doc_id ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := make([]rag.ScoredChunk, 0, opts.TopK)
	for rows.Next() {
		var sc rag.ScoredChunk
		var metaRaw []byte
		if err := rows.Scan(&sc.DocID, &sc.ChunkID, &sc.Content, &metaRaw, &sc.Filename, &sc.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &sc.Metadata); err != nil {
				applog.Warn("[Storage] bad chunk metadata", "doc_id", sc.DocID, "chunk_id", sc.ChunkID, "error", err)
			}
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// DeleteDocument 级联删除文档与分块；未知 id 为幂等 no-op
func (s *VectorStore) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
