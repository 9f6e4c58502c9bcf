package rag

import "time"

// Document 文档元数据
type Document struct {
	ID         string    `json:"doc_id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DocumentInfo 文档列表条目（含分块数）
type DocumentInfo struct {
	ID         string    `json:"doc_id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	ChunkCount int       `json:"chunk_count"`
}

// Chunk 向量分块记录。ChunkID 在所属文档内从 0 连续递增。
type Chunk struct {
	DocID     string            `json:"doc_id"`
	ChunkID   int               `json:"chunk_id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ScoredChunk 检索结果：分块 + 余弦相似度分数
type ScoredChunk struct {
	Chunk
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// SearchOptions 相似度检索参数
type SearchOptions struct {
	TopK int `json:"top_k"`
	// MinScore 相关性下限（0 = 不过滤），作为可选参数而非默认行为
	MinScore float64 `json:"min_score,omitempty"`
}

// Passage 分块器输出：(index, content)，index 即落库的 chunk_id
type Passage struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// IngestResult 入库结果
type IngestResult struct {
	DocID      string `json:"doc_id"`
	ChunkCount int    `json:"chunk_count"`
}

// Citation 答案引用：指回支撑该回答的具体分块
type Citation struct {
	Source   int               `json:"source"` // 上下文中的 [Source N] 编号，从 1 开始
	DocID    string            `json:"doc_id"`
	ChunkID  int               `json:"chunk_id"`
	Filename string            `json:"filename"`
	Snippet  string            `json:"snippet"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Answer 问答结果
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
	SessionID string     `json:"session_id"`
	TurnIndex int        `json:"turn_index"`
	ElapsedMs int64      `json:"elapsed_ms"`
}
