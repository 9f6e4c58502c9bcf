package rag

import "fmt"

// Config RAG 模块配置
type Config struct {
	// 检索配置
	DefaultTopK int     `json:"default_top_k"`
	MinScore    float64 `json:"min_score"` // 相关性下限，0 = 关闭

	// Chunker 配置
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// Embedding 配置
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDims      int    `json:"embedding_dims"`
	EmbeddingBatchSize int    `json:"embedding_batch_size"`

	// 生成配置
	GenerationModel string  `json:"generation_model"`
	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`

	// 对话记忆窗口：每次回答携带的最近轮数
	MemoryTurns int `json:"memory_turns"`
	// 存储保留轮数（清理策略，与读取窗口解耦；0 = 不清理）
	RetainTurns int `json:"retain_turns"`

	// 模型调用超时（秒）
	ModelTimeoutSeconds int `json:"model_timeout_seconds"`

	// 缓存与上传限制
	CacheTTL    int `json:"cache_ttl"`     // 检索缓存 TTL（秒），0=禁用
	MaxFileSize int `json:"max_file_size"` // 最大上传文件（MB）
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		DefaultTopK:         4,
		MinScore:            0,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDims:       1536,
		EmbeddingBatchSize:  64,
		GenerationModel:     "gpt-4o-mini",
		MaxTokens:           1000,
		Temperature:         0.1,
		MemoryTurns:         5,
		RetainTurns:         50,
		ModelTimeoutSeconds: 30,
		CacheTTL:            0,
		MaxFileSize:         50,
	}
}

// Validate 校验配置，非法组合在任何副作用之前失败
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidInput, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidInput, c.ChunkOverlap)
	}
	if c.EmbeddingDims <= 0 {
		return fmt.Errorf("%w: embedding_dims must be positive, got %d", ErrInvalidInput, c.EmbeddingDims)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("%w: default_top_k must be positive, got %d", ErrInvalidInput, c.DefaultTopK)
	}
	return nil
}

// HasCache 是否启用检索缓存
func (c *Config) HasCache() bool {
	return c.CacheTTL > 0
}

// ModelTimeout 返回模型调用超时秒数（最小 1）
func (c *Config) ModelTimeout() int {
	if c.ModelTimeoutSeconds <= 0 {
		return 30
	}
	return c.ModelTimeoutSeconds
}
