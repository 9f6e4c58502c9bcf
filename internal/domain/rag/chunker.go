package rag

import "fmt"

// Chunker 固定窗口文本分块器。窗口之间共享 overlap 个字符，
// index 按产出顺序从 0 连续分配，即下游落库的 chunk_id。
type Chunker struct {
	chunkSize int // 每块最大字符数
	overlap   int // 块间重叠字符数
}

// NewChunker 创建分块器。overlap >= chunkSize 属配置错误，直接失败。
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", ErrInvalidInput, overlap)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk 将文本切分为有序 Passage 序列。
// 空文本返回空序列；短于 chunkSize 的文本恰好产出一块 index=0。
// 相同输入与参数下输出确定。
func (c *Chunker) Chunk(text string) []Passage {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []Passage{{Index: 0, Content: text}}
	}

	step := c.chunkSize - c.overlap
	var passages []Passage
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		passages = append(passages, Passage{Index: idx, Content: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return passages
}

// ChunkSize 返回窗口大小
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap 返回窗口重叠
func (c *Chunker) Overlap() int { return c.overlap }
