package rag_test

import (
	"strings"
	"testing"

	"docqa/internal/domain/rag"
)

// TestChunkerDefaults 默认参数：2500 字符 → 3 块，id 0,1,2
func TestChunkerDefaults(t *testing.T) {
	c, err := rag.NewChunker(1000, 200)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	text := strings.Repeat("a", 2500)
	passages := c.Chunk(text)

	if len(passages) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(passages))
	}
	for i, p := range passages {
		if p.Index != i {
			t.Errorf("passage %d has index %d", i, p.Index)
		}
	}
	if len(passages[0].Content) != 1000 || len(passages[1].Content) != 1000 {
		t.Errorf("expected full passages of 1000 chars, got %d and %d", len(passages[0].Content), len(passages[1].Content))
	}
	// 最后一块从 1600 开始，到 2500 结束
	if len(passages[2].Content) != 900 {
		t.Errorf("expected final passage of 900 chars, got %d", len(passages[2].Content))
	}

	t.Logf("✅ 2500 chars chunked into %d passages", len(passages))
}

// TestChunkerCoverage 相邻块重叠 overlap 字符，拼接可还原原文
func TestChunkerCoverage(t *testing.T) {
	c, err := rag.NewChunker(100, 20)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	text := sb.String()

	passages := c.Chunk(text)
	if len(passages) == 0 {
		t.Fatal("expected passages")
	}

	// 重叠不变式：下一块的前 overlap 字符 == 上一块的后 overlap 字符
	for i := 1; i < len(passages); i++ {
		prev := passages[i-1].Content
		cur := passages[i].Content
		overlap := 20
		if len(cur) < overlap {
			overlap = len(cur)
		}
		if prev[len(prev)-overlap:] != cur[:overlap] {
			t.Fatalf("overlap mismatch between passage %d and %d", i-1, i)
		}
	}

	// 覆盖不变式：按步长去重后拼接还原原文
	step := 100 - 20
	var rebuilt strings.Builder
	rebuilt.WriteString(passages[0].Content)
	for i := 1; i < len(passages); i++ {
		start := i * step
		if start+len(passages[i].Content) <= rebuilt.Len() {
			continue
		}
		rebuilt.WriteString(passages[i].Content[rebuilt.Len()-start:])
	}
	if rebuilt.String() != text {
		t.Fatal("reassembled text does not match original")
	}

	t.Logf("✅ coverage and overlap invariants hold for %d passages", len(passages))
}

// TestChunkerEdgeCases 空文本 / 短文本 / 确定性
func TestChunkerEdgeCases(t *testing.T) {
	c, err := rag.NewChunker(1000, 200)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	if got := c.Chunk(""); got != nil {
		t.Errorf("empty text should yield no passages, got %d", len(got))
	}

	short := c.Chunk("hello world")
	if len(short) != 1 || short[0].Index != 0 || short[0].Content != "hello world" {
		t.Errorf("short text should yield a single passage, got %+v", short)
	}

	text := strings.Repeat("x", 3000)
	first := c.Chunk(text)
	second := c.Chunk(text)
	if len(first) != len(second) {
		t.Fatalf("chunking is not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("passage %d differs between runs", i)
		}
	}

	t.Logf("✅ edge cases handled")
}

// TestChunkerUnicode 多字节字符按 rune 切分，不截断字符
func TestChunkerUnicode(t *testing.T) {
	c, err := rag.NewChunker(10, 2)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	text := strings.Repeat("数据检索与增强生成流水线测试", 5)
	passages := c.Chunk(text)

	for i, p := range passages {
		if strings.ContainsRune(p.Content, '�') {
			t.Errorf("passage %d contains a broken rune", i)
		}
		if n := len([]rune(p.Content)); n > 10 {
			t.Errorf("passage %d has %d runes, want <= 10", i, n)
		}
	}

	t.Logf("✅ unicode text chunked into %d passages without broken runes", len(passages))
}

// TestChunkerInvalidConfig overlap >= size 必须拒绝
func TestChunkerInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rag.NewChunker(tt.size, tt.overlap); err == nil {
				t.Fatalf("expected error for size=%d overlap=%d", tt.size, tt.overlap)
			}
		})
	}
}
