package rag_test

import (
	"errors"
	"strings"
	"testing"

	"docqa/internal/domain/rag"
)

// TestParserRegistryLookup 按扩展名路由到正确的解析器
func TestParserRegistryLookup(t *testing.T) {
	registry := rag.NewParserRegistry()

	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"report.pdf", false},
		{"notes.TXT", false},
		{"README.md", false},
		{"contract.docx", false},
		{"data.csv", false},
		{"archive.zip", true},
		{"no-extension", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			p, err := registry.Get(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, rag.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput for %s, got: %v", tt.filename, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get(%s) failed: %v", tt.filename, err)
			}
			if p == nil {
				t.Fatalf("Get(%s) returned nil parser", tt.filename)
			}
		})
	}
}

// TestPlainTextParser 纯文本原样透传，记录格式
func TestPlainTextParser(t *testing.T) {
	p := &rag.PlainTextParser{}

	result, err := p.Parse(strings.NewReader("  hello world  \n"), "notes.txt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Content != "hello world" {
		t.Errorf("expected trimmed content, got %q", result.Content)
	}
	if result.Metadata["format"] != "txt" {
		t.Errorf("expected format metadata, got %v", result.Metadata)
	}
}

// TestMarkdownParser 去除格式标记，提取标题
func TestMarkdownParser(t *testing.T) {
	p := &rag.MarkdownParser{}

	md := "# User Guide\n\nSome **bold** and *italic* text with a [link](https://example.com).\n\n```go\nfmt.Println(\"kept\")\n```\n"
	result, err := p.Parse(strings.NewReader(md), "guide.md")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.Metadata["title"] != "User Guide" {
		t.Errorf("expected extracted title, got %v", result.Metadata)
	}
	if strings.Contains(result.Content, "**") || strings.Contains(result.Content, "```") {
		t.Errorf("markup must be stripped: %q", result.Content)
	}
	if !strings.Contains(result.Content, "bold") || !strings.Contains(result.Content, "link") {
		t.Errorf("text content must survive: %q", result.Content)
	}
	if !strings.Contains(result.Content, "kept") {
		t.Errorf("code block contents must survive: %q", result.Content)
	}

	t.Logf("✅ markdown reduced to: %q", result.Content)
}
