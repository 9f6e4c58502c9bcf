package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"docqa/internal/domain/memory"
	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

// citationPattern 匹配回答中的 [Source N] / [Source 1, 2] 引用标记
// 标记前的空白一并捕获：整体移除标记时连带移除，避免留下双空格
var citationPattern = regexp.MustCompile(`(?i)(\s*)\[Source\s+(\d+(?:,\s*\d+)*)\]`)

// Answerer 检索增强问答编排器
//
// Ask 的执行顺序固定：向量化问题 → 相似度检索 → 取会话记忆 →
// 组装提示词 → 生成 → 引用校验 → 持久化本轮。任一步失败即中止，
// 失败的轮次不写入会话历史。
type Answerer struct {
	gateway *Gateway
	store   VectorStore
	mem     *memory.Manager
	llm     provider.LLMProvider
	cache   SearchCacheStore // 可选，nil 表示禁用
	cfg     *Config
	logger  func(msg string, args ...any)
}

// NewAnswerer 创建问答编排器。cache 可为 nil。
func NewAnswerer(gateway *Gateway, store VectorStore, mem *memory.Manager, llm provider.LLMProvider, cache SearchCacheStore, cfg *Config) (*Answerer, error) {
	if gateway == nil || store == nil || mem == nil || llm == nil {
		return nil, fmt.Errorf("%w: gateway, store, memory and llm are required", ErrInvalidInput)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Answerer{
		gateway: gateway,
		store:   store,
		mem:     mem,
		llm:     llm,
		cache:   cache,
		cfg:     cfg,
		logger:  applog.Info,
	}, nil
}

// Ask 回答一个问题并把本轮写入会话历史
func (a *Answerer) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	start := time.Now()

	chunks, err := a.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	turns, err := a.mem.RecentTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := a.buildMessages(question, chunks, turns)

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.ModelTimeout())*time.Second)
	defer cancel()

	resp, err := a.llm.Complete(genCtx, &provider.CompletionRequest{
		Model:       a.cfg.GenerationModel,
		Messages:    messages,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: generation exceeded %ds", ErrTimeout, a.cfg.ModelTimeout())
		}
		return nil, fmt.Errorf("%w: generation failed: %v", ErrModelUnavailable, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: model returned empty answer", ErrModelContractViolation)
	}

	text, citations := validateCitations(text, chunks)

	turn, err := a.mem.AppendTurn(ctx, sessionID, question, text)
	if err != nil {
		return nil, err
	}

	a.logger("[RAG] answered question",
		"session_id", sessionID,
		"turn_index", turn.TurnIndex,
		"retrieved", len(chunks),
		"citations", len(citations),
		"elapsed_ms", time.Since(start).Milliseconds())

	return &Answer{
		Text:      text,
		Citations: citations,
		SessionID: sessionID,
		TurnIndex: turn.TurnIndex,
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

// retrieve 向量化问题并做 top-k 检索，可选走检索缓存
func (a *Answerer) retrieve(ctx context.Context, question string) ([]ScoredChunk, error) {
	opts := SearchOptions{TopK: a.cfg.DefaultTopK, MinScore: a.cfg.MinScore}

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, question, opts); ok {
			return cached, nil
		}
	}

	embCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.ModelTimeout())*time.Second)
	defer cancel()
	vectors, err := a.gateway.Embed(embCtx, []string{question})
	if err != nil {
		return nil, err
	}

	chunks, err := a.store.Search(ctx, vectors[0], opts)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if a.cache != nil {
		a.cache.Set(ctx, question, opts, chunks)
	}
	return chunks, nil
}

// buildMessages 组装发给模型的完整消息序列：
// system 提示 → 最近的历史轮次 → 携带编号上下文的当前问题。
// 检索为空时切换到明确告知"无相关文档"的降级提示词。
func (a *Answerer) buildMessages(question string, chunks []ScoredChunk, turns []memory.Turn) []provider.Message {
	messages := make([]provider.Message, 0, 2*len(turns)+2)

	if len(chunks) == 0 {
		messages = append(messages, provider.Message{Role: "system", Content: fallbackSystemPrompt})
	} else {
		messages = append(messages, provider.Message{Role: "system", Content: systemPrompt})
	}

	for _, t := range turns {
		messages = append(messages,
			provider.Message{Role: "user", Content: t.Question},
			provider.Message{Role: "assistant", Content: t.Answer},
		)
	}

	if len(chunks) == 0 {
		messages = append(messages, provider.Message{
			Role:    "user",
			Content: "I couldn't find relevant documents for this question: " + question,
		})
		return messages
	}

	var sb strings.Builder
	sb.WriteString("Context Information:\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[Source %d: %s (Similarity: %.3f)]\n%s\n\n", i+1, c.Filename, c.Score, c.Content)
	}
	fmt.Fprintf(&sb, "User Question: %s\n\n", question)
	sb.WriteString("Please provide a helpful answer based on the context information above. " +
		"Include specific citations using [Source X] format when referencing information from the context.")

	messages = append(messages, provider.Message{Role: "user", Content: sb.String()})
	return messages
}

// validateCitations 事后校验引用标记：
// 指向上下文内编号的标记转为结构化 Citation；越界编号的标记整体移除，
// 绝不凭空补出引用。
func validateCitations(text string, chunks []ScoredChunk) (string, []Citation) {
	cited := make(map[int]bool)

	cleaned := citationPattern.ReplaceAllStringFunc(text, func(marker string) string {
		groups := citationPattern.FindStringSubmatch(marker)
		lead, nums := groups[1], groups[2]
		valid := make([]string, 0, 2)
		for _, part := range strings.Split(nums, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(chunks) {
				continue
			}
			cited[n] = true
			valid = append(valid, strconv.Itoa(n))
		}
		if len(valid) == 0 {
			return ""
		}
		return lead + "[Source " + strings.Join(valid, ", ") + "]"
	})
	cleaned = strings.TrimSpace(cleaned)

	citations := make([]Citation, 0, len(cited))
	for i, c := range chunks {
		if !cited[i+1] {
			continue
		}
		citations = append(citations, Citation{
			Source:   i + 1,
			DocID:    c.DocID,
			ChunkID:  c.ChunkID,
			Filename: c.Filename,
			Snippet:  snippet(c.Content, 200),
			Score:    c.Score,
			Metadata: c.Metadata,
		})
	}
	return cleaned, citations
}

// snippet 截取前 n 个字符作为引用摘要，按 rune 截断
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

const systemPrompt = `You are a helpful AI assistant that answers questions based on provided context documents.

IMPORTANT INSTRUCTIONS:
1. Base your answers primarily on the provided context information
2. Always cite your sources using [Source X] format when referencing specific information
3. If the context doesn't contain enough information to fully answer the question, say so clearly
4. Be concise but comprehensive in your responses
5. If you're unsure about something, express that uncertainty
6. For questions not covered in the context, you may use your general knowledge but clearly distinguish this

CITATION FORMAT:
- Use [Source 1], [Source 2], etc. to reference the numbered sources in the context
- Place citations immediately after the relevant information
- Multiple sources can be cited like [Source 1, 2]

RESPONSE STRUCTURE:
- Provide a direct answer to the question
- Support your answer with relevant details from the context
- Include proper citations throughout
- End with a brief summary if the response is long`

const fallbackSystemPrompt = `You are a helpful AI assistant. The user has asked a question but no relevant documents were found in the knowledge base.

Provide a helpful response that:
1. Acknowledges that no specific documents were found for their question
2. Offers general guidance or information if appropriate
3. Suggests how they might rephrase their question or what related topics might be available
4. Remains helpful and encouraging`
