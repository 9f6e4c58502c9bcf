package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docqa/internal/domain/memory"
	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// ── 文档管理 ─────────────────────────────────────────────────

// DocumentHandler 文档入库与管理 API
type DocumentHandler struct {
	ingestor  *rag.Ingestor
	store     rag.VectorStore
	parsers   *rag.ParserRegistry
	maxFileMB int
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(ingestor *rag.Ingestor, store rag.VectorStore, parsers *rag.ParserRegistry, maxFileMB int) *DocumentHandler {
	if maxFileMB <= 0 {
		maxFileMB = 50
	}
	return &DocumentHandler{
		ingestor:  ingestor,
		store:     store,
		parsers:   parsers,
		maxFileMB: maxFileMB,
	}
}

// RegisterRoutes 注册文档路由
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.IngestText)
		r.Post("/upload", h.Upload)
		r.Get("/", h.List)
		r.Get("/{docID}", h.Get)
		r.Delete("/{docID}", h.Delete)
	})
}

type ingestTextRequest struct {
	Filename string            `json:"filename"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestText 纯文本入库
func (h *DocumentHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "invalid request body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "filename is required")
		return
	}

	start := time.Now()
	result, err := h.ingestor.Ingest(r.Context(), req.Filename, req.Content, req.Metadata)
	if err != nil {
		applog.Error("[API] ingest failed", "filename", req.Filename, "error", err)
		writeDomainError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"doc_id":      result.DocID,
		"chunk_count": result.ChunkCount,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

// Upload 文件上传入库（multipart/form-data）
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	limitBytes := int64(h.maxFileMB) << 20

	if err := r.ParseMultipartForm(limitBytes); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > 0 && header.Size > limitBytes {
		writeError(w, http.StatusRequestEntityTooLarge, kindPayloadTooLarge, fmt.Sprintf("file size exceeds limit (%dMB)", h.maxFileMB))
		return
	}

	filename := header.Filename
	parser, err := h.parsers.Get(filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, fmt.Sprintf("unsupported file type: %s (supported: %s)", filepath.Ext(filename), h.parsers.SupportedTypes()))
		return
	}

	parsed, err := parser.Parse(file, filename)
	if err != nil {
		applog.Error("[API] parse failed", "filename", filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, kindUnprocessable, "failed to parse document")
		return
	}

	start := time.Now()
	result, err := h.ingestor.Ingest(r.Context(), filename, parsed.Content, parsed.Metadata)
	if err != nil {
		applog.Error("[API] ingest failed", "filename", filename, "error", err)
		writeDomainError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"doc_id":      result.DocID,
		"chunk_count": result.ChunkCount,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

// List 文档列表（含分块数）
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		applog.Error("[API] list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get 文档元信息。非法格式的 id 与不存在的 id 同样按 404 处理，
// 不能把畸形路径参数透传到存储层。
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if _, err := uuid.Parse(docID); err != nil {
		writeDomainError(w, rag.ErrNotFound, "document not found")
		return
	}
	doc, err := h.store.GetDocument(r.Context(), docID)
	if err != nil {
		if errors.Is(err, rag.ErrNotFound) {
			writeDomainError(w, err, "document not found")
			return
		}
		applog.Error("[API] get document failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete 删除文档，幂等；非法格式的 id 视同不存在，直接 no-op
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if _, err := uuid.Parse(docID); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}
	if err := h.ingestor.Delete(r.Context(), docID); err != nil {
		applog.Error("[API] delete document failed", "doc_id", docID, "error", err)
		writeDomainError(w, err, "failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ── 会话与问答 ────────────────────────────────────────────────

// ChatHandler 会话管理与检索增强问答 API
type ChatHandler struct {
	answerer *rag.Answerer
	mem      *memory.Manager
}

// NewChatHandler 创建问答处理器
func NewChatHandler(answerer *rag.Answerer, mem *memory.Manager) *ChatHandler {
	return &ChatHandler{answerer: answerer, mem: mem}
}

// RegisterRoutes 注册会话与问答路由
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{sessionID}/history", h.History)
		r.Delete("/{sessionID}", h.ClearSession)
	})
	r.Post("/ask", h.Ask)
}

// CreateSession 创建新会话：只发一个不透明 id，轮次随首次提问才落库
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": uuid.New().String()})
}

// History 会话历史，按时间先后升序
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, kindInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := h.mem.History(r.Context(), sessionID, limit)
	if err != nil {
		applog.Error("[API] session history failed", "session_id", sessionID, "error", err)
		writeDomainError(w, err, "failed to load session history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// ClearSession 清空会话历史，幂等
func (h *ChatHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.mem.ClearSession(r.Context(), sessionID); err != nil {
		applog.Error("[API] clear session failed", "session_id", sessionID, "error", err)
		writeDomainError(w, err, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// Ask 检索增强问答
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "question is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	subject := "anonymous"
	if id, ok := IdentityFrom(r.Context()); ok {
		subject = id.Subject
	}

	answer, err := h.answerer.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		applog.Error("[API] ask failed", "session_id", req.SessionID, "subject", subject, "error", err)
		writeDomainError(w, err, err.Error())
		return
	}
	applog.Info("[API] ask answered", "session_id", req.SessionID, "subject", subject, "elapsed_ms", answer.ElapsedMs)
	writeJSON(w, http.StatusOK, answer)
}
