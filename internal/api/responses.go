package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"docqa/internal/domain/memory"
	"docqa/internal/domain/rag"
)

// 错误种类，随失败响应返回，客户端据此分支而不必解析 message
const (
	kindInvalidInput     = "invalid_input"
	kindNotFound         = "not_found"
	kindTimeout          = "timeout"
	kindModelUnavailable = "model_unavailable"
	kindModelContract    = "model_contract_violation"
	kindUnauthorized     = "unauthorized"
	kindPayloadTooLarge  = "payload_too_large"
	kindUnprocessable    = "unprocessable"
	kindInternal         = "internal"
)

// APIResponse 统一 JSON 响应；Error 仅在失败时携带错误种类
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: "ok",
		Data:    data,
	})
}

// writeError 带错误种类的失败响应
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: message,
		Error:   kind,
	})
}

// writeDomainError 按领域错误写出状态码与错误种类
func writeDomainError(w http.ResponseWriter, err error, message string) {
	status, kind := classifyError(err)
	writeError(w, status, kind, message)
}

// classifyError 领域错误到 HTTP 状态码与错误种类的映射
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, memory.ErrInvalidInput):
		return http.StatusBadRequest, kindInvalidInput
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, rag.ErrTimeout):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.Is(err, rag.ErrModelUnavailable):
		return http.StatusBadGateway, kindModelUnavailable
	case errors.Is(err, rag.ErrModelContractViolation):
		return http.StatusBadGateway, kindModelContract
	default:
		return http.StatusInternalServerError, kindInternal
	}
}
