package rag

import "errors"

var (
	// ErrInvalidInput 输入非法（空文件、超大文件、overlap >= chunk_size 等），拒绝于任何副作用之前
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable 模型服务暂时不可用（重试耗尽后上抛）
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelContractViolation 向量维度与约定不符（模型/版本不匹配，不重试）
	ErrModelContractViolation = errors.New("model contract violation")

	// ErrIngestionFailed 入库失败，已回滚，未保留任何部分写入
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrNotFound 查询的文档/会话不存在
	ErrNotFound = errors.New("not found")

	// ErrTimeout 模型调用超过截止时间
	ErrTimeout = errors.New("model call timed out")
)
