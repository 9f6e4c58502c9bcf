package api

import "context"

// Identity 已鉴权的请求身份（注入到 context）
type Identity struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

type identityContextKey struct{}

// WithIdentity 注入 Identity 到 context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom 从 context 提取 Identity；开放模式下没有身份
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}
