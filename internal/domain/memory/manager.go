package memory

import (
	"context"
	"fmt"
)

// Manager 有界对话记忆
//
// 在 TurnStore 之上做两件事：
//  1. 读取时只取最近 window 轮，避免提示词无限膨胀；
//  2. 写入后立即按 retain 上限裁剪最旧轮次，存储占用有界。
type Manager struct {
	store  TurnStore
	window int
	retain int
}

// NewManager 创建记忆管理器
// window 为上下文窗口轮数；retain 为每个会话最多保留的轮数，0 表示不裁剪。
func NewManager(store TurnStore, window, retain int) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: turn store is required", ErrInvalidInput)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: memory window must be positive, got %d", ErrInvalidInput, window)
	}
	if retain > 0 && retain < window {
		return nil, fmt.Errorf("%w: retain (%d) must be >= window (%d)", ErrInvalidInput, retain, window)
	}
	return &Manager{store: store, window: window, retain: retain}, nil
}

// Window 上下文窗口轮数
func (m *Manager) Window() int {
	return m.window
}

// AppendTurn 追加一轮问答并按保留上限裁剪历史
// 追加成功但裁剪失败时仍返回写入的轮次，错误一并返回。
func (m *Manager) AppendTurn(ctx context.Context, sessionID, question, answer string) (*Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}

	turn, err := m.store.InsertTurn(ctx, sessionID, question, answer)
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	if m.retain > 0 {
		if err := m.store.PruneTurns(ctx, sessionID, m.retain); err != nil {
			return turn, fmt.Errorf("prune turns: %w", err)
		}
	}
	return turn, nil
}

// RecentTurns 返回最近 window 轮，按时间先后升序；未知会话返回空
func (m *Manager) RecentTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, m.window)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	return turns, nil
}

// History 返回最近 limit 轮（limit<=0 时使用窗口大小），供历史查询接口使用
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = m.window
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return turns, nil
}

// ClearSession 清空会话的全部历史，幂等
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
