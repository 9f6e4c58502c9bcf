package memory

import "context"

// TurnStore 会话轮次的持久化接口
//
// 约定：
//   - InsertTurn 由存储层分配 turn_index（同会话内严格递增，从 0 开始）；
//     并发追加由存储层内部解决，调用方只会看到成功或失败。
//   - RecentTurns 返回按 turn_index 升序排列的最近 n 轮。
//   - PruneTurns 删除超出 retain 上限的最旧轮次。
type TurnStore interface {
	InsertTurn(ctx context.Context, sessionID, question, answer string) (*Turn, error)
	RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error)
	PruneTurns(ctx context.Context, sessionID string, retain int) error
	DeleteSession(ctx context.Context, sessionID string) error
}
