package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"docqa/internal/domain/memory"
)

// pq unique_violation
const pgUniqueViolation = "23505"

// insertRetries turn_index 并发冲突的重试上限
const insertRetries = 5

// TurnStore PostgreSQL 实现的会话轮次存储
type TurnStore struct {
	db *sql.DB
}

func NewTurnStore(db *sql.DB) *TurnStore {
	return &TurnStore{db: db}
}

// EnsureSchema 确保 session_turns 表存在
// (session_id, turn_index) 唯一约束是并发追加的仲裁点。
func (s *TurnStore) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS session_turns (
		session_id TEXT NOT NULL,
		turn_index INT NOT NULL,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, turn_index)
	);
	CREATE INDEX IF NOT EXISTS idx_session_turns_session ON session_turns(session_id, turn_index DESC);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure session_turns table: %w", err)
	}
	return nil
}

// InsertTurn 追加一轮：turn_index = max+1，并发撞索引时重算重试
func (s *TurnStore) InsertTurn(ctx context.Context, sessionID, question, answer string) (*memory.Turn, error) {
	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		turn := &memory.Turn{
			SessionID: sessionID,
			Question:  question,
			Answer:    answer,
			CreatedAt: time.Now().UTC(),
		}
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO session_turns (session_id, turn_index, question, answer, created_at)
			 SELECT $1, COALESCE(MAX(turn_index), -1) + 1, $2, $3, $4
			 FROM session_turns WHERE session_id = $1
			 RETURNING turn_index`,
			sessionID, question, answer, turn.CreatedAt,
		).Scan(&turn.TurnIndex)
		if err == nil {
			return turn, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	return nil, fmt.Errorf("insert turn: retries exhausted: %w", lastErr)
}

// RecentTurns 最近 n 轮，按 turn_index 升序返回
func (s *TurnStore) RecentTurns(ctx context.Context, sessionID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return []memory.Turn{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, turn_index, question, answer, created_at
		 FROM (
			SELECT session_id, turn_index, question, answer, created_at
			FROM session_turns WHERE session_id = $1
			ORDER BY turn_index DESC LIMIT $2
		 ) recent
		 ORDER BY turn_index ASC`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns := make([]memory.Turn, 0, n)
	for rows.Next() {
		var t memory.Turn
		if err := rows.Scan(&t.SessionID, &t.TurnIndex, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// PruneTurns 删除超出 retain 上限的最旧轮次
func (s *TurnStore) PruneTurns(ctx context.Context, sessionID string, retain int) error {
	if retain <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_turns
		 WHERE session_id = $1 AND turn_index < (
			SELECT COALESCE(MAX(turn_index), 0) - $2 + 1
			FROM session_turns WHERE session_id = $1
		 )`,
		sessionID, retain,
	)
	if err != nil {
		return fmt.Errorf("prune turns: %w", err)
	}
	return nil
}

// DeleteSession 清空会话历史，幂等
func (s *TurnStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_turns WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
