package memory

import "time"

// Turn 一轮完整的问答：用户问题 + 助手回答
type Turn struct {
	SessionID string    `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
