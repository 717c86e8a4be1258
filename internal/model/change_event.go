package model

// ChangeEvent 审计变更行。它只是一个"有东西变了"的失效信号，
// 携带的字段是提示而非权威状态，消费方必须自行回源拉取。
type ChangeEvent struct {
	Category  string         `json:"category"`
	ActorID   string         `json:"actor_id"`
	TargetID  string         `json:"target_id,omitempty"`
	TeamID    string         `json:"team_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// HintThreadID 从 metadata 中提取会话 ID 提示，没有则返回空串
func (e *ChangeEvent) HintThreadID() string {
	if e.Metadata == nil {
		return ""
	}
	if v, ok := e.Metadata["thread_id"].(string); ok {
		return v
	}
	return ""
}
