package model

// Message 消息实体，由协作方 REST 接口返回
type Message struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	SenderID  string `json:"sender_id"` // 为空表示系统消息，无发送者
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // 毫秒时间戳
}
