package dto

// MarkSeenReq 推进已读水位请求
type MarkSeenReq struct {
	ThreadID  string `json:"thread_id" binding:"required"`
	Timestamp int64  `json:"timestamp"` // 毫秒时间戳，缺省取当前时间
}

// MarkSeenDTO 推进结果
type MarkSeenDTO struct {
	ThreadID string `json:"thread_id"`
	SeenAt   int64  `json:"seen_at"` // 合并后的水位
}

// BadgeDTO 应用外壳徽标快照
type BadgeDTO struct {
	ContactUnread     map[string]int `json:"contact_unread"` // 对方用户ID -> 未读数
	TeamUnread        map[string]int `json:"team_unread"`    // 队伍ID -> 未读数
	HasPendingRequest bool           `json:"has_pending_request"`
	HasUnreadChat     bool           `json:"has_unread_chat"`
	RefreshedAt       int64          `json:"refreshed_at"` // 最近一次成功刷新，毫秒
}

// ReadReceiptDTO 单聊已读回执
type ReadReceiptDTO struct {
	ThreadID   string `json:"thread_id"`
	LastSentAt int64  `json:"last_sent_at"` // 我方最后一条消息时间
	Read       bool   `json:"read"`
}

// PresenceReq 页面可见性/焦点上报
type PresenceReq struct {
	Visible      bool   `json:"visible"`
	Focused      bool   `json:"focused"`
	ActiveThread string `json:"active_thread"` // 当前打开的会话，未读恒为 0
}
