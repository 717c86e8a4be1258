package model

// Watermark 已读水位：(会话, 用户) 维度的毫秒时间戳。
// 只增不减，任何写入都是 max 合并，因此并发写入可交换。
type Watermark struct {
	ThreadID string `json:"thread_id"`
	ViewerID string `json:"viewer_id"`
	SeenAt   int64  `json:"seen_at"`
}

// MergeWatermark 单调合并：返回两者中的较大值
func MergeWatermark(current, candidate int64) int64 {
	if candidate > current {
		return candidate
	}
	return current
}
