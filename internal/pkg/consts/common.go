package consts

import "time"

// 实时连接参数
const (
	HeartbeatInterval  = 25 * time.Second         // 心跳间隔，防止中间层断开空闲连接
	ReconnectBaseDelay = 1000 * time.Millisecond  // 重连退避基数
	ReconnectMaxDelay  = 15000 * time.Millisecond // 重连退避上限
	ReconnectJitterMax = 300 * time.Millisecond   // 重连抖动上限
	RealtimeVersion    = "1.0.0"
	RealtimeSocketPath = "/realtime/v1/websocket"
)

// 未读聚合参数
const (
	RefreshInterval    = 15 * time.Second        // 兜底轮询间隔
	RealtimeRefreshGap = 1200 * time.Millisecond // 实时触发的刷新限流窗口
	ReadReceiptGraceMs = 2000                    // 已读回执时钟偏移宽限（毫秒）
)

// ChangeEventCategories 触发刷新的变更类别白名单
var ChangeEventCategories = map[string]struct{}{
	"chat_message": {},
	"chat_seen":    {},
	"team_request": {},
	"team_invite":  {},
	"team_member":  {},
}
