package model

import "strings"

// ThreadKind 会话类型
type ThreadKind string

const (
	ThreadKindDirect ThreadKind = "direct" // 单聊
	ThreadKindTeam   ThreadKind = "team"   // 队伍群聊
)

// Thread 会话实体，由协作方 REST 接口返回
type Thread struct {
	ID            string           `json:"id"`
	Kind          ThreadKind       `json:"kind"`
	Participants  []string         `json:"participants,omitempty"` // 单聊双方，顺序无关
	TeamID        string           `json:"team_id,omitempty"`
	LastMessageAt int64            `json:"last_message_at"` // 毫秒时间戳
	SeenAt        map[string]int64 `json:"seen_at,omitempty"` // 单聊服务端各参与者已读水位
}

// ThreadKindOf 从会话 ID 前缀推断类型：dm::a::b 为单聊，team::t 为群聊
func ThreadKindOf(threadID string) ThreadKind {
	if strings.HasPrefix(threadID, "team::") {
		return ThreadKindTeam
	}
	return ThreadKindDirect
}

// IsDirect 是否为单聊会话
func (t *Thread) IsDirect() bool {
	return t.Kind == ThreadKindDirect
}

// Peer 返回单聊中的对手方 ID，非单聊或不含当前用户时返回空串
func (t *Thread) Peer(viewerID string) string {
	if t.Kind != ThreadKindDirect || len(t.Participants) != 2 {
		return ""
	}
	if t.Participants[0] == viewerID {
		return t.Participants[1]
	}
	if t.Participants[1] == viewerID {
		return t.Participants[0]
	}
	return ""
}

// PeerSeenAt 返回对手方在服务端上报的已读水位，未知时为 0
func (t *Thread) PeerSeenAt(viewerID string) int64 {
	peer := t.Peer(viewerID)
	if peer == "" || t.SeenAt == nil {
		return 0
	}
	return t.SeenAt[peer]
}
