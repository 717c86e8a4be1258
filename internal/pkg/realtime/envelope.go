package realtime

import (
	"strconv"
	"sync/atomic"

	"github.com/goccy/go-json"
)

// 帧事件名
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventHeartbeat = "heartbeat"
	EventChange    = "postgres_changes"
)

// 心跳帧使用协议保留主题
const heartbeatTopic = "phoenix"

// Envelope 持久连接上的统一帧封装
type Envelope struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
}

// SubscriptionSpec 一条表级订阅
type SubscriptionSpec struct {
	Event  string `json:"event"` // 变更类型，"*" 表示全部
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	PostgresChanges []SubscriptionSpec `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

// refCounter 连接内严格递增的帧编号，仅用于排障，协议不依赖它
type refCounter struct {
	n atomic.Uint64
}

func (r *refCounter) Next() string {
	return strconv.FormatUint(r.n.Add(1), 10)
}

// EncodeJoin 编码批量订阅帧：一个主题承载全部表级订阅
func EncodeJoin(topic string, specs []SubscriptionSpec, accessToken, ref string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Topic: topic,
		Event: EventJoin,
		Payload: joinPayload{
			Config:      joinConfig{PostgresChanges: specs},
			AccessToken: accessToken,
		},
		Ref: ref,
	})
}

// EncodeLeave 编码离开帧
func EncodeLeave(topic, ref string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Topic:   topic,
		Event:   EventLeave,
		Payload: struct{}{},
		Ref:     ref,
	})
}

// EncodeHeartbeat 编码心跳帧
func EncodeHeartbeat(ref string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Topic:   heartbeatTopic,
		Event:   EventHeartbeat,
		Payload: struct{}{},
		Ref:     ref,
	})
}

// ChangeRecord 解码后的变更通知帧
type ChangeRecord struct {
	Schema          string         `json:"schema"`
	Table           string         `json:"table"`
	EventType       string         `json:"eventType"`
	New             map[string]any `json:"new"`
	Old             map[string]any `json:"old"`
	CommitTimestamp string         `json:"commit_timestamp"`
}

func (r *ChangeRecord) complete() bool {
	return r.Schema != "" && r.Table != "" && r.EventType != ""
}

// DecodeChange 解码入站帧。只处理 postgres_changes 事件；
// 载荷有两种已知形态：平铺，或嵌套在 data 键下一层。
// 两种形态都解不出 schema/table/eventType 时返回 ok=false，调用方直接丢帧。
func DecodeChange(frame []byte) (*ChangeRecord, bool) {
	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, false
	}
	if env.Event != EventChange || len(env.Payload) == 0 {
		return nil, false
	}

	// 形态一：载荷平铺
	var flat ChangeRecord
	if err := json.Unmarshal(env.Payload, &flat); err == nil && flat.complete() {
		return &flat, true
	}

	// 形态二：嵌套在 data 下
	var nested struct {
		Data ChangeRecord `json:"data"`
	}
	if err := json.Unmarshal(env.Payload, &nested); err == nil && nested.Data.complete() {
		return &nested.Data, true
	}

	return nil, false
}
