package realtime

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJoin(t *testing.T) {
	specs := []SubscriptionSpec{
		{Event: "INSERT", Schema: "public", Table: "audit_log"},
		{Event: "*", Schema: "public", Table: "team_requests"},
	}

	frame, err := EncodeJoin("realtime:test", specs, "token-1", "7")
	require.NoError(t, err)

	var env struct {
		Topic   string `json:"topic"`
		Event   string `json:"event"`
		Ref     string `json:"ref"`
		Payload struct {
			Config struct {
				PostgresChanges []SubscriptionSpec `json:"postgres_changes"`
			} `json:"config"`
			AccessToken string `json:"access_token"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))

	assert.Equal(t, "realtime:test", env.Topic)
	assert.Equal(t, EventJoin, env.Event)
	assert.Equal(t, "7", env.Ref)
	assert.Equal(t, "token-1", env.Payload.AccessToken)
	// 一个 join 承载全部表级订阅
	assert.Len(t, env.Payload.Config.PostgresChanges, 2)
}

func TestRefCounterStrictlyIncreasing(t *testing.T) {
	var refs refCounter
	prev := ""
	for i := 0; i < 5; i++ {
		next := refs.Next()
		assert.NotEqual(t, prev, next)
		prev = next
	}
	assert.Equal(t, "5", prev)
}

func TestDecodeChangeFlatPayload(t *testing.T) {
	frame := []byte(`{
		"topic": "realtime:test",
		"event": "postgres_changes",
		"payload": {
			"schema": "public",
			"table": "audit_log",
			"eventType": "INSERT",
			"new": {"category": "chat_message"},
			"commit_timestamp": "2026-01-02T03:04:05Z"
		},
		"ref": "1"
	}`)

	rec, ok := DecodeChange(frame)
	require.True(t, ok)
	assert.Equal(t, "public", rec.Schema)
	assert.Equal(t, "audit_log", rec.Table)
	assert.Equal(t, "INSERT", rec.EventType)
	assert.Equal(t, "chat_message", rec.New["category"])
}

func TestDecodeChangeNestedPayload(t *testing.T) {
	// 第二种已知形态：载荷嵌套在 data 键下，解码结果必须与平铺形态一致
	frame := []byte(`{
		"topic": "realtime:test",
		"event": "postgres_changes",
		"payload": {
			"data": {
				"schema": "public",
				"table": "audit_log",
				"eventType": "INSERT",
				"new": {"category": "chat_message"},
				"commit_timestamp": "2026-01-02T03:04:05Z"
			}
		},
		"ref": "2"
	}`)

	rec, ok := DecodeChange(frame)
	require.True(t, ok)
	assert.Equal(t, "public", rec.Schema)
	assert.Equal(t, "audit_log", rec.Table)
	assert.Equal(t, "INSERT", rec.EventType)
	assert.Equal(t, "chat_message", rec.New["category"])
}

func TestDecodeChangeIncompleteFrame(t *testing.T) {
	cases := map[string][]byte{
		"缺 table": []byte(`{"event":"postgres_changes","payload":{"schema":"public","eventType":"INSERT"}}`),
		"缺 eventType": []byte(`{"event":"postgres_changes","payload":{"schema":"public","table":"audit_log"}}`),
		"缺 schema": []byte(`{"event":"postgres_changes","payload":{"table":"audit_log","eventType":"INSERT"}}`),
		"两种形态都不完整": []byte(`{"event":"postgres_changes","payload":{"data":{"table":"audit_log"}}}`),
		"非变更事件":  []byte(`{"event":"phx_reply","payload":{"schema":"public","table":"audit_log","eventType":"INSERT"}}`),
		"非法 JSON": []byte(`{event:`),
		"空载荷":     []byte(`{"event":"postgres_changes"}`),
	}

	for name, frame := range cases {
		rec, ok := DecodeChange(frame)
		assert.False(t, ok, name)
		assert.Nil(t, rec, name)
	}
}
