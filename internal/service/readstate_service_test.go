package service

import (
	"Teamlink/internal/model"
	"Teamlink/internal/pkg/bus"
	"Teamlink/internal/pkg/localstore"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeThreadRepo struct {
	mu           sync.Mutex
	threads      []*model.Thread
	messages     map[string][]*model.Message
	threadCalls  int
	messageCalls int
	fail         bool
}

func (f *fakeThreadRepo) ListThreads(_ context.Context, _ string) ([]*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadCalls++
	if f.fail {
		return nil, assert.AnError
	}
	return f.threads, nil
}

func (f *fakeThreadRepo) ListMessages(_ context.Context, threadID string, _ int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCalls++
	if f.fail {
		return nil, assert.AnError
	}
	return f.messages[threadID], nil
}

func (f *fakeThreadRepo) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadCalls, f.messageCalls
}

type fakeReceiptRepo struct {
	mu      sync.Mutex
	seen    map[string]map[string]int64 // threadID -> viewer -> seenAt
	upserts int
}

func (f *fakeReceiptRepo) Upsert(_ context.Context, threadID, viewerID string, seenAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]map[string]int64)
	}
	if f.seen[threadID] == nil {
		f.seen[threadID] = make(map[string]int64)
	}
	f.seen[threadID][viewerID] = model.MergeWatermark(f.seen[threadID][viewerID], seenAt)
	f.upserts++
	return nil
}

func (f *fakeReceiptRepo) Fetch(_ context.Context, threadID string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range f.seen[threadID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeReceiptRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func newTestReadState(t *testing.T) (ReadStateService, *fakeThreadRepo, *fakeReceiptRepo) {
	t.Helper()
	threadRepo := &fakeThreadRepo{messages: make(map[string][]*model.Message)}
	receiptRepo := &fakeReceiptRepo{}
	svc := NewReadStateService(localstore.New(t.TempDir()), threadRepo, receiptRepo, bus.New())
	return svc, threadRepo, receiptRepo
}

func dmThread(id string, a, b string) *model.Thread {
	return &model.Thread{ID: id, Kind: model.ThreadKindDirect, Participants: []string{a, b}}
}

func TestMarkSeenMonotonicMerge(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := &model.Thread{ID: "team::t1", Kind: model.ThreadKindTeam, TeamID: "t1"}

	// 任意顺序推进，水位都收敛到最大值
	for _, ts := range []int64{100, 300, 200, 50} {
		_, err := svc.MarkSeen(context.Background(), thread.ID, "u1", ts)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(300), svc.EffectiveWatermark(thread, "u1"))
}

func TestMarkSeenDefaultsToNow(t *testing.T) {
	svc, _, _ := newTestReadState(t)

	before := time.Now().UnixMilli()
	merged, err := svc.MarkSeen(context.Background(), "team::t1", "u1", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, merged, before)
	assert.LessOrEqual(t, merged, time.Now().UnixMilli())
}

func TestMarkSeenCommutativeConcurrentWrites(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := &model.Thread{ID: "team::t1", Kind: model.ThreadKindTeam, TeamID: "t1"}

	// 并发推进 ta < tb，完成顺序无关，结果必然是 tb
	var wg sync.WaitGroup
	for _, ts := range []int64{1000, 2000} {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			_, _ = svc.MarkSeen(context.Background(), thread.ID, "u1", v)
		}(ts)
	}
	wg.Wait()

	assert.Equal(t, int64(2000), svc.EffectiveWatermark(thread, "u1"))
}

func TestMarkSeenDirectMirrorsToServer(t *testing.T) {
	svc, _, receiptRepo := newTestReadState(t)

	_, err := svc.MarkSeen(context.Background(), "dm::u1::u2", "u1", 777)
	require.NoError(t, err)

	// 上报是异步尽力而为
	assert.Eventually(t, func() bool {
		return receiptRepo.upsertCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMarkSeenMergesServerKnownWatermark(t *testing.T) {
	svc, _, receiptRepo := newTestReadState(t)
	receiptRepo.seen = map[string]map[string]int64{
		"dm::u1::u2": {"u1": 500},
	}

	// 其他设备已经推到 500，本设备的 100 不能把水位拉低
	merged, err := svc.MarkSeen(context.Background(), "dm::u1::u2", "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), merged)
}

func TestMarkSeenTeamHasNoServerSync(t *testing.T) {
	svc, _, receiptRepo := newTestReadState(t)

	// 群聊只有本地水位，多端不同步
	_, err := svc.MarkSeen(context.Background(), "team::t1", "u1", 123)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, receiptRepo.upsertCount())
}

func TestComputeUnreadFormula(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")

	messages := []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u2", CreatedAt: 100},
		{ID: "2", ThreadID: thread.ID, SenderID: "u2", CreatedAt: 200},
		{ID: "3", ThreadID: thread.ID, SenderID: "u1", CreatedAt: 300}, // 本人消息不计
		{ID: "4", ThreadID: thread.ID, SenderID: "", CreatedAt: 400},   // 无发送者不计
	}

	assert.Equal(t, 2, svc.ComputeUnread(thread, messages, "u1"))
}

func TestUnreadCountdownScenario(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")
	messages := []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u2", CreatedAt: 100},
		{ID: "2", ThreadID: thread.ID, SenderID: "u2", CreatedAt: 200},
	}

	assert.Equal(t, 2, svc.ComputeUnread(thread, messages, "u1"))

	_, err := svc.MarkSeen(context.Background(), thread.ID, "u1", 150)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ComputeUnread(thread, messages, "u1"))

	_, err = svc.MarkSeen(context.Background(), thread.ID, "u1", 250)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.ComputeUnread(thread, messages, "u1"))
}

func TestEffectiveWatermarkTakesServerCopy(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")
	thread.SeenAt = map[string]int64{"u1": 900}

	// 本地 0、服务端 900：有效水位取较大者
	assert.Equal(t, int64(900), svc.EffectiveWatermark(thread, "u1"))

	_, err := svc.MarkSeen(context.Background(), thread.ID, "u1", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), svc.EffectiveWatermark(thread, "u1"))
}

func TestReadReceiptViaWatermark(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")
	messages := []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u1", CreatedAt: 500000},
	}

	// 对方水位落后且无回复：未读
	thread.SeenAt = map[string]int64{"u2": 300000}
	read, lastSentAt, err := svc.ComputeReadReceipt(thread, messages, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500000), lastSentAt)
	assert.False(t, read)

	// 对方水位越过发送时间：已读
	thread.SeenAt = map[string]int64{"u2": 600000}
	read, _, err = svc.ComputeReadReceipt(thread, messages, "u1")
	require.NoError(t, err)
	assert.True(t, read)
}

func TestReadReceiptGraceWindow(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")
	messages := []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u1", CreatedAt: 500000},
	}

	// 水位差 1 秒，落在 2 秒宽限内：按已读处理（吸收时钟偏差）
	thread.SeenAt = map[string]int64{"u2": 499000}
	read, _, err := svc.ComputeReadReceipt(thread, messages, "u1")
	require.NoError(t, err)
	assert.True(t, read)

	// 超出宽限：未读
	thread.SeenAt = map[string]int64{"u2": 497000}
	read, _, err = svc.ComputeReadReceipt(thread, messages, "u1")
	require.NoError(t, err)
	assert.False(t, read)
}

func TestReadReceiptViaImplicitReply(t *testing.T) {
	svc, _, _ := newTestReadState(t)
	thread := dmThread("dm::u1::u2", "u1", "u2")
	thread.SeenAt = map[string]int64{"u2": 300000}

	// 对方水位没跟上，但其后有回复：回复视为隐式已读
	messages := []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u1", CreatedAt: 500000},
		{ID: "2", ThreadID: thread.ID, SenderID: "u2", CreatedAt: 550000},
	}

	read, _, err := svc.ComputeReadReceipt(thread, messages, "u1")
	require.NoError(t, err)
	assert.True(t, read)
}

func TestReadReceiptErrors(t *testing.T) {
	svc, _, _ := newTestReadState(t)

	teamThread := &model.Thread{ID: "team::t1", Kind: model.ThreadKindTeam, TeamID: "t1"}
	_, _, err := svc.ComputeReadReceipt(teamThread, nil, "u1")
	assert.ErrorIs(t, err, ErrNotDirectThread)

	thread := dmThread("dm::u1::u2", "u1", "u2")
	_, _, err = svc.ComputeReadReceipt(thread, nil, "u1")
	assert.ErrorIs(t, err, ErrNoSentMessage)

	_, _, err = svc.ComputeReadReceipt(thread, nil, "u9")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetReadReceiptFetchesFreshState(t *testing.T) {
	svc, threadRepo, receiptRepo := newTestReadState(t)

	thread := dmThread("dm::u1::u2", "u1", "u2")
	thread.SeenAt = map[string]int64{"u2": 100000} // 会话列表里的旧副本
	threadRepo.threads = []*model.Thread{thread}
	threadRepo.messages[thread.ID] = []*model.Message{
		{ID: "1", ThreadID: thread.ID, SenderID: "u1", CreatedAt: 500000},
	}
	// 服务端最新回执已经越过发送时间
	receiptRepo.seen = map[string]map[string]int64{
		thread.ID: {"u2": 600000},
	}

	read, lastSentAt, err := svc.GetReadReceipt(context.Background(), thread.ID, "u1")
	require.NoError(t, err)
	assert.True(t, read)
	assert.Equal(t, int64(500000), lastSentAt)
}

func TestGetReadReceiptUnknownThread(t *testing.T) {
	svc, _, _ := newTestReadState(t)

	_, _, err := svc.GetReadReceipt(context.Background(), "dm::u1::u9", "u1")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}
