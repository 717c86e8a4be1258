package service

import (
	"Teamlink/internal/model"
	"Teamlink/internal/pkg/bus"
	"Teamlink/internal/pkg/consts"
	"Teamlink/internal/pkg/localstore"
	"Teamlink/internal/repository"
	"context"
	log "log/slog"
	"time"
)

// ReadStateService 已读水位对账。
// 水位有两份：本设备一份，单聊会话在服务端另有一份供多端收敛；
// 计算未读时取两者较大值。所有写入都是单调 max 合并。
type ReadStateService interface {
	// MarkSeen 推进 (会话, 用户) 的已读水位，ts<=0 时取当前时间。
	// 返回合并后的水位。
	MarkSeen(ctx context.Context, threadID, viewerID string, ts int64) (int64, error)
	// EffectiveWatermark 有效水位 = max(本地, 服务端已知)
	EffectiveWatermark(thread *model.Thread, viewerID string) int64
	// ComputeUnread 未读数：有发送者、非本人、晚于有效水位的消息条数
	ComputeUnread(thread *model.Thread, messages []*model.Message, viewerID string) int
	// ComputeReadReceipt 单聊已读回执（见 readReceipt 注释）
	ComputeReadReceipt(thread *model.Thread, messages []*model.Message, viewerID string) (read bool, lastSentAt int64, err error)
	// GetReadReceipt 拉取最新数据并计算回执
	GetReadReceipt(ctx context.Context, threadID, viewerID string) (read bool, lastSentAt int64, err error)
}

type readStateServiceImpl struct {
	store       *localstore.Store
	threadRepo  repository.ThreadRepo
	receiptRepo repository.ReceiptRepo
	signals     *bus.Bus
}

func NewReadStateService(store *localstore.Store, threadRepo repository.ThreadRepo, receiptRepo repository.ReceiptRepo, signals *bus.Bus) ReadStateService {
	return &readStateServiceImpl{
		store:       store,
		threadRepo:  threadRepo,
		receiptRepo: receiptRepo,
		signals:     signals,
	}
}

// MarkSeen 新水位 = max(本地, 服务端已知, 候选)。本地落盘；
// 单聊会话额外尽力上报服务端，供同一用户的其他设备收敛；
// 最后发进程内信号让聚合器重算。
func (s *readStateServiceImpl) MarkSeen(ctx context.Context, threadID, viewerID string, ts int64) (int64, error) {
	if threadID == "" || viewerID == "" {
		return 0, ErrParamInvalid
	}
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}

	kind := model.ThreadKindOf(threadID)

	// 单聊：合并服务端已知水位，避免本设备落后于其他设备
	if kind == model.ThreadKindDirect {
		if seen, err := s.receiptRepo.Fetch(ctx, threadID); err == nil {
			ts = model.MergeWatermark(ts, seen[viewerID])
		}
	}

	merged := s.store.Advance(viewerID, kind, threadID, ts)

	// 单聊：尽力上报，失败不影响本地结果
	if kind == model.ThreadKindDirect {
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.receiptRepo.Upsert(pushCtx, threadID, viewerID, merged); err != nil {
				log.Warn("已读水位上报失败", "thread", threadID, "err", err)
			}
		}()
	}

	s.signals.Publish(bus.Signal{
		Kind:     bus.SignalWatermarkAdvanced,
		ThreadID: threadID,
		ViewerID: viewerID,
	})

	return merged, nil
}

func (s *readStateServiceImpl) EffectiveWatermark(thread *model.Thread, viewerID string) int64 {
	local := s.store.Seen(viewerID, thread.Kind, thread.ID)

	var server int64
	if thread.IsDirect() && thread.SeenAt != nil {
		server = thread.SeenAt[viewerID]
	}
	return model.MergeWatermark(local, server)
}

func (s *readStateServiceImpl) ComputeUnread(thread *model.Thread, messages []*model.Message, viewerID string) int {
	watermark := s.EffectiveWatermark(thread, viewerID)

	count := 0
	for _, m := range messages {
		if m.SenderID == "" || m.SenderID == viewerID {
			continue
		}
		if m.CreatedAt > watermark {
			count++
		}
	}
	return count
}

// ComputeReadReceipt 回执判定：对方水位加 2 秒宽限（吸收时钟偏差）
// 覆盖我方最后一条消息，或对方在其后发过任何消息（回复视为隐式已读）。
// 交叉消息场景下该启发式可能误判为已读，这里有意保留原行为。
func (s *readStateServiceImpl) ComputeReadReceipt(thread *model.Thread, messages []*model.Message, viewerID string) (bool, int64, error) {
	if !thread.IsDirect() {
		return false, 0, ErrNotDirectThread
	}
	peer := thread.Peer(viewerID)
	if peer == "" {
		return false, 0, ErrNotParticipant
	}

	var lastSentAt int64
	for _, m := range messages {
		if m.SenderID == viewerID && m.CreatedAt > lastSentAt {
			lastSentAt = m.CreatedAt
		}
	}
	if lastSentAt == 0 {
		return false, 0, ErrNoSentMessage
	}

	if thread.PeerSeenAt(viewerID)+consts.ReadReceiptGraceMs >= lastSentAt {
		return true, lastSentAt, nil
	}
	for _, m := range messages {
		if m.SenderID == peer && m.CreatedAt >= lastSentAt {
			return true, lastSentAt, nil
		}
	}
	return false, lastSentAt, nil
}

// GetReadReceipt 在线版本：回源拉取会话、消息与最新回执后计算
func (s *readStateServiceImpl) GetReadReceipt(ctx context.Context, threadID, viewerID string) (bool, int64, error) {
	threads, err := s.threadRepo.ListThreads(ctx, viewerID)
	if err != nil {
		return false, 0, ErrCollabUnavailable
	}

	var thread *model.Thread
	for _, t := range threads {
		if t.ID == threadID {
			thread = t
			break
		}
	}
	if thread == nil {
		return false, 0, ErrThreadNotFound
	}

	// 回执以服务端最新快照为准，拉不到时退回会话列表携带的副本
	if thread.IsDirect() {
		if seen, err := s.receiptRepo.Fetch(ctx, threadID); err == nil {
			thread.SeenAt = seen
		}
	}

	messages, err := s.threadRepo.ListMessages(ctx, threadID, 200)
	if err != nil {
		return false, 0, ErrCollabUnavailable
	}

	return s.ComputeReadReceipt(thread, messages, viewerID)
}
