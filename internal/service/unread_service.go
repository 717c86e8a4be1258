package service

import (
	"Teamlink/internal/api/dto"
	"Teamlink/internal/model"
	"Teamlink/internal/pkg/bus"
	"Teamlink/internal/pkg/consts"
	"Teamlink/internal/pkg/realtime"
	"Teamlink/internal/repository"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"golang.org/x/sync/singleflight"
)

// UnreadService 未读聚合器。变更通知只当失效信号用：
// 收到后回源重新拉取会话与消息，和已读水位对账得出未读数，
// 绝不把通知里携带的字段当作权威状态。
type UnreadService interface {
	// Register 登记一个观察者（用户）并确保实时订阅存在
	Register(viewerID string, teams []string)
	// Snapshot 返回徽标快照；从未刷新过时触发一次同步刷新
	Snapshot(ctx context.Context, viewerID string) *dto.BadgeDTO
	// Refresh 回源重算一个观察者的未读状态；页面不可见时零网络调用
	Refresh(ctx context.Context, viewerID, reason string)
	// RefreshAll 兜底轮询入口，由定时任务调用
	RefreshAll(ctx context.Context)
	// SetPresence 上报可见性/焦点/当前打开的会话
	SetPresence(viewerID string, visible, focused bool, activeThread string)
	// Close 退订实时连接并停止总线消费
	Close()
}

// viewerState 单个观察者的聚合状态
type viewerState struct {
	Teams             []string
	Visible           bool
	Focused           bool
	ActiveThread      string
	ContactUnread     map[string]int
	TeamUnread        map[string]int
	HasPendingRequest bool
	HasUnreadChat     bool
	RefreshedAt       int64

	lastRealtimeRefresh time.Time
}

type unreadServiceImpl struct {
	threadRepo  repository.ThreadRepo
	requestRepo repository.RequestRepo
	readState   ReadStateService
	feed        *realtime.Client
	signals     *bus.Bus

	sf singleflight.Group

	mu      sync.Mutex
	viewers map[string]*viewerState
	unsub   realtime.Unsubscribe

	cancelBus func()
	wg        sync.WaitGroup
}

func NewUnreadService(threadRepo repository.ThreadRepo, requestRepo repository.RequestRepo, readState ReadStateService, feed *realtime.Client, signals *bus.Bus) UnreadService {
	s := &unreadServiceImpl{
		threadRepo:  threadRepo,
		requestRepo: requestRepo,
		readState:   readState,
		feed:        feed,
		signals:     signals,
		viewers:     make(map[string]*viewerState),
	}

	// 水位推进信号：立即重算对应观察者
	ch, cancel := signals.Subscribe()
	s.cancelBus = cancel
	s.wg.Add(1)
	go s.consumeSignals(ch)

	return s
}

// Register 观察者登记。实时订阅按需惰性建立，整个进程一条物理连接。
func (s *unreadServiceImpl) Register(viewerID string, teams []string) {
	if viewerID == "" {
		return
	}

	s.mu.Lock()
	if _, ok := s.viewers[viewerID]; !ok {
		s.viewers[viewerID] = &viewerState{
			Teams:         teams,
			Visible:       true,
			ContactUnread: make(map[string]int),
			TeamUnread:    make(map[string]int),
		}
	} else if len(teams) > 0 {
		s.viewers[viewerID].Teams = teams
	}
	needSub := s.unsub == nil
	s.mu.Unlock()

	if needSub {
		s.ensureSubscribed()
	}
}

// ensureSubscribed 建立实时订阅：一个 join 承载全部表级订阅。
// 配置未启用时得到空操作退订函数，之后依旧依赖兜底轮询。
func (s *unreadServiceImpl) ensureSubscribed() {
	specs := []realtime.SubscriptionSpec{
		{Event: "INSERT", Schema: "public", Table: "audit_log"},
		{Event: "*", Schema: "public", Table: "team_requests"},
	}
	unsub := s.feed.Subscribe(specs, s.onChange)

	s.mu.Lock()
	if s.unsub == nil {
		s.unsub = unsub
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// 竞态下多建的一条连接直接拆掉
	unsub()
}

// onChange 实时回调：解出审计行，按相关性过滤后触发限流刷新
func (s *unreadServiceImpl) onChange(rec realtime.ChangeRecord) {
	ev, ok := changeEventFromRecord(rec)
	if !ok {
		return
	}

	if _, allowed := consts.ChangeEventCategories[ev.Category]; !allowed {
		return
	}

	s.mu.Lock()
	targets := make([]string, 0, 1)
	now := time.Now()
	hint := ev.HintThreadID()
	for viewerID, st := range s.viewers {
		if !s.relevantLocked(ev, viewerID, st) {
			continue
		}
		// 事件指向正开着的会话：该会话未读恒为零，本次通知不构成失效
		if hint != "" && hint == st.ActiveThread {
			continue
		}
		// 实时触发限流：1.2 秒窗口内最多一次，突发由兜底轮询兜住
		if now.Sub(st.lastRealtimeRefresh) < consts.RealtimeRefreshGap {
			continue
		}
		st.lastRealtimeRefresh = now
		targets = append(targets, viewerID)
	}
	s.mu.Unlock()

	for _, viewerID := range targets {
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			s.Refresh(ctx, id, "realtime")
		}(viewerID)
	}

	s.signals.Publish(bus.Signal{Kind: bus.SignalChangeNotified, Payload: ev})
}

// relevantLocked 相关性判定：行为人或目标是本人，或事件属于本人所在队伍
func (s *unreadServiceImpl) relevantLocked(ev *model.ChangeEvent, viewerID string, st *viewerState) bool {
	if ev.ActorID == viewerID || ev.TargetID == viewerID {
		return true
	}
	if ev.TeamID != "" {
		for _, team := range st.Teams {
			if team == ev.TeamID {
				return true
			}
		}
	}
	return false
}

// Snapshot 徽标快照。从未成功刷新过的观察者先同步刷一次。
func (s *unreadServiceImpl) Snapshot(ctx context.Context, viewerID string) *dto.BadgeDTO {
	s.mu.Lock()
	st, ok := s.viewers[viewerID]
	neverRefreshed := ok && st.RefreshedAt == 0 && st.Visible
	s.mu.Unlock()

	if !ok {
		return &dto.BadgeDTO{
			ContactUnread: map[string]int{},
			TeamUnread:    map[string]int{},
		}
	}
	if neverRefreshed {
		s.Refresh(ctx, viewerID, "snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := &dto.BadgeDTO{}
	if err := copier.Copy(out, s.viewers[viewerID]); err != nil {
		log.Error("徽标快照拷贝失败", "err", err)
		return &dto.BadgeDTO{
			ContactUnread: map[string]int{},
			TeamUnread:    map[string]int{},
		}
	}
	return out
}

// Refresh 回源重算。同一观察者的并发刷新合并为一次；
// 协作方失败时保留上一份快照，不向上传播。
func (s *unreadServiceImpl) Refresh(ctx context.Context, viewerID, reason string) {
	s.mu.Lock()
	st, ok := s.viewers[viewerID]
	if !ok || !st.Visible {
		// 页面不可见：完全跳过，零网络调用
		s.mu.Unlock()
		return
	}
	activeThread := st.ActiveThread
	s.mu.Unlock()

	_, _, _ = s.sf.Do(viewerID, func() (any, error) {
		s.doRefresh(ctx, viewerID, activeThread, reason)
		return nil, nil
	})
}

func (s *unreadServiceImpl) doRefresh(ctx context.Context, viewerID, activeThread, reason string) {
	threads, err := s.threadRepo.ListThreads(ctx, viewerID)
	if err != nil {
		log.Warn("会话列表拉取失败，保留上次快照", "viewer", viewerID, "reason", reason, "err", err)
		return
	}

	contactUnread := make(map[string]int)
	teamUnread := make(map[string]int)
	teams := make([]string, 0)

	for _, t := range threads {
		if t.Kind == model.ThreadKindTeam && t.TeamID != "" {
			teams = append(teams, t.TeamID)
		}

		// 当前打开的会话视为恒零，不必回源
		if t.ID == activeThread {
			continue
		}

		messages, err := s.threadRepo.ListMessages(ctx, t.ID, 200)
		if err != nil {
			log.Warn("消息列表拉取失败，保留上次快照", "thread", t.ID, "err", err)
			return
		}

		unread := s.readState.ComputeUnread(t, messages, viewerID)
		if t.IsDirect() {
			if peer := t.Peer(viewerID); peer != "" {
				contactUnread[peer] = unread
			}
		} else if t.TeamID != "" {
			teamUnread[t.TeamID] = unread
		}
	}

	pending, err := s.requestRepo.CountPending(ctx, viewerID)
	if err != nil {
		log.Warn("待处理申请拉取失败，保留上次快照", "viewer", viewerID, "err", err)
		return
	}

	hasUnread := false
	for _, n := range contactUnread {
		if n > 0 {
			hasUnread = true
			break
		}
	}
	if !hasUnread {
		for _, n := range teamUnread {
			if n > 0 {
				hasUnread = true
				break
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.viewers[viewerID]
	if !ok {
		return
	}
	st.ContactUnread = contactUnread
	st.TeamUnread = teamUnread
	st.HasPendingRequest = pending > 0
	st.HasUnreadChat = hasUnread
	st.RefreshedAt = time.Now().UnixMilli()
	if len(teams) > 0 {
		st.Teams = teams
	}
}

// RefreshAll 兜底轮询：逐个刷新可见的观察者
func (s *unreadServiceImpl) RefreshAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.viewers))
	for id, st := range s.viewers {
		if st.Visible {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Refresh(ctx, id, "interval")
	}
}

// SetPresence 可见性或焦点失而复得时立即刷新一次
func (s *unreadServiceImpl) SetPresence(viewerID string, visible, focused bool, activeThread string) {
	s.mu.Lock()
	st, ok := s.viewers[viewerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	regained := (visible && !st.Visible) || (focused && !st.Focused)
	st.Visible = visible
	st.Focused = focused
	st.ActiveThread = activeThread
	s.mu.Unlock()

	s.signals.Publish(bus.Signal{Kind: bus.SignalPresenceChanged, ViewerID: viewerID})

	if regained {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			s.Refresh(ctx, viewerID, "presence")
		}()
	}
}

// consumeSignals 消费进程内信号：水位推进后重算对应观察者
func (s *unreadServiceImpl) consumeSignals(ch <-chan bus.Signal) {
	defer s.wg.Done()
	for sig := range ch {
		if sig.Kind != bus.SignalWatermarkAdvanced || sig.ViewerID == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		s.Refresh(ctx, sig.ViewerID, "watermark")
		cancel()
	}
}

func (s *unreadServiceImpl) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.cancelBus()
	s.wg.Wait()
	log.Info("UnreadService shut down gracefully")
}

// changeEventFromRecord 把变更行的 new 映射为审计事件；缺 category 的行丢弃
func changeEventFromRecord(rec realtime.ChangeRecord) (*model.ChangeEvent, bool) {
	if rec.Table == "team_requests" {
		// 申请表的行没有统一审计字段，折算成 team_request 事件
		ev := &model.ChangeEvent{Category: "team_request"}
		if v, ok := rec.New["requester_id"].(string); ok {
			ev.ActorID = v
		}
		if v, ok := rec.New["target_id"].(string); ok {
			ev.TargetID = v
		}
		if v, ok := rec.New["team_id"].(string); ok {
			ev.TeamID = v
		}
		return ev, ev.ActorID != "" || ev.TargetID != "" || ev.TeamID != ""
	}

	raw, err := json.Marshal(rec.New)
	if err != nil {
		return nil, false
	}
	var ev model.ChangeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, false
	}
	if ev.Category == "" {
		return nil, false
	}
	return &ev, true
}
