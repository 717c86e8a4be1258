package realtime

import (
	"Teamlink/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Unsubscribe 退订函数，可重复调用，首次之后为空操作
type Unsubscribe func()

// Client 实时变更订阅客户端。每组订阅独占一条物理连接，
// 传输层与协议层的失败从不向调用方抛出：断线与配置解析失败
// 走退避重连，功能未启用时静默放弃，调用方依靠兜底轮询。
type Client struct {
	resolver *Resolver
	dialer   *websocket.Dialer
}

func NewClient(resolver *Resolver) *Client {
	return &Client{
		resolver: resolver,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Subscribe 建立订阅。specs 中表名为空的条目被剔除，
// 剔除后为空则返回空操作退订函数，不建立连接。
// 连接周期全部在后台进行，本函数不做任何网络调用，立即返回。
func (c *Client) Subscribe(specs []SubscriptionSpec, onChange func(ChangeRecord)) Unsubscribe {
	valid := make([]SubscriptionSpec, 0, len(specs))
	for _, sp := range specs {
		if sp.Table == "" {
			continue
		}
		if sp.Event == "" {
			sp.Event = "*"
		}
		if sp.Schema == "" {
			sp.Schema = "public"
		}
		valid = append(valid, sp)
	}
	if len(valid) == 0 || onChange == nil {
		return func() {}
	}

	conn := &feedConn{
		resolver: c.resolver,
		dialer:   c.dialer,
		topic:    "realtime:" + uuid.NewString(),
		specs:    valid,
		onChange: onChange,
		sched:    newScheduler(),
	}
	go conn.connect()

	var once sync.Once
	return func() {
		once.Do(conn.teardown)
	}
}

// feedConn 一条物理连接及其重连状态
type feedConn struct {
	resolver *Resolver
	dialer   *websocket.Dialer
	topic    string
	specs    []SubscriptionSpec
	onChange func(ChangeRecord)
	refs     refCounter
	sched    *scheduler

	mu      sync.Mutex
	ws      *websocket.Conn
	attempt int
	closed  bool
}

// connect 执行一次连接周期：解析配置、拨号、批量 join、启动心跳与读循环。
// 任一步失败都按当前尝试次数退避后重新调度自身。
func (s *feedConn) connect() {
	if s.isClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ep, err := s.resolver.Resolve(ctx)
	if err != nil {
		// 功能未启用不是故障，放弃连接，徽标依靠兜底轮询
		if errors.Is(err, ErrRealtimeDisabled) {
			log.Info("实时订阅未启用，降级为轮询刷新", "err", err)
			return
		}
		log.Warn("实时配置解析失败，稍后重试", "err", err)
		s.scheduleRetry()
		return
	}

	socketURL, err := ep.SocketURL()
	if err != nil {
		log.Warn("实时连接地址非法，稍后重试", "err", err)
		s.resolver.Invalidate()
		s.scheduleRetry()
		return
	}

	ws, _, err := s.dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		log.Warn("实时连接建立失败", "attempt", s.currentAttempt(), "err", err)
		s.resolver.Invalidate()
		s.scheduleRetry()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.ws = ws
	s.mu.Unlock()

	// 一次 join 帧携带全部表级订阅
	frame, err := EncodeJoin(s.topic, s.specs, ep.Key, s.refs.Next())
	if err == nil {
		err = s.write(ws, frame)
	}
	if err != nil {
		log.Warn("实时订阅 join 失败", "err", err)
		_ = ws.Close()
		s.resolver.Invalidate()
		s.scheduleRetry()
		return
	}

	// 成功打开：尝试计数立即清零，随后启动心跳
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
	s.scheduleHeartbeat(ws)

	log.Info("实时连接已建立", "topic", s.topic, "tables", len(s.specs))
	go s.readLoop(ws)
}

// readLoop 按到达顺序解码并分发帧，连接断开后统一走重连路径
func (s *feedConn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(data)
	}

	s.sched.Cancel(taskHeartbeat)
	_ = ws.Close()

	if s.isClosed() {
		return
	}
	log.Info("实时连接断开，进入退避重连")
	s.resolver.Invalidate()
	s.scheduleRetry()
}

// dispatch 只认 postgres_changes 帧；缺字段的帧直接丢弃，零回调
func (s *feedConn) dispatch(frame []byte) {
	rec, ok := DecodeChange(frame)
	if !ok {
		return
	}
	for _, sp := range s.specs {
		if sp.Table == rec.Table {
			s.onChange(*rec)
			return
		}
	}
}

// scheduleHeartbeat 周期心跳；写失败时关闭连接，交给读循环触发重连
func (s *feedConn) scheduleHeartbeat(ws *websocket.Conn) {
	s.sched.Schedule(taskHeartbeat, consts.HeartbeatInterval, func() {
		frame, err := EncodeHeartbeat(s.refs.Next())
		if err == nil {
			err = s.write(ws, frame)
		}
		if err != nil {
			log.Warn("心跳发送失败，关闭连接", "err", err)
			_ = ws.Close()
			return
		}
		s.scheduleHeartbeat(ws)
	})
}

// scheduleRetry 按 min(15s, 1s*2^attempt)+抖动 调度下一次连接
func (s *feedConn) scheduleRetry() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delay := backoffDelay(s.attempt) + time.Duration(rand.Int63n(int64(consts.ReconnectJitterMax)))
	s.attempt++
	s.mu.Unlock()

	s.sched.Schedule(taskReconnect, delay, s.connect)
}

// teardown 显式退订：置关闭标记、清定时器、尽力发 leave 帧、关闭连接
func (s *feedConn) teardown() {
	s.mu.Lock()
	s.closed = true
	ws := s.ws
	s.ws = nil
	s.mu.Unlock()

	s.sched.Stop()

	if ws != nil {
		if frame, err := EncodeLeave(s.topic, s.refs.Next()); err == nil {
			s.mu.Lock()
			_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
			_ = ws.WriteMessage(websocket.TextMessage, frame)
			s.mu.Unlock()
		}
		_ = ws.Close()
	}
	log.Info("实时订阅已退订", "topic", s.topic)
}

// write 串行化并发写（join / 心跳 / leave 可能来自不同 goroutine）
func (s *feedConn) write(ws *websocket.Conn, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

func (s *feedConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *feedConn) currentAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// backoffDelay 指数退避基值，上限 15 秒
func backoffDelay(attempt int) time.Duration {
	d := consts.ReconnectBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= consts.ReconnectMaxDelay {
			return consts.ReconnectMaxDelay
		}
	}
	return d
}
