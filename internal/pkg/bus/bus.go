package bus

import (
	log "log/slog"
	"sync"
)

// SignalKind 进程内信号类型，封闭枚举
type SignalKind int

const (
	SignalWatermarkAdvanced SignalKind = iota + 1 // 已读水位推进
	SignalChangeNotified                          // 收到实时变更通知
	SignalPresenceChanged                         // 可见性/焦点状态变化
)

// Signal 跨组件信号载体
type Signal struct {
	Kind     SignalKind
	ThreadID string
	ViewerID string
	Payload  any
}

// Bus 进程内发布订阅总线。发布方不阻塞：每个订阅者
// 持有一条带缓冲通道，缓冲满时丢弃最旧信号。
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Signal
}

func New() *Bus {
	return &Bus{subs: make(map[int]chan Signal)}
}

// Subscribe 注册订阅，返回接收通道与取消函数
func (b *Bus) Subscribe() (<-chan Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Signal, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish 向所有订阅者广播信号，永不阻塞发布方
func (b *Bus) Publish(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- sig:
		default:
			// 缓冲满：丢最旧，保最新
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- sig:
			default:
				log.Warn("信号总线缓冲已满，信号被丢弃", "kind", sig.Kind)
			}
		}
	}
}
