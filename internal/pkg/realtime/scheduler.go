package realtime

import (
	"sync"
	"time"
)

// 每个连接的定时任务槽位名
const (
	taskHeartbeat = "heartbeat"
	taskReconnect = "reconnect"
)

// scheduler 单连接的可取消定时任务表。
// 同名槽位重复调度会先取消上一次，旧周期的定时器不会泄漏到新周期。
type scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[string]*time.Timer)}
}

// Schedule 在 d 之后执行 fn，覆盖同名槽位上未触发的任务
func (s *scheduler) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, fn)
}

// Cancel 取消指定槽位上未触发的任务
func (s *scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop 取消全部任务并拒绝后续调度
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}
