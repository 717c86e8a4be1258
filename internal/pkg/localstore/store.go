package localstore

import (
	"Teamlink/internal/model"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Store 本地已读水位存储：每个用户一个 JSON 文件，
// 按会话类型分组保存 会话ID -> 毫秒时间戳。
// 写盘失败后降级为纯内存模式，进程内继续可用。
type Store struct {
	dir string

	mu       sync.Mutex
	cache    map[string]*viewerSeen // 用户ID -> 已读水位
	degraded bool
	warnOnce sync.Once
}

type viewerSeen struct {
	Direct map[string]int64 `json:"direct"`
	Team   map[string]int64 `json:"team"`
}

func New(dir string) *Store {
	s := &Store{
		dir:   dir,
		cache: make(map[string]*viewerSeen),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.degraded = true
		log.Warn("本地状态目录不可用，已读水位仅保存在内存", "dir", dir, "err", err)
	}
	return s
}

// Seen 返回本地已读水位，未记录时为 0
func (s *Store) Seen(viewerID string, kind model.ThreadKind, threadID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.loadLocked(viewerID)
	return vs.bucket(kind)[threadID]
}

// Advance 单调推进本地已读水位，返回合并后的值。
// 写入是 max 合并，并发调用可交换，结果与调用顺序无关。
func (s *Store) Advance(viewerID string, kind model.ThreadKind, threadID string, ts int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.loadLocked(viewerID)
	bucket := vs.bucket(kind)
	merged := model.MergeWatermark(bucket[threadID], ts)
	if merged == bucket[threadID] {
		return merged
	}
	bucket[threadID] = merged
	s.persistLocked(viewerID, vs)
	return merged
}

func (vs *viewerSeen) bucket(kind model.ThreadKind) map[string]int64 {
	if kind == model.ThreadKindTeam {
		return vs.Team
	}
	return vs.Direct
}

// loadLocked 惰性加载用户文件；损坏条目逐个丢弃而不是整体失败
func (s *Store) loadLocked(viewerID string) *viewerSeen {
	if vs, ok := s.cache[viewerID]; ok {
		return vs
	}

	vs := &viewerSeen{
		Direct: make(map[string]int64),
		Team:   make(map[string]int64),
	}
	s.cache[viewerID] = vs

	if s.degraded {
		return vs
	}

	data, err := os.ReadFile(s.path(viewerID))
	if err != nil {
		return vs
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("已读水位文件损坏，按空状态处理", "viewer", viewerID, "err", err)
		return vs
	}

	fill := func(dst map[string]int64, src map[string]any) {
		for tid, v := range src {
			n, ok := v.(float64)
			if !ok || n <= 0 {
				continue
			}
			dst[tid] = int64(n)
		}
	}
	fill(vs.Direct, raw["direct"])
	fill(vs.Team, raw["team"])
	return vs
}

func (s *Store) persistLocked(viewerID string, vs *viewerSeen) {
	if s.degraded {
		return
	}

	data, err := json.Marshal(vs)
	if err == nil {
		err = os.WriteFile(s.path(viewerID), data, 0o644)
	}
	if err != nil {
		s.degraded = true
		s.warnOnce.Do(func() {
			log.Warn("已读水位写盘失败，本次会话降级为内存模式", "err", err)
		})
	}
}

func (s *Store) path(viewerID string) string {
	return filepath.Join(s.dir, viewerID+".json")
}
