package job

import (
	"Teamlink/internal/pkg/logger"
	"Teamlink/internal/service"
	"context"
	"time"

	"github.com/google/uuid"
)

// UnreadRefreshJob 兜底轮询：实时链路整体失效时，
// 徽标仍能依靠它达到最终一致。
type UnreadRefreshJob struct {
	unreadService service.UnreadService
}

func NewUnreadRefreshJob(unreadService service.UnreadService) *UnreadRefreshJob {
	return &UnreadRefreshJob{
		unreadService: unreadService,
	}
}

func (s *UnreadRefreshJob) Run() {
	traceID := "job-unread-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	ctx, cancel := context.WithTimeout(ctx, 14*time.Second)
	defer cancel()

	s.unreadService.RefreshAll(ctx)
}
