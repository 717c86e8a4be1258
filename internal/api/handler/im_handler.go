package handler

import (
	"Teamlink/internal/api/dto"
	"Teamlink/internal/pkg/response"
	"Teamlink/internal/service"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	readStateService service.ReadStateService
	unreadService    service.UnreadService
}

func NewIMHandler(readStateService service.ReadStateService, unreadService service.UnreadService) *IMHandler {
	return &IMHandler{
		readStateService: readStateService,
		unreadService:    unreadService,
	}
}

// GetBadges 获取应用外壳徽标快照
func (s *IMHandler) GetBadges(c *gin.Context) {
	viewerID := c.GetString("user_id")
	teams := c.GetStringSlice("teams")

	s.unreadService.Register(viewerID, teams)
	res := s.unreadService.Snapshot(c.Request.Context(), viewerID)
	response.Success(c, res)
}

// MarkSeen 推进已读水位接口
func (s *IMHandler) MarkSeen(c *gin.Context) {
	var req dto.MarkSeenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	viewerID := c.GetString("user_id")

	merged, err := s.readStateService.MarkSeen(c.Request.Context(), req.ThreadID, viewerID, req.Timestamp)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &dto.MarkSeenDTO{
		ThreadID: req.ThreadID,
		SeenAt:   merged,
	})
}

// GetReadReceipt 获取单聊已读回执
func (s *IMHandler) GetReadReceipt(c *gin.Context) {
	threadID := c.Query("thread_id")
	if threadID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	viewerID := c.GetString("user_id")

	read, lastSentAt, err := s.readStateService.GetReadReceipt(c.Request.Context(), threadID, viewerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &dto.ReadReceiptDTO{
		ThreadID:   threadID,
		LastSentAt: lastSentAt,
		Read:       read,
	})
}
