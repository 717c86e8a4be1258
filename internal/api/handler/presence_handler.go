package handler

import (
	"Teamlink/internal/api/dto"
	"Teamlink/internal/pkg/response"
	"Teamlink/internal/service"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	unreadService service.UnreadService
}

func NewPresenceHandler(unreadService service.UnreadService) *PresenceHandler {
	return &PresenceHandler{unreadService: unreadService}
}

// Report 上报页面可见性与焦点状态。
// 不可见期间聚合器完全停止回源；失而复得触发一次刷新。
func (s *PresenceHandler) Report(c *gin.Context) {
	var req dto.PresenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	viewerID := c.GetString("user_id")
	teams := c.GetStringSlice("teams")

	s.unreadService.Register(viewerID, teams)
	s.unreadService.SetPresence(viewerID, req.Visible, req.Focused, req.ActiveThread)

	response.Success(c, nil)
}
