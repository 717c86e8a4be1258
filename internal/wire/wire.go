package wire

import (
	"Teamlink/internal/api"
	"Teamlink/internal/api/config"
	"Teamlink/internal/api/handler"
	"Teamlink/internal/job"
	"Teamlink/internal/pkg/bus"
	"Teamlink/internal/pkg/cron"
	"Teamlink/internal/pkg/localstore"
	"Teamlink/internal/pkg/realtime"
	"Teamlink/internal/repository"
	"Teamlink/internal/service"

	"github.com/gin-gonic/gin"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router        *gin.Engine
	CronMgr       *cron.Manager
	UnreadService service.UnreadService
}

func BuildApplication(cfg *config.Config) (*ApplicationContainer, error) {
	signals := bus.New()
	store := localstore.New(cfg.State.Dir)

	collab := repository.NewCollabClient(cfg.Collab)
	threadRepo := repository.NewThreadRepo(collab)
	receiptRepo := repository.NewReceiptRepo(collab)
	requestRepo := repository.NewRequestRepo(collab)

	resolver := realtime.NewResolver(cfg.Realtime)
	feed := realtime.NewClient(resolver)

	readStateService := service.NewReadStateService(store, threadRepo, receiptRepo, signals)
	unreadService := service.NewUnreadService(threadRepo, requestRepo, readStateService, feed, signals)

	handlers := &api.HandlersGroup{
		IMHandler:       handler.NewIMHandler(readStateService, unreadService),
		PresenceHandler: handler.NewPresenceHandler(unreadService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewUnreadRefreshJob(unreadService))

	return &ApplicationContainer{
		Router:        router,
		CronMgr:       cronMgr,
		UnreadService: unreadService,
	}, nil
}
