package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sendstuff/campaign-gateway/internal/config"
	"github.com/sendstuff/campaign-gateway/internal/http/middleware"
	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/queue"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	usersRepo := repository.NewUsersRepository(mysqlDB)
	campaignsRepo := repository.NewCampaignsRepository(mysqlDB)
	subscribersRepo := repository.NewSubscribersRepository(mysqlDB)

	// repos (ClickHouse)
	chLogsRepo := repository.NewCHDeliveryLogsRepository(clickhouseDB)

	// send-job queue
	sendQueue := queue.New(rds, cfg.Queue.Name)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(usersRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.NewLimiter(rds, cfg.RateLimit.RPS, time.Second))

	// routes
	v1 := e.Group("/v1", authMW, rlMW)

	v1.POST("/campaigns", createCampaignHandler(campaignsRepo))
	v1.GET("/campaigns", listCampaignsHandler(campaignsRepo))
	v1.GET("/campaigns/:id", getCampaignHandler(campaignsRepo))
	v1.PUT("/campaigns/:id", updateCampaignHandler(campaignsRepo))
	v1.DELETE("/campaigns/:id", deleteCampaignHandler(campaignsRepo))
	v1.POST("/campaigns/:id/send", sendCampaignHandler(campaignsRepo, sendQueue))
	v1.POST("/campaigns/:id/cancel", cancelCampaignHandler(campaignsRepo))

	v1.POST("/subscribers", createSubscriberHandler(subscribersRepo))
	v1.GET("/subscribers", listSubscribersHandler(subscribersRepo))
	v1.GET("/subscribers/:id", getSubscriberHandler(subscribersRepo))
	v1.PUT("/subscribers/:id", updateSubscriberHandler(subscribersRepo))
	v1.DELETE("/subscribers/:id", deleteSubscriberHandler(subscribersRepo))

	v1.GET("/reports/deliveries", listDeliveriesHandler(chLogsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
