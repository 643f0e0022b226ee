package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sendstuff/campaign-gateway/internal/config"
	"github.com/sendstuff/campaign-gateway/internal/db"
	"github.com/sendstuff/campaign-gateway/internal/dispatcher"
	"github.com/sendstuff/campaign-gateway/internal/logger"
	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/queue"
	"github.com/sendstuff/campaign-gateway/internal/render"
	"github.com/sendstuff/campaign-gateway/internal/repository"
	"github.com/sendstuff/campaign-gateway/internal/transport"
	"github.com/sendstuff/campaign-gateway/internal/worker"
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Run the campaign send worker",
	RunE:  runSender,
}

func runSender(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQL(cfg.MySQL.DSN, db.PoolOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) Redis connection (send-job queue)
	rds, err := db.NewRedis(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = rds.Close() }()

	// 4) repositories
	campaignsRepo := repository.NewCampaignsRepository(dbx)
	logsRepo := repository.NewDeliveryLogsRepository(dbx)

	// 5) provider transport
	mailer := transport.NewHTTPMailer(transport.HTTPMailerOpts{
		Name:          cfg.Provider.Name,
		BaseURL:       cfg.Provider.BaseURL,
		SendPath:      cfg.Provider.SendPath,
		APIKey:        cfg.Provider.APIKey,
		TimeoutMs:     cfg.Provider.TimeoutMs,
		FailThreshold: cfg.Provider.Breaker.FailThreshold,
		OpenForMs:     cfg.Provider.Breaker.OpenForMs,
	})

	// 6) dispatcher
	disp := dispatcher.New(campaignsRepo, logsRepo, mailer, render.New())
	disp.FromName = cfg.Provider.FromName
	disp.FromEmail = cfg.Provider.FromEmail
	if cfg.Dispatch.BatchSize > 0 {
		disp.BatchSize = cfg.Dispatch.BatchSize
	}
	if cfg.Dispatch.BatchDelay > 0 {
		disp.BatchDelay = cfg.Dispatch.BatchDelay
	}

	w := worker.NewSender(queue.New(rds, cfg.Queue.Name), campaignsRepo, disp)

	// tune knobs
	if cfg.Dispatch.Workers > 0 {
		w.Workers = cfg.Dispatch.Workers
	}
	if cfg.Queue.MaxAttempts > 0 {
		w.MaxAttempts = cfg.Queue.MaxAttempts
	}
	if cfg.Queue.RetryDelay > 0 {
		w.RetryDelay = cfg.Queue.RetryDelay
	}
	if cfg.Queue.PromoteInterval > 0 {
		w.PromoteInterval = cfg.Queue.PromoteInterval
	}

	// 7) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> sender started queue=%s workers=%d batchSize=%d batchDelay=%s",
		cfg.Queue.Name, w.Workers, disp.BatchSize, disp.BatchDelay)

	return w.Run(ctx)
}
