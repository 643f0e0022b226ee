package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sendstuff/campaign-gateway/internal/config"
	"github.com/sendstuff/campaign-gateway/internal/db"
	"github.com/sendstuff/campaign-gateway/internal/kafka"
	"github.com/sendstuff/campaign-gateway/internal/logger"
	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/repository"
	"github.com/sendstuff/campaign-gateway/internal/worker"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Run the provider delivery-events consumer",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
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

	// 3) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "sendstuff-events"
	}

	consumer := kafka.NewEventsConsumer(kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.EventsTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewEvents(
		consumer,
		repository.NewDeliveryLogsRepository(dbx),
		repository.NewSubscribersRepository(dbx),
	)

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> events consumer started topic=%s group=%s workers=%d batchSize=%d",
		cfg.Kafka.EventsTopic, groupID, w.Workers, w.BatchSize)

	return w.Run(ctx)
}
