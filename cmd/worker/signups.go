package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/internal/kafka"
	"github.com/jmehdipour/subscribers/internal/logger"
	"github.com/jmehdipour/subscribers/internal/metrics"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var signupsCmd = &cobra.Command{
	Use:   "signups",
	Short: "Project signup events from Kafka into ClickHouse",
	RunE:  runSignups,
}

func runSignups(cmd *cobra.Command, args []string) error {
	// 1) config + logger
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.Init(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) ClickHouse
	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:     cfg.ClickHouse.DSN,
		SQLOpts: db.OptsFrom(cfg.ClickHouse),
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	// 3) Kafka
	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = repository.SignupsTopic
	}
	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer func() { _ = consumer.Close() }()

	// 4) run until signalled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := worker.NewSignupProjector(
		consumer,
		repository.NewSignupsRepository(chDB),
		log.Named("signups"),
		cfg.Worker.BatchSize,
		cfg.Worker.BatchWait,
	)

	log.Info("signups worker started",
		zap.String("topic", topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.Int("batch_size", p.BatchSize),
	)
	if err := p.Run(ctx); err != nil {
		return err
	}
	log.Info("signups worker stopped")
	return nil
}
