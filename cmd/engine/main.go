package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/params"
	"github.com/uhyunpark/spotmatch/pkg/api"
	"github.com/uhyunpark/spotmatch/pkg/app/spot"
	"github.com/uhyunpark/spotmatch/pkg/metrics"
	"github.com/uhyunpark/spotmatch/pkg/storage"
	"github.com/uhyunpark/spotmatch/pkg/transport"
	"github.com/uhyunpark/spotmatch/pkg/transport/kafkabus"
	"github.com/uhyunpark/spotmatch/pkg/transport/redisbus"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("engine_exited", "err", err)
		logger.Sync()
		closeLog()
		os.Exit(1)
	}
}

func newLogger(cfg params.Log) (*zap.Logger, func() error, error) {
	level := util.ParseLevel(cfg.Level)
	if cfg.File == "" {
		logger, err := util.NewLogger(level)
		return logger, func() error { return nil }, err
	}
	return util.NewLoggerWithFile(cfg.File, level)
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- Transport ----
	rdb, err := redisbus.Dial(ctx, redisbus.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	hub := api.NewHub(sugar.Named("ws"))
	sinks := []interface{}{redisbus.NewPublisher(rdb, cfg.Redis.EventQueue), hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafkabus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		sinks = append(sinks, kp)
		sugar.Infow("kafka_events_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- Engine ----
	engine, err := spot.NewEngine(spot.Config{
		BaseCurrency: cfg.Engine.BaseCurrency,
		Markets:      cfg.Engine.Markets,
	}, transport.NewFanout(sinks...), sugar.Named("engine"), spot.WithMetrics(m))
	if err != nil {
		return err
	}

	// ---- Snapshots ----
	store, err := storage.Open(cfg.Snapshot.Backend, cfg.Snapshot.Path, cfg.Snapshot.PebbleDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Snapshot.Restore {
		restored, err := storage.RestoreLatest(store, engine)
		if err != nil {
			return err
		}
		sugar.Infow("snapshot_restore", "backend", cfg.Snapshot.Backend, "found", restored)
	}

	sugar.Infow("engine_starting",
		"markets", cfg.Engine.Markets,
		"base_currency", cfg.Engine.BaseCurrency,
		"command_queue", cfg.Redis.CommandQueue,
		"event_queue", cfg.Redis.EventQueue,
		"snapshot_backend", cfg.Snapshot.Backend,
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("component_failed", "component", name, "err", err)
				errCh <- err
				stop()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	snapshotter := storage.NewSnapshotter(engine, store, cfg.Snapshot.Interval, sugar.Named("snapshot"), m)
	spawn("snapshotter", snapshotter.Run)

	consumer := redisbus.NewConsumer(rdb, cfg.Redis.CommandQueue, sugar.Named("consumer"))
	spawn("consumer", func(ctx context.Context) error { return consumer.Run(ctx, engine) })

	server := api.NewServer(engine, hub, m.Handler(), sugar.Named("api"))
	spawn("api", func(ctx context.Context) error { return server.Start(ctx, cfg.API.Addr) })

	// ---- Synthetic order flow (optional) ----
	// Enable with: ENABLE_FEEDER=true
	if cfg.Feeder.Enabled {
		feederCfg := spot.DefaultFeederConfig()
		feederCfg.Interval = cfg.Feeder.Interval
		cancelFeeder := spot.StartFeeder(ctx, engine, feederCfg, sugar.Named("feeder"))
		defer cancelFeeder()
	}

	<-ctx.Done()
	sugar.Info("engine_shutting_down")
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
