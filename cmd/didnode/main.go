// @title DID Node API
// @version 1.0
// @description 域名内容声明节点：校验、存储并通过 gossip 同步签名帖子
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/api"
	"github.com/d60-Lab/did-node/internal/api/handler"
	"github.com/d60-Lab/did-node/internal/metrics"
	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/p2p"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/pkg/database"
	"github.com/d60-Lab/did-node/pkg/logger"
	"github.com/d60-Lab/did-node/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("node stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			log.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, block cache falls back to the database", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	posts := repository.NewPostRepository(db)
	blockClient := oracle.NewBlockClient(cfg.Oracle, log, oracle.WithBlockMetrics(m))
	blocks := oracle.NewCachedBlocks(repository.NewBlockRepository(db), rdb, blockClient, log, m)
	domains := oracle.NewDomainClient(cfg.Oracle, log, oracle.WithDomainMetrics(m))
	validator := service.NewValidator(domains, domains, blocks, posts, log,
		service.WithConcurrentLookups(cfg.Oracle.ConcurrentLookups))

	node, err := p2p.New(ctx, cfg.P2P, log, m)
	if err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	ingester := service.NewIngester(validator, posts, cfg.Ingest.QueueSize, cfg.Ingest.JobTimeout, log, m)
	stopIngest := ingester.Start(cfg.Ingest.Workers)
	if err := node.Subscribe(func(data []byte, from peer.ID) {
		ingester.Enqueue(service.Message{Data: data, From: from.String()})
	}); err != nil {
		return err
	}
	node.Bootstrap()
	if cfg.P2P.EnableMDNS {
		if err := node.StartMDNS(); err != nil {
			log.Warn("mdns disabled", zap.Error(err))
		}
	}

	submissions := service.NewSubmissionService(validator, posts, service.NewPublisher(node), log, m)
	h := handler.NewHandler(handler.Deps{
		Submissions: submissions,
		Identity:    validator,
		Tip:         blockClient,
		Blocks:      blocks,
		Posts:       posts,
		Node:        node,
		Store:       sqlDB,
		Topic:       cfg.P2P.Topic,
		Log:         log,
	})
	router, err := api.SetupRouter(cfg, h, log, api.Options{Metrics: m, Gatherer: reg})
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := stopIngest(shutdownCtx); err != nil {
		log.Warn("ingest shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}
