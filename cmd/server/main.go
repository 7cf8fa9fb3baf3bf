package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"booksaga/cmd/server/config"
	grpcadapter "booksaga/internal/adapters/grpc"
	ordersdb "booksaga/internal/db/orders"
	"booksaga/internal/fulfillment"
	"booksaga/internal/logging"
	"booksaga/internal/observability"
	"booksaga/internal/orders"
	"booksaga/internal/orders/saga"
	"booksaga/internal/queue"
	"booksaga/internal/realtime"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	env := os.Getenv("APP_ENV")
	logger, err := logging.NewLogger("booksaga", env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	storeCfg, err := config.LoadStore()
	if err != nil {
		return err
	}
	workerCfg, err := config.LoadWorker()
	if err != nil {
		return err
	}
	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	obsCfg, err := config.LoadObservability()
	if err != nil {
		return err
	}
	reliability, err := orders.LoadReliabilityConfigFromEnv()
	if err != nil {
		return err
	}

	var (
		db       *sql.DB
		rdb      *redis.Client
		redisCfg config.RedisConfig
	)
	if storeCfg.DatabaseURL != "" {
		if db, err = openDatabase(ctx, storeCfg.DatabaseURL); err != nil {
			return err
		}
		defer closeWith(logger, "postgres", db.Close)
	}
	if needsRedis(storeCfg, workerCfg) {
		if redisCfg, err = config.LoadRedis(); err != nil {
			return err
		}
		if rdb, err = buildRedisClient(ctx, redisCfg); err != nil {
			return err
		}
		defer closeWith(logger, "redis", rdb.Close)
	}

	records, err := buildRecordStore(ctx, storeCfg, db, rdb)
	if err != nil {
		return err
	}
	logger.Info("record store ready", zap.String("backend", storeCfg.Backend))

	metrics := observability.NewMetrics()
	buildCfg := orders.BuildConfig{
		Store:       records,
		DB:          db,
		Reliability: reliability,
		Courier:     workerCfg.Courier,
		Metrics:     metrics,
		Logger:      logger,
	}
	service := orders.BuildService(ctx, buildCfg)

	var limiter rateLimiter
	if grpcCfg.RateLimitInterval > 0 {
		limiter = orders.NewRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst).OnWait(metrics.AddRateLimitWait)
	}
	server := grpcpkg.NewServer(grpcpkg.UnaryInterceptor(unaryInterceptor(limiter, metrics, logger)))
	grpcadapter.RegisterSagaStepsServer(server, grpcadapter.NewStepServer(service))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(server)
		logger.Info("gRPC reflection enabled", zap.String("env", env))
	}

	hub := realtime.NewHub(256, logger)
	go hub.Run(ctx)

	var journal saga.StepJournal
	if db != nil {
		if j, err := ordersdb.NewSagaJournalWithSchema(ctx, db); err != nil {
			logger.Warn("fulfillment journal disabled", zap.Error(err))
		} else {
			journal = j
		}
	}
	source, err := buildQueueSource(ctx, workerCfg, rdb)
	if err != nil {
		return err
	}
	var worker *fulfillment.Worker
	if source != nil {
		worker, err = buildWorker(workerCfg, redisCfg, rdb, records, orders.BuildCourierClient(ctx, buildCfg),
			fulfillment.WithPublisher(fulfillment.NewFanoutPublisher(buildOutcomeSink(redisCfg, rdb, journal), hub)),
			fulfillment.WithMetrics(metrics),
			fulfillment.WithLogger(logger),
		)
		if err != nil {
			closeWith(logger, "queue source", source.Close)
			return err
		}
	}

	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}
	obsSrv := &http.Server{
		Addr:              obsCfg.Addr,
		Handler:           newObservabilityMux(metrics, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", grpcCfg.Addr))
		errCh <- server.Serve(lis)
	}()
	go func() {
		logger.Info("observability server listening", zap.String("addr", obsCfg.Addr))
		if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan struct{})
	if source != nil {
		go func() {
			defer close(workerDone)
			defer closeWith(logger, "queue source", source.Close)
			logger.Info("fulfillment worker started",
				zap.String("queue", workerCfg.Queue),
				zap.Int("concurrency", workerCfg.Concurrency),
			)
			if err := queue.Run(workerCtx, source, worker, workerCfg.Concurrency, logger); err != nil {
				errCh <- err
			}
		}()
	} else {
		close(workerDone)
		logger.Info("fulfillment worker disabled", zap.String("queue", workerCfg.Queue))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	metrics.MarkShutdown(metrics.Snapshot().InFlight)

	stopWorker()
	<-workerDone
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("observability server shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}

func newObservabilityMux(metrics *observability.Metrics, hub http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/stats", observability.Handler(metrics))
	mux.Handle("/metrics", observability.PrometheusHandler(metrics))
	if hub != nil {
		mux.Handle("/ws", hub)
	}
	return mux
}

func needsRedis(store config.StoreConfig, worker config.WorkerConfig) bool {
	return store.Backend == config.StoreRedis ||
		(worker.Queue != config.QueueNone && worker.Queue != "") ||
		strings.TrimSpace(os.Getenv("REDIS_URL")) != ""
}

func closeWith(logger *zap.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("close "+name, zap.Error(err))
	}
}
