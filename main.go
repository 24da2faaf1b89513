package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/waste-sort/internal/auth"
	"github.com/example/waste-sort/internal/classifier"
	"github.com/example/waste-sort/internal/config"
	"github.com/example/waste-sort/internal/detector"
	"github.com/example/waste-sort/internal/grpcclient"
	"github.com/example/waste-sort/internal/handlers"
	"github.com/example/waste-sort/internal/inferenceclient"
	"github.com/example/waste-sort/internal/logging"
	"github.com/example/waste-sort/internal/metrics"
	"github.com/example/waste-sort/internal/repository"
	"github.com/example/waste-sort/internal/rulebook"
	"github.com/example/waste-sort/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	book := loadRuleBook(ctx, cfg, logger)
	registry, err := book.Registry()
	if err != nil {
		logger.Fatal("invalid category registry", zap.Error(err))
	}
	res, err := book.Resolver()
	if err != nil {
		logger.Fatal("invalid label table", zap.Error(err))
	}

	det, closeDetector := initDetector(ctx, cfg, logger)
	defer closeDetector()

	agg, err := classifier.NewAggregator(res, registry, cfg.ConfidenceThreshold)
	if err != nil {
		logger.Fatal("invalid confidence threshold", zap.Error(err))
	}
	svc := classifier.NewService(detector.NewLimited(det, cfg.DetectorMaxConcurrent), agg, registry, logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promRegistry)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	opts := []usecase.Option{usecase.WithMetrics(m)}
	if db := initDatabase(ctx, cfg, logger); db != nil {
		repo := repository.NewClassificationRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		opts = append(opts, usecase.WithRepository(repo))
	}
	if redisClient := initRedis(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, usecase.WithCache(usecase.NewRedisCache(redisClient), cfg.CacheTTL))
	}
	uc := usecase.NewClassificationUseCase(svc, logger, opts...)

	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.RequestLogger(logger), handlers.CORS(cfg.AllowedOrigins))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	authMiddleware := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience, auth.OperatorRole)
	handlers.RegisterRoutes(r, uc, authMiddleware)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("waste sorting API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		zap.String("detector_transport", cfg.DetectorTransport),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func loadRuleBook(ctx context.Context, cfg *config.Config, logger *zap.Logger) *rulebook.Book {
	switch cfg.RulesSource {
	case config.RulesFile:
		book, err := rulebook.LoadFile(cfg.RulesFile)
		if err != nil {
			logger.Fatal("failed to load rule book", zap.String("path", cfg.RulesFile), zap.Error(err))
		}
		return book
	case config.RulesMongo:
		book, err := loadMongoRuleBook(ctx, cfg, logger)
		if err == nil {
			return book
		}
		logger.Warn("falling back to embedded rule book", zap.Error(err))
	}

	book, err := rulebook.Default()
	if err != nil {
		logger.Fatal("embedded rule book is invalid", zap.Error(err))
	}
	return book
}

func loadMongoRuleBook(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rulebook.Book, error) {
	client, err := rulebook.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()
	return rulebook.NewStore(client.Database(cfg.MongoDatabase), logger).Load(ctx)
}

func initDetector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (detector.Detector, func()) {
	switch cfg.DetectorTransport {
	case config.TransportGRPC:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, conn, err := grpcclient.DialDetector(dialCtx, cfg.DetectorAddr, cfg.DetectorTimeout, logger)
		if err != nil {
			logger.Error("failed to connect to detector, serving without a model", zap.String("addr", cfg.DetectorAddr), zap.Error(err))
			return detector.Unavailable{}, func() {}
		}
		return client, func() { conn.Close() }
	case config.TransportHTTP:
		return inferenceclient.NewClient(cfg.DetectorURL, cfg.DetectorTimeout, logger), func() {}
	default:
		logger.Warn("no detector configured, classifications will report the model as not loaded")
		return detector.Unavailable{}, func() {}
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		zapLogger.Info("classification history disabled")
		return nil
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		zapLogger.Info("result cache disabled")
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
