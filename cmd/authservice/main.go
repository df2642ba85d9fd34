package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	authservice "github.com/Matidza/Auth-Service"
	"github.com/Matidza/Auth-Service/config"
	authgrpc "github.com/Matidza/Auth-Service/grpc"
	"github.com/Matidza/Auth-Service/mailer"
	"github.com/Matidza/Auth-Service/stores/fs"
	"github.com/Matidza/Auth-Service/stores/gae"
	gormstore "github.com/Matidza/Auth-Service/stores/gorm"
	mongostore "github.com/Matidza/Auth-Service/stores/mongo"
)

const serviceName = "auth-service"

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("auth service stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ensureDevSecrets(cfg, logger)

	accounts, posts, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	svc, err := authservice.New(cfg, authservice.Dependencies{
		Accounts: accounts,
		Posts:    posts,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  authservice.NewMetrics("auth_service"),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           svc.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	var healthSrv *health.Server
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		interceptor := authgrpc.NewPublicMethodsConfig(svc.Accounts.Tokens,
			grpc_health_v1.Health_Check_FullMethodName,
			grpc_health_v1.Health_Watch_FullMethodName,
		)
		interceptor.Logger = logger.Named("grpc")
		grpcSrv = grpc.NewServer(
			grpc.UnaryInterceptor(authgrpc.UnaryAuthInterceptor(interceptor)),
			grpc.StreamInterceptor(authgrpc.StreamAuthInterceptor(interceptor)),
		)
		healthSrv = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
		healthSrv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
		go func() {
			logger.Info("starting gRPC server", zap.Int("port", cfg.GRPCPort))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	if healthSrv != nil {
		healthSrv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		grpcSrv.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("auth service shut down")
	return nil
}

// ensureDevSecrets fills missing secrets outside production. Sessions then
// do not survive a restart.
func ensureDevSecrets(cfg *config.Config, logger *zap.Logger) {
	if cfg.IsProduction() {
		return
	}
	for name, secret := range map[string]*string{
		"ACCESS_TOKEN_SECRET":           &cfg.AccessTokenSecret,
		"REFRESH_TOKEN_SECRET":          &cfg.RefreshTokenSecret,
		"HMAC_VERIFICATION_CODE_SECRET": &cfg.CodeSecret,
	} {
		if *secret == "" {
			*secret = randomSecret()
			logger.Warn("using a random development secret", zap.String("key", name))
		}
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (authservice.AccountStore, authservice.PostStore, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.StoreFS:
		logger.Info("using file store", zap.String("path", cfg.FSStorePath))
		return fs.NewFSAccountStore(cfg.FSStorePath), fs.NewFSPostStore(cfg.FSStorePath), noop, nil

	case config.StoreGorm:
		db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("open database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, noop, fmt.Errorf("migrate database: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		logger.Info("using sql store", zap.String("dsn", cfg.DatabaseDSN))
		return gormstore.NewAccountStore(db), gormstore.NewPostStore(db), closeDB, nil

	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI, 10*time.Second)
		if err != nil {
			return nil, nil, noop, err
		}
		closeClient := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("error disconnecting from mongo", zap.Error(err))
			}
		}
		db := client.Database(cfg.MongoDatabase)
		accounts, err := mongostore.NewAccountStore(ctx, db, logger)
		if err != nil {
			closeClient()
			return nil, nil, noop, err
		}
		posts, err := mongostore.NewPostStore(ctx, db)
		if err != nil {
			closeClient()
			return nil, nil, noop, err
		}
		logger.Info("using mongo store", zap.String("database", cfg.MongoDatabase))
		return accounts, posts, closeClient, nil

	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("datastore client: %w", err)
		}
		logger.Info("using datastore store", zap.String("project", cfg.DatastoreProject))
		return gae.NewAccountStore(client, cfg.DatastoreNamespace),
			gae.NewPostStore(client, cfg.DatastoreNamespace),
			func() { _ = client.Close() }, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown store %q", cfg.Store)
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (authservice.Notifier, error) {
	if cfg.Mailer == config.MailerSMTP {
		return mailer.NewSMTPNotifier(mailer.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.MailFrom,
			Encryption: cfg.SMTPEncryption,
		}, logger)
	}
	return &authservice.ConsoleNotifier{Logger: logger.Named("ConsoleNotifier")}, nil
}
