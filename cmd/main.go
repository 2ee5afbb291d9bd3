package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/internal/asset"
	"catalog-service/internal/events"
	"catalog-service/internal/handler"
	mid "catalog-service/internal/middleware"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/pkg/config"
	"catalog-service/pkg/database"
	"catalog-service/pkg/jwtutil"
	"catalog-service/pkg/logger"
	"catalog-service/pkg/telemetry"
	"catalog-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:   config.ServiceName,
		Usage:  "multi-seller catalog with per-seller inventory reconciliation",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the catalog tables",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "issue an actor token for local testing",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "address"},
					&cli.StringFlag{Name: "role", Value: "Customer", Usage: "Retailer or Customer"},
				},
				Action: issueToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and initializes the logger
func bootstrap() (*config.Config, *zap.Logger, error) {
	appConfig, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.InitLogger(appConfig); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return appConfig, logger.GetLogger(), nil
}

func migrate(c *cli.Context) error {
	appConfig, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := database.InitDB(appConfig)
	if err != nil {
		return err
	}
	if err := database.Migrate(conn); err != nil {
		return err
	}
	log.Info("Database migrations applied", zap.String("db_name", appConfig.DB.DBName))
	return nil
}

func issueToken(c *cli.Context) error {
	appConfig, err := config.Load()
	if err != nil {
		return err
	}
	jwtutil.Initialize(&appConfig.JWT)

	token, err := jwtutil.GenerateToken(jwtutil.ActorClaims{
		UserID:  c.Uint("user-id"),
		Name:    c.String("name"),
		Email:   c.String("email"),
		Address: c.String("address"),
		Role:    c.String("role"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func serve(c *cli.Context) error {
	appConfig, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting catalog-service", appConfig.LogConfig()...)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	if appConfig.Otel.Endpoint != "" {
		_, shutdown, err := telemetry.Setup(ctx, &appConfig.Otel)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error("OpenTelemetry shutdown failed", zap.Error(err))
			}
		}()
		logger.AttachOTel(config.ServiceName)
		log = logger.GetLogger()
		log.Info("OpenTelemetry initialized", zap.String("endpoint", appConfig.Otel.Endpoint))
	}

	// Initialize JWT utility
	jwtutil.Initialize(&appConfig.JWT)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	st, ping, err := openStore(appConfig)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(appConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close event publisher", zap.Error(err))
		}
	}()

	resolver, err := asset.NewResolver(appConfig.Assets.UploadDir)
	if err != nil {
		return err
	}

	catalog := service.NewCatalogService(st,
		service.WithPublisher(publisher),
		service.WithPricePolicy(service.PricePolicy(appConfig.Catalog.PricePolicy)),
	)

	e := newServer(handler.NewItemHandler(catalog, resolver, appConfig.Assets.MaxGalleryFiles), resolver, ping)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", zap.String("port", appConfig.Server.Port))
		if err := e.Start(":" + appConfig.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newServer(items *handler.ItemHandler, resolver *asset.Resolver, ping handler.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", handler.Health(ping))

	e.Static(asset.PublicPath, resolver.Dir())

	// Item API routes - auth resolves the calling actor from the JWT
	items.Register(e.Group("/api/items", mid.AuthMiddleware))
	return e
}

func openStore(appConfig *config.Config) (store.Store, handler.Pinger, error) {
	log := logger.GetLogger()
	if appConfig.Catalog.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory catalog store; data is lost on restart")
		return store.NewMemoryStore(appConfig.Catalog.LockTimeout), nil, nil
	}

	conn, err := database.InitDB(appConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(conn); err != nil {
		return nil, nil, err
	}
	log.Info("Database connection established")

	ping := func(ctx context.Context) error { return database.Ping(ctx, conn) }
	return store.NewPostgresStore(conn, appConfig.Catalog.LockTimeout), ping, nil
}

func openPublisher(appConfig *config.Config) (events.Publisher, error) {
	if len(appConfig.Kafka.Brokers) == 0 {
		logger.GetLogger().Info("Kafka brokers not configured; catalog events are disabled")
		return events.NopPublisher{}, nil
	}
	producer, err := events.NewTracedProducer(
		appConfig.Kafka.Brokers,
		appConfig.Kafka.Topic,
		config.ServiceName,
		appConfig.Kafka.BatchTimeout,
		otel.GetTracerProvider(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.GetLogger().Info("Publishing catalog events",
		zap.Strings("brokers", appConfig.Kafka.Brokers),
		zap.String("topic", appConfig.Kafka.Topic))
	return events.NewKafkaPublisher(producer), nil
}
