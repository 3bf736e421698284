package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/peppermint/listing-service/internal/adapter/email"
	"github.com/peppermint/listing-service/internal/adapter/mongo"
	"github.com/peppermint/listing-service/internal/adapter/nats"
	redisadapter "github.com/peppermint/listing-service/internal/adapter/redis"
	"github.com/peppermint/listing-service/internal/app/config"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/platform/metrics"
	"github.com/peppermint/listing-service/internal/platform/tracer"
	httpport "github.com/peppermint/listing-service/internal/port/http"
	"github.com/peppermint/listing-service/internal/scheduler"
	"github.com/peppermint/listing-service/internal/service"
)

const metricsNamespace = "listing_service"

// Run wires the whole service together and blocks until SIGINT/SIGTERM.
func Run(cfg *config.Config) {
	log, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log.Infof("starting listing service, env=%s", cfg.Env)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracer.Init(rootCtx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Errorf("tracer shutdown failed: %v", err)
			}
		}()
	}

	clk := clock.NewSystem()
	m := metrics.NewManager(metricsNamespace)

	mongoClient, err := mongo.NewClient(rootCtx, cfg.MongoDB)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Errorf("MongoDB disconnect failed: %v", err)
		}
	}()

	listingRepo := mongo.NewListingRepository(mongoClient, cfg.MongoDB)
	offerRepo := mongo.NewOfferRepository(mongoClient, cfg.MongoDB)
	notificationRepo := mongo.NewNotificationRepository(mongoClient, cfg.MongoDB)

	// Redis backs the creation rate limit and the read cache. The service
	// degrades to an in-process limiter and no cache when it is unreachable.
	var (
		admission service.AdmissionControl
		cache     service.ListingCache
	)
	redisClient, err := redisadapter.NewClient(rootCtx, cfg.Redis)
	if err != nil {
		log.Warnf("redis unavailable, falling back to in-process admission control: %v", err)
		admission = service.NewMemoryAdmission(cfg.Admission.Limit, cfg.Admission.Window, clk)
	} else {
		defer func() { _ = redisClient.Close() }()
		admission = redisadapter.NewRateLimiter(redisClient, cfg.Admission.Limit, cfg.Admission.Window, clk)
		cache = redisadapter.NewListingCache(redisClient, cfg.ListingCache.TTL)
	}

	var publisher nats.MessagePublisher
	channels := []service.Channel{}
	natsConn, err := nats.NewConnection(cfg.NATS)
	if err != nil {
		log.Warnf("NATS unavailable, events and bus notifications disabled: %v", err)
	} else {
		defer natsConn.Drain()
		publisher, err = nats.NewPublisher(natsConn)
		if err != nil {
			log.Fatalf("failed to create NATS publisher: %v", err)
		}
		channels = append(channels, nats.NewNotificationChannel(publisher))
	}
	if cfg.SMTP.Host != "" {
		resolver := mongo.NewUserDirectory(mongoClient, cfg.MongoDB)
		channels = append(channels, email.NewChannel(cfg.SMTP, resolver, log))
	}

	dispatcher := service.NewDispatcher(notificationRepo, channels, log, clk, m)
	go dispatcher.Run(rootCtx)

	listingService := service.NewListingService(listingRepo, offerRepo, cache, admission, dispatcher, publisher, log, clk, m)
	offerService := service.NewOfferService(offerRepo, listingRepo, listingService, dispatcher, log, clk, m)
	notificationService := service.NewNotificationService(notificationRepo)

	sweep := scheduler.New(listingRepo, listingService, log, clk, m, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)
	go sweep.Run(rootCtx)

	go func() {
		if err := m.StartServer(cfg.Metrics.Port, log); err != nil {
			log.Errorf("metrics server failed: %v", err)
		}
	}()

	handler := httpport.NewHandler(listingService, offerService, notificationService, log, cfg.JWTSecret)
	server := httpport.NewServer(
		":"+cfg.HTTPServer.Port,
		handler.Routes(),
		cfg.HTTPServer.ReadTimeout,
		cfg.HTTPServer.WriteTimeout,
		cfg.HTTPServer.ReadTimeout+cfg.HTTPServer.WriteTimeout,
		log,
	)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run() }()

	select {
	case <-rootCtx.Done():
		log.Infof("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Errorf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.TimeoutGraceful)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	log.Infof("listing service stopped")
}
