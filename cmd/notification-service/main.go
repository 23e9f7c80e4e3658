// cmd/notification-service/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notification-relay/internal/api"
	"notification-relay/internal/common/config"
	"notification-relay/internal/common/errors"
	commonhttp "notification-relay/internal/common/http"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/observability"
	"notification-relay/internal/common/rabbitmq"
	"notification-relay/internal/common/retry"

	emailsend "notification-relay/internal/workers/communication/email-send"
	templateregistry "notification-relay/internal/workers/infrastructure/template-registry"
	emaildispatch "notification-relay/internal/workers/notification/email-dispatch"
)

const serviceName = "notification-service"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Error("Failed to load config", zap.Error(err))
		return 1
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("Starting notification service", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"provider":    cfg.Mail.Provider,
	})

	obs, err := observability.New(serviceName)
	if err != nil {
		log.Warn("Observability disabled", map[string]interface{}{"error": err.Error()})
		obs = observability.NewNoop()
	}
	defer obs.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := errors.ParseRenderFailurePolicy(cfg.Consumer.RenderFailurePolicy)
	if err != nil {
		log.Error("Invalid render failure policy", map[string]interface{}{"error": err.Error()})
		return 1
	}

	registry, err := templateregistry.New(log)
	if err != nil {
		log.Error("Failed to load templates", map[string]interface{}{"error": err.Error()})
		return 1
	}

	client := rabbitmq.NewClient(rabbitmq.Config{
		URL:               cfg.RabbitMQ.URL(),
		ConnectRetries:    cfg.RabbitMQ.ConnectRetries,
		ConnectDelay:      config.GetDuration(cfg.RabbitMQ.ConnectDelay),
		EmailQueue:        cfg.RabbitMQ.EmailQueue,
		SMSQueue:          cfg.RabbitMQ.SMSQueue,
		DeadLetterQueue:   cfg.RabbitMQ.DeadLetterQueue,
		DeclareDeadLetter: policy == errors.RenderFailureDeadLetter,
	}, log)

	if err := client.DeclareQueues(ctx); err != nil {
		log.Error("Failed to set up RabbitMQ", map[string]interface{}{"error": err.Error()})
		return 1
	}
	log.Info("RabbitMQ topology declared", map[string]interface{}{"queues": client.Queues()})

	publisher := rabbitmq.NewPublisher(client, log)

	mailCfg := emailsend.ConfigFromApp(cfg.Mail)
	sender, err := emailsend.NewService(ctx, emailsend.ServiceDependencies{
		Logger:     log,
		HTTPClient: commonhttp.NewClient(mailCfg.Timeout, commonhttp.WithUserAgent(serviceName+"/"+cfg.App.Version)),
	}, mailCfg)
	if err != nil {
		log.Error("Failed to create mail sender", map[string]interface{}{"error": err.Error()})
		return 1
	}

	handler, err := emaildispatch.NewHandler(&emaildispatch.Config{
		Queue:               cfg.RabbitMQ.EmailQueue,
		DeadLetterQueue:     cfg.RabbitMQ.DeadLetterQueue,
		RenderFailurePolicy: policy,
	}, emaildispatch.Dependencies{
		Registry:      registry,
		Sender:        sender,
		DeadLetter:    publisher,
		Observability: obs,
		Logger:        log,
	})
	if err != nil {
		log.Error("Failed to create dispatch handler", map[string]interface{}{"error": err.Error()})
		return 1
	}

	consumer := rabbitmq.NewConsumer(client, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQ.EmailQueue,
		ConsumerTag: serviceName,
		Prefetch:    cfg.Consumer.Prefetch,
		Backoff: &retry.Backoff{
			BaseDelay: cfg.Consumer.RestartBaseDuration(),
			MaxDelay:  cfg.Consumer.RestartMaxDuration(),
			Factor:    2.0,
			Jitter:    0.1,
		},
		MaxRestarts: cfg.Consumer.MaxRestarts,
		StableAfter: cfg.Consumer.StableAfterDuration(),
	}, handler, log)

	server := api.NewServer(api.ConfigFromApp(cfg), api.Dependencies{
		Publisher: publisher,
		Templates: registry,
		Logger:    log,
	})

	consumerDone := make(chan error, 1)
	go func() { consumerDone <- consumer.Run(ctx) }()

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Listen() }()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received", nil)
	case err := <-consumerDone:
		if err != nil {
			log.Error("Consumer is unrecoverable, shutting down", map[string]interface{}{"error": err.Error()})
			exitCode = 1
		}
		consumerDone <- nil
	case err := <-serverDone:
		if err != nil {
			log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			exitCode = 1
		}
	}

	stop()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Warn("HTTP server shutdown error", map[string]interface{}{"error": err.Error()})
	}

	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn("Consumer did not stop in time", nil)
	}

	log.Info(fmt.Sprintf("%s stopped", serviceName), map[string]interface{}{"exitCode": exitCode})
	return exitCode
}
