package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/nft-ticket-protocol/internal/adapters/mongo"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/rabbit"
	"github.com/robertarktes/nft-ticket-protocol/internal/audit"
	"github.com/robertarktes/nft-ticket-protocol/internal/config"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	auditLog := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.AuditQueue)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", cfg.AuditQueue, err)
	}

	logger.WithField("queue", cfg.AuditQueue).Info("Audit worker started")
	audit.NewWorker(auditLog, logger).Run(ctx, deliveries)
	logger.Info("Shutdown audit worker")
}
