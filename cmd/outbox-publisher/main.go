package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/crdb"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/rabbit"
	"github.com/robertarktes/nft-ticket-protocol/internal/config"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/outbox"
	"golang.org/x/sync/errgroup"
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

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	ledger := crdb.NewLedger(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(ledger, rabbitPub, cfg.OutboxInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Outbox publisher started")
		publisher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// A closed connection ends the relay; the supervisor restarts the process.
		select {
		case err := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if err != nil {
				stop()
				return err
			}
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("outbox publisher: %v", err)
	}
	logger.Info("Shutdown outbox publisher")
}
