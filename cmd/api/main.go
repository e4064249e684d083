package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/nft-ticket-protocol/internal/adapters/mongo"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/nft-ticket-protocol/internal/adapters/redis"
	"github.com/robertarktes/nft-ticket-protocol/internal/config"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	httphandler "github.com/robertarktes/nft-ticket-protocol/internal/http"
	"github.com/robertarktes/nft-ticket-protocol/internal/idempotency"
	"github.com/robertarktes/nft-ticket-protocol/internal/lifecycle"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/outbox"
	"github.com/robertarktes/nft-ticket-protocol/internal/rateLimit"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	if cfg.PlatformAddress == "" {
		log.Fatal("PLATFORM_ADDRESS is required")
	}
	roles := domain.NewAllowList(cfg.AdminAddress, cfg.OrganizerAddresses)
	checks := map[string]httphandler.Checker{}

	var rabbitPub *rabbit.Publisher
	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err = rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
	}

	var (
		ledger     settlement.Ledger
		crdbLedger *crdb.Ledger
	)
	if cfg.CRDBDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		crdbLedger = crdb.NewLedger(pool)
		if err := crdbLedger.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		ledger = crdbLedger
		checks["crdb"] = crdbLedger.Ping
	} else {
		logger.Warn("CRDB_DSN not set, settling in process memory")
		ledger = settlement.NewMemory(settlement.WithNotify(publishDirect(ctx, rabbitPub, logger)))
	}

	var catalog lifecycle.Catalog = lifecycle.NewMemoryCatalog()
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoCatalog := mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDB), logger)
		catalog = mongoCatalog
		checks["mongo"] = mongoCatalog.Ping
	}

	var (
		locker lifecycle.Locker
		rl     *rateLimit.RateLimiter
		idemp  *idempotency.Idempotency
	)
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		locker = redisCache
		rl = rateLimit.NewRateLimiter(redisCache.Client())
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		checks["redis"] = redisCache.Ping
	}

	svc := lifecycle.NewService(lifecycle.Deps{
		Ledger:       ledger,
		Catalog:      catalog,
		Capabilities: roles,
		Roles:        roles,
		Locker:       locker,
		LockTTL:      cfg.StateLockTTL,
		Platform:     cfg.PlatformAddress,
		Logger:       logger,
	})

	handlers := httphandler.NewHandlers(svc, logger, checks)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.EmbeddedRelay && crdbLedger != nil && rabbitPub != nil {
		relay := outbox.NewPublisher(crdbLedger, rabbitPub, cfg.OutboxInterval, logger)
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	logger.Info("Server exiting")
}
