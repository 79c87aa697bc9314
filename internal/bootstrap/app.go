package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aq2208/gcheckout-api/configs"
	"github.com/aq2208/gcheckout-api/internal/adapter/cache"
	"github.com/aq2208/gcheckout-api/internal/adapter/http"
	"github.com/aq2208/gcheckout-api/internal/adapter/http/middleware"
	"github.com/aq2208/gcheckout-api/internal/adapter/kafka"
	"github.com/aq2208/gcheckout-api/internal/adapter/outbox"
	"github.com/aq2208/gcheckout-api/internal/adapter/queue"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/pricing"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type App struct {
	Router *gin.Engine

	log      *slog.Logger
	relay    *outbox.Relay
	rabbit   *queue.Router
	consumer *kafka.Consumer[usecase.StockSnapshotMsg]
}

// Start launches the background workers. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	go a.relay.Run(ctx)

	if a.rabbit != nil {
		if err := a.rabbit.Start(ctx); err != nil {
			return fmt.Errorf("start side-effect consumers: %w", err)
		}
	}

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("stock feed consumer stopped", "err", err)
			}
		}()
	}
	return nil
}

// Wait blocks until in-flight side-effect deliveries have finished.
func (a *App) Wait() {
	if a.rabbit != nil {
		a.rabbit.Wait()
	}
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	log := logging.New("bootstrap")
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	rules, dispatchCfg, err := domainRules(cfg)
	if err != nil {
		return fail(err)
	}

	// init database
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fail(fmt.Errorf("mysql ping: %w", err))
	}

	// init redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fail(fmt.Errorf("redis ping: %w", err))
	}

	// infra
	ledger := repo.NewMySQLStockLedger(db)
	catalog := repo.NewSQLCatalog(db)
	orders := repo.NewMySQLOrderRepo(db)
	uow := repo.NewSQLUnitOfWork(db)
	mergeLock := cache.NewRedisMergeLock(rdb, cfg.Cart.MergeLockTTL, cfg.Cart.MergeLockWait)
	tiers := usecase.CartTiers{
		Anon:  cache.NewRedisAnonCartStore(rdb, cfg.Cart.AnonTTL),
		Owned: repo.NewSQLCartRepo(db),
		Lock:  mergeLock,
	}
	engine := pricing.NewEngine(rules, repo.NewSQLPromoRepo(db))
	dispatcher := usecase.NewDispatcher(repo.NewSQLLoyaltyRepo(db), repo.NewSQLReferralRepo(db), dispatchCfg)

	app := &App{log: log}

	// side-effect transport
	var pub outbox.Publisher
	switch cfg.Outbox.Transport {
	case "inline":
		pub = outbox.NewInlinePublisher(dispatcher.Handle)
	default:
		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return fail(fmt.Errorf("rabbitmq dial: %w", err))
		}
		closers = append(closers, func() { _ = conn.Close() })

		pubCh, err := conn.Channel()
		if err != nil {
			return fail(err)
		}
		if err := queue.DeclareTopology(pubCh, cfg.Rabbit.Exchange); err != nil {
			return fail(err)
		}
		producer, err := queue.NewRabbitProducer(pubCh, cfg.Rabbit.Exchange)
		if err != nil {
			return fail(err)
		}
		pub = producer

		// consumers get their own channel so confirms and deliveries do not interleave
		subCh, err := conn.Channel()
		if err != nil {
			return fail(err)
		}
		app.rabbit = queue.NewRouter(subCh,
			queue.WithPrefetch(cfg.Rabbit.Prefetch),
			queue.WithLogger(logging.New("side-effects")),
		)
		queue.RegisterSideEffects(app.rabbit, dispatcher)
	}

	app.relay = outbox.NewRelay(repo.NewMySQLOutboxRepo(db), pub, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		BaseBackoff:  cfg.Outbox.BaseBackoff,
		Lease:        cfg.Outbox.Lease,
	})

	inventory := usecase.NewInventory(ledger)

	// warehouse stock feed
	if cfg.Kafka.Enabled {
		grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
		if err != nil {
			return fail(fmt.Errorf("kafka group: %w", err))
		}
		closers = append(closers, func() { _ = grp.Close() })
		app.consumer = kafka.NewConsumer[usecase.StockSnapshotMsg](grp, []string{cfg.Kafka.TopicStock},
			kafka.NewStockSnapshotHandler(inventory).Handle)
	}

	// use cases
	carts := usecase.NewCartService(tiers, catalog, ledger, engine)
	merge := usecase.NewMergeCart(tiers, mergeLock, ledger)
	commit := usecase.NewCommitOrder(tiers, catalog, engine, uow, orders,
		cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL), app.relay,
		usecase.CommitConfig{PaymentMethods: cfg.Checkout.PaymentMethods, Timeout: cfg.Checkout.CommitTimeout})

	// init handlers + routers + middleware
	app.Router = http.NewRouter(logging.New("http"), middleware.NewAuthz(cfg), http.Handlers{
		Cart:     http.NewCartHandler(carts, merge),
		Checkout: http.NewCheckoutHandler(commit),
		Admin:    http.NewAdminHandler(usecase.NewAdminOrders(uow), inventory),
	})

	log.Info("wired", "outbox_transport", cfg.Outbox.Transport, "kafka", cfg.Kafka.Enabled)
	return app, cleanup, nil
}

func domainRules(cfg configs.Config) (pricing.Rules, usecase.DispatcherConfig, error) {
	threshold, err := decimal.NewFromString(cfg.Pricing.FreeShippingThreshold)
	if err != nil {
		return pricing.Rules{}, usecase.DispatcherConfig{}, fmt.Errorf("pricing.free_shipping_threshold: %w", err)
	}
	fee, err := decimal.NewFromString(cfg.Pricing.FlatShippingFee)
	if err != nil {
		return pricing.Rules{}, usecase.DispatcherConfig{}, fmt.Errorf("pricing.flat_shipping_fee: %w", err)
	}
	minTotal := decimal.Zero
	if cfg.Referral.MinOrderTotal != "" {
		if minTotal, err = decimal.NewFromString(cfg.Referral.MinOrderTotal); err != nil {
			return pricing.Rules{}, usecase.DispatcherConfig{}, fmt.Errorf("referral.min_order_total: %w", err)
		}
	}
	return pricing.Rules{FreeShippingThreshold: threshold, FlatShippingFee: fee},
		usecase.DispatcherConfig{
			PointsPerUnit:    cfg.Loyalty.PointsPerUnit,
			ReferralBonus:    cfg.Referral.BonusPoints,
			MinReferralTotal: minTotal,
		}, nil
}
