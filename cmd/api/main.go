package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/cart"
	"github.com/stassart/go-shop-orders/internal/config"
	"github.com/stassart/go-shop-orders/internal/events"
	"github.com/stassart/go-shop-orders/internal/guest"
	"github.com/stassart/go-shop-orders/internal/httpx"
	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/orders"
	"github.com/stassart/go-shop-orders/internal/payment"
	"github.com/stassart/go-shop-orders/internal/postgres"
	"github.com/stassart/go-shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	var pub events.Publisher = events.Nop{}
	var prod *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = events.NewProducer(cfg.KafkaBrokers, events.Topic, 1024)
		prod.Start(ctx)
		pub = &events.Emitter{Sink: prod, Service: cfg.ServiceName}
	} else {
		log.Warn("no kafka brokers configured, events disabled")
	}

	// Payment gateway
	gateway := payment.NewStripeGateway(
		cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.Currency,
		cfg.GatewayTimeout, log)
	if !gateway.Available() {
		log.Warn("payment gateway not configured, payments disabled")
	}

	// Services
	ledger := &inventory.PG{DB: db}
	repo := &orders.Repo{DB: db}
	store := &cart.PGStore{DB: db}

	carts := &cart.Service{
		Store:        store,
		Log:          log,
		ReserveOnAdd: cfg.ReserveOnAdd(),
	}
	ordersSvc := &orders.Service{
		Repo:              repo,
		Ledger:            ledger,
		Gateway:           gateway,
		Events:            pub,
		Log:               log,
		Currency:          cfg.Currency,
		ReserveAtCheckout: !cfg.ReserveOnAdd(),
	}
	guests := &guest.Service{
		Repo:   repo,
		Ledger: ledger,
		Orders: ordersSvc,
		Tokens: guest.NewTokenIssuer(cfg.GuestTokenSecret, cfg.GuestTokenTTL),
		Log:    log,
	}

	// Abandoned cart sweeper
	sweeper := &cart.Sweeper{
		Store:    store,
		Events:   pub,
		Log:      log,
		Interval: cfg.CartSweepInterval,
		MaxAge:   cfg.CartMaxAge,
		Restock:  cfg.ReserveOnAdd(),
	}
	go sweeper.Run(ctx)

	// HTTP
	router := httpx.NewRouter(log)
	(&httpx.CartHandler{Carts: carts, Log: log}).Register(router)
	(&httpx.OrdersHandler{Orders: ordersSvc, Redis: rdb, Log: log}).Register(router)
	(&httpx.GuestHandler{Guests: guests, Log: log}).Register(router)
	(&httpx.PaymentHandler{Gateway: gateway, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
