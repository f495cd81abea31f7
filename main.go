package main

// GET    /health
// POST   /products                      admin: create a product
// GET    /products/list                 list products
// GET    /products/{id}                 one product
// PUT    /admin/products/{id}/stock     admin: set stock
// POST   /admin/products/{id}/restock   admin: add stock
// GET    /cart/list                     the caller's cart with live prices
// POST   /cart/add | PATCH /cart/update | POST /cart/remove | DELETE /cart/clear
// POST   /checkout/order                place an order from the cart
// GET    /orders | GET /orders/{id}     the caller's orders
// GET    /admin/orders/{id}             admin: any order
// PATCH  /admin/orders/{id}/status      admin: move an order through its lifecycle

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"storefront/config"
	"storefront/handler"
	"storefront/idempotency"
	"storefront/logging"
	"storefront/outbox"
	"storefront/service"
	"storefront/store"
)

//go:embed migrations.sql
var migrationSQL string

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var (
		st       store.Store
		carts    store.CartStore
		outboxSt outbox.Store
	)
	switch cfg.StoreBackend {
	case "memory":
		mem := store.NewMemoryStore()
		st, outboxSt = mem, mem
	default:
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx, migrationSQL); err != nil {
			_ = pg.Close()
			return err
		}
		log.Info("database migrations executed")
		st, outboxSt = pg, pg
		if cfg.CartBackend == "postgres" {
			carts = store.NewPostgresCartStore(pg)
		}
	}
	defer st.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		c, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = c
		defer rdb.Close()
	}
	switch cfg.CartBackend {
	case "redis":
		carts = store.NewRedisCartStore(rdb)
	case "memory":
		carts = store.NewMemoryCartStore()
	}

	// --- Service ---
	svc := service.NewService(log, st, carts, service.Options{
		DeliveryETA:   cfg.DeliveryETA,
		InitialStatus: cfg.InitialOrderStatus,
		MaxAttempts:   cfg.CheckoutMaxAttempts,
	})
	var serviceInterface service.ServiceInterface = svc

	// --- Handlers ---
	var idem handler.IdempotencyStore
	if rdb != nil {
		idem = idempotency.New(rdb, cfg.IdempotencyTTL)
	}
	h := handler.NewHandler(log, serviceInterface, cfg.AdminKey, idem)

	// --- Outbox relay ---
	relayDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		w := outbox.NewWriter(cfg.KafkaBrokers)
		defer w.Close()
		relay := outbox.NewRelay(log, outboxSt, outbox.NewDispatcher(log, w, cfg.OutboxTopic), uuid.NewString())
		go func() {
			defer close(relayDone)
			_ = relay.Run(ctx)
		}()
	} else {
		close(relayDone)
		log.Info("KAFKA_BROKERS not set; order events stay in the outbox")
	}

	// --- Router ---
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", srv.Addr, "store", cfg.StoreBackend, "cart", cfg.CartBackend)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	// the relay must be done with the store before it is closed
	stop()
	<-relayDone
	return errors.Join(serveErr, err)
}
