// The order worker hosts the OrderLifecycle workflow and the PaymentService
// virtual object on one Restate endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"

	"github.com/pithomlabs/orderflow/internal/backoff"
	"github.com/pithomlabs/orderflow/internal/config"
	"github.com/pithomlabs/orderflow/internal/order"
	"github.com/pithomlabs/orderflow/internal/payment"
	"github.com/pithomlabs/orderflow/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Order worker exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DatabaseURL, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	orders := order.NewOrderLifecycle(db, cfg.ApprovalTimeout)
	payments := payment.NewPaymentService(db,
		payment.NewSimulatedGateway(cfg.ChargeFailureRate), backoff.Default())

	logger.Info("Starting order worker", "addr", cfg.OrderWorkerAddr)
	err = server.NewRestate().
		Bind(restate.Reflect(orders)).
		Bind(restate.Reflect(payments)).
		Start(ctx, cfg.OrderWorkerAddr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
