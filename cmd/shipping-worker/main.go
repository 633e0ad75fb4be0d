// The shipping worker hosts the ShipmentProcess workflow on its own Restate
// endpoint so shipping load scales separately from order orchestration.
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
	"github.com/pithomlabs/orderflow/internal/shipping"
	"github.com/pithomlabs/orderflow/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Shipping worker exited", "err", err)
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

	shipments := shipping.NewShipmentProcess(db,
		shipping.NewSimulatedCarrier(cfg.CarrierFailureRate), backoff.Default())

	logger.Info("Starting shipping worker", "addr", cfg.ShippingWorkerAddr)
	err = server.NewRestate().
		Bind(restate.Reflect(shipments)).
		Start(ctx, cfg.ShippingWorkerAddr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
