// Command settlectl is the operator tool for settlement: it reconciles
// stuck card payments, verifies references, confirms cash rides, expires
// abandoned rides and manages wallets against the same stores the server
// uses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-json"

	"swiftdrop/internal/app"
	"swiftdrop/internal/config"
	"swiftdrop/internal/domain"
	"swiftdrop/internal/logging"
)

type runContext struct {
	ctx    context.Context
	engine *app.App
}

var cli struct {
	LogLevel string `name:"log-level" env:"LOG_LEVEL" default:"warn" help:"Log level."`

	Reconcile   reconcileCmd   `cmd:"" help:"Verify initialized card payments with the gateway and settle confirmed ones."`
	Verify      verifyCmd      `cmd:"" help:"Verify one gateway reference and settle its ride."`
	ConfirmCash confirmCashCmd `cmd:"" name:"confirm-cash" help:"Mark a cash ride as paid and collect the platform commission."`
	Expire      expireCmd      `cmd:"" help:"End an unfinished ride as timed out or uncompleted."`
	Wallet      walletCmd      `cmd:"" help:"Show a wallet and its latest transactions."`
	DropWallet  dropWalletCmd  `cmd:"" name:"drop-wallet" help:"Delete an empty wallet and its history."`
}

type reconcileCmd struct {
	OlderThan time.Duration `name:"older-than" default:"15m" help:"Only rides waiting at least this long."`
	Limit     int           `name:"limit" default:"100" help:"Maximum rides per sweep."`
}

func (c *reconcileCmd) Run(rc *runContext) error {
	report, err := rc.engine.Settlement.ReconcileInitialized(rc.ctx, c.OlderThan, c.Limit)
	if err != nil {
		return err
	}
	return printJSON(report)
}

type verifyCmd struct {
	Reference string `arg:"" help:"Gateway transaction reference."`
}

func (c *verifyCmd) Run(rc *runContext) error {
	result, err := rc.engine.Settlement.VerifyPayment(rc.ctx, c.Reference)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"ride_id":        result.Ride.ID,
		"payment_status": result.Ride.PaymentStatus,
		"distribution":   result.Distribution,
	})
}

type confirmCashCmd struct {
	RideID string `arg:"" name:"ride-id" help:"Ride to confirm."`
}

func (c *confirmCashCmd) Run(rc *runContext) error {
	result, err := rc.engine.Settlement.ConfirmCashPayment(rc.ctx, domain.SystemActor, c.RideID)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"ride_id":        result.Ride.ID,
		"payment_status": result.Ride.PaymentStatus,
		"distribution":   result.Distribution,
	})
}

type expireCmd struct {
	RideID  string `arg:"" name:"ride-id" help:"Ride to expire."`
	Outcome string `name:"outcome" default:"timeout" enum:"timeout,ride-uncompleted" help:"Terminal state to record (${enum})."`
}

func (c *expireCmd) Run(rc *runContext) error {
	ride, err := rc.engine.Rides.ExpireRide(rc.ctx, c.RideID, domain.RideStatus(c.Outcome))
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"ride_id":   ride.ID,
		"status":    ride.Status,
		"driver_id": ride.DriverID,
	})
}

type walletCmd struct {
	OwnerID string `arg:"" name:"owner-id" help:"Wallet owner; use the platform user id for commission revenue."`
	Limit   int    `name:"limit" default:"20" help:"Number of transactions to show."`
}

func (c *walletCmd) Run(rc *runContext) error {
	view, err := rc.engine.Wallets.GetWallet(rc.ctx, c.OwnerID, c.Limit)
	if err != nil {
		return err
	}
	return printJSON(view)
}

type dropWalletCmd struct {
	OwnerID string `arg:"" name:"owner-id" help:"Wallet owner."`
}

func (c *dropWalletCmd) Run(rc *runContext) error {
	if err := rc.engine.Wallets.DeleteWallet(rc.ctx, c.OwnerID); err != nil {
		return err
	}
	return printJSON(map[string]any{"owner_id": c.OwnerID, "deleted": true})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("settlectl"),
		kong.Description("Settlement operations for the ride engine."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cli.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	err = kctx.Run(&runContext{ctx: ctx, engine: engine})
	engine.Close()
	kctx.FatalIfErrorf(err)
}
