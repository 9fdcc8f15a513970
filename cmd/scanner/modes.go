package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sharpline/config"
	"github.com/alejandrodnm/sharpline/internal/adapters/notify"
	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/scanner"
	"github.com/alejandrodnm/sharpline/internal/snapshot"
)

func runBatch(ctx context.Context, a *app) error {
	slog.Info("=== BATCH MODE: logging pending snapshot rows ===")

	b := scanner.NewBatch(a.deps(), a.cfg.IOTimeout())
	res, err := b.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("[BATCH] pending:%d logged:%d stake:%.2fu skipped:%v\n", res.Pending, res.Logged, res.Stake, res.Skipped)
	return nil
}

func runReconcile(ctx context.Context, a *app) error {
	slog.Info("=== RECONCILE MODE: tracker + snapshot vs bet log ===")

	r := snapshot.NewReconciler(a.betLog, a.tracker, a.snapshots, a.since())
	report, err := r.Run(ctx, time.Now())
	if err != nil {
		return err
	}

	a.metrics.RecordReconcile("phantom", len(report.PhantomThemes))
	a.metrics.RecordReconcile("adjusted", len(report.Adjusted))
	a.metrics.RecordReconcile("restored", len(report.Restored))
	a.metrics.RecordReconcile("logged_cleared", len(report.LoggedCleared))

	if !report.Changed() {
		fmt.Println("[RECONCILE] tracker and snapshot agree with the bet log")
		return nil
	}
	fmt.Printf("[RECONCILE] phantom:%d adjusted:%d restored:%d logged_cleared:%d\n",
		len(report.PhantomThemes), len(report.Adjusted), len(report.Restored), len(report.LoggedCleared))
	for theme, v := range report.Adjusted {
		fmt.Printf("  %-40s %6.2fu → %6.2fu\n", theme, v[0], v[1])
	}
	return nil
}

var thresholdMarkets = []string{
	"totals",
	"alternate_totals",
	"spreads",
	"h2h",
	"totals_1st_5_innings",
	"team_totals",
}

var thresholdHours = []float64{1, 3, 6, 12, 24, 36}

func printThresholds(cfg *config.Config) {
	engine := decision.NewEngine(policyFromConfig(cfg.Policy))
	notify.NewConsole(true).PrintThresholds(engine, thresholdMarkets, thresholdHours, engine.Policy().DefaultMinEV)
}
