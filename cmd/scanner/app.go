package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/sharpline/config"
	"github.com/alejandrodnm/sharpline/internal/adapters/filestore"
	"github.com/alejandrodnm/sharpline/internal/adapters/notify"
	"github.com/alejandrodnm/sharpline/internal/adapters/oddsapi"
	"github.com/alejandrodnm/sharpline/internal/adapters/simfile"
	"github.com/alejandrodnm/sharpline/internal/adapters/storage"
	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/exposure"
	"github.com/alejandrodnm/sharpline/internal/metrics"
	"github.com/alejandrodnm/sharpline/internal/ports"
	"github.com/alejandrodnm/sharpline/internal/scanner"
	"github.com/alejandrodnm/sharpline/internal/snapshot"
)

// app agrupa los colaboradores compartidos por todos los modos.
type app struct {
	cfg       *config.Config
	engine    *decision.Engine
	betLog    *storage.SQLiteBetLog
	tracker   *filestore.JSONStore[float64]
	ledger    *exposure.Ledger
	baselines *snapshot.Baselines
	snapshots *snapshot.Store
	console   *notify.Console
	redis     *redis.Client
	hub       *notify.Hub // nil sin API HTTP
	metrics   *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", cfg.Storage.DataDir, err)
	}

	betLog, err := storage.NewSQLiteBetLog(cfg.Storage.LedgerDSN, cfg.Retention())
	if err != nil {
		return nil, err
	}

	opts := filestore.Options{LockTimeout: cfg.LockTimeout()}
	a := &app{
		cfg:       cfg,
		engine:    decision.NewEngine(policyFromConfig(cfg.Policy)),
		betLog:    betLog,
		tracker:   filestore.NewJSONStore[float64](cfg.DataPath("exposure.json"), opts),
		baselines: snapshot.NewBaselines(filestore.NewJSONStore[domain.BaselineAnchor](cfg.DataPath("baselines.json"), opts)),
		snapshots: snapshot.NewStore(cfg.DataPath("snapshot.json"), opts),
		console:   notify.NewConsole(cfg.Dispatch.Table),
		metrics:   metrics.New(),
	}
	a.ledger = exposure.NewLedger(a.tracker)
	if cfg.HTTP.Addr != "" {
		a.hub = notify.NewHub()
	}

	if err := a.ledger.Seed(ctx, betLog, a.since()); err != nil {
		betLog.Close()
		return nil, err
	}

	if cfg.Dispatch.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Dispatch.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// El stream es opcional: sin Redis se sigue con la consola.
			slog.Warn("redis unavailable, stream dispatch disabled", "addr", cfg.Dispatch.RedisAddr, "err", err)
			a.redis.Close()
			a.redis = nil
		}
	}
	return a, nil
}

// since es el inicio de la ventana del bet log considerada para exposición.
func (a *app) since() time.Time {
	return time.Now().Add(-a.cfg.Retention())
}

func (a *app) dispatcher() ports.Dispatcher {
	var m notify.Multi
	if a.cfg.Dispatch.Console || a.cfg.Dispatch.Table {
		m = append(m, a.console)
	}
	if a.redis != nil {
		m = append(m, notify.NewRedisStream(a.redis, a.cfg.Dispatch.RedisStream, a.cfg.Dispatch.StreamMaxLen))
	}
	if a.hub != nil {
		m = append(m, a.hub)
	}
	return m
}

func (a *app) deps() scanner.Deps {
	return scanner.Deps{
		Odds: oddsapi.NewClient(oddsapi.Config{
			BaseURL:    a.cfg.Odds.BaseURL,
			APIKey:     a.cfg.Odds.APIKey,
			Sport:      a.cfg.Odds.Sport,
			Regions:    a.cfg.Odds.Regions,
			Markets:    a.cfg.Odds.Markets,
			Bookmakers: a.cfg.Odds.Bookmakers,
			RatePerSec: a.cfg.Odds.RatePerSec,
			Timeout:    a.cfg.IOTimeout(),
		}),
		Sims:       simfile.NewReader(a.cfg.Simulations.Dir, filestore.Options{LockTimeout: a.cfg.LockTimeout()}),
		Engine:     a.engine,
		Ledger:     a.ledger,
		Baselines:  a.baselines,
		Snapshots:  a.snapshots,
		BetLog:     a.betLog,
		Dispatcher: a.dispatcher(),
		Metrics:    a.metrics,
	}
}

func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.betLog.Close())
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close failed", "err", err)
	}
}

// scannerConfig traduce la configuración de archivo a la del scanner.
func scannerConfig(cfg *config.Config) scanner.Config {
	sc := scanner.DefaultConfig()
	sc.PollInterval = cfg.PollInterval()
	sc.Workers = cfg.Scanner.Workers
	sc.CycleTimeout = cfg.CycleTimeout()
	sc.IOTimeout = cfg.IOTimeout()
	sc.AutoLog = cfg.AutoLog()
	sc.BaselineMaxAge = time.Duration(cfg.Scanner.BaselineMaxAgeHours) * time.Hour
	sc.Filter = scanner.FilterConfig{
		Markets:        cfg.Scanner.Markets,
		MaxHoursToGame: cfg.Scanner.MaxHoursToGame,
		MinBooks:       cfg.Scanner.MinBooks,
	}
	sc.Merge = snapshot.MergeConfig{
		VisibilityWindow: time.Duration(cfg.Scanner.VisibilityMinutes) * time.Minute,
		CarryWindow:      time.Duration(cfg.Scanner.CarryHours) * time.Hour,
	}
	sc.Roles = roleConfig(cfg.Roles)
	return sc
}

func roleConfig(rc config.RolesConfig) snapshot.RoleConfig {
	out := snapshot.DefaultRoleConfig()
	if len(rc.PopularBooks) > 0 {
		out.PopularBooks = rc.PopularBooks
	}
	if len(rc.PersonalBooks) > 0 {
		out.PersonalBooks = rc.PersonalBooks
	}
	if rc.LiveMinEV > 0 {
		out.LiveMinEV = rc.LiveMinEV
	}
	if rc.FVDropMinEV > 0 {
		out.FVDropMinEV = rc.FVDropMinEV
	}
	return out
}

// policyFromConfig aplica sobre la policy por defecto los umbrales no nulos.
func policyFromConfig(pc config.PolicyConfig) decision.Policy {
	p := decision.DefaultPolicy()
	if pc.MinPrice != 0 {
		p.MinPrice = pc.MinPrice
	}
	if pc.MaxPrice != 0 {
		p.MaxPrice = pc.MaxPrice
	}
	if pc.MinFirstStake > 0 {
		p.MinFirstStake = pc.MinFirstStake
	}
	if pc.MinTopUpStake > 0 {
		p.MinTopUpStake = pc.MinTopUpStake
	}
	if pc.LowLiquidityMaxHours > 0 {
		p.LowLiquidityMaxHours = pc.LowLiquidityMaxHours
	}
	if pc.DefaultMinEV > 0 {
		p.DefaultMinEV = pc.DefaultMinEV
	}
	for k, v := range pc.MinEV {
		p.MinEV[k] = v
	}
	return p
}
