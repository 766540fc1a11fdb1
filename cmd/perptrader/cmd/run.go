package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/gateway"
	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/internal/obs"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
	"github.com/rustyeddy/perptrader/reconcile"
	"github.com/rustyeddy/perptrader/risk"
	"github.com/rustyeddy/perptrader/scale"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trader from a config file",
	Long: `Connect to the exchange and run the live position manager: market
feed coordination, risk monitoring, reconciliation and order execution.

Example:
  perptrader run --config perptrader.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := obs.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jrn, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrn.Close()

	// Durations were validated at load; errors here cannot happen.
	restTimeout, _ := config.ParseDuration(cfg.Exchange.Timeout, 10*time.Second)
	priceStale, _ := config.ParseDuration(cfg.Ledger.PriceStaleness, 5*time.Second)
	verifyStale, _ := config.ParseDuration(cfg.Ledger.VerifyStaleness, 30*time.Second)
	equityStale, _ := config.ParseDuration(cfg.Risk.EquityStaleness, 30*time.Second)
	reconcileEvery, _ := config.ParseDuration(cfg.Reconcile.Interval, 10*time.Second)
	orderTimeout, _ := config.ParseDuration(cfg.Gateway.Timeout, 5*time.Second)

	apiKey := cfg.Exchange.ResolveAPIKey()
	client := exchange.NewRESTClient(cfg.Exchange.RESTURL, apiKey, restTimeout, cfg.Exchange.RequestsPerS)

	coord := market.NewCoordinator(log)
	defer coord.Close()

	led := ledger.New(ledger.Config{
		QueueSize:       cfg.Ledger.QueueSize,
		PriceStaleness:  priceStale,
		VerifyStaleness: verifyStale,
	}, jrn, log)

	guard := risk.NewGuard(risk.Policy{
		MaxLeverage:     cfg.Risk.MaxLeverage,
		MarginBuffer:    cfg.Risk.MarginBuffer,
		EquityStaleness: equityStale,
		PriceStaleness:  priceStale,
		ReduceDistance:  cfg.Risk.ReduceDistance,
		ReduceFraction:  cfg.Risk.ReduceFraction,
	}, coord, log)
	led.SetMarginChecker(guard)

	gw := gateway.New(gateway.Config{
		Timeout:         orderTimeout,
		Retry:           backoff.Default(),
		ProtectiveRetry: backoff.Aggressive(),
	}, client, led, led, log)
	led.SetDispatcher(gw.Dispatch)

	recCfg := reconcile.DefaultConfig()
	recCfg.Interval = reconcileEvery
	rec := reconcile.New(recCfg, client, led, log)
	led.SetDegradedHook(rec.Kick)

	var scaler *scale.Scaler
	var regimes *indicators.Manager
	if !cfg.Scale.Disabled {
		regimes = indicators.NewManager(cfg.Scale.ADXPeriod, cfg.Scale.ADXThreshold)
		scaler = scale.New(scale.Params{
			MinPnLPct:      cfg.Scale.MinPnLPct,
			StepFraction:   cfg.Scale.StepFraction,
			MaxUnits:       cfg.Scale.MaxUnits,
			PriceStaleness: priceStale,
		}, log)
	}

	if cfg.Metrics.Addr != "" {
		srv := obs.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listening")
	}

	// Every event reaches the ledger; ticks additionally drive the risk
	// and scaling loop.
	ledgerCh := coord.Subscribe("ledger", cfg.Ledger.QueueSize)
	strategyCh := coord.Subscribe("strategy", cfg.Ledger.QueueSize)

	go led.Run(ctx)
	go rec.Run(ctx)

	go func() {
		for ev := range ledgerCh {
			led.Deliver(ev)
		}
	}()

	go func() {
		for ev := range strategyCh {
			tick, ok := ev.(market.Tick)
			if !ok {
				continue
			}
			onTick(led, guard, scaler, regimes, tick, log)
		}
	}()

	contracts := make([]string, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		meta := market.Instruments[sym]
		contracts = append(contracts, meta.Name+meta.ContractSuffix)
	}
	stream := exchange.NewStream(cfg.Exchange.StreamURL, apiKey, contracts, log)

	log.Info().Strs("symbols", cfg.Symbols).Msg("perptrader starting")
	if err := stream.Run(ctx, coord.Ingest); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream: %w", err)
	}
	log.Info().Msg("perptrader stopped")
	return nil
}

// onTick runs the per-tick decision pass: indicators, protective risk
// checks, then optional scaling.
func onTick(led *ledger.Ledger, guard *risk.Guard, scaler *scale.Scaler,
	regimes *indicators.Manager, tick market.Tick, log zerolog.Logger) {

	now := tick.Time
	var regime indicators.Regime
	if regimes != nil {
		regime = regimes.Update(tick.Instrument, tick)
	}

	snap, ok := led.Snapshot(tick.Instrument)
	if !ok || !snap.Active() {
		return
	}

	a := guard.Evaluate(snap, now)
	switch {
	case a.Stale:
		if err := led.FlagStale(snap.Symbol, "risk evaluation lacked usable data"); err != nil {
			log.Error().Err(err).Str("symbol", snap.Symbol).Msg("could not flag stale")
		}
		return
	case a.Intent != nil:
		if err := led.Submit(*a.Intent); err != nil {
			log.Error().Err(err).Str("symbol", snap.Symbol).Msg("could not submit protective intent")
		}
		return
	}

	if scaler == nil {
		return
	}
	if in := scaler.Propose(snap, regime, now); in != nil {
		if err := led.Submit(*in); err != nil {
			log.Warn().Err(err).Str("symbol", snap.Symbol).Msg("could not submit scale intent")
		}
	}
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.OpenCSV(cfg.Dir)
	case "sqlite":
		return journal.OpenSQLite(cfg.DBPath)
	default:
		return journal.Nop{}, nil
	}
}
