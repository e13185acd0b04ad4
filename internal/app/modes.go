package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/marginterm/internal/blob/s3"
	"github.com/alanyoungcy/marginterm/internal/config"
	"github.com/alanyoungcy/marginterm/internal/crypto"
	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/explorer"
	"github.com/alanyoungcy/marginterm/internal/feed"
	"github.com/alanyoungcy/marginterm/internal/pipeline"
	"github.com/alanyoungcy/marginterm/internal/platform/history"
	"github.com/alanyoungcy/marginterm/internal/platform/paper"
	"github.com/alanyoungcy/marginterm/internal/platform/solana"
	"github.com/alanyoungcy/marginterm/internal/platform/wallet"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/server"
	"github.com/alanyoungcy/marginterm/internal/server/handler"
	"github.com/alanyoungcy/marginterm/internal/server/ws"
	"github.com/alanyoungcy/marginterm/internal/service"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// core is the state store, the protocol client and the services shared by
// every serving mode.
type core struct {
	store   *state.Store
	sdk     *paper.SDK
	orch    *pipeline.Orchestrator
	quotes  *service.QuoteService
	risk    *service.RiskService
	prefs   *service.PreferenceService
	session *service.SessionService
	history domain.HistoryClient
}

// TerminalMode signs with the configured keypair and serves the full API,
// including action dispatch.
func (a *App) TerminalMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting terminal mode")

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
		KeypairPath:      a.cfg.Wallet.KeypairPath,
	})
	if err != nil {
		return fmt.Errorf("terminal mode: load key: %w", err)
	}
	signer, err := wallet.NewKeypairWallet(key, nil)
	if err != nil {
		return fmt.Errorf("terminal mode: %w", err)
	}

	c, err := a.buildCore(deps, signer)
	if err != nil {
		return err
	}
	if err := a.ensureAccount(ctx, c.sdk, signer.PublicKey()); err != nil {
		return err
	}

	actions := service.NewActionService(service.ActionDeps{
		SDK:       c.sdk,
		Risk:      c.risk,
		Actions:   deps.ActionStore,
		Audit:     deps.AuditStore,
		Locks:     deps.LockManager,
		Limiter:   deps.RateLimiter,
		Bus:       deps.SignalBus,
		Notifier:  deps.Notifier,
		Refresher: c.orch,
		Links:     c.prefs,
		Observer:  deps.Metrics,
	}, service.ActionConfig{
		LockTTL:    a.cfg.Actions.LockTTL.Duration,
		RateLimit:  a.cfg.Actions.RateLimit,
		RateWindow: a.cfg.Actions.RateWindow.Duration,
	}, a.logger)

	return a.serve(ctx, deps, c, signer.PublicKey(), actions)
}

// MonitorMode polls and serves state for a watched wallet. Nothing is signed
// and the action routes are not registered.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	owner := a.cfg.Wallet.PublicKey
	if owner == "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
			KeypairPath:      a.cfg.Wallet.KeypairPath,
		})
		if err != nil {
			return fmt.Errorf("monitor mode: load key: %w", err)
		}
		owner = key.PublicKey().String()
	}

	c, err := a.buildCore(deps, nil)
	if err != nil {
		return err
	}
	return a.serve(ctx, deps, c, owner, nil)
}

// ArchiveMode moves settled action history older than the retention window
// to object storage once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired (postgres and s3 are required)")
	}

	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	if _, err := archiver.Run(ctx); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	for _, prefix := range []string{s3blob.ArchivePrefix, s3blob.AuditArchivePrefix} {
		objects, err := deps.BlobReader.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("archive mode: list %s: %w", prefix, err)
		}
		st := s3blob.Summarize(objects)
		a.logger.InfoContext(ctx, "archive mode: stored archives",
			slog.String("prefix", prefix),
			slog.Int("objects", st.Objects),
			slog.Int64("bytes", st.Bytes),
			slog.String("latest", st.Latest),
		)
	}
	return nil
}

// buildCore creates the state store, the protocol client, the services and
// the pollers. signer is nil in read-only modes.
func (a *App) buildCore(deps *Dependencies, signer domain.Wallet) (*core, error) {
	thresholds := risk.Thresholds{
		Warning:     a.cfg.Risk.Warning,
		Critical:    a.cfg.Risk.Critical,
		Liquidation: a.cfg.Risk.Liquidation,
	}
	links, err := explorer.New(
		explorer.Cluster(a.cfg.Cluster.Name),
		explorer.Explorer(a.cfg.Cluster.Explorer),
		a.cfg.Cluster.RPCURL,
	)
	if err != nil {
		return nil, fmt.Errorf("app: explorer: %w", err)
	}

	store := state.NewStore()
	sdk := paper.New(signer, thresholds, paper.DefaultSeed())
	hist := history.NewClient(a.cfg.History.BaseURL, a.cfg.History.RequestsPerSecond)

	var archiver *pipeline.Archiver
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}
	orch := pipeline.NewOrchestrator(archiver, a.cfg.Archive.Interval.Duration, a.cfg.Polling.RefreshDelay.Duration, a.logger)

	interval := a.cfg.Polling.Interval.Duration
	timeout := a.cfg.Polling.CycleTimeout.Duration
	add := func(job pipeline.Job, every time.Duration, scope pipeline.Scope) {
		orch.Add(pipeline.NewPoller(job, every, timeout, deps.Metrics, a.logger), scope)
	}
	add(pipeline.NewPoolJob(sdk, store.Pools.MustClaim("pool_job"), deps.PriceCache, a.logger), interval, pipeline.ScopeGlobal)
	add(pipeline.NewMarketJob(sdk, store.Markets.MustClaim("market_job")), interval, pipeline.ScopeGlobal)
	add(pipeline.NewSwapPoolJob(sdk, store.SwapPools.MustClaim("swap_pool_job")), interval, pipeline.ScopeGlobal)
	add(pipeline.NewAccountJob(sdk, store, store.Accounts.MustClaim("account_job"), thresholds), interval, pipeline.ScopeWallet)
	add(pipeline.NewWalletJob(
		solana.NewBalanceReader(a.cfg.Cluster.RPCURL, a.logger),
		a.cfg.Wallet.Mints,
		store.WalletBalances.MustClaim("wallet_job"),
	), interval, pipeline.ScopeWallet)
	add(pipeline.NewOrderbookJob(sdk, store,
		store.Orderbook.MustClaim("orderbook_job"),
		store.OpenOrders.MustClaim("orderbook_job"),
		deps.BookCache, a.logger,
	), interval, pipeline.ScopeMarket)
	add(pipeline.NewHistoryJob(hist,
		store.Candles.MustClaim("history_job"),
		store.Trades.MustClaim("history_job"),
		a.cfg.History.Resolution, a.cfg.History.Lookback.Duration, a.logger,
	), a.cfg.Polling.HistoryInterval.Duration, pipeline.ScopeMarket)

	quotes := service.NewQuoteService(store, decimal.NewFromFloat(a.cfg.Swap.DefaultSlippage))
	riskSvc := service.NewRiskService(store, quotes, thresholds)
	prefs := service.NewPreferenceService(deps.PreferenceStore, store.Preferences.MustClaim("preference_service"),
		domain.Preferences{
			PreferredNode:     a.cfg.Cluster.RPCURL,
			PreferredFiat:     a.cfg.Fiat.Currency,
			PreferredExplorer: a.cfg.Cluster.Explorer,
		}, links, a.logger)
	session := service.NewSessionService(store, store.Session.MustClaim("session_service"), orch, prefs, a.logger)

	return &core{
		store:   store,
		sdk:     sdk,
		orch:    orch,
		quotes:  quotes,
		risk:    riskSvc,
		prefs:   prefs,
		session: session,
		history: hist,
	}, nil
}

// ensureAccount creates the owner's first margin account when it has none.
func (a *App) ensureAccount(ctx context.Context, sdk domain.MarginSDK, owner string) error {
	accounts, err := sdk.LoadAccounts(ctx, owner)
	if err != nil {
		return fmt.Errorf("app: load accounts: %w", err)
	}
	if len(accounts) > 0 {
		return nil
	}
	txID, err := sdk.CreateAccount(ctx, owner)
	if err != nil {
		return fmt.Errorf("app: create account: %w", err)
	}
	a.logger.InfoContext(ctx, "app: created margin account",
		slog.String("wallet", owner),
		slog.String("tx_id", txID),
	)
	return nil
}

// serve runs the pollers, the state publisher, the websocket hub and the
// HTTP server until ctx is cancelled. actions is nil in read-only modes.
func (a *App) serve(ctx context.Context, deps *Dependencies, c *core, owner string, actions *service.ActionService) error {
	g, ctx := errgroup.WithContext(ctx)

	c.session.SelectWallet(ctx, owner)
	if a.cfg.Polling.Market != "" {
		c.session.SelectMarket(a.cfg.Polling.Market)
	}

	g.Go(func() error {
		return c.orch.Run(ctx)
	})

	if a.cfg.Polling.Subscribe {
		wsURL := a.cfg.Cluster.WSURL
		if wsURL == "" {
			derived, err := feed.WebsocketURL(a.cfg.Cluster.RPCURL)
			if err != nil {
				return fmt.Errorf("app: %w", err)
			}
			wsURL = derived
		}
		accountFeed := feed.NewAccountFeed(wsURL, c.orch, a.logger)
		accountFeed.SetWallet(owner)
		g.Go(func() error {
			return accountFeed.Run(ctx)
		})
	}

	// State publisher: every slice update goes to the bus for the hub and
	// any other replica.
	g.Go(func() error {
		c.store.Watch(ctx, func(change state.Change) {
			raw, err := json.Marshal(change)
			if err != nil {
				return
			}
			if err := deps.SignalBus.Publish(ctx, domain.ChannelState, raw); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "app: publish state change failed",
					slog.String("slice", change.Slice),
					slog.String("error", err.Error()),
				)
			}
		})
		<-ctx.Done()
		return nil
	})

	hub := ws.NewHub(deps.SignalBus, ws.Config{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Snapshot:       c.store.Snapshot,
		Observer:       deps.Metrics,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		State:       handler.NewStateHandler(c.store, deps.BookCache, a.logger),
		Risk:        handler.NewRiskHandler(c.risk, c.store, a.logger),
		Swap:        handler.NewSwapHandler(c.quotes, c.store, a.logger),
		History:     handler.NewHistoryHandler(c.history, a.cfg.History.Resolution, a.cfg.History.Lookback.Duration, a.logger),
		Preferences: handler.NewPreferenceHandler(c.prefs, a.logger),
		System: handler.NewSystemHandler(c.orch, config.RedactedConfig(a.cfg), fiatRates(a.cfg.Fiat.Rates), func() string {
			if fiat := c.prefs.Current().PreferredFiat; fiat != "" {
				return fiat
			}
			return a.cfg.Fiat.Currency
		}, a.logger),
		Metrics: deps.Metrics.Handler(),
	}
	if actions != nil {
		handlers.Actions = handler.NewActionHandler(actions, c.session, c.store, a.logger)
	}
	// The backend serves a single configured wallet.
	handlers.Session = handler.NewSessionHandler(c.session, c.store, owner, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// fiatRates converts configured rates to decimals keyed by upper-case code.
func fiatRates(in map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in)+1)
	out["USD"] = decimal.NewFromInt(1)
	for code, rate := range in {
		out[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return out
}
