package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scope says which selection a poller's key follows.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeWallet
	ScopeMarket
)

// Orchestrator runs every poller and the archiver, fans out manual refreshes
// and re-keys pollers when the selected wallet or market changes.
type Orchestrator struct {
	pollers         map[Scope][]*Poller
	archiver        *Archiver
	archiveInterval time.Duration
	refreshDelay    time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(archiver *Archiver, archiveInterval, refreshDelay time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		pollers:         make(map[Scope][]*Poller),
		archiver:        archiver,
		archiveInterval: archiveInterval,
		refreshDelay:    refreshDelay,
		logger:          logger,
	}
}

// Add registers a poller. It must be called before Run.
func (o *Orchestrator) Add(p *Poller, scope Scope) {
	o.pollers[scope] = append(o.pollers[scope], p)
}

// Run starts all pollers as concurrent goroutines using an errgroup. A
// cancelled ctx is a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("pollers", o.count()),
		slog.Duration("refresh_delay", o.refreshDelay),
	)
	defer o.cancelPending()

	g, ctx := errgroup.WithContext(ctx)
	for _, scoped := range o.pollers {
		for _, p := range scoped {
			g.Go(func() error {
				err := p.RunLoop(ctx)
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("poller %s: %w", p.Name(), err)
			})
		}
	}

	if o.archiver != nil && o.archiveInterval > 0 {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx, o.archiveInterval)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) count() int {
	n := 0
	for _, scoped := range o.pollers {
		n += len(scoped)
	}
	return n
}

// TriggerRefresh asks every poller for an immediate cycle.
func (o *Orchestrator) TriggerRefresh() {
	for _, scoped := range o.pollers {
		for _, p := range scoped {
			p.Trigger()
		}
	}
}

// ScheduleRefresh triggers a full refresh after the configured delay, giving
// the chain time to confirm. Calls within the delay collapse into one refresh.
func (o *Orchestrator) ScheduleRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		o.pending.Stop()
	}
	o.pending = time.AfterFunc(o.refreshDelay, o.TriggerRefresh)
}

func (o *Orchestrator) cancelPending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
	}
}

// SetWallet re-keys every wallet-scoped poller.
func (o *Orchestrator) SetWallet(wallet string) { o.setKey(ScopeWallet, wallet) }

// SetMarket re-keys every market-scoped poller.
func (o *Orchestrator) SetMarket(market string) { o.setKey(ScopeMarket, market) }

func (o *Orchestrator) setKey(scope Scope, key string) {
	for _, p := range o.pollers[scope] {
		p.SetKey(key)
	}
}
