package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Job is one polling cycle. key is the poller's current dependency key (the
// selected wallet or market) and may be empty. A job must check ctx before
// publishing so a superseded cycle never writes state.
type Job interface {
	Name() string
	Poll(ctx context.Context, key string) error
}

// Observer records poll cycles.
type Observer interface {
	ObservePoll(job string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(string, time.Duration, error) {}

// Poller runs a Job immediately, then on every tick, on manual refresh and
// whenever its key changes. Each cycle gets its own cancellable context; a
// refresh or key change cancels the cycle in flight before starting a new one.
type Poller struct {
	job      Job
	interval time.Duration
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger

	trigger chan struct{}
	keys    chan string
	key     string
}

// NewPoller creates a poller. timeout bounds a single cycle; zero means the
// interval.
func NewPoller(job Job, interval, timeout time.Duration, observer Observer, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = interval
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Poller{
		job:      job,
		interval: interval,
		timeout:  timeout,
		observer: observer,
		logger:   logger.With(slog.String("job", job.Name())),
		trigger:  make(chan struct{}, 1),
		keys:     make(chan string, 1),
	}
}

// Name returns the job name.
func (p *Poller) Name() string { return p.job.Name() }

// Trigger requests an immediate cycle. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// SetKey changes the dependency key. Only the latest key is kept.
func (p *Poller) SetKey(key string) {
	for {
		select {
		case p.keys <- key:
			return
		default:
			select {
			case <-p.keys:
			default:
			}
		}
	}
}

type cycle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *cycle) running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// RunLoop polls until ctx is cancelled.
func (p *Poller) RunLoop(ctx context.Context) error {
	var cur *cycle
	stop := func() {
		if cur != nil {
			cur.cancel()
			<-cur.done
			cur = nil
		}
	}
	start := func() { cur = p.startCycle(ctx, p.key) }

	// Pick up a key set before the loop started.
	select {
	case k := <-p.keys:
		p.key = k
	default:
	}
	start()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stop()
			p.logger.Info("pipeline: poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if cur != nil && cur.running() {
				p.logger.Debug("pipeline: previous cycle still running, skipping tick")
				continue
			}
			start()
		case <-p.trigger:
			stop()
			start()
		case k := <-p.keys:
			if k == p.key {
				continue
			}
			p.logger.Info("pipeline: key changed", slog.String("key", k))
			p.key = k
			stop()
			start()
			ticker.Reset(p.interval)
		}
	}
}

func (p *Poller) startCycle(parent context.Context, key string) *cycle {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	c := &cycle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		defer cancel()
		started := time.Now()
		err := p.job.Poll(ctx, key)
		p.observer.ObservePoll(p.job.Name(), time.Since(started), err)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.WarnContext(parent, "pipeline: poll failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}()
	return c
}
