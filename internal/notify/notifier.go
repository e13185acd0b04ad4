// Package notify delivers action outcome toasts. Notifications are dispatched
// to every registered sender (websocket bus, Telegram, Discord, webhook) and
// can be filtered by outcome so operators receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one notification.
	Send(ctx context.Context, n domain.Notification) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. External senders
// only receive outcomes in the allowed set; senders registered with
// AlwaysSender receive everything.
type Notifier struct {
	senders []Sender
	always  []Sender
	allowed map[domain.Outcome]bool
	dedup   *Dedup
	logger  *slog.Logger
}

// dedupTTL bounds how long a delivered outcome is remembered.
const dedupTTL = 10 * time.Minute

// NewNotifier creates a Notifier for senders. If outcomes is empty, every
// outcome is forwarded.
func NewNotifier(senders []Sender, outcomes []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.Outcome]bool, len(outcomes))
	for _, o := range outcomes {
		allowed[domain.Outcome(strings.ToLower(strings.TrimSpace(o)))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		dedup:   NewDedup(dedupTTL),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// AlwaysSender registers s to receive every notification regardless of the
// outcome filter. The websocket toast sender is registered this way.
func (n *Notifier) AlwaysSender(s Sender) *Notifier {
	n.always = append(n.always, s)
	return n
}

// Notify delivers to the unfiltered senders and, if the outcome is allowed,
// to the filtered ones. A repeated outcome for the same action is dropped.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	if note.ActionID != "" && n.dedup.IsDuplicate(note.ActionID+"|"+string(note.Outcome)) {
		n.logger.DebugContext(ctx, "duplicate notification dropped",
			slog.String("action_id", note.ActionID),
			slog.String("outcome", string(note.Outcome)),
		)
		return nil
	}
	targets := n.always
	if len(n.allowed) == 0 || n.allowed[note.Outcome] {
		targets = append(targets[:len(targets):len(targets)], n.senders...)
	} else {
		n.logger.DebugContext(ctx, "outcome filtered out",
			slog.String("outcome", string(note.Outcome)),
		)
	}
	return n.dispatch(ctx, targets, note)
}

// dispatch sends to each target. A single sender failure does not prevent
// delivery to the remaining senders; errors are combined.
func (n *Notifier) dispatch(ctx context.Context, targets []Sender, note domain.Notification) error {
	if len(targets) == 0 {
		return nil
	}

	var errs []string
	for _, s := range targets {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", note.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// body renders the description and, when present, the explorer link.
func body(note domain.Notification, link func(url string) string) string {
	if note.ExplorerURL == "" {
		return note.Description
	}
	return note.Description + "\n" + link(note.ExplorerURL)
}
