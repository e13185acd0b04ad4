package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// BusSender publishes toasts on the notifications channel of the signal bus,
// where the websocket hub picks them up.
type BusSender struct {
	bus domain.SignalBus
}

// NewBusSender creates a BusSender.
func NewBusSender(bus domain.SignalBus) *BusSender {
	return &BusSender{bus: bus}
}

// Send publishes n as JSON.
func (b *BusSender) Send(ctx context.Context, n domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("bus: marshal notification: %w", err)
	}
	if err := b.bus.Publish(ctx, domain.ChannelNotifications, raw); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (b *BusSender) Name() string {
	return "toast"
}
