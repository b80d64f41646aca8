// Package notify delivers operator alerts for order lifecycle events.
// Alerts fan out to all configured senders (Telegram, Discord) and can
// be filtered to the terminal states an operator cares about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curvelab/monbot/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to its senders. When states is non-empty,
// NotifyOrder forwards only orders settling in one of those states.
type Notifier struct {
	senders []Sender
	states  map[domain.OrderState]bool
	logger  *slog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. An empty states list forwards every
// terminal order.
func NewNotifier(senders []Sender, states []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.OrderState]bool, len(states))
	for _, s := range states {
		allowed[domain.OrderState(strings.TrimSpace(s))] = true
	}
	return &Notifier{
		senders: senders,
		states:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends one alert to every sender.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// NotifyOrder alerts on an order reaching a terminal state, subject to
// the configured state filter.
func (n *Notifier) NotifyOrder(ctx context.Context, order domain.ClientOrder) error {
	if len(n.states) > 0 && !n.states[order.State] {
		return nil
	}
	title := fmt.Sprintf("order %s", order.State)
	message := fmt.Sprintf("market=%s cloid=%s side=%s price=%d size=%d remaining=%d order_id=%d",
		order.Market, order.Cloid, order.Side, order.Price, order.Size, order.Remaining, order.OrderID)
	return n.Notify(ctx, title, message)
}
