package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/pamilerinsimon03/WemaTrust/pkg/rabbitmq"
)

const relayRoutingKeyPrefix = "settlement."

// EventRelay forwards every bus event to the message broker so that processes
// outside this one can follow settlement progress.
type EventRelay struct {
	bus       *events.Bus
	publisher rabbitmq.Publisher
	exchange  string
	logger    *slog.Logger
	timeout   time.Duration
}

func NewEventRelay(bus *events.Bus, publisher rabbitmq.Publisher, exchange string, logger *slog.Logger) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = "wematrust.events"
	}
	return &EventRelay{bus: bus, publisher: publisher, exchange: exchange, logger: logger, timeout: 5 * time.Second}
}

// RoutingKey returns the broker routing key for an event kind, e.g. settlement.shadow_created.
func RoutingKey(kind domain.EventKind) string {
	return relayRoutingKeyPrefix + string(kind)
}

// Run publishes events until ctx is cancelled or the bus is closed.
// Publish failures are logged and the event is dropped.
func (r *EventRelay) Run(ctx context.Context) error {
	sub := r.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C():
			if !ok {
				return nil
			}
			pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := r.publisher.Publish(pubCtx, r.exchange, RoutingKey(env.Type), env)
			cancel()
			if err != nil {
				r.logger.Warn("event relay publish failed", "type", env.Type, "seq", env.Seq, "error", err)
			}
		}
	}
}
