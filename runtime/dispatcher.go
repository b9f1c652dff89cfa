package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher resolves a delivery target to live connections and pushes one envelope to each.
// Delivery is isolated per connection: a failing recipient is logged and skipped.
type Dispatcher struct {
	log        *slog.Logger
	registry   *Registry
	tracker    *Tracker
	monitoring *observability.MonitoringManager
}

func NewDispatcher(log *slog.Logger, registry *Registry, tracker *Tracker,
	monitoring *observability.MonitoringManager) *Dispatcher {
	return &Dispatcher{
		log:        log.With("component", "dispatcher"),
		registry:   registry,
		tracker:    tracker,
		monitoring: monitoring,
	}
}

// Deliver is fire-and-forget. An offline user or an empty room is a no-op.
// Sends never block, so a canceled caller context does not stop delivery: the
// payload was already persisted and live connections are still offered it.
func (d *Dispatcher) Deliver(_ context.Context, target domain.DeliveryTarget, event string, payload any) {
	envelope, err := domain.NewEnvelope(event, payload)
	if err != nil {
		d.log.Error("Unable to encode payload", "target", target, "event", event, "error", err)
		return
	}

	recipients := d.resolve(target)
	if len(recipients) == 0 {
		d.log.Debug("No live connection for target", "target", target, "event", event)
		return
	}

	for _, conn := range recipients {
		if err := d.send(conn, envelope); err != nil {
			d.monitoring.IncrDeliveryFailure()
			d.log.Warn("Delivery failed",
				"target", target, "event", event,
				"conn_id", conn.ID(), "user_id", conn.UserID(), "error", err)
			continue
		}
		d.monitoring.IncrDelivered()
	}
}

func (d *Dispatcher) resolve(target domain.DeliveryTarget) []*Connection {
	switch t := target.(type) {
	case domain.UserTarget:
		return d.registry.ConnectionsOf(t.UserID)
	case domain.GroupTarget:
		return d.tracker.ConnectionsIn(domain.RoomFor(t.GroupID))
	default:
		d.log.Error("Unsupported delivery target", "target", fmt.Sprintf("%T", target))
		return nil
	}
}

// send pushes to a single connection and turns a panic into an error.
func (d *Dispatcher) send(conn *Connection, envelope domain.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrConnectionClosed, r)
		}
	}()
	return conn.Send(envelope)
}
