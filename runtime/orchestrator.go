// Package runtime is the presence and fan-out engine. It tracks live connections per user,
// keeps their room subscriptions aligned with group membership and pushes payloads to them.
// It owns no persistence and no transport.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"time"
)

const groupJoinedMessage = "Successfully joined the group."

type Settings struct {
	BufferSize     int
	MetricInterval time.Duration
	ExpiryInterval time.Duration
}

// Orchestrator is the entry point used by the transport and by message producers.
type Orchestrator struct {
	log           *slog.Logger
	supervisor    contract.ISupervisor
	registry      *Registry
	tracker       *Tracker
	authenticator *Authenticator
	dispatcher    *Dispatcher
	monitoring    *observability.MonitoringManager
	settings      Settings
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry *Registry, tracker *Tracker, authenticator *Authenticator,
	dispatcher *Dispatcher, monitoring *observability.MonitoringManager,
	settings Settings) *Orchestrator {
	return &Orchestrator{
		log:           log.With("component", "orchestrator"),
		supervisor:    supervisor,
		registry:      registry,
		tracker:       tracker,
		authenticator: authenticator,
		dispatcher:    dispatcher,
		monitoring:    monitoring,
		settings:      settings,
	}
}

// OnConnectionOpen authenticates, admits and auto-joins a new connection.
// On failure nothing is admitted and the caller must close the transport with errors.Code(err).
func (o *Orchestrator) OnConnectionOpen(ctx context.Context, rawCredential, remoteAddr string) (*Connection, error) {
	identity, err := o.authenticator.Authenticate(ctx, rawCredential)
	if err != nil {
		o.monitoring.IncrRejected()
		o.log.Info("Connection rejected", "remote_addr", remoteAddr, "code", errors.Code(err), "error", err)
		return nil, err
	}

	conn := NewConnection(identity, remoteAddr, o.settings.BufferSize)
	if err := o.registry.Admit(identity.UserID, conn); err != nil {
		conn.Close()
		o.monitoring.IncrRejected()
		o.log.Error("Connection admission failed", "conn_id", conn.ID(), "user_id", identity.UserID, "error", err)
		return nil, err
	}
	o.monitoring.IncrAdmitted()
	o.log.Info("Connection admitted", "conn_id", conn.ID(), "user_id", identity.UserID, "remote_addr", remoteAddr)

	o.tracker.AutoJoinOnConnect(ctx, conn)
	return conn, nil
}

// OnConnectionClose is idempotent. The connection is closed before its room set is
// discarded so a concurrent join cannot bring it back.
func (o *Orchestrator) OnConnectionClose(connID domain.ConnectionID) {
	conn, ok := o.registry.Lookup(connID)
	if !ok {
		o.tracker.Discard(connID)
		return
	}
	conn.Close()
	o.registry.Retract(conn.UserID(), connID)
	o.tracker.Discard(connID)
	o.monitoring.IncrRetracted()
	o.log.Info("Connection retracted", "conn_id", connID, "user_id", conn.UserID())
}

// OnJoinRequest answers on the requesting connection with group_joined or an error event.
// The join error is also returned to the caller.
func (o *Orchestrator) OnJoinRequest(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error {
	conn, ok := o.registry.Lookup(connID)
	if !ok {
		return errors.ErrConnectionNotFound
	}

	if err := o.tracker.JoinRoom(ctx, conn, groupID); err != nil {
		o.log.Info("Join refused", "conn_id", connID, "user_id", conn.UserID(), "group_id", groupID, "error", err)
		o.reply(conn, domain.EventError, domain.ErrorPayload{Code: errors.Code(err), Message: errors.Message(err)})
		return err
	}
	o.reply(conn, domain.EventGroupJoined, domain.GroupJoinedPayload{Message: groupJoinedMessage, GroupID: groupID})
	return nil
}

func (o *Orchestrator) reply(conn *Connection, event string, payload any) {
	envelope, err := domain.NewEnvelope(event, payload)
	if err != nil {
		o.log.Error("Unable to encode reply", "event", event, "error", err)
		return
	}
	if err := conn.Send(envelope); err != nil {
		o.log.Warn("Unable to reply", "conn_id", conn.ID(), "event", event, "error", err)
	}
}

func (o *Orchestrator) Deliver(ctx context.Context, target domain.DeliveryTarget, event string, payload any) {
	o.dispatcher.Deliver(ctx, target, event, payload)
}

// Disconnect closes every connection of a user and returns how many were closed.
func (o *Orchestrator) Disconnect(userID domain.UserID) int {
	conns := o.registry.ConnectionsOf(userID)
	for _, conn := range conns {
		o.OnConnectionClose(conn.ID())
	}
	return len(conns)
}

// ExpireSessions notifies and closes connections whose token expired.
func (o *Orchestrator) ExpireSessions(now time.Time) int {
	expired := o.registry.Expired(now)
	for _, conn := range expired {
		o.reply(conn, domain.EventError, domain.ErrorPayload{
			Code:    errors.Code(errors.ErrTokenExpired),
			Message: errors.Message(errors.ErrTokenExpired),
		})
		o.OnConnectionClose(conn.ID())
	}
	return len(expired)
}

func (o *Orchestrator) Snapshot() observability.PresenceSnapshot {
	return observability.PresenceSnapshot{
		Connections: o.registry.Count(),
		Users:       o.registry.Users(),
		Rooms:       o.tracker.RoomCount(),
	}
}

// Connections lists live connections, used by the debug inspector.
func (o *Orchestrator) Connections() []*Connection {
	return o.registry.All()
}

// Start registers the background workers and blocks while the supervisor runs them.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(
		workers.NewPresenceReporterWorker(o.log, o, o.monitoring, o.settings.MetricInterval),
		workers.NewSessionExpiryWorker(o.log, o, o.settings.ExpiryInterval),
	)

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop cancels the workers and closes every live connection.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()

	for _, conn := range o.registry.All() {
		o.OnConnectionClose(conn.ID())
	}
	o.log.Debug("All connections closed")
}
