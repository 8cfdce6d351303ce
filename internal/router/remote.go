package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/infrastructure/messaging"
	"github.com/signalcraft/beacon/internal/infrastructure/metrics"
)

// MessageBus is the slice of the broker client the remote router needs.
// *messaging.RabbitMQ satisfies it.
type MessageBus interface {
	DeclareAndBindQueue(queueName string, routingKeys []string, exchange string, durable bool) error
	PublishAndConfirm(ctx context.Context, exchange, routingKey string, body []byte) error
	ConsumeMessages(queueName string, handler func(ctx context.Context, msg amqp.Delivery) error) error
}

// RemoteRouter extends local routing across instances. When the target's
// connection is owned by another process, the message is published on the
// route exchange keyed by that instance id, and the owning process
// replays the local delivery step against its own connection table.
type RemoteRouter struct {
	local       *LocalRouter
	presence    PresenceStore
	bus         MessageBus
	instanceID  string
	publishWait time.Duration
	logger      logging.Logger
}

func NewRemoteRouter(
	local *LocalRouter,
	presence PresenceStore,
	bus MessageBus,
	instanceID string,
	publishWait time.Duration,
	logger logging.Logger,
) *RemoteRouter {
	if publishWait == 0 {
		publishWait = 5 * time.Second
	}

	return &RemoteRouter{
		local:       local,
		presence:    presence,
		bus:         bus,
		instanceID:  instanceID,
		publishWait: publishWait,
		logger:      logger,
	}
}

// Setup declares this instance's route queue. Must run before Listen.
func (r *RemoteRouter) Setup() error {
	queue := messaging.RouteQueueName(r.instanceID)
	return r.bus.DeclareAndBindQueue(queue, []string{r.instanceID}, messaging.RouteExchange, false)
}

func (r *RemoteRouter) Route(ctx context.Context, room *domain.Room, msg *RoutedMessage) error {
	if room == nil {
		return domain.ErrNotInRoom
	}

	// Local connections short-circuit the bus entirely.
	if _, ok := r.local.conns.Lookup(room.ID, msg.ToPeerID); ok {
		return r.local.deliverLocal(room.ID, msg)
	}

	// Across instances the presence record is the membership source of
	// truth: the in-memory peer map only holds peers registered on this
	// process, so a peer registered elsewhere never appears in it.
	owner, err := r.presence.Get(ctx, room.ID, msg.ToPeerID)
	if err != nil {
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: presence lookup: %v", domain.ErrDeliveryFailed, err)
	}
	if owner == "" {
		if !room.HasPeer(msg.ToPeerID) {
			return domain.ErrPeerNotInRoom
		}
		// A local member with neither a live connection nor a presence
		// record: the connection is gone.
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: no reachable connection for %s", domain.ErrDeliveryFailed, msg.ToPeerID)
	}
	if owner == r.instanceID {
		// The record points back at us while our table has no
		// connection: the peer's connection is gone.
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: no reachable connection for %s", domain.ErrDeliveryFailed, msg.ToPeerID)
	}

	msg.RoomID = room.ID
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.publishWait)
	defer cancel()

	// Bounded wait for the broker acknowledgment; on timeout the sender
	// gets DeliveryFailed rather than an indefinite stall. At most once
	// in flight, no retry.
	if err := r.bus.PublishAndConfirm(publishCtx, messaging.RouteExchange, owner, body); err != nil {
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "forwarded").Inc()
	return nil
}

// Listen consumes envelopes addressed to this instance and performs the
// final local delivery hop. Blocks; run on its own goroutine.
func (r *RemoteRouter) Listen() error {
	queue := messaging.RouteQueueName(r.instanceID)

	return r.bus.ConsumeMessages(queue, func(ctx context.Context, delivery amqp.Delivery) error {
		var msg RoutedMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil {
			r.logger.Error(logging.Routing, logging.Forward, "malformed routed envelope", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			return err
		}

		if err := r.local.deliverLocal(msg.RoomID, &msg); err != nil {
			// The sender already got its acknowledgment from the broker;
			// cross-process delivery is at-most-once and this leg is
			// best-effort.
			if !errors.Is(err, domain.ErrDeliveryFailed) {
				return err
			}
			r.logger.Warn(logging.Routing, logging.Forward, "routed envelope target gone", map[logging.ExtraKey]any{
				logging.RoomID:       msg.RoomID,
				logging.TargetPeerID: msg.ToPeerID,
			})
		}

		return nil
	})
}
