package router

import (
	"context"
	"fmt"

	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/infrastructure/metrics"
)

// LocalRouter delivers messages to connections held by this process.
type LocalRouter struct {
	conns ConnTable
}

func NewLocalRouter(conns ConnTable) *LocalRouter {
	return &LocalRouter{conns: conns}
}

func (r *LocalRouter) Route(_ context.Context, room *domain.Room, msg *RoutedMessage) error {
	if room == nil {
		return domain.ErrNotInRoom
	}
	if !room.HasPeer(msg.ToPeerID) {
		return domain.ErrPeerNotInRoom
	}

	return r.deliverLocal(room.ID, msg)
}

// deliverLocal performs the final hop onto the target's outbound queue.
// The connection may close between resolution and send; that surfaces as
// DeliveryFailed to the sender, and the router does not retry.
func (r *LocalRouter) deliverLocal(roomID string, msg *RoutedMessage) error {
	conn, ok := r.conns.Lookup(roomID, msg.ToPeerID)
	if !ok {
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: no live connection for %s", domain.ErrDeliveryFailed, msg.ToPeerID)
	}

	if err := conn.Enqueue(msg.Payload); err != nil {
		metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	metrics.MessagesRoutedTotal.WithLabelValues(string(msg.Kind), "delivered").Inc()
	return nil
}
