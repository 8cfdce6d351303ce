package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/infrastructure/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Init() {}
func (nopLogger) Debug(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (nopLogger) Debugf(string, ...any)                                                        {}
func (nopLogger) Info(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any)  {}
func (nopLogger) Infof(string, ...any)                                                         {}
func (nopLogger) Warn(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any)  {}
func (nopLogger) Warnf(string, ...any)                                                         {}
func (nopLogger) Error(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (nopLogger) Errorf(string, ...any)                                                        {}
func (nopLogger) Fatal(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (nopLogger) Fatalf(string, ...any)                                                        {}

type fakePresence struct {
	owners map[string]string
	fail   bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{owners: make(map[string]string)}
}

func (p *fakePresence) Claim(_ context.Context, roomID, peerID, instanceID string) (bool, error) {
	if p.fail {
		return false, errors.New("store down")
	}
	key := roomID + "/" + peerID
	if _, held := p.owners[key]; held {
		return false, nil
	}
	p.owners[key] = instanceID
	return true, nil
}

func (p *fakePresence) Get(_ context.Context, roomID, peerID string) (string, error) {
	if p.fail {
		return "", errors.New("store down")
	}
	return p.owners[roomID+"/"+peerID], nil
}

func (p *fakePresence) Delete(_ context.Context, roomID, peerID string) error {
	delete(p.owners, roomID+"/"+peerID)
	return nil
}

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakeBus struct {
	published  []published
	publishErr error
	deliveries []amqp.Delivery
}

func (b *fakeBus) DeclareAndBindQueue(string, []string, string, bool) error { return nil }

func (b *fakeBus) PublishAndConfirm(_ context.Context, exchange, routingKey string, body []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (b *fakeBus) ConsumeMessages(_ string, handler func(ctx context.Context, msg amqp.Delivery) error) error {
	// The broker client nacks on handler error and keeps consuming.
	for _, d := range b.deliveries {
		_ = handler(context.Background(), d)
	}
	return nil
}

type remoteEnv struct {
	router   *RemoteRouter
	table    *fakeConnTable
	presence *fakePresence
	bus      *fakeBus
}

func newRemoteEnv() *remoteEnv {
	table := &fakeConnTable{conns: make(map[string]*fakeConn)}
	presence := newFakePresence()
	bus := &fakeBus{}
	r := NewRemoteRouter(NewLocalRouter(table), presence, bus, "instance-a", time.Second, nopLogger{})

	return &remoteEnv{router: r, table: table, presence: presence, bus: bus}
}

func TestRemoteRouterRoute(t *testing.T) {
	ctx := context.Background()

	newRoom := func(t *testing.T, peers ...string) *domain.Room {
		t.Helper()
		room := domain.NewRoom("room1", "s", "T", time.Now().Add(time.Hour))
		for _, p := range peers {
			_, err := room.Admit(p, domain.RolePeer, domain.Metadata{})
			require.NoError(t, err)
		}
		return room
	}

	t.Run("delivers locally without touching the bus", func(t *testing.T) {
		e := newRemoteEnv()
		target := &fakeConn{}
		e.table.conns["room1/peer-b"] = target
		room := newRoom(t, "peer-a", "peer-b")

		payload := []byte(`{"type":"offer","sender":"peer-a","target":"peer-b"}`)
		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindNegotiation,
			Payload:    payload,
		})

		require.NoError(t, err)
		require.Len(t, target.delivered, 1)
		assert.Equal(t, payload, target.delivered[0])
		assert.Empty(t, e.bus.published)
	})

	t.Run("forwards to the instance owning the target", func(t *testing.T) {
		// Only the sender is in this process's peer map; the target
		// registered on another instance and is known through its
		// presence record alone.
		e := newRemoteEnv()
		room := newRoom(t, "peer-a")
		e.presence.owners["room1/peer-b"] = "instance-b"

		payload := []byte(`{"type":"peer_message","from_peer_id":"peer-a","to_peer_id":"peer-b","data":"hi"}`)
		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindApplication,
			Payload:    payload,
		})

		require.NoError(t, err)
		require.Len(t, e.bus.published, 1)
		assert.Equal(t, messaging.RouteExchange, e.bus.published[0].exchange)
		assert.Equal(t, "instance-b", e.bus.published[0].routingKey)

		var forwarded RoutedMessage
		require.NoError(t, json.Unmarshal(e.bus.published[0].body, &forwarded))
		assert.Equal(t, "room1", forwarded.RoomID)
		assert.Equal(t, "peer-b", forwarded.ToPeerID)
		assert.Equal(t, payload, forwarded.Payload)
	})

	t.Run("peer unknown everywhere is not in the room", func(t *testing.T) {
		e := newRemoteEnv()
		room := newRoom(t, "peer-a")

		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "ghost",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})

		assert.ErrorIs(t, err, domain.ErrPeerNotInRoom)
		assert.Empty(t, e.bus.published)
	})

	t.Run("stale record pointing at this instance fails delivery", func(t *testing.T) {
		e := newRemoteEnv()
		room := newRoom(t, "peer-a", "peer-b")
		e.presence.owners["room1/peer-b"] = "instance-a"

		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})

		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
		assert.Empty(t, e.bus.published)
	})

	t.Run("member with no connection and no record fails delivery", func(t *testing.T) {
		e := newRemoteEnv()
		room := newRoom(t, "peer-a", "peer-b")

		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})

		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	})

	t.Run("presence store failure fails delivery", func(t *testing.T) {
		e := newRemoteEnv()
		e.presence.fail = true
		room := newRoom(t, "peer-a", "peer-b")

		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})

		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	})

	t.Run("broker rejection fails delivery without retry", func(t *testing.T) {
		e := newRemoteEnv()
		e.bus.publishErr = errors.New("confirm timeout")
		room := newRoom(t, "peer-a")
		e.presence.owners["room1/peer-b"] = "instance-b"

		err := e.router.Route(ctx, room, &RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})

		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
		assert.Empty(t, e.bus.published)
	})
}

func TestRemoteRouterListen(t *testing.T) {
	t.Run("delivers consumed envelopes to the local connection", func(t *testing.T) {
		e := newRemoteEnv()
		target := &fakeConn{}
		e.table.conns["room1/peer-b"] = target

		payload := []byte(`{"type":"answer","sender":"peer-a","target":"peer-b"}`)
		body, err := json.Marshal(&RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			RoomID:     "room1",
			Kind:       KindNegotiation,
			Payload:    payload,
		})
		require.NoError(t, err)
		e.bus.deliveries = []amqp.Delivery{{Body: body}}

		require.NoError(t, e.router.Listen())
		require.Len(t, target.delivered, 1)
		assert.Equal(t, payload, target.delivered[0])
	})

	t.Run("target gone on the final hop is not an error", func(t *testing.T) {
		e := newRemoteEnv()

		body, err := json.Marshal(&RoutedMessage{
			FromPeerID: "peer-a",
			ToPeerID:   "peer-b",
			RoomID:     "room1",
			Kind:       KindApplication,
			Payload:    []byte(`{}`),
		})
		require.NoError(t, err)
		e.bus.deliveries = []amqp.Delivery{{Body: body}}

		assert.NoError(t, e.router.Listen())
	})
}
