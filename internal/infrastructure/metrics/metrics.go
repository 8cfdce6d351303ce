package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_active_rooms",
		Help: "Number of rooms currently materialized in the live registry.",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_active_connections",
		Help: "Number of open signaling connections.",
	})

	PeersByRole = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "beacon_peers",
		Help: "Number of registered peers by role.",
	}, []string{"role"})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_connections_total",
		Help: "Cumulative count of accepted signaling connections.",
	})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_registrations_total",
		Help: "Cumulative count of registration attempts by result.",
	}, []string{"result"})

	MessagesRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_messages_routed_total",
		Help: "Cumulative count of routed messages by kind and outcome.",
	}, []string{"kind", "outcome"})

	DiscoveryQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_discovery_queries_total",
		Help: "Cumulative count of discovery queries.",
	})
)
