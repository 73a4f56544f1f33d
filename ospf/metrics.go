package ospf

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inet-framework/inet-sub064/common"
)

// Metrics collects protocol counters for one or more Instances. A nil
// *Metrics records nothing.
type Metrics struct {
	packetsReceived  *prometheus.CounterVec
	packetsSent      *prometheus.CounterVec
	neighbors        *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	exchangeRestarts *prometheus.CounterVec
	retransmissions  *prometheus.CounterVec
	mismatches       *prometheus.CounterVec
	interfaceStates  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_packets_received_total",
			Help: "OSPF packets accepted for processing.",
		}, []string{"router", "type"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_packets_sent_total",
			Help: "OSPF packets handed to the transport.",
		}, []string{"router", "type"}),
		neighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ospf_neighbor_count",
			Help: "Number of OSPF neighbors",
		}, []string{"router", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_neighbor_transitions_total",
			Help: "Neighbor state changes.",
		}, []string{"router", "from", "to"}),
		exchangeRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_exchange_restarts_total",
			Help: "Database exchanges restarted by SeqNumberMismatch or BadLSReq.",
		}, []string{"router", "event"}),
		retransmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_retransmissions_total",
			Help: "Packets sent again after a retransmission timer expired.",
		}, []string{"router", "type"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospf_parameter_mismatches_total",
			Help: "Packets dropped because a parameter didn't match the receiving interface.",
		}, []string{"router", "reason"}),
		interfaceStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ospf_interface_state",
			Help: "Current interface state, as the numeric value of the state.",
		}, []string{"router", "iface"}),
	}

	reg.MustRegister(
		m.packetsReceived,
		m.packetsSent,
		m.neighbors,
		m.transitions,
		m.exchangeRestarts,
		m.retransmissions,
		m.mismatches,
		m.interfaceStates,
	)

	return m
}

func (m *Metrics) packetReceived(id common.RouterID, t PacketType) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(id.String(), t.String()).Inc()
}

func (m *Metrics) packetSent(id common.RouterID, t PacketType) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(id.String(), t.String()).Inc()
}

func (m *Metrics) neighborAdded(id common.RouterID) {
	if m == nil {
		return
	}
	m.neighbors.WithLabelValues(id.String(), NeighborDown.String()).Inc()
}

func (m *Metrics) neighborRemoved(id common.RouterID, state NeighborState) {
	if m == nil {
		return
	}
	m.neighbors.WithLabelValues(id.String(), state.String()).Dec()
}

func (m *Metrics) neighborTransition(id common.RouterID, from, to NeighborState) {
	if m == nil {
		return
	}
	m.neighbors.WithLabelValues(id.String(), from.String()).Dec()
	m.neighbors.WithLabelValues(id.String(), to.String()).Inc()
	m.transitions.WithLabelValues(id.String(), from.String(), to.String()).Inc()
}

func (m *Metrics) exchangeRestarted(id common.RouterID, e neighborEvent) {
	if m == nil {
		return
	}
	m.exchangeRestarts.WithLabelValues(id.String(), e.String()).Inc()
}

func (m *Metrics) retransmitted(id common.RouterID, t PacketType) {
	if m == nil {
		return
	}
	m.retransmissions.WithLabelValues(id.String(), t.String()).Inc()
}

func (m *Metrics) mismatch(id common.RouterID, reason string) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(id.String(), reason).Inc()
}

func (m *Metrics) interfaceState(id common.RouterID, iface string, s InterfaceState) {
	if m == nil {
		return
	}
	m.interfaceStates.WithLabelValues(id.String(), iface).Set(float64(s))
}
