package ospf

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsFollowAdjacency(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	x, n := fullAdjacency(t, withMetrics(m))
	router := x.inst.RouterID().String()

	for _, tr := range [][2]NeighborState{
		{NeighborDown, NeighborInit},
		{NeighborInit, NeighborExStart},
		{NeighborExStart, NeighborExchange},
		{NeighborExchange, NeighborFull},
	} {
		got := testutil.ToFloat64(m.transitions.WithLabelValues(router, tr[0].String(), tr[1].String()))
		assert.Equal(t, 1.0, got, "%s -> %s", tr[0], tr[1])
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.neighbors.WithLabelValues(router, "Full")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.neighbors.WithLabelValues(router, "Down")))
	assert.Equal(t, float64(InterfacePointToPoint), testutil.ToFloat64(m.interfaceStates.WithLabelValues(router, "eth0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.packetsReceived.WithLabelValues(router, "Database Description")))

	x.clk.Advance(5 * time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retransmissions.WithLabelValues(router, "Link State Update")))

	x.inst.run(func() { x.inst.neighborEvent(n, neSeqNumberMismatch) })
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchangeRestarts.WithLabelValues(router, "SeqNumberMismatch")))

	x.inst.KillNeighbor(n.Ref())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.neighbors.WithLabelValues(router, "Full")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.neighbors.WithLabelValues(router, "ExStart")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.neighbors.WithLabelValues(router, "Down")))
}

func TestMetricsCountMismatches(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	x := newHarness(t, "5.5.5.5", NetworkPointToPoint, "10.0.0.1/30", withMetrics(m))
	router := x.inst.RouterID().String()

	p := x.hello("9.9.9.9", "10.0.0.2")
	p.HelloInterval = 30
	x.receive(p)

	x.exStart(t, "9.9.9.9", "10.0.0.2")
	dd := x.dd("9.9.9.9", "10.0.0.2", DDInit|DDMore|DDMasterSlave, 1000)
	dd.InterfaceMTU = 9000
	x.receive(dd)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues(router, "interval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues(router, "mtu")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.mismatches))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.packetSent(rid("1.1.1.1"), TypeHello)
		m.neighborTransition(rid("1.1.1.1"), NeighborDown, NeighborInit)
		m.interfaceState(rid("1.1.1.1"), "eth0", InterfaceDR)
	})
}
