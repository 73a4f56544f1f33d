package ospf

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string, priority uint8, dr, bdr string) *candidate {
	c := &candidate{id: rid(id), addr: netip.MustParseAddr(id), priority: priority}
	if dr != "" {
		c.dr = netip.MustParseAddr(dr)
	}
	if bdr != "" {
		c.bdr = netip.MustParseAddr(bdr)
	}
	return c
}

func TestPickDesignatedRouters(t *testing.T) {
	tests := []struct {
		name    string
		cands   []*candidate
		wantDR  string
		wantBDR string
	}{
		{
			name:    "nobody declares, highest router ID wins both",
			cands:   []*candidate{cand("10.0.0.1", 1, "", ""), cand("10.0.0.2", 1, "", "")},
			wantDR:  "10.0.0.2",
			wantBDR: "10.0.0.2",
		},
		{
			name:    "priority beats router ID",
			cands:   []*candidate{cand("10.0.0.1", 5, "", ""), cand("10.0.0.2", 1, "", "")},
			wantDR:  "10.0.0.1",
			wantBDR: "10.0.0.1",
		},
		{
			name: "declared DR is kept",
			cands: []*candidate{
				cand("10.0.0.1", 1, "10.0.0.1", ""),
				cand("10.0.0.9", 100, "10.0.0.1", ""),
			},
			wantDR:  "10.0.0.1",
			wantBDR: "10.0.0.9",
		},
		{
			name: "declared BDR beats a better router that doesn't declare",
			cands: []*candidate{
				cand("10.0.0.1", 1, "10.0.0.3", "10.0.0.2"),
				cand("10.0.0.2", 1, "10.0.0.3", "10.0.0.2"),
				cand("10.0.0.3", 1, "10.0.0.3", "10.0.0.2"),
				cand("10.0.0.4", 1, "10.0.0.3", "10.0.0.2"),
			},
			wantDR:  "10.0.0.3",
			wantBDR: "10.0.0.2",
		},
		{
			name: "best of several declared DRs",
			cands: []*candidate{
				cand("10.0.0.1", 1, "10.0.0.1", ""),
				cand("10.0.0.2", 2, "10.0.0.2", ""),
			},
			wantDR:  "10.0.0.2",
			wantBDR: "",
		},
		{
			name:    "no candidates",
			wantDR:  "",
			wantBDR: "",
		},
	}

	addr := func(c *candidate) string {
		if c == nil {
			return ""
		}
		return c.addr.String()
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bdr := pickBDR(tt.cands)
			dr := pickDR(tt.cands, bdr)

			assert.Equal(t, tt.wantDR, addr(dr))
			assert.Equal(t, tt.wantBDR, addr(bdr))
		})
	}
}

func TestAloneOnNetworkBecomesDR(t *testing.T) {
	h := newHarness(t, "1.1.1.1", NetworkBroadcast, "10.0.0.1/24")

	h.clk.Advance(39 * time.Second)
	assert.Equal(t, InterfaceWaiting, h.iface.State())

	h.clk.Advance(time.Second)
	assert.Equal(t, InterfaceDR, h.iface.State())
	assert.Equal(t, rid("1.1.1.1"), h.iface.DR().ID)
	assert.Equal(t, DesignatedRouter{}, h.iface.BDR())

	h.rec.reset()
	h.clk.Advance(10 * time.Second)
	hello := lastOf[*Hello](t, h.rec)
	assert.Equal(t, h.iface.Addr(), hello.DesignatedRouter)
}

func TestIneligibleRouterSkipsWaiting(t *testing.T) {
	h := newHarness(t, "1.1.1.1", NetworkBroadcast, "10.0.0.1/24", withPriority(0))
	assert.Equal(t, InterfaceDROther, h.iface.State())

	h.clk.Advance(40 * time.Second)
	assert.Equal(t, InterfaceDROther, h.iface.State())
	assert.False(t, h.iface.DR().isSet())
}

func TestTwoRoutersConverge(t *testing.T) {
	h := newHarness(t, "1.1.1.1", NetworkBroadcast, "10.0.0.1/24")
	h.receive(h.hello("2.2.2.2", "10.0.0.2", h.inst.RouterID()))
	n := h.neighbor(t)
	require.Equal(t, NeighborTwoWay, n.State())

	// Neither router declares anything yet, so the other router is both DR
	// and BDR as far as we can tell.
	keepAlive(h, "2.2.2.2", "10.0.0.2", 40*time.Second)

	assert.Equal(t, InterfaceDROther, h.iface.State())
	assert.Equal(t, rid("2.2.2.2"), h.iface.DR().ID)
	assert.Equal(t, rid("2.2.2.2"), h.iface.BDR().ID)
	assert.Equal(t, NeighborExStart, n.State())

	p := h.hello("2.2.2.2", "10.0.0.2", h.inst.RouterID())
	p.DesignatedRouter = netip.MustParseAddr("10.0.0.2")
	p.BackupDesignated = netip.MustParseAddr("10.0.0.1")
	h.receive(p)

	assert.Equal(t, InterfaceBackup, h.iface.State())
	assert.Equal(t, rid("2.2.2.2"), h.iface.DR().ID)
	assert.Equal(t, rid("1.1.1.1"), h.iface.BDR().ID)
	assert.Equal(t, NeighborExStart, n.State())
}

func TestExistingDRIsNotPreempted(t *testing.T) {
	h := newHarness(t, "1.1.1.1", NetworkBroadcast, "10.0.0.1/24")
	h.clk.Advance(40 * time.Second)
	require.Equal(t, InterfaceDR, h.iface.State())

	p := h.hello("9.9.9.9", "10.0.0.9", h.inst.RouterID())
	p.RouterPriority = 200
	h.receive(p)

	assert.Equal(t, InterfaceDR, h.iface.State())
	assert.Equal(t, rid("1.1.1.1"), h.iface.DR().ID)
	assert.Equal(t, rid("9.9.9.9"), h.iface.BDR().ID)
	assert.Equal(t, NeighborExStart, h.neighbor(t).State(), "the DR forms adjacencies with everyone")
}

// drWithFullNeighbor makes 5.5.5.5 the DR of a broadcast network and brings
// 2.2.2.2 up to Full with it.
func drWithFullNeighbor(t *testing.T) (*harness, *Neighbor) {
	t.Helper()
	h := newHarness(t, "5.5.5.5", NetworkBroadcast, "10.0.0.1/24")
	h.clk.Advance(40 * time.Second)
	require.Equal(t, InterfaceDR, h.iface.State())

	k := LSAKey{Type: LSTypeNetwork, ID: h.iface.Addr(), AdvertisingRouter: h.inst.RouterID()}
	_, ok := h.inst.areas[0].FindLSA(k)
	require.False(t, ok, "no Network-LSA without a Full neighbor")

	h.receive(h.hello("2.2.2.2", "10.0.0.2", h.inst.RouterID()))
	n := h.neighbor(t)
	require.Equal(t, NeighborExStart, n.State())

	// The neighbor has the lower router ID, so it echoes our sequence
	// number as slave.
	seq := n.DDSequenceNumber()
	h.receive(&DatabaseDescription{Header: h.header("2.2.2.2", "10.0.0.2"), InterfaceMTU: 1500, Options: CapE, SequenceNumber: seq})
	h.receive(&DatabaseDescription{Header: h.header("2.2.2.2", "10.0.0.2"), InterfaceMTU: 1500, Options: CapE, SequenceNumber: seq + 1})
	require.Equal(t, NeighborFull, n.State())

	return h, n
}

func TestDROriginatesNetworkLSA(t *testing.T) {
	h, n := drWithFullNeighbor(t)

	k := LSAKey{Type: LSTypeNetwork, ID: h.iface.Addr(), AdvertisingRouter: h.inst.RouterID()}
	lsa, ok := h.inst.areas[0].FindLSA(k)
	require.True(t, ok)
	assert.Equal(t, []byte{255, 255, 255, 0, 5, 5, 5, 5, 2, 2, 2, 2}, lsa.Body)

	// Our Router-LSA now has a transit link to ourselves as DR.
	ours, ok := h.inst.areas[0].FindLSA(LSAKey{Type: LSTypeRouter, ID: rid("5.5.5.5").Addr(), AdvertisingRouter: rid("5.5.5.5")})
	require.True(t, ok)
	assert.Equal(t, linkTransit, ours.Body[12])
	assert.Equal(t, []byte{10, 0, 0, 1}, ours.Body[4:8])

	// Losing the neighbor flushes the Network-LSA.
	h.inst.KillNeighbor(n.Ref())
	_, ok = h.inst.areas[0].FindLSA(k)
	assert.False(t, ok)
}

func TestDRDeclarationChangeReoriginatesRouterLSA(t *testing.T) {
	h, n := drWithFullNeighbor(t)
	before := h.ownRouterLSA(t)
	h.rec.reset()

	// 2.2.2.2 now claims to be DR. We keep the role on router ID, so our
	// links are unchanged.
	p := h.hello("2.2.2.2", "10.0.0.2", h.inst.RouterID())
	p.DesignatedRouter = netip.MustParseAddr("10.0.0.2")
	h.receive(p)

	require.Equal(t, rid("5.5.5.5"), h.iface.DR().ID)
	require.Equal(t, NeighborFull, n.State())

	after := h.ownRouterLSA(t)
	assert.Equal(t, before.Body, after.Body)
	assert.Equal(t, before.SequenceNumber+1, after.SequenceNumber)

	var flooded bool
	for _, lsu := range sentOf[*LinkStateUpdate](h.rec) {
		for _, lsa := range lsu.LSAs {
			if lsa.Key() == after.Key() && lsa.SequenceNumber == after.SequenceNumber {
				flooded = true
			}
		}
	}
	assert.True(t, flooded, "new Router-LSA instance was not flooded")
	assert.Contains(t, n.RetransmissionList(), after.Key())
}
