package ospf

import (
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/common"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type sent struct {
	from InterfaceRef
	dst  netip.Addr
	p    Packet
}

// recorder is a Transport that keeps everything sent through it.
type recorder struct {
	sent []sent
}

func (r *recorder) Send(from InterfaceRef, dst netip.Addr, p Packet) {
	r.sent = append(r.sent, sent{from: from, dst: dst, p: p})
}

func (r *recorder) reset() {
	r.sent = nil
}

// sentOf returns the packets of type T sent since the last reset.
func sentOf[T Packet](r *recorder) []T {
	var ps []T
	for _, s := range r.sent {
		if p, ok := s.p.(T); ok {
			ps = append(ps, p)
		}
	}
	return ps
}

func lastOf[T Packet](t *testing.T, r *recorder) T {
	t.Helper()
	ps := sentOf[T](r)
	require.NotEmpty(t, ps, "nothing of type %T sent", *new(T))
	return ps[len(ps)-1]
}

func rid(s string) common.RouterID {
	return common.RouterIDFromAddr(netip.MustParseAddr(s))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	inst  *Instance
	rec   *recorder
	clk   *clock.Fake
	iface *Interface
}

type harnessOption func(*Config, *InterfaceConfig)

func withPriority(p uint8) harnessOption {
	return func(_ *Config, ic *InterfaceConfig) { ic.Priority = p }
}

func withMTU(mtu uint16) harnessOption {
	return func(_ *Config, ic *InterfaceConfig) { ic.MTU = mtu }
}

func withNeighbors(addrs ...string) harnessOption {
	return func(_ *Config, ic *InterfaceConfig) {
		for _, a := range addrs {
			ic.Neighbors = append(ic.Neighbors, netip.MustParseAddr(a))
		}
	}
}

func withMetrics(m *Metrics) harnessOption {
	return func(c *Config, _ *InterfaceConfig) { c.Metrics = m }
}

func withFreshness(f Freshness) harnessOption {
	return func(c *Config, _ *InterfaceConfig) { c.Freshness = f }
}

func withRoutes(r RouteBuilder) harnessOption {
	return func(c *Config, _ *InterfaceConfig) { c.Routes = r }
}

// newHarness builds a router with one interface in the backbone and brings
// it up.
func newHarness(t *testing.T, id string, typ NetworkType, prefix string, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		rec: &recorder{},
		clk: clock.NewFake(epoch),
	}

	c := Config{
		RouterID:  rid(id),
		Clock:     h.clk,
		Transport: h.rec,
		Logger:    discardLogger(),
	}
	ic := InterfaceConfig{
		Name:               "eth0",
		Type:               typ,
		Prefix:             netip.MustParsePrefix(prefix),
		Area:               common.Backbone,
		HelloInterval:      10,
		RouterDeadInterval: 40,
		RxmtInterval:       5,
		MTU:                1500,
		Priority:           1,
		Cost:               10,
	}
	for _, o := range opts {
		o(&c, &ic)
	}

	inst, err := NewInstance(c)
	require.NoError(t, err)
	_, err = inst.AddArea(common.Backbone, true)
	require.NoError(t, err)
	ref, err := inst.AddInterface(ic)
	require.NoError(t, err)

	h.inst = inst
	h.iface = inst.Interface(ref)
	inst.Start()

	return h
}

// hello builds a Hello from a neighbor at src matching the harness's
// interface parameters.
func (h *harness) hello(id, src string, neighbors ...common.RouterID) *Hello {
	return &Hello{
		Header: Header{
			RouterID: rid(id),
			AreaID:   common.Backbone,
			Src:      netip.MustParseAddr(src),
			Dst:      AllSPFRouters,
		},
		NetworkMask:        maskFor(h.iface),
		HelloInterval:      h.iface.helloInterval,
		Options:            CapE,
		RouterPriority:     1,
		RouterDeadInterval: h.iface.routerDeadInterval,
		Neighbors:          neighbors,
	}
}

func maskFor(iface *Interface) net.IPMask {
	if iface.typ == NetworkPointToPoint || iface.typ == NetworkVirtualLink {
		return net.CIDRMask(0, 32)
	}
	return net.CIDRMask(iface.prefix.Bits(), 32)
}

// header is the header of a packet sent by router id from src to us.
func (h *harness) header(id, src string) Header {
	return Header{
		RouterID: rid(id),
		AreaID:   common.Backbone,
		Src:      netip.MustParseAddr(src),
		Dst:      h.iface.Addr(),
	}
}

func (h *harness) dd(id, src string, flags DDFlags, seq uint32, headers ...LSAHeader) *DatabaseDescription {
	return &DatabaseDescription{
		Header:         h.header(id, src),
		InterfaceMTU:   h.iface.mtu,
		Options:        CapE,
		Flags:          flags,
		SequenceNumber: seq,
		LSAHeaders:     headers,
	}
}

func (h *harness) receive(p Packet) {
	h.inst.Receive(h.iface.ref, p)
}

// neighbor returns the only neighbor on the harness's interface.
func (h *harness) neighbor(t *testing.T) *Neighbor {
	t.Helper()
	ns := h.iface.Neighbors()
	require.Len(t, ns, 1)
	return ns[0]
}

// exStart brings a point-to-point neighbor with router ID id up to
// ExStart.
func (h *harness) exStart(t *testing.T, id, src string) *Neighbor {
	t.Helper()
	h.receive(h.hello(id, src, h.inst.routerID))
	n := h.neighbor(t)
	require.Equal(t, NeighborExStart, n.State())
	return n
}

func routerLSA(adv string, seq int32, body ...byte) *LSA {
	if body == nil {
		body = []byte{0, 0, 0, 0}
	}
	return NewLSA(LSAHeader{
		Options:           CapE,
		Type:              LSTypeRouter,
		ID:                netip.MustParseAddr(adv),
		AdvertisingRouter: rid(adv),
		SequenceNumber:    seq,
	}, body)
}
