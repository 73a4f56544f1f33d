// Package sim connects OSPF instances with simulated links. Packets are
// encoded on send and decoded on delivery, so every exchange goes through
// the wire format.
package sim

import (
	"log/slog"
	"math/rand"
	"net/netip"
	"time"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/ospf"
)

// Link is one interface of one router attached to a segment.
type Link struct {
	inst  *ospf.Instance
	ref   ospf.InterfaceRef
	addr  netip.Addr
	name  string
	up    bool
	owner *Segment
}

// Segment is a shared medium. A packet sent by one link reaches every other
// link on the segment if it's addressed to a multicast group, or the link
// with the matching address if it's unicast.
type Segment struct {
	Name      string
	Delay     time.Duration
	Loss      float64
	Duplicate float64

	links []*Link
}

// Stats counts what happened to packets on a Network.
type Stats struct {
	Sent       int
	Delivered  int
	Lost       int
	Duplicated int
	Malformed  int
}

// Network owns the segments and schedules deliveries on a Clock.
type Network struct {
	clock clock.Clock
	rand  *rand.Rand
	log   *slog.Logger

	segments []*Segment
	links    map[linkKey]*Link
	stats    Stats
}

type linkKey struct {
	inst *ospf.Instance
	ref  ospf.InterfaceRef
}

func NewNetwork(c clock.Clock, seed int64, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}

	return &Network{
		clock: c,
		rand:  rand.New(rand.NewSource(seed)),
		log:   logger,
		links: make(map[linkKey]*Link),
	}
}

func (n *Network) AddSegment(name string, delay time.Duration, loss, duplicate float64) *Segment {
	s := &Segment{Name: name, Delay: delay, Loss: loss, Duplicate: duplicate}
	n.segments = append(n.segments, s)
	return s
}

// Attach connects the interface at ref to s.
func (n *Network) Attach(s *Segment, inst *ospf.Instance, ref ospf.InterfaceRef) *Link {
	iface := inst.Interface(ref)
	l := &Link{
		inst:  inst,
		ref:   ref,
		addr:  iface.Addr(),
		name:  iface.Name(),
		up:    true,
		owner: s,
	}
	s.links = append(s.links, l)
	n.links[linkKey{inst, ref}] = l
	return l
}

// SetUp cuts or restores a link without telling the router. Packets already
// in flight are still delivered.
func (l *Link) SetUp(up bool) {
	l.up = up
}

func (n *Network) Stats() Stats {
	return n.stats
}

// Endpoint is the ospf.Transport of a single Instance. It has to exist
// before the Instance does, so the two are tied together with Bind.
type Endpoint struct {
	network *Network
	inst    *ospf.Instance
}

func (n *Network) Endpoint() *Endpoint {
	return &Endpoint{network: n}
}

func (e *Endpoint) Bind(inst *ospf.Instance) {
	e.inst = inst
}

func (e *Endpoint) Send(from ospf.InterfaceRef, dst netip.Addr, p ospf.Packet) {
	if e.inst == nil {
		panic("unreachable: send on unbound endpoint")
	}
	e.network.send(e.inst, from, dst, p)
}

func (n *Network) send(inst *ospf.Instance, from ospf.InterfaceRef, dst netip.Addr, p ospf.Packet) {
	src, ok := n.links[linkKey{inst, from}]
	if !ok {
		n.log.Debug("dropping packet from unattached interface", "router", inst.RouterID(), "iface", from)
		return
	}

	n.stats.Sent++
	if !src.up {
		n.stats.Lost++
		return
	}

	data := ospf.Encode(p)
	seg := src.owner

	for _, l := range seg.links {
		if l == src || !l.up {
			continue
		}
		if dst != ospf.AllSPFRouters && dst != ospf.AllDRouters && dst != l.addr {
			continue
		}

		if n.rand.Float64() < seg.Loss {
			n.stats.Lost++
			n.log.Debug("lost packet", "segment", seg.Name, "from", src.name, "to", l.name, "type", p.Type())
			continue
		}

		n.deliver(seg, src, l, dst, data)

		if n.rand.Float64() < seg.Duplicate {
			n.stats.Duplicated++
			n.deliver(seg, src, l, dst, data)
		}
	}
}

func (n *Network) deliver(seg *Segment, src, to *Link, dst netip.Addr, data []byte) {
	srcAddr := src.addr
	n.clock.AfterFunc(seg.Delay, func() {
		if !to.up {
			n.stats.Lost++
			return
		}

		p, err := ospf.Decode(srcAddr, dst, data)
		if err != nil {
			n.stats.Malformed++
			n.log.Warn("dropping malformed packet", "segment", seg.Name, "to", to.name, "err", err)
			return
		}

		n.stats.Delivered++
		to.inst.Receive(to.ref, p)
	})
}
