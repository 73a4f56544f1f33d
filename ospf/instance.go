package ospf

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/common"
	"github.com/inet-framework/inet-sub064/events"
)

// Transport delivers packets sent by an Instance. from identifies the sending
// interface; dst is a unicast neighbor address, AllSPFRouters or AllDRouters.
// Send must not call back into the Instance.
type Transport interface {
	Send(from InterfaceRef, dst netip.Addr, p Packet)
}

// RouteBuilder recomputes the routing table after the contents of an area's
// link state database changed.
type RouteBuilder interface {
	RebuildRoutingTable(area common.AreaID)
}

type RouteBuilderFunc func(area common.AreaID)

func (f RouteBuilderFunc) RebuildRoutingTable(area common.AreaID) {
	f(area)
}

// StateChange is published every time a neighbor changes state.
type StateChange struct {
	At        time.Time
	Router    common.RouterID
	Interface string
	Neighbor  common.RouterID
	Addr      netip.Addr
	From      NeighborState
	To        NeighborState
}

type Config struct {
	RouterID  common.RouterID
	Clock     clock.Clock
	Transport Transport

	// Optional.
	Logger    *slog.Logger
	Routes    RouteBuilder
	Metrics   *Metrics
	Changes   *events.Feed[StateChange]
	Freshness Freshness
}

// Instance is one OSPF router. It owns its areas, interfaces and neighbors,
// which refer to each other by index.
//
// An Instance is not safe for concurrent use. All calls, including the
// callbacks it schedules on its Clock, must happen on one goroutine.
type Instance struct {
	routerID  common.RouterID
	clock     clock.Clock
	transport Transport
	log       *slog.Logger
	routes    RouteBuilder
	metrics   *Metrics
	changes   *events.Feed[StateChange]
	freshness Freshness

	areas      []*Area
	areaByID   map[common.AreaID]AreaRef
	interfaces []*Interface

	deferred []func()
	running  bool
}

func NewInstance(c Config) (*Instance, error) {
	if c.RouterID == 0 {
		return nil, errors.New("ospf: router ID must not be 0.0.0.0")
	}
	if c.Clock == nil {
		return nil, errors.New("ospf: clock is required")
	}
	if c.Transport == nil {
		return nil, errors.New("ospf: transport is required")
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	routes := c.Routes
	if routes == nil {
		routes = RouteBuilderFunc(func(common.AreaID) {})
	}
	freshness := c.Freshness
	if freshness == (Freshness{}) {
		freshness = DefaultFreshness
	}

	return &Instance{
		routerID:  c.RouterID,
		clock:     c.Clock,
		transport: c.Transport,
		log:       logger.With("router", c.RouterID),
		routes:    routes,
		metrics:   c.Metrics,
		changes:   c.Changes,
		freshness: freshness,
		areaByID:  make(map[common.AreaID]AreaRef),
	}, nil
}

func (inst *Instance) RouterID() common.RouterID {
	return inst.routerID
}

// AddArea creates an area. An area without external routing capability is a
// stub area.
func (inst *Instance) AddArea(id common.AreaID, externalRoutingCapability bool) (AreaRef, error) {
	if _, ok := inst.areaByID[id]; ok {
		return 0, fmt.Errorf("ospf: area %s already exists", id)
	}

	ref := AreaRef(len(inst.areas))
	inst.areas = append(inst.areas, newArea(ref, id, externalRoutingCapability))
	inst.areaByID[id] = ref

	return ref, nil
}

func (inst *Instance) AddInterface(c InterfaceConfig) (InterfaceRef, error) {
	areaRef, ok := inst.areaByID[c.Area]
	if !ok {
		return 0, fmt.Errorf("ospf: interface %s: area %s does not exist", c.Name, c.Area)
	}
	if _, ok := inst.InterfaceByName(c.Name); ok {
		return 0, fmt.Errorf("ospf: interface %s already exists", c.Name)
	}
	if !c.Prefix.IsValid() || !c.Prefix.Addr().Is4() {
		return 0, fmt.Errorf("ospf: interface %s: address must be an IPv4 prefix, got %s", c.Name, c.Prefix)
	}
	if c.HelloInterval == 0 || c.RouterDeadInterval == 0 || c.RxmtInterval == 0 {
		return 0, fmt.Errorf("ospf: interface %s: intervals must be positive", c.Name)
	}
	if int(c.MTU) < minMTU {
		return 0, fmt.Errorf("ospf: interface %s: mtu must be at least %d", c.Name, minMTU)
	}

	ref := InterfaceRef(len(inst.interfaces))
	inst.interfaces = append(inst.interfaces, newInterface(ref, areaRef, c))
	area := inst.areas[areaRef]
	area.interfaces = append(area.interfaces, ref)

	return ref, nil
}

// Start brings every interface up.
func (inst *Instance) Start() {
	inst.run(func() {
		for _, iface := range inst.interfaces {
			inst.interfaceEvent(iface, ieInterfaceUp)
		}
	})
}

// Stop brings every interface down and cancels all timers.
func (inst *Instance) Stop() {
	inst.run(func() {
		for _, iface := range inst.interfaces {
			inst.interfaceEvent(iface, ieInterfaceDown)
		}
	})
}

func (inst *Instance) InterfaceUp(ref InterfaceRef) {
	inst.run(func() { inst.interfaceEvent(inst.interfaces[ref], ieInterfaceUp) })
}

func (inst *Instance) InterfaceDown(ref InterfaceRef) {
	inst.run(func() { inst.interfaceEvent(inst.interfaces[ref], ieInterfaceDown) })
}

// KillNeighbor tears down the adjacency with the neighbor at ref.
func (inst *Instance) KillNeighbor(ref NeighborRef) {
	inst.run(func() {
		if n := inst.neighbor(ref); n != nil {
			inst.neighborEvent(n, neKillNbr)
		}
	})
}

// Receive processes a packet that arrived on the interface at ref.
func (inst *Instance) Receive(ref InterfaceRef, p Packet) {
	inst.run(func() { inst.dispatch(ref, p) })
}

// run executes f and then everything f deferred with later. Packet arrivals
// and timer callbacks both go through run, so deferred work never
// interleaves with a handler.
func (inst *Instance) run(f func()) {
	if inst.running {
		f()
		return
	}

	inst.running = true
	defer func() { inst.running = false }()

	f()
	for len(inst.deferred) > 0 {
		next := inst.deferred[0]
		inst.deferred = inst.deferred[1:]
		next()
	}
	inst.deferred = nil
}

func (inst *Instance) later(f func()) {
	inst.deferred = append(inst.deferred, f)
}

func (inst *Instance) afterFunc(d time.Duration, f func()) clock.Timer {
	return inst.clock.AfterFunc(d, func() { inst.run(f) })
}

func (inst *Instance) dispatch(ref InterfaceRef, p Packet) {
	if int(ref) < 0 || int(ref) >= len(inst.interfaces) {
		panic(fmt.Sprintf("unreachable: packet for unknown interface %d", ref))
	}
	iface := inst.interfaces[ref]
	area := inst.areas[iface.area]
	h := p.header()

	log := inst.log.With("iface", iface.name, "type", p.Type(), "src", h.Src, "from", h.RouterID)

	if iface.state == InterfaceDown || iface.state == InterfaceLoopback {
		log.Debug("dropping packet: interface down")
		return
	}
	if h.AreaID != area.id {
		log.Debug("dropping packet: area mismatch", "area", h.AreaID)
		return
	}
	if h.RouterID == inst.routerID {
		log.Debug("dropping packet: sent by us")
		return
	}
	if h.Dst == AllDRouters && !iface.isDR() && !iface.isBackup() {
		log.Debug("dropping packet: addressed to AllDRouters")
		return
	}

	inst.metrics.packetReceived(inst.routerID, p.Type())

	switch p := p.(type) {
	case *Hello:
		inst.handleHello(iface, p)
	case *DatabaseDescription:
		if n := inst.sender(iface, h, log); n != nil {
			inst.handleDatabaseDescription(iface, n, p)
		}
	case *LinkStateRequest:
		if n := inst.sender(iface, h, log); n != nil {
			inst.handleLinkStateRequest(iface, n, p)
		}
	case *LinkStateUpdate:
		if n := inst.sender(iface, h, log); n != nil {
			inst.handleLinkStateUpdate(iface, n, p)
		}
	case *LinkStateAck:
		if n := inst.sender(iface, h, log); n != nil {
			inst.handleLinkStateAck(iface, n, p)
		}
	default:
		panic(fmt.Sprintf("unreachable: dispatch of %T", p))
	}
}

// sender returns the neighbor that sent a packet other than a Hello.
func (inst *Instance) sender(iface *Interface, h *Header, log *slog.Logger) *Neighbor {
	n := iface.lookup(h.Src, h.RouterID)
	if n == nil {
		log.Debug("dropping packet: unknown neighbor")
		return nil
	}
	if n.ref.Interface != iface.ref {
		panic(fmt.Sprintf("unreachable: neighbor %s owned by interface %d found on %d", n.id, n.ref.Interface, iface.ref))
	}
	return n
}

func (inst *Instance) send(iface *Interface, dst netip.Addr, p Packet) {
	h := p.header()
	h.RouterID = inst.routerID
	h.AreaID = inst.areas[iface.area].id
	h.Src = iface.Addr()
	h.Dst = dst

	inst.metrics.packetSent(inst.routerID, p.Type())
	inst.transport.Send(iface.ref, dst, p)
}

func (inst *Instance) neighbor(ref NeighborRef) *Neighbor {
	if int(ref.Interface) < 0 || int(ref.Interface) >= len(inst.interfaces) {
		return nil
	}
	iface := inst.interfaces[ref.Interface]
	if ref.Slot < 0 || ref.Slot >= len(iface.neighbors) {
		return nil
	}
	return iface.neighbors[ref.Slot]
}

func (inst *Instance) addNeighbor(iface *Interface, id common.RouterID, addr netip.Addr) *Neighbor {
	ref := NeighborRef{Interface: iface.ref, Slot: len(iface.neighbors)}
	n := newNeighbor(ref, id, addr)
	n.deadInterval = iface.routerDeadInterval
	iface.neighbors = append(iface.neighbors, n)
	iface.byKey[iface.neighborKey(addr, id)] = ref.Slot
	inst.metrics.neighborAdded(inst.routerID)
	return n
}

func (inst *Instance) removeNeighbor(iface *Interface, n *Neighbor) {
	if iface.neighbors[n.ref.Slot] != n {
		panic(fmt.Sprintf("unreachable: neighbor %s not in its slot", n.id))
	}
	iface.neighbors[n.ref.Slot] = nil
	delete(iface.byKey, iface.neighborKey(n.addr, n.id))
	inst.metrics.neighborRemoved(inst.routerID, n.state)
}

func (inst *Instance) neighborLog(iface *Interface, n *Neighbor) *slog.Logger {
	return inst.log.With("iface", iface.name, "neighbor", n.id, "addr", n.addr, "state", n.state)
}

func (inst *Instance) Interfaces() []*Interface {
	return append([]*Interface(nil), inst.interfaces...)
}

func (inst *Instance) Interface(ref InterfaceRef) *Interface {
	return inst.interfaces[ref]
}

func (inst *Instance) InterfaceByName(name string) (*Interface, bool) {
	for _, iface := range inst.interfaces {
		if iface.name == name {
			return iface, true
		}
	}
	return nil, false
}

// Neighbor returns the neighbor at ref, or nil if it has been removed.
func (inst *Instance) Neighbor(ref NeighborRef) *Neighbor {
	return inst.neighbor(ref)
}

// Neighbors returns every live neighbor on every interface.
func (inst *Instance) Neighbors() []*Neighbor {
	var ns []*Neighbor
	for _, iface := range inst.interfaces {
		ns = append(ns, iface.Neighbors()...)
	}
	return ns
}

// FindNeighbor returns the first neighbor with router ID id on any
// interface.
func (inst *Instance) FindNeighbor(id common.RouterID) (*Neighbor, bool) {
	for _, iface := range inst.interfaces {
		if n, ok := iface.Neighbor(id); ok {
			return n, true
		}
	}
	return nil, false
}

func (inst *Instance) Area(id common.AreaID) (*Area, bool) {
	ref, ok := inst.areaByID[id]
	if !ok {
		return nil, false
	}
	return inst.areas[ref], true
}
