package ospf

import (
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/common"
)

type NetworkType int

const (
	NetworkPointToPoint NetworkType = iota
	NetworkBroadcast
	NetworkNBMA
	NetworkPointToMultipoint
	NetworkVirtualLink
)

func (t NetworkType) String() string {
	switch t {
	case NetworkPointToPoint:
		return "Point-to-point"
	case NetworkBroadcast:
		return "Broadcast"
	case NetworkNBMA:
		return "NBMA"
	case NetworkPointToMultipoint:
		return "Point-to-MultiPoint"
	case NetworkVirtualLink:
		return "Virtual Link"
	default:
		return "Unknown"
	}
}

// ParseNetworkType accepts the names used in configuration files.
func ParseNetworkType(s string) (NetworkType, error) {
	switch s {
	case "point-to-point":
		return NetworkPointToPoint, nil
	case "broadcast":
		return NetworkBroadcast, nil
	case "nbma", "non-broadcast":
		return NetworkNBMA, nil
	case "point-to-multipoint":
		return NetworkPointToMultipoint, nil
	case "virtual-link":
		return NetworkVirtualLink, nil
	default:
		return 0, fmt.Errorf("unknown network type %q", s)
	}
}

type InterfaceState int

const (
	InterfaceDown InterfaceState = iota
	InterfaceLoopback
	InterfaceWaiting
	InterfacePointToPoint
	InterfaceDROther
	InterfaceBackup
	InterfaceDR
)

func (s InterfaceState) String() string {
	switch s {
	case InterfaceDown:
		return "Down"
	case InterfaceLoopback:
		return "Loopback"
	case InterfaceWaiting:
		return "Waiting"
	case InterfacePointToPoint:
		return "Point-to-point"
	case InterfaceDROther:
		return "DROther"
	case InterfaceBackup:
		return "Backup"
	case InterfaceDR:
		return "DR"
	default:
		return "Unknown"
	}
}

type interfaceEvent int

const (
	ieInterfaceUp interfaceEvent = iota
	ieWaitTimer
	ieBackupSeen
	ieNeighborChange
	ieLoopInd
	ieUnloopInd
	ieInterfaceDown
)

func (e interfaceEvent) String() string {
	switch e {
	case ieInterfaceUp:
		return "InterfaceUp"
	case ieWaitTimer:
		return "WaitTimer"
	case ieBackupSeen:
		return "BackupSeen"
	case ieNeighborChange:
		return "NeighborChange"
	case ieLoopInd:
		return "LoopInd"
	case ieUnloopInd:
		return "UnloopInd"
	case ieInterfaceDown:
		return "InterfaceDown"
	default:
		return "Unknown"
	}
}

type InterfaceRef int

// minMTU is the smallest MTU that fits a Database Description carrying one
// LSA header.
const minMTU = ipv4.HeaderLen + headerLen + ddLen + LSAHeaderLen

type InterfaceConfig struct {
	Name               string
	Type               NetworkType
	Prefix             netip.Prefix // interface address and mask
	Area               common.AreaID
	HelloInterval      uint16
	RouterDeadInterval uint32
	RxmtInterval       uint16
	TransmitDelay      uint16 // defaults to 1
	MTU                uint16
	Priority           uint8
	Cost               uint16

	// Neighbors are the statically configured neighbors of an NBMA network.
	Neighbors []netip.Addr
}

type Interface struct {
	ref   InterfaceRef
	area  AreaRef
	name  string
	typ   NetworkType
	state InterfaceState

	prefix             netip.Prefix
	helloInterval      uint16
	routerDeadInterval uint32
	rxmtInterval       uint16
	transmitDelay      uint16 // added to the age of every LSA sent
	mtu                uint16
	priority           uint8
	cost               uint16
	staticNeighbors    []netip.Addr

	dr  DesignatedRouter
	bdr DesignatedRouter

	// neighbors is a slab indexed by NeighborRef.Slot. Removed neighbors
	// leave a nil behind.
	neighbors []*Neighbor
	byKey     map[netip.Addr]int

	helloTimer clock.Timer
	waitTimer  clock.Timer
}

func newInterface(ref InterfaceRef, area AreaRef, c InterfaceConfig) *Interface {
	return &Interface{
		ref:                ref,
		area:               area,
		name:               c.Name,
		typ:                c.Type,
		state:              InterfaceDown,
		prefix:             c.Prefix,
		helloInterval:      c.HelloInterval,
		routerDeadInterval: c.RouterDeadInterval,
		rxmtInterval:       c.RxmtInterval,
		transmitDelay:      max(1, c.TransmitDelay),
		mtu:                c.MTU,
		priority:           c.Priority,
		cost:               c.Cost,
		staticNeighbors:    append([]netip.Addr(nil), c.Neighbors...),
		byKey:              make(map[netip.Addr]int),
	}
}

func (iface *Interface) Ref() InterfaceRef { return iface.ref }
func (iface *Interface) Name() string { return iface.name }
func (iface *Interface) Type() NetworkType { return iface.typ }
func (iface *Interface) State() InterfaceState { return iface.state }
func (iface *Interface) Addr() netip.Addr { return iface.prefix.Addr() }
func (iface *Interface) Prefix() netip.Prefix { return iface.prefix }
func (iface *Interface) MTU() uint16 { return iface.mtu }
func (iface *Interface) Priority() uint8 { return iface.priority }
func (iface *Interface) DR() DesignatedRouter { return iface.dr }
func (iface *Interface) BDR() DesignatedRouter { return iface.bdr }
func (iface *Interface) HelloInterval() uint16 { return iface.helloInterval }
func (iface *Interface) RouterDeadInterval() uint32 { return iface.routerDeadInterval }

// neighborKey is the value neighbors on iface are looked up by. On
// multi-access networks that's the source address of their packets,
// otherwise it's their router ID.
func (iface *Interface) neighborKey(src netip.Addr, routerID common.RouterID) netip.Addr {
	t := iface.typ
	if t == NetworkBroadcast || t == NetworkPointToMultipoint || t == NetworkNBMA {
		return src
	}
	return routerID.Addr()
}

func (iface *Interface) lookup(src netip.Addr, routerID common.RouterID) *Neighbor {
	slot, ok := iface.byKey[iface.neighborKey(src, routerID)]
	if !ok {
		return nil
	}
	return iface.neighbors[slot]
}

func (iface *Interface) neighborByAddr(addr netip.Addr) *Neighbor {
	for _, n := range iface.neighbors {
		if n != nil && n.addr == addr {
			return n
		}
	}
	return nil
}

// Neighbors returns the live neighbors of iface in the order they were
// discovered.
func (iface *Interface) Neighbors() []*Neighbor {
	var ns []*Neighbor
	for _, n := range iface.neighbors {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return ns
}

// Neighbor returns the neighbor with the given router ID, if any.
func (iface *Interface) Neighbor(id common.RouterID) (*Neighbor, bool) {
	for _, n := range iface.neighbors {
		if n != nil && n.id == id {
			return n, true
		}
	}
	return nil, false
}

func (iface *Interface) isDR() bool {
	return iface.state == InterfaceDR
}

func (iface *Interface) isBackup() bool {
	return iface.state == InterfaceBackup
}

// AdjacencyNeeded reports whether this router and n should become fully
// adjacent over iface.
func (iface *Interface) AdjacencyNeeded(n *Neighbor) bool {
	return iface.adjacencyNeeded(n)
}

// adjacencyNeeded implements RFC 2328 10.4.
func (iface *Interface) adjacencyNeeded(n *Neighbor) bool {
	switch iface.typ {
	case NetworkPointToPoint, NetworkPointToMultipoint, NetworkVirtualLink:
		return true
	}

	if iface.isDR() || iface.isBackup() {
		return true
	}

	if iface.dr.isSet() && iface.dr.Addr == n.addr {
		return true
	}
	if iface.bdr.isSet() && iface.bdr.Addr == n.addr {
		return true
	}

	return false
}

// maxDDHeaders is how many LSA headers fit in one Database Description
// sent on iface.
func (iface *Interface) maxDDHeaders() int {
	return max(1, (int(iface.mtu)-ipv4.HeaderLen-headerLen-ddLen)/LSAHeaderLen)
}

func (iface *Interface) maxRequests() int {
	return max(1, (int(iface.mtu)-ipv4.HeaderLen-headerLen)/lsReqLen)
}

func (iface *Interface) maxAckHeaders() int {
	return max(1, (int(iface.mtu)-ipv4.HeaderLen-headerLen)/LSAHeaderLen)
}

func (iface *Interface) maxUpdateBytes() int {
	return max(LSAHeaderLen, int(iface.mtu)-ipv4.HeaderLen-headerLen-lsUpdateLen)
}

// fullyAdjacentToDR reports whether this router has a Full adjacency with the
// network's DR, or is the DR and has at least one Full neighbor.
func (iface *Interface) fullyAdjacentToDR() bool {
	if iface.isDR() {
		for _, n := range iface.neighbors {
			if n != nil && n.state == NeighborFull {
				return true
			}
		}
		return false
	}

	if !iface.dr.isSet() {
		return false
	}
	n := iface.neighborByAddr(iface.dr.Addr)
	return n != nil && n.state == NeighborFull
}
