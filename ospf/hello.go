package ospf

import (
	"net"
	"net/netip"

	"github.com/inet-framework/inet-sub064/common"
)

func (inst *Instance) newHello(iface *Interface) *Hello {
	area := inst.areas[iface.area]

	mask := net.CIDRMask(iface.prefix.Bits(), 32)
	if iface.typ == NetworkPointToPoint || iface.typ == NetworkVirtualLink {
		mask = net.CIDRMask(0, 32)
	}

	h := &Hello{
		NetworkMask:        mask,
		HelloInterval:      iface.helloInterval,
		Options:            area.options(),
		RouterPriority:     iface.priority,
		RouterDeadInterval: iface.routerDeadInterval,
		DesignatedRouter:   iface.dr.Addr,
		BackupDesignated:   iface.bdr.Addr,
	}

	for _, n := range iface.neighbors {
		if n != nil && n.state >= NeighborInit {
			h.Neighbors = append(h.Neighbors, n.id)
		}
	}

	return h
}

func (inst *Instance) sendHello(iface *Interface, dst netip.Addr) {
	inst.send(iface, dst, inst.newHello(iface))
}

// sendHellos sends the periodic Hello on iface.
func (inst *Instance) sendHellos(iface *Interface) {
	switch iface.typ {
	case NetworkNBMA:
		for _, n := range iface.neighbors {
			if n != nil {
				inst.sendHello(iface, n.addr)
			}
		}
	default:
		inst.sendHello(iface, AllSPFRouters)
	}
}

func (inst *Instance) startHelloTimer(iface *Interface) {
	stopTimer(&iface.helloTimer)
	inst.sendHellos(iface)
	iface.helloTimer = inst.afterFunc(seconds(iface.helloInterval), func() {
		iface.helloTimer = nil
		inst.startHelloTimer(iface)
	})
}

// handleHello implements RFC 2328 10.5.
func (inst *Instance) handleHello(iface *Interface, h *Hello) {
	log := inst.log.With("iface", iface.name, "src", h.Src, "from", h.RouterID)
	area := inst.areas[iface.area]

	if iface.typ != NetworkPointToPoint && iface.typ != NetworkVirtualLink && h.netmaskBits() != iface.prefix.Bits() {
		log.Debug("dropping hello: network mask mismatch", "mask", h.netmaskBits(), "ours", iface.prefix.Bits())
		inst.metrics.mismatch(inst.routerID, "mask")
		return
	}

	if h.HelloInterval != iface.helloInterval || h.RouterDeadInterval != iface.routerDeadInterval {
		log.Debug("dropping hello: interval mismatch", "hello", h.HelloInterval, "dead", h.RouterDeadInterval)
		inst.metrics.mismatch(inst.routerID, "interval")
		return
	}

	if h.Options.E() != area.externalRoutingCapability {
		log.Debug("dropping hello: E-bit mismatch", "options", h.Options)
		inst.metrics.mismatch(inst.routerID, "options")
		return
	}

	n := iface.lookup(h.Src, h.RouterID)
	if n == nil {
		n = inst.addNeighbor(iface, h.RouterID, h.Src)
		n.priority = h.RouterPriority
		n.deadInterval = h.RouterDeadInterval
		log.Info("new neighbor")
	} else if n.static && n.id == 0 {
		// First Hello from a configured NBMA neighbor.
		n.id = h.RouterID
	}

	var neighborChanged, drStateChanged, backupSeen bool

	if n.priority != h.RouterPriority {
		n.priority = h.RouterPriority
		neighborChanged = true
	}
	n.deadInterval = h.RouterDeadInterval

	declaresDR := h.DesignatedRouter == h.Src
	declaresBDR := h.BackupDesignated == h.Src
	noBDR := !h.BackupDesignated.IsValid() || h.BackupDesignated.IsUnspecified()

	if declaresDR && noBDR && iface.state == InterfaceWaiting {
		backupSeen = true
	} else if declaresDR != n.declaresDR() {
		neighborChanged = true
		drStateChanged = true
	}

	if declaresBDR && iface.state == InterfaceWaiting {
		backupSeen = true
	} else if declaresBDR != n.declaresBDR() {
		neighborChanged = true
	}

	if n.dr.Addr != h.DesignatedRouter || n.bdr.Addr != h.BackupDesignated {
		n.drResolved = false
	}
	n.dr.Addr = h.DesignatedRouter
	n.bdr.Addr = h.BackupDesignated
	if !n.drResolved {
		inst.resolveDesignatedRouters(iface, n)
	}

	before := n.state
	inst.neighborEvent(n, neHelloReceived)

	if iface.typ == NetworkNBMA && iface.priority == 0 && before < NeighborInit && n.state >= NeighborInit {
		inst.sendHello(iface, n.addr)
	}

	if listsSelf(h, inst.routerID, iface.Addr()) {
		inst.neighborEvent(n, ne2WayReceived)
	} else {
		inst.neighborEvent(n, ne1WayReceived)
	}

	if neighborChanged {
		inst.interfaceEvent(iface, ieNeighborChange)

		// Election results can arrive after a neighbor already settled in
		// 2-Way, so give every such neighbor another chance.
		for _, other := range iface.neighbors {
			if other != nil && other != n && other.state == NeighborTwoWay {
				inst.neighborEvent(other, neAdjOK)
			}
		}
	}

	if drStateChanged {
		// A neighbor's DR declaration changed. Advertise a new instance
		// even when our own links read the same.
		inst.originateRouterLSA(area, true)
		inst.originateLSAs(area)
	}

	if backupSeen {
		inst.interfaceEvent(iface, ieBackupSeen)
	}
}

// listsSelf reports whether this router appears in the Hello's neighbor
// list, either by router ID or by interface address.
func listsSelf(h *Hello, self common.RouterID, addr netip.Addr) bool {
	for _, id := range h.Neighbors {
		if id == self || id.Addr() == addr {
			return true
		}
	}
	return false
}

// resolveDesignatedRouters maps the DR and BDR addresses advertised by n to
// router IDs. It only succeeds once both are known.
func (inst *Instance) resolveDesignatedRouters(iface *Interface, n *Neighbor) {
	drID, drOK := inst.routerIDByAddr(iface, n.dr.Addr)
	bdrID, bdrOK := inst.routerIDByAddr(iface, n.bdr.Addr)

	if drOK {
		n.dr.ID = drID
	}
	if bdrOK {
		n.bdr.ID = bdrID
	}

	n.drResolved = drOK && bdrOK
}

func (inst *Instance) routerIDByAddr(iface *Interface, addr netip.Addr) (common.RouterID, bool) {
	if !addr.IsValid() || addr.IsUnspecified() {
		return 0, true
	}
	if addr == iface.Addr() {
		return inst.routerID, true
	}
	if other := iface.neighborByAddr(addr); other != nil && other.id != 0 {
		return other.id, true
	}
	return 0, false
}
