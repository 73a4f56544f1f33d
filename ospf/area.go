package ospf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/inet-framework/inet-sub064/common"
)

type AreaRef int

type Area struct {
	ref                       AreaRef
	id                        common.AreaID
	externalRoutingCapability bool
	interfaces                []InterfaceRef
	db                        lsdb

	// flushing holds self-originated LSAs that were prematurely aged and
	// are waiting to be acknowledged by every neighbor. A non-nil body is
	// originated afresh, starting over at InitialSequenceNumber, once
	// that happens.
	flushing map[LSAKey][]byte
}

func newArea(ref AreaRef, id common.AreaID, externalRoutingCapability bool) *Area {
	return &Area{
		ref:                       ref,
		id:                        id,
		externalRoutingCapability: externalRoutingCapability,
		db:                        newLSDB(),
		flushing:                  make(map[LSAKey][]byte),
	}
}

func (a *Area) ID() common.AreaID {
	return a.id
}

// ExternalRoutingCapability is false for stub areas.
func (a *Area) ExternalRoutingCapability() bool {
	return a.externalRoutingCapability
}

func (a *Area) options() Options {
	if a.externalRoutingCapability {
		return CapE
	}
	return 0
}

func (a *Area) FindLSA(k LSAKey) (*LSA, bool) {
	return a.db.get(k)
}

// Headers returns the headers of every LSA in the area's database, sorted by
// key.
func (a *Area) Headers() []LSAHeader {
	keys := a.db.sortedKeys()
	headers := make([]LSAHeader, len(keys))
	for i, k := range keys {
		headers[i] = a.db[k].LSAHeader
	}
	return headers
}

// InstallLSA adds lsa to the database of area id without flooding it.
func (inst *Instance) InstallLSA(id common.AreaID, lsa *LSA) error {
	area, ok := inst.Area(id)
	if !ok {
		return fmt.Errorf("ospf: area %s does not exist", id)
	}
	if !lsa.Type.Valid() {
		return fmt.Errorf("ospf: cannot install %s", lsa.Type)
	}
	if lsa.Type == LSTypeASExternal && !area.externalRoutingCapability {
		return fmt.Errorf("ospf: cannot install %s in stub area %s", lsa.Type, id)
	}

	inst.run(func() {
		inst.installLSA(area, lsa)
	})
	return nil
}

// installLSA implements RFC 2328 13.2. It reports whether the contents of
// the LSA changed.
func (inst *Instance) installLSA(area *Area, lsa *LSA) bool {
	k := lsa.Key()
	old, hadOld := area.db.get(k)

	for _, ref := range area.interfaces {
		for _, n := range inst.interfaces[ref].neighbors {
			if n != nil {
				n.retransmissionList.remove(k)
			}
		}
	}

	area.db.set(lsa, inst.clock.Now())

	changed := !hadOld ||
		!bytes.Equal(old.Body, lsa.Body) ||
		old.Options != lsa.Options ||
		(old.Age >= inst.freshness.MaxAge) != (lsa.Age >= inst.freshness.MaxAge)

	if changed {
		inst.routes.RebuildRoutingTable(area.id)
	}
	return changed
}

// databaseSummary returns the headers a new adjacency on iface starts its
// Database summary list with.
func (inst *Instance) databaseSummary(area *Area, iface *Interface) []LSAHeader {
	var headers []LSAHeader
	for _, h := range area.Headers() {
		if h.Type == LSTypeASExternal && (!area.externalRoutingCapability || iface.typ == NetworkVirtualLink) {
			continue
		}
		headers = append(headers, h)
	}
	return headers
}

const (
	linkPointToPoint uint8 = iota + 1
	linkTransit
	linkStub
	linkVirtual
)

type routerLink struct {
	id     netip.Addr
	data   netip.Addr
	typ    uint8
	metric uint16
}

// routerLSABody builds the body of this router's Router-LSA for area (RFC
// 2328 12.4.1).
func (inst *Instance) routerLSABody(area *Area) []byte {
	var links []routerLink
	hostMask := netip.AddrFrom4([4]byte{255, 255, 255, 255})

	for _, ref := range area.interfaces {
		iface := inst.interfaces[ref]
		mask := maskAddr(iface.prefix.Bits())
		network := iface.prefix.Masked().Addr()

		switch iface.state {
		case InterfaceDown:
			continue
		case InterfaceLoopback:
			links = append(links, routerLink{id: iface.Addr(), data: hostMask, typ: linkStub})
			continue
		}

		switch iface.typ {
		case NetworkPointToPoint:
			for _, n := range iface.neighbors {
				if n != nil && n.state == NeighborFull {
					links = append(links, routerLink{id: n.id.Addr(), data: iface.Addr(), typ: linkPointToPoint, metric: iface.cost})
				}
			}
			links = append(links, routerLink{id: network, data: mask, typ: linkStub, metric: iface.cost})
		case NetworkBroadcast, NetworkNBMA:
			if iface.state != InterfaceWaiting && iface.fullyAdjacentToDR() {
				links = append(links, routerLink{id: iface.dr.Addr, data: iface.Addr(), typ: linkTransit, metric: iface.cost})
			} else {
				links = append(links, routerLink{id: network, data: mask, typ: linkStub, metric: iface.cost})
			}
		case NetworkPointToMultipoint:
			for _, n := range iface.neighbors {
				if n != nil && n.state == NeighborFull {
					links = append(links, routerLink{id: n.id.Addr(), data: iface.Addr(), typ: linkPointToPoint, metric: iface.cost})
				}
			}
			links = append(links, routerLink{id: iface.Addr(), data: hostMask, typ: linkStub})
		case NetworkVirtualLink:
			for _, n := range iface.neighbors {
				if n != nil && n.state == NeighborFull {
					links = append(links, routerLink{id: n.id.Addr(), data: iface.Addr(), typ: linkVirtual, metric: iface.cost})
				}
			}
		}
	}

	body := make([]byte, 4+12*len(links))
	binary.BigEndian.PutUint16(body[2:4], uint16(len(links)))
	for i, l := range links {
		b := body[4+12*i:]
		copy(b[0:4], to4(l.id))
		copy(b[4:8], to4(l.data))
		b[8] = l.typ
		binary.BigEndian.PutUint16(b[10:12], l.metric)
	}

	return body
}

// networkLSABody returns the body of the Network-LSA for iface, and false if
// this router shouldn't originate one (RFC 2328 12.4.2).
func (inst *Instance) networkLSABody(iface *Interface) ([]byte, bool) {
	if !iface.isDR() || iface.state == InterfaceDown {
		return nil, false
	}

	attached := []common.RouterID{inst.routerID}
	for _, n := range iface.neighbors {
		if n != nil && n.state == NeighborFull {
			attached = append(attached, n.id)
		}
	}
	if len(attached) == 1 {
		return nil, false
	}

	body := make([]byte, 4+4*len(attached))
	copy(body[0:4], to4(maskAddr(iface.prefix.Bits())))
	for i, id := range attached {
		binary.BigEndian.PutUint32(body[4+4*i:], uint32(id))
	}
	return body, true
}

func maskAddr(bits int) netip.Addr {
	var v uint32
	if bits > 0 {
		v = ^uint32(0) << (32 - bits)
	}
	return common.Uint32ToAddr(v)
}

// originateLSAs brings this router's Router-LSA and Network-LSAs for area up
// to date, flooding whatever changed.
func (inst *Instance) originateLSAs(area *Area) {
	inst.finishFlushes(area)
	inst.originateRouterLSA(area, false)

	for _, ref := range area.interfaces {
		iface := inst.interfaces[ref]
		if iface.typ != NetworkBroadcast && iface.typ != NetworkNBMA {
			continue
		}

		k := LSAKey{Type: LSTypeNetwork, ID: iface.Addr(), AdvertisingRouter: inst.routerID}
		if body, ok := inst.networkLSABody(iface); ok {
			inst.originate(area, k, body, false)
		} else if _, ok := area.db.get(k); ok {
			inst.flush(area, k, nil)
		}
	}
}

// originateRouterLSA re-originates this router's Router-LSA for area if its
// contents changed, or unconditionally with force. It returns the LSA now in
// the database and whether a new instance was flooded.
func (inst *Instance) originateRouterLSA(area *Area, force bool) (*LSA, bool) {
	k := LSAKey{Type: LSTypeRouter, ID: inst.routerID.Addr(), AdvertisingRouter: inst.routerID}
	changed := inst.originate(area, k, inst.routerLSABody(area), force)
	lsa, _ := area.db.get(k)
	return lsa, changed
}

// originate installs and floods a new instance of the self-originated LSA k
// with the given body, unless the current instance already says the same
// thing and force is false. If the sequence number space is exhausted the
// current instance is flushed first.
func (inst *Instance) originate(area *Area, k LSAKey, body []byte, force bool) bool {
	if _, ok := area.flushing[k]; ok {
		area.flushing[k] = body
		return false
	}

	seq := InitialSequenceNumber
	old, ok := area.db.get(k)
	if ok {
		if !force && old.Age < inst.freshness.MaxAge && bytes.Equal(old.Body, body) {
			return false
		}
		if inst.freshness.Saturated(old.LSAHeader) {
			inst.flush(area, k, body)
			return false
		}
		seq = old.SequenceNumber + 1
	}

	lsa := NewLSA(LSAHeader{
		Options:           area.options(),
		Type:              k.Type,
		ID:                k.ID,
		AdvertisingRouter: k.AdvertisingRouter,
		SequenceNumber:    seq,
	}, body)

	inst.log.Info("originating LSA", "area", area.id, "lsa", lsa.LSAHeader)
	inst.installLSA(area, lsa)
	inst.floodLSA(area, lsa, nil)
	return true
}

// flush prematurely ages the self-originated LSA k and floods it. Once every
// neighbor has acknowledged it, it's removed and, if next is not nil,
// originated again with next as its body.
func (inst *Instance) flush(area *Area, k LSAKey, next []byte) {
	old, ok := area.db.get(k)
	if !ok {
		return
	}

	area.flushing[k] = next
	if old.Age < inst.freshness.MaxAge {
		aged := old.WithAge(inst.freshness.MaxAge)
		inst.log.Info("flushing LSA", "area", area.id, "lsa", aged.LSAHeader)
		inst.installLSA(area, aged)
		inst.floodLSA(area, aged, nil)
	}

	inst.finishFlushes(area)
}

// finishFlushes removes flushed LSAs that no neighbor is still waiting to
// acknowledge.
func (inst *Instance) finishFlushes(area *Area) {
	for _, k := range area.db.sortedKeys() {
		next, ok := area.flushing[k]
		if !ok || inst.awaitingAck(area, k) {
			continue
		}

		delete(area.flushing, k)
		area.db.delete(k)
		inst.routes.RebuildRoutingTable(area.id)

		if next != nil {
			inst.originate(area, k, next, false)
		}
	}
}

func (inst *Instance) awaitingAck(area *Area, k LSAKey) bool {
	for _, ref := range area.interfaces {
		for _, n := range inst.interfaces[ref].neighbors {
			if n == nil {
				continue
			}
			if _, ok := n.retransmissionList.get(k); ok {
				return true
			}
		}
	}
	return false
}
