package ospf

import "net/netip"

// handleLinkStateRequest implements RFC 2328 10.7.
func (inst *Instance) handleLinkStateRequest(iface *Interface, n *Neighbor, p *LinkStateRequest) {
	log := inst.neighborLog(iface, n)

	if n.state < NeighborExchange {
		log.Debug("dropping link state request")
		return
	}

	area := inst.areas[iface.area]
	lsas := make([]*LSA, 0, len(p.Requests))
	for _, k := range p.Requests {
		lsa, ok := area.db.get(k)
		if !ok {
			log.Warn("link state request for unknown LSA", "lsa", k)
			inst.neighborEvent(n, neBadLSReq)
			return
		}
		lsas = append(lsas, lsa)
	}

	inst.sendUpdates(iface, n.addr, lsas)
}

// handleLinkStateUpdate implements RFC 2328 13.
func (inst *Instance) handleLinkStateUpdate(iface *Interface, n *Neighbor, p *LinkStateUpdate) {
	log := inst.neighborLog(iface, n)

	if n.state < NeighborExchange {
		log.Debug("dropping link state update")
		return
	}

	area := inst.areas[iface.area]
	var acks []LSAHeader

	for _, lsa := range p.LSAs {
		k := lsa.Key()

		if !lsa.IsChecksumValid() {
			log.Debug("dropping LSA with bad checksum", "lsa", lsa.LSAHeader)
			continue
		}
		if !lsa.Type.Valid() || (lsa.Type == LSTypeASExternal && !area.externalRoutingCapability) {
			log.Debug("dropping unacceptable LSA", "lsa", lsa.LSAHeader)
			continue
		}

		local, ok := area.db.get(k)

		if lsa.Age >= inst.freshness.MaxAge && !ok && !inst.exchanging(area) {
			acks = append(acks, lsa.LSAHeader)
			continue
		}

		var c int
		if ok {
			c = inst.freshness.Compare(lsa.LSAHeader, local.LSAHeader)
		}

		switch {
		case !ok || c > 0:
			for _, a := range inst.floodScope(area, lsa) {
				inst.installLSA(a, lsa)
				inst.floodLSA(a, lsa, n)
			}
			acks = append(acks, lsa.LSAHeader)

			if inst.isSelfOriginated(lsa) {
				inst.selfOriginatedReceived(area, lsa)
			}
		case hasRequest(n, k):
			log.Warn("received LSA that is on the request list", "lsa", lsa.LSAHeader)
			inst.neighborEvent(n, neBadLSReq)
			return
		case c == 0:
			if _, pending := n.retransmissionList.get(k); pending {
				// Implied acknowledgment.
				n.retransmissionList.remove(k)
				inst.finishFlushes(area)
			} else {
				acks = append(acks, lsa.LSAHeader)
			}
		default:
			if local.Age >= inst.freshness.MaxAge && local.SequenceNumber == inst.freshness.MaxSequenceNumber {
				continue
			}
			log.Debug("neighbor sent an older LSA, sending ours", "lsa", lsa.LSAHeader, "ours", local.LSAHeader)
			inst.sendUpdates(iface, n.addr, []*LSA{local})
		}
	}

	if len(acks) > 0 {
		inst.sendAcks(iface, n.addr, acks)
	}
}

func hasRequest(n *Neighbor, k LSAKey) bool {
	_, ok := n.requestList.get(k)
	return ok
}

// exchanging reports whether any neighbor in area is in Exchange or Loading.
func (inst *Instance) exchanging(area *Area) bool {
	for _, ref := range area.interfaces {
		for _, n := range inst.interfaces[ref].neighbors {
			if n != nil && (n.state == NeighborExchange || n.state == NeighborLoading) {
				return true
			}
		}
	}
	return false
}

// floodScope returns the areas lsa is installed in and flooded through.
// AS-external-LSAs go to every area that isn't a stub area.
func (inst *Instance) floodScope(area *Area, lsa *LSA) []*Area {
	if lsa.Type != LSTypeASExternal {
		return []*Area{area}
	}

	var areas []*Area
	for _, a := range inst.areas {
		if a.externalRoutingCapability {
			areas = append(areas, a)
		}
	}
	return areas
}

func (inst *Instance) isSelfOriginated(lsa *LSA) bool {
	if lsa.AdvertisingRouter == inst.routerID {
		return true
	}
	if lsa.Type != LSTypeNetwork {
		return false
	}
	for _, iface := range inst.interfaces {
		if iface.Addr() == lsa.ID {
			return true
		}
	}
	return false
}

// selfOriginatedReceived handles a newer instance of one of our own LSAs
// arriving from a neighbor, left over from before a restart (RFC 2328 13.4).
// If we still originate the LSA, a new instance with a higher sequence
// number replaces it. Otherwise it's flushed.
func (inst *Instance) selfOriginatedReceived(area *Area, lsa *LSA) {
	k := lsa.Key()
	inst.log.Info("received newer instance of self-originated LSA", "area", area.id, "lsa", lsa.LSAHeader)

	if lsa.Age >= inst.freshness.MaxAge {
		return
	}

	switch {
	case k.Type == LSTypeRouter && k.AdvertisingRouter == inst.routerID && k.ID == inst.routerID.Addr():
		inst.originate(area, k, inst.routerLSABody(area), true)
		return
	case k.Type == LSTypeNetwork && k.AdvertisingRouter == inst.routerID:
		for _, ref := range area.interfaces {
			iface := inst.interfaces[ref]
			if iface.Addr() != k.ID {
				continue
			}
			if body, ok := inst.networkLSABody(iface); ok {
				inst.originate(area, k, body, true)
				return
			}
		}
	}

	inst.flush(area, k, nil)
}

// handleLinkStateAck implements RFC 2328 13.7.
func (inst *Instance) handleLinkStateAck(iface *Interface, n *Neighbor, p *LinkStateAck) {
	if n.state < NeighborExchange {
		inst.neighborLog(iface, n).Debug("dropping link state acknowledgment")
		return
	}

	for _, h := range p.LSAHeaders {
		lsa, ok := n.retransmissionList.get(h.Key())
		if !ok {
			continue
		}
		if inst.freshness.Compare(h, lsa.LSAHeader) == 0 {
			n.retransmissionList.remove(h.Key())
		} else {
			inst.neighborLog(iface, n).Debug("questionable acknowledgment", "ack", h, "sent", lsa.LSAHeader)
		}
	}

	if n.retransmissionList.len() == 0 {
		stopTimer(&n.lsUpdRxmtTimer)
	}

	for _, a := range inst.areas {
		inst.finishFlushes(a)
	}
}

// sendAcks sends headers to dst in as many Link State Acknowledgments as it
// takes to fit the interface MTU.
func (inst *Instance) sendAcks(iface *Interface, dst netip.Addr, headers []LSAHeader) {
	per := iface.maxAckHeaders()
	for len(headers) > 0 {
		count := min(per, len(headers))
		inst.send(iface, dst, &LinkStateAck{LSAHeaders: append([]LSAHeader(nil), headers[:count]...)})
		headers = headers[count:]
	}
}
