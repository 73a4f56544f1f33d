package ospf

import "net/netip"

// floodLSA sends lsa out every interface in area that has a neighbor which
// needs it (RFC 2328 13.3). from is the neighbor it was received from, or nil
// for self-originated LSAs.
func (inst *Instance) floodLSA(area *Area, lsa *LSA, from *Neighbor) {
	k := lsa.Key()

	for _, ref := range area.interfaces {
		iface := inst.interfaces[ref]
		if iface.state == InterfaceDown || iface.state == InterfaceLoopback {
			continue
		}
		if k.Type == LSTypeASExternal && iface.typ == NetworkVirtualLink {
			continue
		}

		added := false
		for _, n := range iface.neighbors {
			if n == nil || n.state < NeighborExchange {
				continue
			}

			if n.state != NeighborFull {
				if req, ok := n.requestList.get(k); ok {
					c := inst.freshness.Compare(lsa.LSAHeader, req)
					if c < 0 {
						continue
					}
					inst.requestSatisfied(iface, n, k)
					if c == 0 {
						continue
					}
				}
			}

			if n == from {
				continue
			}

			n.retransmissionList.add(lsa)
			inst.startLSUpdRxmtTimer(iface, n)
			added = true
		}

		if !added {
			continue
		}

		if from != nil && from.ref.Interface == iface.ref {
			if from.addr == iface.dr.Addr || from.addr == iface.bdr.Addr {
				continue
			}
			if iface.isBackup() {
				continue
			}
		}

		inst.sendOnInterface(iface, []*LSA{lsa})
	}
}

// sendOnInterface sends a Link State Update to every adjacent neighbor on
// iface: multicast on broadcast networks, unicast everywhere else.
func (inst *Instance) sendOnInterface(iface *Interface, lsas []*LSA) {
	switch iface.typ {
	case NetworkBroadcast:
		dst := AllSPFRouters
		if !iface.isDR() && !iface.isBackup() {
			dst = AllDRouters
		}
		inst.sendUpdates(iface, dst, lsas)
	case NetworkPointToPoint:
		inst.sendUpdates(iface, AllSPFRouters, lsas)
	default:
		for _, n := range iface.neighbors {
			if n != nil && n.state >= NeighborExchange {
				inst.sendUpdates(iface, n.addr, lsas)
			}
		}
	}
}

// sendUpdates sends lsas to dst, split into as many Link State Updates as it
// takes to fit the interface MTU.
func (inst *Instance) sendUpdates(iface *Interface, dst netip.Addr, lsas []*LSA) {
	limit := iface.maxUpdateBytes()

	var batch []*LSA
	size := 0
	for _, l := range lsas {
		l = l.WithAge(min(l.Age+iface.transmitDelay, inst.freshness.MaxAge))
		n := int(l.Length)
		if len(batch) > 0 && size+n > limit {
			inst.send(iface, dst, &LinkStateUpdate{LSAs: batch})
			batch, size = nil, 0
		}
		batch = append(batch, l)
		size += n
	}

	if len(batch) > 0 {
		inst.send(iface, dst, &LinkStateUpdate{LSAs: batch})
	}
}

// startRequesting sends the first Link State Request to n if there's
// anything to request and no request is outstanding.
func (inst *Instance) startRequesting(iface *Interface, n *Neighbor) {
	if n.requestList.empty() || n.lsReqRxmtTimer != nil {
		return
	}
	if n.state != NeighborExchange && n.state != NeighborLoading {
		return
	}

	inst.sendLinkStateRequest(iface, n)
}

func (inst *Instance) sendLinkStateRequest(iface *Interface, n *Neighbor) {
	n.outstanding = n.requestList.first(iface.maxRequests())
	inst.send(iface, n.addr, &LinkStateRequest{Requests: n.outstanding})

	stopTimer(&n.lsReqRxmtTimer)
	n.lsReqRxmtTimer = inst.afterFunc(seconds(iface.rxmtInterval), func() {
		if inst.neighbor(n.ref) != n {
			return
		}
		n.lsReqRxmtTimer = nil
		if n.requestList.empty() || (n.state != NeighborExchange && n.state != NeighborLoading) {
			return
		}

		inst.metrics.retransmitted(inst.routerID, TypeLinkStateRequest)
		inst.sendLinkStateRequest(iface, n)
	})
}

// requestSatisfied removes k from n's request list. When the last LSA asked
// for in the outstanding request arrives, the next request goes out; when
// the list runs dry in Loading, the neighbor becomes Full.
func (inst *Instance) requestSatisfied(iface *Interface, n *Neighbor, k LSAKey) {
	n.requestList.remove(k)

	if n.requestList.empty() {
		stopTimer(&n.lsReqRxmtTimer)
		n.outstanding = nil
		if n.state == NeighborLoading {
			inst.later(func() {
				if inst.neighbor(n.ref) == n {
					inst.neighborEvent(n, neLoadingDone)
				}
			})
		}
		return
	}

	for _, o := range n.outstanding {
		if _, ok := n.requestList.get(o); ok {
			return
		}
	}

	stopTimer(&n.lsReqRxmtTimer)
	inst.startRequesting(iface, n)
}

func (inst *Instance) startLSUpdRxmtTimer(iface *Interface, n *Neighbor) {
	if n.lsUpdRxmtTimer != nil {
		return
	}

	n.lsUpdRxmtTimer = inst.afterFunc(seconds(iface.rxmtInterval), func() {
		if inst.neighbor(n.ref) != n {
			return
		}
		n.lsUpdRxmtTimer = nil
		if n.retransmissionList.len() == 0 || n.state < NeighborExchange {
			return
		}

		inst.metrics.retransmitted(inst.routerID, TypeLinkStateUpdate)
		inst.sendUpdates(iface, n.addr, n.retransmissionList.all())
		inst.startLSUpdRxmtTimer(iface, n)
	})
}
