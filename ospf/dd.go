package ospf

// handleDatabaseDescription implements RFC 2328 10.6.
func (inst *Instance) handleDatabaseDescription(iface *Interface, n *Neighbor, dd *DatabaseDescription) {
	log := inst.neighborLog(iface, n)

	if iface.typ != NetworkVirtualLink && dd.InterfaceMTU > iface.mtu {
		log.Debug("dropping database description: mtu too large", "mtu", dd.InterfaceMTU, "ours", iface.mtu)
		inst.metrics.mismatch(inst.routerID, "mtu")
		return
	}

	switch n.state {
	case NeighborDown, NeighborAttempt:
		log.Debug("dropping database description")
	case NeighborInit:
		inst.neighborEvent(n, ne2WayReceived)
	case NeighborTwoWay:
		// An adjacency isn't wanted, or AdjOK? hasn't been evaluated yet.
	case NeighborExStart:
		inst.handleDatabaseDescriptionInExStart(iface, n, dd)
	case NeighborExchange:
		inst.handleDatabaseDescriptionInExchange(iface, n, dd)
	case NeighborLoading, NeighborFull:
		inst.handleDatabaseDescriptionAfterExchange(iface, n, dd)
	}
}

func (inst *Instance) handleDatabaseDescriptionInExStart(iface *Interface, n *Neighbor, dd *DatabaseDescription) {
	log := inst.neighborLog(iface, n)
	flags := dd.Flags

	switch {
	case flags.Init() && flags.More() && flags.Master() && len(dd.LSAHeaders) == 0:
		if n.id <= inst.routerID {
			// We have the higher router ID. Keep insisting on being master.
			log.Debug("neighbor claims master, reasserting", "seq", dd.SequenceNumber)
			inst.sendDatabaseDescription(iface, n, true)
			return
		}

		n.options = dd.Options
		n.lastReceivedDD = dd.triple()
		n.hasLastReceivedDD = true
		n.role = RoleSlave
		n.ddSequenceNumber = dd.SequenceNumber

		log.Info("negotiated database exchange", "role", n.role, "seq", n.ddSequenceNumber)

		if !inst.processLSAHeaders(iface, n, dd, true) {
			return
		}
		inst.neighborEvent(n, neNegotiationDone)
	case !flags.Init() && !flags.Master() && dd.SequenceNumber == n.ddSequenceNumber && n.id < inst.routerID:
		n.options = dd.Options
		n.lastReceivedDD = dd.triple()
		n.hasLastReceivedDD = true
		n.role = RoleMaster

		log.Info("negotiated database exchange", "role", n.role, "seq", n.ddSequenceNumber)

		if !inst.processLSAHeaders(iface, n, dd, true) {
			return
		}
		inst.neighborEvent(n, neNegotiationDone)
	default:
		log.Debug("ignoring database description in ExStart", "flags", flags, "seq", dd.SequenceNumber)
		return
	}

	inst.startRequesting(iface, n)
}

func (inst *Instance) handleDatabaseDescriptionInExchange(iface *Interface, n *Neighbor, dd *DatabaseDescription) {
	log := inst.neighborLog(iface, n)

	if n.isDuplicateDatabaseDescription(dd) {
		if n.role == RoleSlave {
			log.Debug("duplicate database description, retransmitting", "seq", dd.SequenceNumber)
			inst.retransmitDD(iface, n)
		} else {
			log.Debug("dropping duplicate database description", "seq", dd.SequenceNumber)
		}
		return
	}

	if dd.Flags.Master() == (n.role == RoleMaster) {
		log.Warn("database description with unexpected master/slave bit", "flags", dd.Flags, "role", n.role)
		inst.neighborEvent(n, neSeqNumberMismatch)
		return
	}

	if dd.Flags.Init() {
		log.Warn("database description with initialize bit during exchange")
		inst.neighborEvent(n, neSeqNumberMismatch)
		return
	}

	if n.hasLastReceivedDD && dd.Options != n.lastReceivedDD.options {
		log.Warn("database description options changed", "options", dd.Options, "was", n.lastReceivedDD.options)
		inst.neighborEvent(n, neSeqNumberMismatch)
		return
	}

	expected := n.ddSequenceNumber
	if n.role == RoleSlave {
		expected++
	}
	if dd.SequenceNumber != expected {
		log.Warn("database description out of sequence", "seq", dd.SequenceNumber, "expected", expected)
		inst.neighborEvent(n, neSeqNumberMismatch)
		return
	}

	n.lastReceivedDD = dd.triple()
	n.hasLastReceivedDD = true

	if !inst.processLSAHeaders(iface, n, dd, false) {
		return
	}

	inst.startRequesting(iface, n)
}

func (inst *Instance) handleDatabaseDescriptionAfterExchange(iface *Interface, n *Neighbor, dd *DatabaseDescription) {
	log := inst.neighborLog(iface, n)

	if dd.Flags.Init() || !n.isDuplicateDatabaseDescription(dd) {
		log.Warn("database description after exchange finished", "flags", dd.Flags, "seq", dd.SequenceNumber)
		inst.neighborEvent(n, neSeqNumberMismatch)
		return
	}

	if n.role != RoleSlave {
		log.Debug("dropping duplicate database description", "seq", dd.SequenceNumber)
		return
	}

	if !inst.retransmitDD(iface, n) {
		log.Warn("duplicate database description and nothing to retransmit", "seq", dd.SequenceNumber)
		inst.neighborEvent(n, neSeqNumberMismatch)
	}
}

func (n *Neighbor) isDuplicateDatabaseDescription(dd *DatabaseDescription) bool {
	return n.hasLastReceivedDD && dd.triple() == n.lastReceivedDD
}

// processLSAHeaders handles the LSA headers of an accepted Database
// Description and moves the exchange forward. negotiating is true for the
// packet that concluded ExStart, which is never answered directly. It
// returns false if the packet was rejected.
func (inst *Instance) processLSAHeaders(iface *Interface, n *Neighbor, dd *DatabaseDescription, negotiating bool) bool {
	area := inst.areas[iface.area]

	for _, h := range dd.LSAHeaders {
		if !h.Type.Valid() || (h.Type == LSTypeASExternal && !area.externalRoutingCapability) {
			inst.neighborLog(iface, n).Warn("database description with unacceptable LSA", "lsa", h.Key())
			inst.neighborEvent(n, neSeqNumberMismatch)
			return false
		}

		local, ok := area.db.get(h.Key())
		if !ok || inst.freshness.Compare(h, local.LSAHeader) > 0 {
			n.requestList.add(h, inst.freshness)
		}
	}

	if n.role == RoleMaster {
		n.ddSequenceNumber++
		n.summaryList = n.summaryList[n.inFlight:]
		n.inFlight = 0

		if len(n.summaryList) == 0 && !dd.Flags.More() {
			inst.neighborEvent(n, neExchangeDone)
		} else if !negotiating {
			inst.sendDatabaseDescription(iface, n, false)
			inst.startDDRxmtTimer(iface, n)
		}
	} else {
		n.ddSequenceNumber = dd.SequenceNumber

		if !negotiating {
			inst.sendDatabaseDescription(iface, n, false)
		}

		if !dd.Flags.More() && len(n.summaryList) == 0 {
			inst.neighborEvent(n, neExchangeDone)
		}
	}

	return true
}

// sendDatabaseDescription sends the next Database Description to n. With
// initOnly, or while still in ExStart, it's the empty packet with I, M and
// MS set. Otherwise it describes as much of the summary list as fits.
func (inst *Instance) sendDatabaseDescription(iface *Interface, n *Neighbor, initOnly bool) {
	area := inst.areas[iface.area]

	dd := &DatabaseDescription{
		InterfaceMTU:   iface.mtu,
		Options:        area.options(),
		SequenceNumber: n.ddSequenceNumber,
	}

	if initOnly || n.state == NeighborExStart {
		dd.Flags = DDInit | DDMore | DDMasterSlave
		n.inFlight = 0
	} else {
		count := min(iface.maxDDHeaders(), len(n.summaryList))
		dd.LSAHeaders = append([]LSAHeader(nil), n.summaryList[:count]...)

		if count < len(n.summaryList) {
			dd.Flags |= DDMore
		}
		if n.role == RoleMaster {
			dd.Flags |= DDMasterSlave
			n.inFlight = count
		} else {
			n.summaryList = n.summaryList[count:]
			n.inFlight = 0
		}
	}

	n.lastSentDD = dd
	inst.send(iface, n.addr, dd)
}

// retransmitDD resends the last Database Description sent to n. It returns
// false if there isn't one.
func (inst *Instance) retransmitDD(iface *Interface, n *Neighbor) bool {
	if n.lastSentDD == nil {
		return false
	}

	inst.send(iface, n.addr, n.lastSentDD)
	return true
}
