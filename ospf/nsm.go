package ospf

// neighborEvent runs the neighbor state machine (RFC 2328 10.3).
func (inst *Instance) neighborEvent(n *Neighbor, event neighborEvent) {
	iface := inst.interfaces[n.ref.Interface]
	log := inst.neighborLog(iface, n)
	log.Debug("neighbor event", "event", event)

	if inst.handleCommonEvents(iface, n, event) {
		return
	}

	if n.state >= NeighborExStart && inst.handleCommonExchangeEvents(iface, n, event) {
		return
	}

	switch n.state {
	case NeighborDown:
		switch event {
		case neStart:
			// NBMA only
			inst.setNeighborState(iface, n, NeighborAttempt)
			inst.sendHello(iface, n.addr)
			inst.restartInactivityTimer(iface, n)
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborAttempt:
		log.Debug("neighbor state machine: unexpected event", "event", event)
	case NeighborInit:
		switch event {
		case ne1WayReceived:
			// do nothing
		case ne2WayReceived:
			if !iface.adjacencyNeeded(n) {
				inst.setNeighborState(iface, n, NeighborTwoWay)
				return
			}

			inst.setNeighborState(iface, n, NeighborExStart)
			inst.startExchange(iface, n)
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborTwoWay:
		switch event {
		case ne1WayReceived:
			n.clearLists()
			inst.setNeighborState(iface, n, NeighborInit)
		case ne2WayReceived:
			// NOOP
		case neAdjOK:
			if iface.adjacencyNeeded(n) {
				inst.setNeighborState(iface, n, NeighborExStart)
				inst.startExchange(iface, n)
			}
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborExStart:
		switch event {
		case neNegotiationDone:
			inst.negotiationDone(iface, n)
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborExchange:
		switch event {
		case neExchangeDone:
			inst.exchangeDone(iface, n)
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborLoading:
		switch event {
		case neLoadingDone:
			inst.setNeighborState(iface, n, NeighborFull)
		default:
			log.Debug("neighbor state machine: unexpected event", "event", event)
		}
	case NeighborFull:
		log.Debug("neighbor state machine: unexpected event", "event", event)
	}
}

// handleCommonEvents handles the events whose effect doesn't depend on the
// current state.
func (inst *Instance) handleCommonEvents(iface *Interface, n *Neighbor, event neighborEvent) (handled bool) {
	switch event {
	case neKillNbr, neLLDown, neInactivityTimer:
		inst.neighborDown(iface, n)
		return true
	case neHelloReceived:
		if n.state < NeighborInit {
			inst.setNeighborState(iface, n, NeighborInit)
		}
		inst.restartInactivityTimer(iface, n)
		return true
	default:
		return false
	}
}

func (inst *Instance) handleCommonExchangeEvents(iface *Interface, n *Neighbor, event neighborEvent) (handled bool) {
	switch event {
	case neSeqNumberMismatch, neBadLSReq:
		if n.state == NeighborExStart {
			return false
		}

		inst.neighborLog(iface, n).Warn("restarting database exchange", "event", event)
		inst.metrics.exchangeRestarted(inst.routerID, event)

		inst.abortExchange(n)
		inst.setNeighborState(iface, n, NeighborExStart)
		inst.startExchange(iface, n)
		return true
	case ne1WayReceived:
		inst.abortExchange(n)
		inst.setNeighborState(iface, n, NeighborInit)
		return true
	case ne2WayReceived:
		return true
	case neAdjOK:
		if !iface.adjacencyNeeded(n) {
			inst.abortExchange(n)
			inst.setNeighborState(iface, n, NeighborTwoWay)
		}
		return true
	default:
		return false
	}
}

func (inst *Instance) neighborDown(iface *Interface, n *Neighbor) {
	inst.abortExchange(n)
	n.stopTimers()
	n.role = RoleUndefined
	inst.setNeighborState(iface, n, NeighborDown)

	if !n.static {
		inst.removeNeighbor(iface, n)
	}
}

// abortExchange forgets everything about an adjacency in progress except
// the role and the DD sequence number.
func (inst *Instance) abortExchange(n *Neighbor) {
	n.clearLists()
	stopTimer(&n.ddRxmtTimer)
	stopTimer(&n.ddHoldTimer)
	n.lastSentDD = nil
	n.hasLastReceivedDD = false
}

// startExchange performs the actions on entering ExStart.
func (inst *Instance) startExchange(iface *Interface, n *Neighbor) {
	if n.firstAdjacencyAttempt {
		now := inst.clock.Now()
		h, m, s := now.Clock()
		ms := now.Nanosecond() / 1_000_000
		n.ddSequenceNumber = uint32(h*3600*1000 + m*60*1000 + s*1000 + ms)

		n.firstAdjacencyAttempt = false
	}

	n.ddSequenceNumber++
	n.role = RoleMaster

	inst.sendDatabaseDescription(iface, n, true)
	inst.startDDRxmtTimer(iface, n)
}

func (inst *Instance) negotiationDone(iface *Interface, n *Neighbor) {
	area := inst.areas[iface.area]
	n.summaryList = inst.databaseSummary(area, iface)
	n.inFlight = 0

	inst.setNeighborState(iface, n, NeighborExchange)

	if n.role == RoleMaster {
		inst.sendDatabaseDescription(iface, n, false)
		inst.startDDRxmtTimer(iface, n)
	} else {
		stopTimer(&n.ddRxmtTimer)
		inst.sendDatabaseDescription(iface, n, false)
	}
}

func (inst *Instance) exchangeDone(iface *Interface, n *Neighbor) {
	if n.role == RoleMaster {
		stopTimer(&n.ddRxmtTimer)
	} else {
		inst.startDDHoldTimer(iface, n)
	}

	if n.requestList.empty() {
		inst.setNeighborState(iface, n, NeighborFull)
		return
	}

	inst.setNeighborState(iface, n, NeighborLoading)
	inst.startRequesting(iface, n)
}

func (inst *Instance) setNeighborState(iface *Interface, n *Neighbor, state NeighborState) {
	if n.state == state {
		return
	}

	old := n.state
	n.state = state

	inst.log.Info("neighbor state changed", "iface", iface.name, "neighbor", n.id, "addr", n.addr, "from", old, "to", state)
	inst.metrics.neighborTransition(inst.routerID, old, state)

	if inst.changes != nil {
		inst.changes.Publish(StateChange{
			At:        inst.clock.Now(),
			Router:    inst.routerID,
			Interface: iface.name,
			Neighbor:  n.id,
			Addr:      n.addr,
			From:      old,
			To:        state,
		})
	}

	ifaceRef, areaRef := iface.ref, iface.area

	if (old >= NeighborTwoWay) != (state >= NeighborTwoWay) {
		inst.later(func() {
			inst.interfaceEvent(inst.interfaces[ifaceRef], ieNeighborChange)
		})
	}

	if old == NeighborFull || state == NeighborFull {
		inst.later(func() {
			inst.originateLSAs(inst.areas[areaRef])
		})
	}
}

func (inst *Instance) restartInactivityTimer(iface *Interface, n *Neighbor) {
	stopTimer(&n.inactivityTimer)
	n.inactivityTimer = inst.afterFunc(seconds(n.deadInterval), func() {
		if inst.neighbor(n.ref) != n {
			return
		}
		n.inactivityTimer = nil
		inst.neighborEvent(n, neInactivityTimer)
	})
}

func (inst *Instance) startDDRxmtTimer(iface *Interface, n *Neighbor) {
	stopTimer(&n.ddRxmtTimer)
	n.ddRxmtTimer = inst.afterFunc(seconds(iface.rxmtInterval), func() {
		if inst.neighbor(n.ref) != n {
			return
		}
		n.ddRxmtTimer = nil
		inst.handleDDRxmtTimer(iface, n)
	})
}

func (inst *Instance) handleDDRxmtTimer(iface *Interface, n *Neighbor) {
	switch {
	case n.state == NeighborExStart:
	case n.state == NeighborExchange && n.role == RoleMaster:
	default:
		inst.neighborLog(iface, n).Debug("unexpected DD retransmission timer", "role", n.role)
		return
	}

	inst.metrics.retransmitted(inst.routerID, TypeDatabaseDescription)
	inst.retransmitDD(iface, n)
	inst.startDDRxmtTimer(iface, n)
}

// startDDHoldTimer keeps the slave's last Database Description around for
// RouterDeadInterval after the exchange so duplicates from the master can
// still be answered.
func (inst *Instance) startDDHoldTimer(iface *Interface, n *Neighbor) {
	stopTimer(&n.ddHoldTimer)
	n.ddHoldTimer = inst.afterFunc(seconds(iface.routerDeadInterval), func() {
		if inst.neighbor(n.ref) != n {
			return
		}
		n.ddHoldTimer = nil
		n.lastSentDD = nil
	})
}
