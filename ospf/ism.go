package ospf

// interfaceEvent runs the interface state machine (RFC 2328 9.3).
func (inst *Instance) interfaceEvent(iface *Interface, event interfaceEvent) {
	log := inst.log.With("iface", iface.name, "state", iface.state)
	log.Debug("interface event", "event", event)

	switch event {
	case ieInterfaceUp:
		if iface.state != InterfaceDown {
			break
		}

		inst.startHelloTimer(iface)

		switch iface.typ {
		case NetworkPointToPoint, NetworkPointToMultipoint, NetworkVirtualLink:
			inst.setInterfaceState(iface, InterfacePointToPoint)
		case NetworkBroadcast, NetworkNBMA:
			if iface.priority == 0 {
				inst.setInterfaceState(iface, InterfaceDROther)
			} else {
				inst.setInterfaceState(iface, InterfaceWaiting)
				iface.waitTimer = inst.afterFunc(seconds(iface.routerDeadInterval), func() {
					iface.waitTimer = nil
					inst.interfaceEvent(iface, ieWaitTimer)
				})
			}

			if iface.typ == NetworkNBMA {
				inst.startStaticNeighbors(iface)
			}
		}
		return
	case ieWaitTimer, ieBackupSeen:
		if iface.state == InterfaceWaiting {
			stopTimer(&iface.waitTimer)
			inst.electDR(iface)
			return
		}
	case ieNeighborChange:
		switch iface.state {
		case InterfaceDROther, InterfaceBackup, InterfaceDR:
			inst.electDR(iface)
			return
		}
	case ieInterfaceDown:
		inst.resetInterface(iface)
		inst.setInterfaceState(iface, InterfaceDown)
		return
	case ieLoopInd:
		inst.resetInterface(iface)
		inst.setInterfaceState(iface, InterfaceLoopback)
		return
	case ieUnloopInd:
		if iface.state == InterfaceLoopback {
			inst.setInterfaceState(iface, InterfaceDown)
			return
		}
	}

	log.Debug("interface state machine: unexpected event", "event", event)
}

func (inst *Instance) resetInterface(iface *Interface) {
	stopTimer(&iface.helloTimer)
	stopTimer(&iface.waitTimer)

	for _, n := range iface.neighbors {
		if n != nil {
			inst.neighborEvent(n, neKillNbr)
		}
	}

	iface.dr = DesignatedRouter{}
	iface.bdr = DesignatedRouter{}
}

// startStaticNeighbors creates the configured neighbors of an NBMA
// interface and, if this router is eligible to become DR, starts talking to
// them.
func (inst *Instance) startStaticNeighbors(iface *Interface) {
	for _, addr := range iface.staticNeighbors {
		n := iface.lookup(addr, 0)
		if n == nil {
			n = inst.addNeighbor(iface, 0, addr)
			n.static = true
		}

		if iface.priority > 0 {
			inst.neighborEvent(n, neStart)
		}
	}
}

func (inst *Instance) setInterfaceState(iface *Interface, state InterfaceState) {
	if iface.state == state {
		return
	}

	old := iface.state
	iface.state = state

	inst.log.Info("interface state changed", "iface", iface.name, "from", old, "to", state)
	inst.metrics.interfaceState(inst.routerID, iface.name, state)

	areaRef := iface.area
	inst.later(func() {
		inst.originateLSAs(inst.areas[areaRef])
	})
}
