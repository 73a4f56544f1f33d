package ospf

import (
	"net/netip"

	"github.com/inet-framework/inet-sub064/common"
)

// candidate is a router taking part in the DR election, along with the DR
// and BDR it currently declares.
type candidate struct {
	id       common.RouterID
	addr     netip.Addr
	priority uint8
	dr       netip.Addr
	bdr      netip.Addr
}

func (c *candidate) declaresDR() bool {
	return c.dr == c.addr
}

func (c *candidate) declaresBDR() bool {
	return c.bdr == c.addr
}

func (c *candidate) designatedRouter() DesignatedRouter {
	if c == nil {
		return DesignatedRouter{}
	}
	return DesignatedRouter{ID: c.id, Addr: c.addr}
}

// better reports whether a beats b: highest priority, then highest router ID.
func better(a, b *candidate) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.id > b.id
}

// pickBDR implements step 2 of RFC 2328 9.4.
func pickBDR(cands []*candidate) *candidate {
	var best *candidate
	declared := false

	for _, c := range cands {
		if c.declaresDR() {
			continue
		}

		if c.declaresBDR() {
			if !declared || better(c, best) {
				best = c
				declared = true
			}
		} else if !declared && (best == nil || better(c, best)) {
			best = c
		}
	}

	return best
}

// pickDR implements step 3 of RFC 2328 9.4.
func pickDR(cands []*candidate, bdr *candidate) *candidate {
	var best *candidate
	for _, c := range cands {
		if c.declaresDR() && (best == nil || better(c, best)) {
			best = c
		}
	}

	if best == nil {
		return bdr
	}
	return best
}

func (inst *Instance) candidates(iface *Interface, self *candidate) []*candidate {
	var cands []*candidate
	if self.priority > 0 {
		cands = append(cands, self)
	}

	for _, n := range iface.neighbors {
		if n == nil || n.state < NeighborTwoWay || n.priority == 0 {
			continue
		}
		cands = append(cands, &candidate{
			id:       n.id,
			addr:     n.addr,
			priority: n.priority,
			dr:       n.dr.Addr,
			bdr:      n.bdr.Addr,
		})
	}

	return cands
}

func (inst *Instance) calculateDR(iface *Interface, self *candidate) (dr, bdr *candidate) {
	cands := inst.candidates(iface, self)
	bdr = pickBDR(cands)
	dr = pickDR(cands, bdr)
	return dr, bdr
}

// electDR runs the DR election (RFC 2328 9.4) on iface and moves the
// interface into DR, Backup or DROther.
func (inst *Instance) electDR(iface *Interface) {
	oldDR, oldBDR := iface.dr, iface.bdr
	wasDR, wasBDR := iface.isDR(), iface.isBackup()

	self := &candidate{
		id:       inst.routerID,
		addr:     iface.Addr(),
		priority: iface.priority,
		dr:       iface.dr.Addr,
		bdr:      iface.bdr.Addr,
	}

	dr, bdr := inst.calculateDR(iface, self)
	isDR := dr != nil && dr.addr == self.addr
	isBDR := bdr != nil && bdr.addr == self.addr

	if isDR != wasDR || isBDR != wasBDR {
		self.dr = dr.designatedRouter().Addr
		self.bdr = bdr.designatedRouter().Addr
		dr, bdr = inst.calculateDR(iface, self)
		isDR = dr != nil && dr.addr == self.addr
		isBDR = bdr != nil && bdr.addr == self.addr
	}

	iface.dr = dr.designatedRouter()
	iface.bdr = bdr.designatedRouter()

	switch {
	case isDR:
		inst.setInterfaceState(iface, InterfaceDR)
	case isBDR:
		inst.setInterfaceState(iface, InterfaceBackup)
	default:
		inst.setInterfaceState(iface, InterfaceDROther)
	}

	inst.log.Debug("elected designated routers", "iface", iface.name, "dr", iface.dr.ID, "bdr", iface.bdr.ID)

	if iface.dr != oldDR || iface.bdr != oldBDR {
		for _, n := range iface.neighbors {
			if n != nil && n.state >= NeighborTwoWay {
				inst.neighborEvent(n, neAdjOK)
			}
		}
	}
}
