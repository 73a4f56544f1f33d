package ospf

import (
	"fmt"
	"net/netip"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/common"
)

type NeighborState int

const (
	NeighborDown NeighborState = iota
	NeighborAttempt
	NeighborInit
	NeighborTwoWay
	NeighborExStart
	NeighborExchange
	NeighborLoading
	NeighborFull
)

func (s NeighborState) String() string {
	switch s {
	case NeighborDown:
		return "Down"
	case NeighborAttempt:
		return "Attempt"
	case NeighborInit:
		return "Init"
	case NeighborTwoWay:
		return "2-Way"
	case NeighborExStart:
		return "ExStart"
	case NeighborExchange:
		return "Exchange"
	case NeighborLoading:
		return "Loading"
	case NeighborFull:
		return "Full"
	default:
		return fmt.Sprintf("NeighborState(%d)", s)
	}
}

type neighborEvent int

const (
	neHelloReceived neighborEvent = iota
	neStart
	ne2WayReceived
	neNegotiationDone
	neExchangeDone
	neBadLSReq
	neLoadingDone
	neAdjOK
	neSeqNumberMismatch
	ne1WayReceived
	neKillNbr
	neInactivityTimer
	neLLDown
)

func (e neighborEvent) String() string {
	switch e {
	case neHelloReceived:
		return "HelloReceived"
	case neStart:
		return "Start"
	case ne2WayReceived:
		return "2-WayReceived"
	case neNegotiationDone:
		return "NegotiationDone"
	case neExchangeDone:
		return "ExchangeDone"
	case neBadLSReq:
		return "BadLSReq"
	case neLoadingDone:
		return "LoadingDone"
	case neAdjOK:
		return "AdjOK?"
	case neSeqNumberMismatch:
		return "SeqNumberMismatch"
	case ne1WayReceived:
		return "1-WayReceived"
	case neKillNbr:
		return "KillNbr"
	case neInactivityTimer:
		return "InactivityTimer"
	case neLLDown:
		return "LLDown"
	default:
		return fmt.Sprintf("neighborEvent(%d)", e)
	}
}

// Role is the part a router plays in the database exchange with one neighbor.
type Role int

const (
	RoleUndefined Role = iota
	RoleMaster
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "Master"
	case RoleSlave:
		return "Slave"
	default:
		return "Undefined"
	}
}

// NeighborRef addresses a neighbor inside an Instance. Slots are never
// reused, so a stale ref resolves to nil rather than to a different neighbor.
type NeighborRef struct {
	Interface InterfaceRef
	Slot      int
}

// DesignatedRouter is a DR or BDR as seen by one router: the interface
// address it was advertised with, and the router ID behind it once known.
type DesignatedRouter struct {
	ID   common.RouterID
	Addr netip.Addr
}

func (d DesignatedRouter) isSet() bool {
	return d.Addr.IsValid() && !d.Addr.IsUnspecified()
}

type Neighbor struct {
	ref NeighborRef

	id       common.RouterID
	addr     netip.Addr
	state    NeighborState
	priority uint8
	options  Options
	dr       DesignatedRouter
	bdr      DesignatedRouter

	drResolved   bool
	deadInterval uint32
	static       bool

	role                  Role
	ddSequenceNumber      uint32
	firstAdjacencyAttempt bool
	lastReceivedDD        ddTriple
	hasLastReceivedDD     bool
	lastSentDD            *DatabaseDescription
	inFlight              int // summary list entries carried by lastSentDD, master only

	summaryList        []LSAHeader
	requestList        requestList
	outstanding        []LSAKey
	retransmissionList retransmissionList

	inactivityTimer clock.Timer
	ddRxmtTimer     clock.Timer
	ddHoldTimer     clock.Timer
	lsReqRxmtTimer  clock.Timer
	lsUpdRxmtTimer  clock.Timer
}

func newNeighbor(ref NeighborRef, id common.RouterID, addr netip.Addr) *Neighbor {
	return &Neighbor{
		ref:                   ref,
		id:                    id,
		addr:                  addr,
		state:                 NeighborDown,
		firstAdjacencyAttempt: true,
		requestList:           newRequestList(),
		retransmissionList:    newRetransmissionList(),
	}
}

func (n *Neighbor) Ref() NeighborRef { return n.ref }
func (n *Neighbor) ID() common.RouterID { return n.id }
func (n *Neighbor) Addr() netip.Addr { return n.addr }
func (n *Neighbor) State() NeighborState { return n.state }
func (n *Neighbor) Priority() uint8 { return n.priority }
func (n *Neighbor) Options() Options { return n.options }
func (n *Neighbor) Role() Role { return n.role }
func (n *Neighbor) DDSequenceNumber() uint32 { return n.ddSequenceNumber }
func (n *Neighbor) DR() DesignatedRouter { return n.dr }
func (n *Neighbor) BDR() DesignatedRouter { return n.bdr }
func (n *Neighbor) SummaryListLen() int { return len(n.summaryList) }
func (n *Neighbor) RequestListLen() int { return n.requestList.len() }
func (n *Neighbor) RetransmissionListLen() int { return n.retransmissionList.len() }
func (n *Neighbor) RequestList() []LSAKey { return n.requestList.keys() }
func (n *Neighbor) RetransmissionList() []LSAKey { return n.retransmissionList.keys() }
func (n *Neighbor) SummaryList() []LSAHeader { return append([]LSAHeader(nil), n.summaryList...) }
func (n *Neighbor) LastSentDD() *DatabaseDescription { return n.lastSentDD }

func (n *Neighbor) String() string {
	return fmt.Sprintf("%s (%s) %s", n.id, n.addr, n.state)
}

// declaresDR reports whether the neighbor's last Hello named itself DR.
func (n *Neighbor) declaresDR() bool {
	return n.dr.Addr == n.addr
}

func (n *Neighbor) declaresBDR() bool {
	return n.bdr.Addr == n.addr
}

func (n *Neighbor) clearLists() {
	n.summaryList = nil
	n.inFlight = 0
	n.requestList.clear()
	n.outstanding = nil
	n.retransmissionList.clear()
	stopTimer(&n.lsReqRxmtTimer)
	stopTimer(&n.lsUpdRxmtTimer)
}

func (n *Neighbor) stopTimers() {
	stopTimer(&n.inactivityTimer)
	stopTimer(&n.ddRxmtTimer)
	stopTimer(&n.ddHoldTimer)
	stopTimer(&n.lsReqRxmtTimer)
	stopTimer(&n.lsUpdRxmtTimer)
}

// requestList is an ordered set of LSAs the neighbor has that are newer than
// ours. The header kept for each key is the most recent one advertised.
type requestList struct {
	order   []LSAKey
	headers map[LSAKey]LSAHeader
}

func newRequestList() requestList {
	return requestList{headers: make(map[LSAKey]LSAHeader)}
}

// add inserts h, or replaces the entry for h's key if f says h is more recent.
func (l *requestList) add(h LSAHeader, f Freshness) {
	k := h.Key()
	old, ok := l.headers[k]
	if !ok {
		l.order = append(l.order, k)
		l.headers[k] = h
		return
	}
	if f.Compare(h, old) > 0 {
		l.headers[k] = h
	}
}

func (l *requestList) get(k LSAKey) (LSAHeader, bool) {
	h, ok := l.headers[k]
	return h, ok
}

func (l *requestList) remove(k LSAKey) {
	if _, ok := l.headers[k]; !ok {
		return
	}
	delete(l.headers, k)
	for i, o := range l.order {
		if o == k {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// first returns up to n keys in insertion order.
func (l *requestList) first(n int) []LSAKey {
	if n > len(l.order) {
		n = len(l.order)
	}
	return append([]LSAKey(nil), l.order[:n]...)
}

func (l *requestList) keys() []LSAKey {
	return append([]LSAKey(nil), l.order...)
}

func (l *requestList) len() int {
	return len(l.order)
}

func (l *requestList) empty() bool {
	return len(l.order) == 0
}

func (l *requestList) clear() {
	l.order = nil
	clear(l.headers)
}

// retransmissionList holds LSAs flooded to the neighbor that have not been
// acknowledged yet.
type retransmissionList struct {
	order []LSAKey
	lsas  map[LSAKey]*LSA
}

func newRetransmissionList() retransmissionList {
	return retransmissionList{lsas: make(map[LSAKey]*LSA)}
}

func (l *retransmissionList) add(lsa *LSA) {
	k := lsa.Key()
	if _, ok := l.lsas[k]; !ok {
		l.order = append(l.order, k)
	}
	l.lsas[k] = lsa
}

func (l *retransmissionList) get(k LSAKey) (*LSA, bool) {
	lsa, ok := l.lsas[k]
	return lsa, ok
}

func (l *retransmissionList) remove(k LSAKey) {
	if _, ok := l.lsas[k]; !ok {
		return
	}
	delete(l.lsas, k)
	for i, o := range l.order {
		if o == k {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *retransmissionList) all() []*LSA {
	lsas := make([]*LSA, 0, len(l.order))
	for _, k := range l.order {
		lsas = append(lsas, l.lsas[k])
	}
	return lsas
}

func (l *retransmissionList) keys() []LSAKey {
	return append([]LSAKey(nil), l.order...)
}

func (l *retransmissionList) len() int {
	return len(l.order)
}

func (l *retransmissionList) clear() {
	l.order = nil
	clear(l.lsas)
}
