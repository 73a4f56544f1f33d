package ospf

import (
	"fmt"
	"net"
	"net/netip"

	"go4.org/netipx"

	"github.com/inet-framework/inet-sub064/common"
)

var (
	AllSPFRouters = netip.MustParseAddr("224.0.0.5")
	AllDRouters   = netip.MustParseAddr("224.0.0.6")
)

type PacketType uint8

const (
	TypeHello PacketType = iota + 1
	TypeDatabaseDescription
	TypeLinkStateRequest
	TypeLinkStateUpdate
	TypeLinkStateAcknowledgment
)

func (t PacketType) String() string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeDatabaseDescription:
		return "Database Description"
	case TypeLinkStateRequest:
		return "Link State Request"
	case TypeLinkStateUpdate:
		return "Link State Update"
	case TypeLinkStateAcknowledgment:
		return "Link State Acknowledgment"
	default:
		return fmt.Sprintf("PacketType(%d)", t)
	}
}

// Options is the OSPF options field carried in Hello and DD packets and
// LSA headers.
type Options uint8

const (
	CapE  Options = 1 << 1
	CapMC Options = 1 << 2
	CapNP Options = 1 << 3
	CapEA Options = 1 << 4
	CapDC Options = 1 << 5
)

func (o Options) E() bool {
	return o&CapE != 0
}

// Header is the portion of the common OSPF header the protocol looks at, plus
// the addresses of the IP datagram that carried it.
type Header struct {
	RouterID common.RouterID
	AreaID   common.AreaID
	Src      netip.Addr
	Dst      netip.Addr
}

func (h *Header) header() *Header {
	return h
}

// Packet is one of *Hello, *DatabaseDescription, *LinkStateRequest,
// *LinkStateUpdate or *LinkStateAck. The set is closed.
type Packet interface {
	Type() PacketType
	header() *Header
}

// PacketHeader returns the common header of p.
func PacketHeader(p Packet) *Header {
	return p.header()
}

type Hello struct {
	Header
	NetworkMask        net.IPMask
	HelloInterval      uint16
	Options            Options
	RouterPriority     uint8
	RouterDeadInterval uint32
	DesignatedRouter   netip.Addr
	BackupDesignated   netip.Addr
	Neighbors          []common.RouterID
}

func (*Hello) Type() PacketType { return TypeHello }

// netmaskBits returns the prefix length of the network mask, or -1 if the
// mask isn't a valid IPv4 mask.
func (h *Hello) netmaskBits() int {
	p, ok := netipx.FromStdIPNet(&net.IPNet{IP: net.IPv4zero.To4(), Mask: h.NetworkMask})
	if !ok || !p.Addr().Is4() {
		return -1
	}
	return p.Bits()
}

// DDFlags is the I/M/MS byte of a Database Description packet.
type DDFlags uint8

const (
	DDMasterSlave DDFlags = 1 << iota
	DDMore
	DDInit
)

func (f DDFlags) Init() bool   { return f&DDInit != 0 }
func (f DDFlags) More() bool   { return f&DDMore != 0 }
func (f DDFlags) Master() bool { return f&DDMasterSlave != 0 }

func (f DDFlags) String() string {
	b := []byte("---")
	if f.Init() {
		b[0] = 'I'
	}
	if f.More() {
		b[1] = 'M'
	}
	if f.Master() {
		b[2] = 'S'
	}
	return string(b)
}

type DatabaseDescription struct {
	Header
	InterfaceMTU   uint16
	Options        Options
	Flags          DDFlags
	SequenceNumber uint32
	LSAHeaders     []LSAHeader
}

func (*DatabaseDescription) Type() PacketType { return TypeDatabaseDescription }

// ddTriple is what a Database Description is remembered by to detect
// duplicates.
type ddTriple struct {
	flags          DDFlags
	options        Options
	sequenceNumber uint32
}

func (dd *DatabaseDescription) triple() ddTriple {
	return ddTriple{flags: dd.Flags, options: dd.Options, sequenceNumber: dd.SequenceNumber}
}

type LinkStateRequest struct {
	Header
	Requests []LSAKey
}

func (*LinkStateRequest) Type() PacketType { return TypeLinkStateRequest }

type LinkStateUpdate struct {
	Header
	LSAs []*LSA
}

func (*LinkStateUpdate) Type() PacketType { return TypeLinkStateUpdate }

type LinkStateAck struct {
	Header
	LSAHeaders []LSAHeader
}

func (*LinkStateAck) Type() PacketType { return TypeLinkStateAcknowledgment }
