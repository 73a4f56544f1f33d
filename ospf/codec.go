package ospf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/inet-framework/inet-sub064/common"
)

var (
	ErrShortPacket = errors.New("ospf: packet too short")
	ErrBadChecksum = errors.New("ospf: bad checksum")
	ErrBadVersion  = errors.New("ospf: unsupported version")
)

const (
	headerLen   = 24
	helloLen    = 20 // excluding the neighbor list
	ddLen       = 8  // excluding LSA headers
	lsReqLen    = 12 // per request
	lsUpdateLen = 4  // excluding LSAs
)

func checksum(data ...[]byte) uint16 {
	var sum uint32
	for _, d := range data {
		l := len(d)
		for i := 0; i < l; i += 2 {
			if i+1 < l {
				sum += uint32(d[i])<<8 | uint32(d[i+1])
			} else {
				sum += uint32(d[i]) << 8
			}
		}
	}

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}

// Encode serializes p into an OSPFv2 packet with null authentication.
// Src and Dst are not part of the packet.
func Encode(p Packet) []byte {
	var body []byte

	switch p := p.(type) {
	case *Hello:
		body = make([]byte, helloLen+4*len(p.Neighbors))
		copy(body[0:4], p.NetworkMask)
		binary.BigEndian.PutUint16(body[4:6], p.HelloInterval)
		body[6] = uint8(p.Options)
		body[7] = p.RouterPriority
		binary.BigEndian.PutUint32(body[8:12], p.RouterDeadInterval)
		copy(body[12:16], to4(p.DesignatedRouter))
		copy(body[16:20], to4(p.BackupDesignated))
		for i, id := range p.Neighbors {
			binary.BigEndian.PutUint32(body[helloLen+4*i:], uint32(id))
		}
	case *DatabaseDescription:
		body = make([]byte, ddLen+LSAHeaderLen*len(p.LSAHeaders))
		binary.BigEndian.PutUint16(body[0:2], p.InterfaceMTU)
		body[2] = uint8(p.Options)
		body[3] = uint8(p.Flags)
		binary.BigEndian.PutUint32(body[4:8], p.SequenceNumber)
		for i, h := range p.LSAHeaders {
			h.encodeTo(body[ddLen+LSAHeaderLen*i:])
		}
	case *LinkStateRequest:
		body = make([]byte, lsReqLen*len(p.Requests))
		for i, k := range p.Requests {
			b := body[lsReqLen*i:]
			binary.BigEndian.PutUint32(b[0:4], uint32(k.Type))
			copy(b[4:8], to4(k.ID))
			binary.BigEndian.PutUint32(b[8:12], uint32(k.AdvertisingRouter))
		}
	case *LinkStateUpdate:
		body = make([]byte, lsUpdateLen, lsUpdateLen+lsaBytes(p.LSAs))
		binary.BigEndian.PutUint32(body[0:4], uint32(len(p.LSAs)))
		for _, l := range p.LSAs {
			body = append(body, l.Bytes()...)
		}
	case *LinkStateAck:
		body = make([]byte, LSAHeaderLen*len(p.LSAHeaders))
		for i, h := range p.LSAHeaders {
			h.encodeTo(body[LSAHeaderLen*i:])
		}
	default:
		panic(fmt.Sprintf("unreachable: encode %T", p))
	}

	h := p.header()
	data := make([]byte, headerLen+len(body))
	data[0] = 2
	data[1] = uint8(p.Type())
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	binary.BigEndian.PutUint32(data[4:8], uint32(h.RouterID))
	binary.BigEndian.PutUint32(data[8:12], uint32(h.AreaID))
	// data[12:14] is the checksum, data[14:24] is null authentication.
	copy(data[headerLen:], body)

	binary.BigEndian.PutUint16(data[12:14], checksum(data[0:16], data[24:]))

	return data
}

func lsaBytes(lsas []*LSA) int {
	n := 0
	for _, l := range lsas {
		n += LSAHeaderLen + len(l.Body)
	}
	return n
}

// Decode parses an OSPFv2 packet that arrived from src addressed to dst.
func Decode(src, dst netip.Addr, data []byte) (Packet, error) {
	if len(data) < headerLen {
		return nil, ErrShortPacket
	}
	if data[0] != 2 {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[0])
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < headerLen || length > len(data) {
		return nil, fmt.Errorf("%w: length field %d, have %d bytes", ErrShortPacket, length, len(data))
	}
	data = data[:length]

	if checksum(data[0:12], data[14:16], data[24:]) != binary.BigEndian.Uint16(data[12:14]) {
		return nil, ErrBadChecksum
	}

	t := PacketType(data[1])
	minLen := map[PacketType]int{
		TypeHello:                   headerLen + helloLen,
		TypeDatabaseDescription:     headerLen + ddLen,
		TypeLinkStateRequest:        headerLen,
		TypeLinkStateUpdate:         headerLen + lsUpdateLen,
		TypeLinkStateAcknowledgment: headerLen,
	}
	need, ok := minLen[t]
	if !ok {
		return nil, fmt.Errorf("ospf: unknown packet type %d", data[1])
	}
	if length < need {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortPacket, t, need, length)
	}

	hdr := Header{
		RouterID: common.RouterID(binary.BigEndian.Uint32(data[4:8])),
		AreaID:   common.AreaID(binary.BigEndian.Uint32(data[8:12])),
		Src:      src,
		Dst:      dst,
	}

	// Link State Updates are parsed here rather than by gopacket, which
	// interprets LSA bodies and rejects types it doesn't know. LSA bodies
	// are kept opaque.
	if t == TypeLinkStateUpdate {
		lsas, err := decodeLSAs(data[headerLen:])
		if err != nil {
			return nil, err
		}
		return &LinkStateUpdate{Header: hdr, LSAs: lsas}, nil
	}

	var layer layers.OSPFv2
	if err := layer.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("ospf: decode %s: %w", t, err)
	}

	switch content := layer.Content.(type) {
	case layers.HelloPkgV2:
		neighbors := make([]common.RouterID, len(content.NeighborID))
		for i, id := range content.NeighborID {
			neighbors[i] = common.RouterID(id)
		}
		mask := make(net.IPMask, 4)
		binary.BigEndian.PutUint32(mask, content.NetworkMask)
		return &Hello{
			Header:             hdr,
			NetworkMask:        mask,
			HelloInterval:      content.HelloInterval,
			Options:            Options(content.Options),
			RouterPriority:     content.RtrPriority,
			RouterDeadInterval: content.RouterDeadInterval,
			DesignatedRouter:   common.Uint32ToAddr(content.DesignatedRouterID),
			BackupDesignated:   common.Uint32ToAddr(content.BackupDesignatedRouterID),
			Neighbors:          neighbors,
		}, nil
	case layers.DbDescPkg:
		headers := make([]LSAHeader, len(content.LSAinfo))
		for i, h := range content.LSAinfo {
			headers[i] = fromLayerHeader(h)
		}
		return &DatabaseDescription{
			Header:         hdr,
			InterfaceMTU:   content.InterfaceMTU,
			Options:        Options(content.Options),
			Flags:          DDFlags(content.Flags),
			SequenceNumber: content.DDSeqNumber,
			LSAHeaders:     headers,
		}, nil
	case []layers.LSReq:
		reqs := make([]LSAKey, len(content))
		for i, r := range content {
			reqs[i] = LSAKey{
				Type:              LSType(r.LSType),
				ID:                common.Uint32ToAddr(r.LSID),
				AdvertisingRouter: common.RouterID(r.AdvRouter),
			}
		}
		return &LinkStateRequest{Header: hdr, Requests: reqs}, nil
	case []layers.LSAheader:
		headers := make([]LSAHeader, len(content))
		for i, h := range content {
			headers[i] = fromLayerHeader(h)
		}
		return &LinkStateAck{Header: hdr, LSAHeaders: headers}, nil
	default:
		return nil, fmt.Errorf("ospf: decode %s: unexpected content %T", t, content)
	}
}

// Depending on the packet type, gopacket either splits options and type or
// returns both in LSType as options<<8 | type.
func fromLayerHeader(h layers.LSAheader) LSAHeader {
	return LSAHeader{
		Age:               h.LSAge,
		Options:           Options(uint8(h.LSType>>8) | h.LSOptions),
		Type:              LSType(uint8(h.LSType)),
		ID:                common.Uint32ToAddr(h.LinkStateID),
		AdvertisingRouter: common.RouterID(h.AdvRouter),
		SequenceNumber:    int32(h.LSSeqNumber),
		Checksum:          h.LSChecksum,
		Length:            h.Length,
	}
}

func decodeLSAHeader(b []byte) LSAHeader {
	return LSAHeader{
		Age:               binary.BigEndian.Uint16(b[0:2]),
		Options:           Options(b[2]),
		Type:              LSType(b[3]),
		ID:                addrFrom4(b[4:8]),
		AdvertisingRouter: common.RouterID(binary.BigEndian.Uint32(b[8:12])),
		SequenceNumber:    int32(binary.BigEndian.Uint32(b[12:16])),
		Checksum:          binary.BigEndian.Uint16(b[16:18]),
		Length:            binary.BigEndian.Uint16(b[18:20]),
	}
}

func decodeLSAs(data []byte) ([]*LSA, error) {
	n := int(binary.BigEndian.Uint32(data[0:4]))
	data = data[lsUpdateLen:]

	var lsas []*LSA
	for i := 0; i < n; i++ {
		if len(data) < LSAHeaderLen {
			return nil, fmt.Errorf("%w: LSA %d of %d truncated", ErrShortPacket, i+1, n)
		}
		h := decodeLSAHeader(data)
		if int(h.Length) < LSAHeaderLen || int(h.Length) > len(data) {
			return nil, fmt.Errorf("%w: LSA %d of %d has length %d", ErrShortPacket, i+1, n, h.Length)
		}
		body := make([]byte, int(h.Length)-LSAHeaderLen)
		copy(body, data[LSAHeaderLen:h.Length])
		lsas = append(lsas, &LSA{LSAHeader: h, Body: body})
		data = data[h.Length:]
	}

	return lsas, nil
}
