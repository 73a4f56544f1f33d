package common

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
)

type RouterID uint32
type AreaID uint32

// Backbone is area 0.0.0.0.
const Backbone AreaID = 0

func (r RouterID) String() string {
	return toAddr(uint32(r)).String()
}

// Addr returns the router ID as an IPv4 address. Point-to-point neighbors are keyed by
// this value.
func (r RouterID) Addr() netip.Addr {
	return toAddr(uint32(r))
}

func (a AreaID) String() string {
	return toAddr(uint32(a)).String()
}

func RouterIDFromAddr(addr netip.Addr) RouterID {
	return RouterID(fromAddr(addr))
}

// ParseID accepts either a dotted quad or an unsigned 32 bit integer.
func ParseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err == nil {
		return uint32(n), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("must be an IPv4 address or an unsigned 32 bit integer")
	}

	return fromAddr(addr), nil
}

func toAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

func fromAddr(addr netip.Addr) uint32 {
	if !addr.Is4() {
		return 0
	}

	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

// AddrToUint32 converts an IPv4 address into its big endian integer form. Anything other
// than IPv4 is 0.
func AddrToUint32(addr netip.Addr) uint32 {
	return fromAddr(addr)
}

// Uint32ToAddr is the inverse of AddrToUint32.
func Uint32ToAddr(v uint32) netip.Addr {
	return toAddr(v)
}
