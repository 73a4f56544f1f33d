package ospf

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"github.com/inet-framework/inet-sub064/common"
)

const (
	InitialSequenceNumber int32  = math.MinInt32 + 1
	MaxSequenceNumber     int32  = math.MaxInt32
	MaxAge                uint16 = 3600 // 1 hour
	MaxAgeDiff            uint16 = 900  // 15 minutes
)

const LSAHeaderLen = 20

type LSType uint8

const (
	LSTypeRouter LSType = iota + 1
	LSTypeNetwork
	LSTypeSummary
	LSTypeASBRSummary
	LSTypeASExternal
)

func (t LSType) String() string {
	switch t {
	case LSTypeRouter:
		return "Router-LSA"
	case LSTypeNetwork:
		return "Network-LSA"
	case LSTypeSummary:
		return "Summary-LSA"
	case LSTypeASBRSummary:
		return "ASBR-Summary-LSA"
	case LSTypeASExternal:
		return "AS-External-LSA"
	default:
		return fmt.Sprintf("LSType(%d)", t)
	}
}

// Valid reports whether t is one of the five OSPFv2 LSA types.
func (t LSType) Valid() bool {
	return t >= LSTypeRouter && t <= LSTypeASExternal
}

// LSAKey identifies an LSA independent of its instance.
type LSAKey struct {
	Type              LSType
	ID                netip.Addr
	AdvertisingRouter common.RouterID
}

func (k LSAKey) String() string {
	return fmt.Sprintf("%s id=%s adv=%s", k.Type, k.ID, k.AdvertisingRouter)
}

type LSAHeader struct {
	Age               uint16
	Options           Options
	Type              LSType
	ID                netip.Addr
	AdvertisingRouter common.RouterID
	SequenceNumber    int32
	Checksum          uint16
	Length            uint16
}

func (h LSAHeader) Key() LSAKey {
	return LSAKey{Type: h.Type, ID: h.ID, AdvertisingRouter: h.AdvertisingRouter}
}

func (h LSAHeader) String() string {
	return fmt.Sprintf("%s seq=%#x age=%d cksum=%#04x", h.Key(), uint32(h.SequenceNumber), h.Age, h.Checksum)
}

func (h LSAHeader) encodeTo(data []byte) {
	binary.BigEndian.PutUint16(data[0:2], h.Age)
	data[2] = uint8(h.Options)
	data[3] = uint8(h.Type)
	copy(data[4:8], to4(h.ID))
	binary.BigEndian.PutUint32(data[8:12], uint32(h.AdvertisingRouter))
	binary.BigEndian.PutUint32(data[12:16], uint32(h.SequenceNumber))
	binary.BigEndian.PutUint16(data[16:18], h.Checksum)
	binary.BigEndian.PutUint16(data[18:20], h.Length)
}

// Freshness holds the architectural constants used to decide which of two
// instances of the same LSA is more recent.
type Freshness struct {
	MaxAge            uint16
	MaxAgeDiff        uint16
	MaxSequenceNumber int32
}

var DefaultFreshness = Freshness{
	MaxAge:            MaxAge,
	MaxAgeDiff:        MaxAgeDiff,
	MaxSequenceNumber: MaxSequenceNumber,
}

// Compare returns 1 if a is more recent than b, -1 if b is more recent, and
// 0 if they are the same instance.
//
// Sequence numbers are compared as signed integers. The space runs linearly
// from InitialSequenceNumber to MaxSequenceNumber; an LSA at the maximum must
// be flushed before the sequence can start over.
func (f Freshness) Compare(a, b LSAHeader) int {
	if a.SequenceNumber < b.SequenceNumber {
		return -1
	} else if a.SequenceNumber > b.SequenceNumber {
		return 1
	}

	if a.Checksum < b.Checksum {
		return -1
	} else if a.Checksum > b.Checksum {
		return 1
	}

	aMax, bMax := a.Age >= f.MaxAge, b.Age >= f.MaxAge
	if aMax && !bMax {
		return 1
	} else if !aMax && bMax {
		return -1
	}

	diff := abs(int(a.Age) - int(b.Age))
	if diff >= int(f.MaxAgeDiff) {
		if a.Age < b.Age {
			return 1
		}
		return -1
	}

	return 0
}

// Saturated reports whether h can no longer be re-originated with a higher
// sequence number.
func (f Freshness) Saturated(h LSAHeader) bool {
	return h.SequenceNumber >= f.MaxSequenceNumber
}

// LSA is a complete link state advertisement. Body holds everything after
// the 20 byte header. With the exception of Age, an LSA is never modified
// after it has been built; use WithAge to get a re-aged copy.
type LSA struct {
	LSAHeader
	Body []byte
}

// NewLSA fills in the length and Fletcher checksum of h and returns the LSA.
func NewLSA(h LSAHeader, body []byte) *LSA {
	h.Length = uint16(LSAHeaderLen + len(body))
	l := &LSA{LSAHeader: h, Body: body}
	l.Checksum = fletcher16GenerateChecksum(l.Bytes()[2:], 14)
	return l
}

func (l *LSA) Bytes() []byte {
	data := make([]byte, LSAHeaderLen+len(l.Body))
	l.encodeTo(data)
	copy(data[LSAHeaderLen:], l.Body)
	return data
}

// IsChecksumValid verifies the Fletcher checksum. Age is excluded.
func (l *LSA) IsChecksumValid() bool {
	return fletcher16Checksum(l.Bytes()[2:]) == 0
}

func (l *LSA) WithAge(age uint16) *LSA {
	c := *l
	c.Age = age
	return &c
}

func fletcher16(data ...[]byte) (r0, r1 int) {
	var c0, c1 int

	for _, d := range data {
		for _, b := range d {
			c0 = (c0 + int(b)) % 255
			c1 = (c1 + c0) % 255
		}
	}

	return c0, c1
}

func fletcher16Checksum(data []byte) uint16 {
	c0, c1 := fletcher16(data)
	return uint16(c1<<8 | c0)
}

// offset is relative to data, which starts at the LSA's options byte.
func fletcher16GenerateChecksum(data []byte, offset int) uint16 {
	c0, c1 := fletcher16(data[:offset], []byte{0, 0}, data[offset+2:])

	x := ((len(data)-offset-1)*c0 - c1) % 255
	if x <= 0 {
		x += 255
	}

	y := 510 - c0 - x
	if y > 255 {
		y -= 255
	}

	return uint16(x<<8 | y)
}
