package ospf

import (
	"net/netip"
	"time"

	"github.com/inet-framework/inet-sub064/clock"
	"golang.org/x/exp/constraints"
)

func abs[T constraints.Signed](a T) T {
	if a < 0 {
		return -a
	} else {
		return a
	}
}

func to4(addr netip.Addr) []byte {
	if !addr.IsValid() {
		return []byte{0, 0, 0, 0}
	}
	b := addr.As4()
	return b[:]
}

func addrFrom4(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
}

// stopTimer stops *t if it is running and clears it.
func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func seconds[T uint16 | uint32](n T) time.Duration {
	return time.Duration(n) * time.Second
}
