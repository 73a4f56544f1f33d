package ospf

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(id string, seq int32) LSAHeader {
	return LSAHeader{
		Type:              LSTypeRouter,
		ID:                netip.MustParseAddr(id),
		AdvertisingRouter: rid(id),
		SequenceNumber:    seq,
	}
}

func TestRequestListKeepsInsertionOrder(t *testing.T) {
	l := newRequestList()
	require.True(t, l.empty())

	a, b, c := header("1.1.1.1", 1), header("2.2.2.2", 1), header("3.3.3.3", 1)
	l.add(a, DefaultFreshness)
	l.add(b, DefaultFreshness)
	l.add(c, DefaultFreshness)

	assert.Equal(t, []LSAKey{a.Key(), b.Key(), c.Key()}, l.keys())
	assert.Equal(t, []LSAKey{a.Key(), b.Key()}, l.first(2))
	assert.Equal(t, 3, len(l.first(10)))

	l.remove(b.Key())
	assert.Equal(t, []LSAKey{a.Key(), c.Key()}, l.keys())

	l.remove(b.Key())
	assert.Equal(t, 2, l.len())

	l.clear()
	assert.True(t, l.empty())
	_, ok := l.get(a.Key())
	assert.False(t, ok)
}

func TestRequestListKeepsNewestHeader(t *testing.T) {
	l := newRequestList()

	l.add(header("1.1.1.1", 5), DefaultFreshness)
	l.add(header("1.1.1.1", 7), DefaultFreshness)
	l.add(header("1.1.1.1", 6), DefaultFreshness)

	require.Equal(t, 1, l.len())
	h, ok := l.get(header("1.1.1.1", 0).Key())
	require.True(t, ok)
	assert.Equal(t, int32(7), h.SequenceNumber)
}

func TestRetransmissionList(t *testing.T) {
	l := newRetransmissionList()

	a := routerLSA("1.1.1.1", InitialSequenceNumber)
	b := routerLSA("2.2.2.2", InitialSequenceNumber)
	l.add(a)
	l.add(b)

	newer := routerLSA("1.1.1.1", InitialSequenceNumber+1)
	l.add(newer)

	require.Equal(t, 2, l.len())
	assert.Equal(t, []LSAKey{a.Key(), b.Key()}, l.keys())

	got, ok := l.get(a.Key())
	require.True(t, ok)
	assert.Same(t, newer, got)
	assert.Equal(t, []*LSA{newer, b}, l.all())

	l.remove(a.Key())
	assert.Equal(t, []LSAKey{b.Key()}, l.keys())

	l.clear()
	assert.Zero(t, l.len())
}

func TestLSDBSortedKeys(t *testing.T) {
	db := newLSDB()
	network := NewLSA(LSAHeader{Type: LSTypeNetwork, ID: netip.MustParseAddr("10.0.0.1"), AdvertisingRouter: rid("1.1.1.1")}, []byte{255, 255, 255, 0})
	db.set(routerLSA("2.2.2.2", 1), epoch)
	db.set(network, epoch)
	db.set(routerLSA("1.1.1.1", 1), epoch)

	assert.Equal(t, []LSAKey{
		routerLSA("1.1.1.1", 1).Key(),
		routerLSA("2.2.2.2", 1).Key(),
		network.Key(),
	}, db.sortedKeys())

	db.delete(network.Key())
	_, ok := db.get(network.Key())
	assert.False(t, ok)
}
