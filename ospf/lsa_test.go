package ospf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshnessCompare(t *testing.T) {
	base := LSAHeader{SequenceNumber: InitialSequenceNumber + 10, Checksum: 0x1000, Age: 100}

	with := func(f func(h *LSAHeader)) LSAHeader {
		h := base
		f(&h)
		return h
	}

	tests := []struct {
		name string
		a, b LSAHeader
		want int
	}{
		{"identical", base, base, 0},
		{"higher sequence", with(func(h *LSAHeader) { h.SequenceNumber++ }), base, 1},
		{"lower sequence", with(func(h *LSAHeader) { h.SequenceNumber-- }), base, -1},
		{"sequence is signed", with(func(h *LSAHeader) { h.SequenceNumber = 1 }), with(func(h *LSAHeader) { h.SequenceNumber = -1 }), 1},
		{"higher checksum", with(func(h *LSAHeader) { h.Checksum++ }), base, 1},
		{"lower checksum", with(func(h *LSAHeader) { h.Checksum-- }), base, -1},
		{"max age wins", with(func(h *LSAHeader) { h.Age = MaxAge }), base, 1},
		{"max age loses", base, with(func(h *LSAHeader) { h.Age = MaxAge }), -1},
		{"both max age", with(func(h *LSAHeader) { h.Age = MaxAge }), with(func(h *LSAHeader) { h.Age = MaxAge }), 0},
		{"small age difference", with(func(h *LSAHeader) { h.Age = 100 + MaxAgeDiff - 1 }), base, 0},
		{"age difference of exactly MaxAgeDiff", with(func(h *LSAHeader) { h.Age = 100 + MaxAgeDiff }), base, -1},
		{"younger wins", base, with(func(h *LSAHeader) { h.Age = 2000 }), 1},
		{"sequence beats age", with(func(h *LSAHeader) { h.SequenceNumber++; h.Age = 3000 }), base, 1},
		{"checksum beats max age", with(func(h *LSAHeader) { h.Checksum++ }), with(func(h *LSAHeader) { h.Age = MaxAge }), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultFreshness.Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, DefaultFreshness.Compare(tt.b, tt.a))
		})
	}
}

func TestFreshnessCustomConstants(t *testing.T) {
	f := Freshness{MaxAge: 60, MaxAgeDiff: 10, MaxSequenceNumber: InitialSequenceNumber + 2}

	a := LSAHeader{SequenceNumber: 5, Age: 60}
	b := LSAHeader{SequenceNumber: 5, Age: 30}
	assert.Equal(t, 1, f.Compare(a, b))

	b.Age = 50
	a.Age = 59
	assert.Equal(t, 0, f.Compare(a, b))

	a.Age = 39
	assert.Equal(t, -1, f.Compare(b, a))

	assert.False(t, f.Saturated(LSAHeader{SequenceNumber: InitialSequenceNumber + 1}))
	assert.True(t, f.Saturated(LSAHeader{SequenceNumber: InitialSequenceNumber + 2}))
	assert.True(t, DefaultFreshness.Saturated(LSAHeader{SequenceNumber: MaxSequenceNumber}))
}

func TestNewLSAChecksum(t *testing.T) {
	lsa := routerLSA("1.1.1.1", InitialSequenceNumber, 0, 0, 0, 1, 10, 0, 0, 1, 10, 0, 0, 2, 3, 0, 0, 10)

	require.Equal(t, uint16(LSAHeaderLen+16), lsa.Length)
	assert.NotZero(t, lsa.Checksum)
	assert.True(t, lsa.IsChecksumValid())

	aged := lsa.WithAge(MaxAge)
	assert.True(t, aged.IsChecksumValid(), "age is not covered by the checksum")
	assert.Equal(t, MaxAge, aged.Age)
	assert.Zero(t, lsa.Age, "WithAge must not modify the original")

	corrupt := *lsa
	corrupt.Body = append([]byte(nil), lsa.Body...)
	corrupt.Body[5] ^= 0x01
	assert.False(t, corrupt.IsChecksumValid())
}

func TestLSTypeValid(t *testing.T) {
	for typ := LSType(0); typ < 10; typ++ {
		assert.Equal(t, typ >= 1 && typ <= 5, typ.Valid(), typ.String())
	}
}
