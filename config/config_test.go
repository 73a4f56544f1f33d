package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inet-framework/inet-sub064/common"
	"github.com/inet-framework/inet-sub064/ospf"
)

const twoRouters = `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      hello-interval: 5
      dead-interval: 20
      area 0.0.0.0:
        cost: 20
        interface eth0:
          address: 10.0.0.1/30
          network-type: point-to-point
        interface eth1:
          address: 192.168.1.1/24
          priority: 0
  r2:
    ospf:
      router-id: 2
      area 0:
        interface eth0:
          address: 10.0.0.2/30
          network-type: point-to-point
          cost: 7
          mtu: 9000
segments:
  link:
    type: point-to-point
    delay: 5ms
    loss: 0.1
    duplicate: 0
    attach: [r1:eth0, r2:eth0]
  lan:
    attach: [r1:eth1]
`

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func TestParse(t *testing.T) {
	c, err := Parse(twoRouters)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, c.RouterNames())
	assert.Equal(t, []string{"lan", "link"}, c.SegmentNames())

	r1 := c.Routers["r1"].OSPF
	assert.Equal(t, common.RouterIDFromAddr(addr("1.1.1.1")), r1.RouterID)
	assert.Equal(t, []common.AreaID{common.Backbone}, r1.AreaIDs())

	want := []ospf.InterfaceConfig{
		{
			Name:               "eth0",
			Type:               ospf.NetworkPointToPoint,
			Prefix:             netip.MustParsePrefix("10.0.0.1/30"),
			Area:               common.Backbone,
			HelloInterval:      5,
			RouterDeadInterval: 20,
			RxmtInterval:       5,
			TransmitDelay:      1,
			MTU:                1500,
			Priority:           1,
			Cost:               20,
		},
		{
			Name:               "eth1",
			Type:               ospf.NetworkBroadcast,
			Prefix:             netip.MustParsePrefix("192.168.1.1/24"),
			Area:               common.Backbone,
			HelloInterval:      5,
			RouterDeadInterval: 20,
			RxmtInterval:       5,
			TransmitDelay:      1,
			MTU:                1500,
			Priority:           0,
			Cost:               20,
		},
	}

	opts := cmp.Options{
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b netip.Prefix) bool { return a == b }),
		cmp.Comparer(func(a, b netip.Addr) bool { return a == b }),
	}
	if diff := cmp.Diff(want, r1.InterfaceConfigs(), opts); diff != "" {
		t.Errorf("r1 interfaces mismatch (-want +got):\n%s", diff)
	}

	r2 := c.Routers["r2"].OSPF
	assert.Equal(t, common.RouterID(2), r2.RouterID)
	ic := r2.InterfaceConfigs()[0]
	assert.Equal(t, uint16(7), ic.Cost)
	assert.Equal(t, uint16(9000), ic.MTU)
	assert.Equal(t, uint16(10), ic.HelloInterval)
	assert.Equal(t, uint32(40), ic.RouterDeadInterval)

	link := c.Segments["link"]
	assert.Equal(t, ospf.NetworkPointToPoint, link.Type)
	assert.Equal(t, 5*time.Millisecond, link.Delay)
	assert.Equal(t, 0.1, link.Loss)
	assert.Zero(t, link.Duplicate)
	assert.Equal(t, []Attachment{{"r1", "eth0"}, {"r2", "eth0"}}, link.Attach)

	assert.Equal(t, ospf.NetworkBroadcast, c.Segments["lan"].Type)
}

func TestParseStubAndNBMA(t *testing.T) {
	c, err := Parse(`
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      priority: 3
      area 1:
        stub: true
        interface nbma0:
          address: 10.1.0.1/24
          network-type: nbma
          neighbors: [10.1.0.2, 10.1.0.3]
`)
	require.NoError(t, err)

	area := c.Routers["r1"].OSPF.Areas[common.AreaID(1)]
	assert.True(t, area.Stub)

	ic := c.Routers["r1"].OSPF.InterfaceConfigs()[0]
	assert.Equal(t, ospf.NetworkNBMA, ic.Type)
	assert.Equal(t, uint8(3), ic.Priority)
	assert.Equal(t, []netip.Addr{addr("10.1.0.2"), addr("10.1.0.3")}, ic.Neighbors)
	assert.Equal(t, common.AreaID(1), ic.Area)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown top level key",
			yaml: "bogus: 1\n",
			want: "unknown top level key: bogus",
		},
		{
			name: "missing router id",
			yaml: `
routers:
  r1:
    ospf:
      area 0:
        interface eth0: {address: 10.0.0.1/24}
`,
			want: "router r1 ospf: router-id must be configured",
		},
		{
			name: "cost out of range",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24, cost: 70000}
`,
			want: "router r1 ospf area 0.0.0.0 interface eth0: cost too big: 70000",
		},
		{
			name: "bad network type",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24, network-type: token-ring}
`,
			want: `unknown network type "token-ring"`,
		},
		{
			name: "network address",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.0/24}
`,
			want: "10.0.0.0 is not a host address on 10.0.0.0/24",
		},
		{
			name: "neighbors off subnet",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24, network-type: nbma, neighbors: [10.9.0.2]}
`,
			want: "neighbor 10.9.0.2 is not on 10.0.0.0/24",
		},
		{
			name: "stub backbone",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        stub: true
        interface eth0: {address: 10.0.0.1/24}
`,
			want: "backbone area can't be a stub area",
		},
		{
			name: "area border router without backbone",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 1:
        interface eth0: {address: 10.0.0.1/24}
      area 2:
        interface eth1: {address: 10.0.1.1/24}
`,
			want: "backbone area must be configured",
		},
		{
			name: "duplicate router id",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24}
  r2:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.2/24}
`,
			want: "routers r1 and r2 have the same router-id 1.1.1.1",
		},
		{
			name: "unknown attachment",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24}
segments:
  lan:
    attach: [r1:eth9]
`,
			want: "segment lan: r1:eth9 is not a configured interface",
		},
		{
			name: "subnet mismatch",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24}
  r2:
    ospf:
      router-id: 2.2.2.2
      area 0:
        interface eth0: {address: 10.0.1.2/24}
segments:
  lan:
    attach: [r1:eth0, r2:eth0]
`,
			want: "r2:eth0 is on 10.0.1.0/24, expected 10.0.0.0/24",
		},
		{
			name: "overlapping segments",
			yaml: `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0: {address: 10.0.0.1/24}
        interface eth1: {address: 10.0.0.129/25}
segments:
  a:
    attach: [r1:eth0]
  b:
    attach: [r1:eth1]
`,
			want: "segment b: 10.0.0.128/25 overlaps another segment",
		},
		{
			name: "loss out of range",
			yaml: `
segments:
  lan:
    loss: 1.5
`,
			want: "segment lan: loss must be at least 0 and less than 1",
		},
		{
			name: "bad attachment",
			yaml: `
segments:
  lan:
    attach: [r1]
`,
			want: `segment lan: invalid attachment: "r1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoRouters), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Routers, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
