package config

import (
	"fmt"
	"math"
	"net/netip"
	"slices"
	"strings"

	"go4.org/netipx"

	"github.com/inet-framework/inet-sub064/common"
	"github.com/inet-framework/inet-sub064/ospf"
)

// OSPFConfig is the configuration of one router. Interval, cost, priority and
// MTU settings cascade from the router to its areas and from each area to its
// interfaces.
type OSPFConfig struct {
	RouterID           common.RouterID
	Cost               uint16
	HelloInterval      uint16
	RouterDeadInterval uint32
	RxmtInterval       uint16
	TransmitDelay      uint16
	MTU                uint16
	Priority           uint8
	Areas              map[common.AreaID]OSPFAreaConfig
}

type OSPFAreaConfig struct {
	Stub               bool
	Cost               uint16
	HelloInterval      uint16
	RouterDeadInterval uint32
	RxmtInterval       uint16
	Priority           *uint8
	Interfaces         map[string]OSPFInterfaceConfig
}

type OSPFInterfaceConfig struct {
	AreaID             common.AreaID
	Type               ospf.NetworkType
	Address            netip.Prefix
	Cost               uint16
	HelloInterval      uint16
	RouterDeadInterval uint32
	RxmtInterval       uint16
	TransmitDelay      uint16
	MTU                uint16
	Priority           *uint8
	Neighbors          []netip.Addr
}

// InterfaceConfigs returns the configuration of every interface, sorted by
// name, ready to be handed to ospf.Instance.AddInterface.
func (c *OSPFConfig) InterfaceConfigs() []ospf.InterfaceConfig {
	var configs []ospf.InterfaceConfig

	for _, area := range c.Areas {
		for name, ic := range area.Interfaces {
			configs = append(configs, ospf.InterfaceConfig{
				Name:               name,
				Type:               ic.Type,
				Prefix:             ic.Address,
				Area:               ic.AreaID,
				HelloInterval:      ic.HelloInterval,
				RouterDeadInterval: ic.RouterDeadInterval,
				RxmtInterval:       ic.RxmtInterval,
				TransmitDelay:      ic.TransmitDelay,
				MTU:                ic.MTU,
				Priority:           *ic.Priority,
				Cost:               ic.Cost,
				Neighbors:          slices.Clone(ic.Neighbors),
			})
		}
	}

	slices.SortFunc(configs, func(a, b ospf.InterfaceConfig) int {
		return strings.Compare(a.Name, b.Name)
	})

	return configs
}

// AreaIDs returns the configured areas in ascending order.
func (c *OSPFConfig) AreaIDs() []common.AreaID {
	ids := make([]common.AreaID, 0, len(c.Areas))
	for id := range c.Areas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// parseInt checks that v is an integer in [min, max].
func parseInt(where, key string, v interface{}, min, max int) (int, error) {
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be an integer", where, key)
	}

	if n < min {
		return 0, fmt.Errorf("%s: %s too small: %d", where, key, n)
	} else if n > max {
		return 0, fmt.Errorf("%s: %s too big: %d", where, key, n)
	}

	return n, nil
}

func parseOSPFConfig(where string, data map[string]interface{}) (*OSPFConfig, error) {
	c := &OSPFConfig{
		RouterID:           0,
		Cost:               1,
		HelloInterval:      10,
		RouterDeadInterval: 40,
		RxmtInterval:       5,
		TransmitDelay:      1,
		MTU:                1500,
		Priority:           1,
		Areas:              make(map[common.AreaID]OSPFAreaConfig),
	}

	for k, v := range data {
		if k == "router-id" {
			switch v := v.(type) {
			case string:
				id, err := common.ParseID(v)
				if err != nil {
					return nil, fmt.Errorf("%s: invalid router-id: %s", where, err)
				}

				c.RouterID = common.RouterID(id)
			case int:
				if v < 0 {
					return nil, fmt.Errorf("%s: router-id must be positive: %d", where, v)
				} else if v > math.MaxUint32 {
					return nil, fmt.Errorf("%s: router-id too big: %d", where, v)
				}

				c.RouterID = common.RouterID(v)
			default:
				return nil, fmt.Errorf("%s: router-id must be an IPv4 address or an unsigned 32 bit integer", where)
			}
		} else if k == "cost" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			c.Cost = uint16(n)
		} else if k == "hello-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			c.HelloInterval = uint16(n)
		} else if k == "dead-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint32)
			if err != nil {
				return nil, err
			}
			c.RouterDeadInterval = uint32(n)
		} else if k == "rxmt-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			c.RxmtInterval = uint16(n)
		} else if k == "transmit-delay" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			c.TransmitDelay = uint16(n)
		} else if k == "mtu" {
			n, err := parseInt(where, k, v, 576, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			c.MTU = uint16(n)
		} else if k == "priority" {
			n, err := parseInt(where, k, v, 0, math.MaxUint8)
			if err != nil {
				return nil, err
			}
			c.Priority = uint8(n)
		} else if strings.HasPrefix(k, "area ") {
			name := strings.TrimPrefix(k, "area ")

			id, err := common.ParseID(name)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid area id: %s", where, err)
			}

			area, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s area %s: must be a map", where, name)
			}

			ac, err := parseAreaConfig(where, common.AreaID(id), area)
			if err != nil {
				return nil, err
			}

			if _, dup := c.Areas[common.AreaID(id)]; dup {
				return nil, fmt.Errorf("%s: area %s configured twice", where, common.AreaID(id))
			}
			c.Areas[common.AreaID(id)] = *ac
		} else {
			return nil, fmt.Errorf("%s: unknown key: %s", where, k)
		}
	}

	if c.RouterID == 0 {
		return nil, fmt.Errorf("%s: router-id must be configured", where)
	}

	if len(c.Areas) > 1 {
		if _, ok := c.Areas[common.Backbone]; !ok {
			return nil, fmt.Errorf("%s: backbone area must be configured on area border routers", where)
		}
	}

	if bb, ok := c.Areas[common.Backbone]; ok && bb.Stub {
		return nil, fmt.Errorf("%s: backbone area can't be a stub area", where)
	}

	seen := make(map[string]common.AreaID)
	for id, ac := range c.Areas {
		for name := range ac.Interfaces {
			if other, dup := seen[name]; dup {
				return nil, fmt.Errorf("%s: interface %s is in areas %s and %s", where, name, other, id)
			}
			seen[name] = id
		}
	}

	for k, ac := range c.Areas {
		ac.setDefaults(c)
		c.Areas[k] = ac
	}

	return c, nil
}

func (ac *OSPFAreaConfig) setDefaults(c *OSPFConfig) {
	if ac.HelloInterval == 0 {
		ac.HelloInterval = c.HelloInterval
	}

	if ac.RouterDeadInterval == 0 {
		ac.RouterDeadInterval = c.RouterDeadInterval
	}

	if ac.RxmtInterval == 0 {
		ac.RxmtInterval = c.RxmtInterval
	}

	if ac.Cost == 0 {
		ac.Cost = c.Cost
	}

	if ac.Priority == nil {
		p := c.Priority
		ac.Priority = &p
	}

	for k, ic := range ac.Interfaces {
		ic.setDefaults(c, ac)
		ac.Interfaces[k] = ic
	}
}

func (ic *OSPFInterfaceConfig) setDefaults(c *OSPFConfig, ac *OSPFAreaConfig) {
	if ic.Cost == 0 {
		ic.Cost = ac.Cost
	}

	if ic.HelloInterval == 0 {
		ic.HelloInterval = ac.HelloInterval
	}

	if ic.RouterDeadInterval == 0 {
		ic.RouterDeadInterval = ac.RouterDeadInterval
	}

	if ic.RxmtInterval == 0 {
		ic.RxmtInterval = ac.RxmtInterval
	}

	if ic.TransmitDelay == 0 {
		ic.TransmitDelay = c.TransmitDelay
	}

	if ic.MTU == 0 {
		ic.MTU = c.MTU
	}

	if ic.Priority == nil {
		p := *ac.Priority
		ic.Priority = &p
	}
}

func parseAreaConfig(where string, id common.AreaID, data map[string]interface{}) (*OSPFAreaConfig, error) {
	where = fmt.Sprintf("%s area %s", where, id)

	ac := OSPFAreaConfig{
		Interfaces: make(map[string]OSPFInterfaceConfig),
	}

	for k, v := range data {
		if k == "stub" {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%s: stub must be true or false", where)
			}
			ac.Stub = b
		} else if k == "cost" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ac.Cost = uint16(n)
		} else if k == "hello-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ac.HelloInterval = uint16(n)
		} else if k == "dead-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint32)
			if err != nil {
				return nil, err
			}
			ac.RouterDeadInterval = uint32(n)
		} else if k == "rxmt-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ac.RxmtInterval = uint16(n)
		} else if k == "priority" {
			n, err := parseInt(where, k, v, 0, math.MaxUint8)
			if err != nil {
				return nil, err
			}
			p := uint8(n)
			ac.Priority = &p
		} else if strings.HasPrefix(k, "interface ") {
			name := strings.TrimPrefix(k, "interface ")

			i, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s interface %s: must be a map", where, name)
			}

			ic, err := parseInterfaceConfig(where, id, name, i)
			if err != nil {
				return nil, err
			}

			ac.Interfaces[name] = *ic
		} else {
			return nil, fmt.Errorf("%s: unknown key: %s", where, k)
		}
	}

	return &ac, nil
}

func parseInterfaceConfig(where string, area common.AreaID, name string, data map[string]interface{}) (*OSPFInterfaceConfig, error) {
	where = fmt.Sprintf("%s interface %s", where, name)

	ic := OSPFInterfaceConfig{
		AreaID: area,
		Type:   ospf.NetworkBroadcast,
	}

	for k, v := range data {
		if k == "network-type" {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s: network-type must be a string", where)
			}

			t, err := ospf.ParseNetworkType(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", where, err)
			}
			ic.Type = t
		} else if k == "address" {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s: address must be a string", where)
			}

			prefix, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid address: %w", where, err)
			}
			if !prefix.Addr().Is4() || prefix.Bits() == 0 {
				return nil, fmt.Errorf("%s: address must be an IPv4 prefix with a mask: %s", where, s)
			}
			ic.Address = prefix
		} else if k == "cost" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ic.Cost = uint16(n)
		} else if k == "hello-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ic.HelloInterval = uint16(n)
		} else if k == "dead-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint32)
			if err != nil {
				return nil, err
			}
			ic.RouterDeadInterval = uint32(n)
		} else if k == "rxmt-interval" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ic.RxmtInterval = uint16(n)
		} else if k == "transmit-delay" {
			n, err := parseInt(where, k, v, 1, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ic.TransmitDelay = uint16(n)
		} else if k == "mtu" {
			n, err := parseInt(where, k, v, 576, math.MaxUint16)
			if err != nil {
				return nil, err
			}
			ic.MTU = uint16(n)
		} else if k == "priority" {
			n, err := parseInt(where, k, v, 0, math.MaxUint8)
			if err != nil {
				return nil, err
			}
			p := uint8(n)
			ic.Priority = &p
		} else if k == "neighbors" {
			list, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s: neighbors must be a list", where)
			}

			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s: neighbors must be IPv4 addresses", where)
				}
				addr, err := netip.ParseAddr(s)
				if err != nil || !addr.Is4() {
					return nil, fmt.Errorf("%s: invalid neighbor address: %s", where, s)
				}
				ic.Neighbors = append(ic.Neighbors, addr)
			}
		} else {
			return nil, fmt.Errorf("%s: unknown key: %s", where, k)
		}
	}

	if !ic.Address.IsValid() {
		return nil, fmt.Errorf("%s: address must be configured", where)
	}

	if len(ic.Neighbors) > 0 && ic.Type != ospf.NetworkNBMA {
		return nil, fmt.Errorf("%s: neighbors can only be configured on NBMA interfaces", where)
	}

	network := ic.Address.Masked()
	for _, n := range ic.Neighbors {
		if !network.Contains(n) || n == ic.Address.Addr() {
			return nil, fmt.Errorf("%s: neighbor %s is not on %s", where, n, network)
		}
	}

	if ic.Type == ospf.NetworkBroadcast || ic.Type == ospf.NetworkNBMA {
		if ic.Address.Bits() < 31 && (ic.Address.Addr() == network.Addr() || ic.Address.Addr() == netipx.PrefixLastIP(network)) {
			return nil, fmt.Errorf("%s: %s is not a host address on %s", where, ic.Address.Addr(), network)
		}
	}

	return &ic, nil
}
