// Package config loads simulated topologies: a set of routers, each with its
// own OSPF configuration, and the segments that connect their interfaces.
package config

import (
	"fmt"
	"math"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"go4.org/netipx"
	"gopkg.in/yaml.v3"

	"github.com/inet-framework/inet-sub064/common"
	"github.com/inet-framework/inet-sub064/ospf"
)

type Config struct {
	Routers  map[string]*RouterConfig
	Segments map[string]*SegmentConfig
}

type RouterConfig struct {
	Name string
	OSPF *OSPFConfig
}

// SegmentConfig describes a link between interfaces. Loss and Duplicate are
// probabilities applied to every delivery.
type SegmentConfig struct {
	Name      string
	Type      ospf.NetworkType
	Delay     time.Duration
	Loss      float64
	Duplicate float64
	Attach    []Attachment
}

type Attachment struct {
	Router    string
	Interface string
}

func (a Attachment) String() string {
	return a.Router + ":" + a.Interface
}

func Load(path string) (*Config, error) {
	s, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := Parse(string(s))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

func Parse(s string) (*Config, error) {
	var data map[string]interface{}

	if err := yaml.Unmarshal([]byte(s), &data); err != nil {
		return nil, err
	}

	c := Config{
		Routers:  make(map[string]*RouterConfig),
		Segments: make(map[string]*SegmentConfig),
	}

	for k, v := range data {
		switch k {
		case "routers":
			routers, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("routers must be a map")
			}

			for name, rv := range routers {
				r, err := parseRouterConfig(name, rv)
				if err != nil {
					return nil, err
				}
				c.Routers[name] = r
			}
		case "segments":
			segments, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("segments must be a map")
			}

			for name, sv := range segments {
				seg, err := parseSegmentConfig(name, sv)
				if err != nil {
					return nil, err
				}
				c.Segments[name] = seg
			}
		default:
			return nil, fmt.Errorf("unknown top level key: %s", k)
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func parseRouterConfig(name string, v interface{}) (*RouterConfig, error) {
	data, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("router %s: must be a map", name)
	}

	r := &RouterConfig{Name: name}

	for k, v := range data {
		switch k {
		case "ospf":
			v, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("router %s: ospf must be a map", name)
			}

			oc, err := parseOSPFConfig("router "+name+" ospf", v)
			if err != nil {
				return nil, err
			}
			r.OSPF = oc
		default:
			return nil, fmt.Errorf("router %s: unknown key: %s", name, k)
		}
	}

	if r.OSPF == nil {
		return nil, fmt.Errorf("router %s: ospf must be configured", name)
	}

	if len(r.OSPF.Areas) == 0 {
		return nil, fmt.Errorf("router %s: at least one area must be configured", name)
	}

	return r, nil
}

func parseSegmentConfig(name string, v interface{}) (*SegmentConfig, error) {
	data, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("segment %s: must be a map", name)
	}

	seg := &SegmentConfig{Name: name, Type: ospf.NetworkBroadcast}

	for k, v := range data {
		switch k {
		case "type":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("segment %s: type must be a string", name)
			}

			t, err := ospf.ParseNetworkType(s)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", name, err)
			}
			seg.Type = t
		case "delay":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("segment %s: delay must be a duration like \"5ms\"", name)
			}

			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("segment %s: invalid delay: %w", name, err)
			}
			if d < 0 {
				return nil, fmt.Errorf("segment %s: delay must not be negative", name)
			}
			seg.Delay = d
		case "loss", "duplicate":
			p, err := parseProbability(v)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %s %w", name, k, err)
			}

			if k == "loss" {
				seg.Loss = p
			} else {
				seg.Duplicate = p
			}
		case "attach":
			list, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("segment %s: attach must be a list", name)
			}

			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("segment %s: attachments must look like router:interface", name)
				}

				router, iface, ok := strings.Cut(s, ":")
				if !ok || router == "" || iface == "" {
					return nil, fmt.Errorf("segment %s: invalid attachment: %q", name, s)
				}
				seg.Attach = append(seg.Attach, Attachment{Router: router, Interface: iface})
			}
		default:
			return nil, fmt.Errorf("segment %s: unknown key: %s", name, k)
		}
	}

	if seg.Type == ospf.NetworkPointToPoint && len(seg.Attach) > 2 {
		return nil, fmt.Errorf("segment %s: point-to-point segments connect at most two interfaces", name)
	}

	return seg, nil
}

func parseProbability(v interface{}) (float64, error) {
	var p float64
	switch v := v.(type) {
	case int:
		p = float64(v)
	case float64:
		p = v
	default:
		return 0, fmt.Errorf("must be a number")
	}

	if math.IsNaN(p) || p < 0 || p >= 1 {
		return 0, fmt.Errorf("must be at least 0 and less than 1: %v", p)
	}

	return p, nil
}

// Interface looks up the OSPF configuration of an attached interface.
func (c *Config) Interface(a Attachment) (OSPFInterfaceConfig, bool) {
	r, ok := c.Routers[a.Router]
	if !ok {
		return OSPFInterfaceConfig{}, false
	}

	for _, area := range r.OSPF.Areas {
		if ic, ok := area.Interfaces[a.Interface]; ok {
			return ic, true
		}
	}

	return OSPFInterfaceConfig{}, false
}

// RouterNames returns the names of all routers in sorted order.
func (c *Config) RouterNames() []string {
	names := make([]string, 0, len(c.Routers))
	for name := range c.Routers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SegmentNames returns the names of all segments in sorted order.
func (c *Config) SegmentNames() []string {
	names := make([]string, 0, len(c.Segments))
	for name := range c.Segments {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// validate checks that the segments and routers agree with each other: every
// attachment names a configured interface, each interface is attached at most
// once, interfaces sharing a segment share a subnet and area, and no two
// segments use overlapping subnets.
func (c *Config) validate() error {
	ids := make(map[uint32]string)
	for _, name := range c.RouterNames() {
		id := uint32(c.Routers[name].OSPF.RouterID)
		if other, ok := ids[id]; ok {
			return fmt.Errorf("routers %s and %s have the same router-id %s", other, name, c.Routers[name].OSPF.RouterID)
		}
		ids[id] = name
	}

	attached := make(map[Attachment]string)
	var used netipx.IPSetBuilder

	for _, name := range c.SegmentNames() {
		seg := c.Segments[name]

		var subnet netip.Prefix
		var area common.AreaID
		var segment netipx.IPSetBuilder
		addrs := make(map[netip.Addr]Attachment)

		for _, a := range seg.Attach {
			if other, ok := attached[a]; ok {
				return fmt.Errorf("segment %s: %s is already attached to segment %s", name, a, other)
			}
			attached[a] = name

			ic, ok := c.Interface(a)
			if !ok {
				return fmt.Errorf("segment %s: %s is not a configured interface", name, a)
			}

			if ic.Type != seg.Type && !(seg.Type == ospf.NetworkBroadcast && ic.Type == ospf.NetworkNBMA) {
				return fmt.Errorf("segment %s: %s is %s, segment is %s", name, a, ic.Type, seg.Type)
			}

			if other, ok := addrs[ic.Address.Addr()]; ok {
				return fmt.Errorf("segment %s: %s and %s have the same address %s", name, other, a, ic.Address.Addr())
			}
			addrs[ic.Address.Addr()] = a

			network := ic.Address.Masked()
			if !subnet.IsValid() {
				subnet = network
				area = ic.AreaID
			} else if ic.AreaID != area {
				return fmt.Errorf("segment %s: %s is in area %s, expected %s", name, a, ic.AreaID, area)
			} else if network != subnet && seg.Type != ospf.NetworkPointToPoint {
				return fmt.Errorf("segment %s: %s is on %s, expected %s", name, a, network, subnet)
			}
			segment.AddPrefix(network)
		}

		nets, err := segment.IPSet()
		if err != nil {
			return fmt.Errorf("segment %s: %w", name, err)
		}

		all, err := used.IPSet()
		if err != nil {
			return err
		}
		if nets.Overlaps(all) {
			return fmt.Errorf("segment %s: %s overlaps another segment", name, subnet)
		}
		used.AddSet(nets)
	}

	return nil
}
