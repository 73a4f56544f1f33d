package sim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/common"
	"github.com/inet-framework/inet-sub064/config"
	"github.com/inet-framework/inet-sub064/events"
	"github.com/inet-framework/inet-sub064/ospf"
)

// Epoch is where virtual time starts.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type Options struct {
	// Clock defaults to a clock.Fake starting at Epoch. Run only works with
	// a fake clock.
	Clock   clock.Clock
	Seed    int64
	Logger  *slog.Logger
	Metrics *ospf.Metrics
	Changes *events.Feed[ospf.StateChange]
}

type Router struct {
	Name     string
	Instance *ospf.Instance
	Links    map[string]*Link
}

// Simulation is a set of routers built from a config.Config and the network
// connecting them.
type Simulation struct {
	clock   clock.Clock
	fake    *clock.Fake
	log     *slog.Logger
	network *Network
	routers map[string]*Router
	order   []string
}

func New(c *config.Config, opts Options) (*Simulation, error) {
	s := &Simulation{
		clock:   opts.Clock,
		log:     opts.Logger,
		routers: make(map[string]*Router),
	}

	if s.clock == nil {
		s.fake = clock.NewFake(Epoch)
		s.clock = s.fake
	} else if f, ok := s.clock.(*clock.Fake); ok {
		s.fake = f
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	s.network = NewNetwork(s.clock, opts.Seed, s.log.With("component", "network"))

	for _, name := range c.RouterNames() {
		rc := c.Routers[name].OSPF

		ep := s.network.Endpoint()
		inst, err := ospf.NewInstance(ospf.Config{
			RouterID:  rc.RouterID,
			Clock:     s.clock,
			Transport: ep,
			Logger:    s.log.With("name", name),
			Metrics:   opts.Metrics,
			Changes:   opts.Changes,
		})
		if err != nil {
			return nil, fmt.Errorf("router %s: %w", name, err)
		}
		ep.Bind(inst)

		for _, id := range rc.AreaIDs() {
			if _, err := inst.AddArea(id, !rc.Areas[id].Stub); err != nil {
				return nil, fmt.Errorf("router %s: %w", name, err)
			}
		}

		for _, ic := range rc.InterfaceConfigs() {
			if _, err := inst.AddInterface(ic); err != nil {
				return nil, fmt.Errorf("router %s: %w", name, err)
			}
		}

		s.routers[name] = &Router{Name: name, Instance: inst, Links: make(map[string]*Link)}
		s.order = append(s.order, name)
	}

	for _, name := range c.SegmentNames() {
		sc := c.Segments[name]
		seg := s.network.AddSegment(name, sc.Delay, sc.Loss, sc.Duplicate)

		for _, a := range sc.Attach {
			r := s.routers[a.Router]
			iface, ok := r.Instance.InterfaceByName(a.Interface)
			if !ok {
				return nil, fmt.Errorf("segment %s: %s is not a configured interface", name, a)
			}
			r.Links[a.Interface] = s.network.Attach(seg, r.Instance, iface.Ref())
		}
	}

	return s, nil
}

// Start brings up every router. With a real-time clock it must be called on
// the goroutine that runs the clock.
func (s *Simulation) Start() {
	for _, name := range s.order {
		s.routers[name].Instance.Start()
	}
}

func (s *Simulation) Stop() {
	for _, name := range s.order {
		s.routers[name].Instance.Stop()
	}
}

// Run advances virtual time by d, running everything that comes due.
func (s *Simulation) Run(d time.Duration) error {
	if s.fake == nil {
		return fmt.Errorf("sim: Run needs a virtual clock")
	}
	s.fake.Advance(d)
	return nil
}

func (s *Simulation) Now() time.Time {
	return s.clock.Now()
}

func (s *Simulation) Network() *Network {
	return s.network
}

func (s *Simulation) Router(name string) (*Router, bool) {
	r, ok := s.routers[name]
	return r, ok
}

// Routers returns every router in name order.
func (s *Simulation) Routers() []*Router {
	rs := make([]*Router, len(s.order))
	for i, name := range s.order {
		rs[i] = s.routers[name]
	}
	return rs
}

// Neighbor returns router's view of the neighbor with router ID peer.
func (s *Simulation) Neighbor(router string, peer common.RouterID) (*ospf.Neighbor, bool) {
	r, ok := s.routers[router]
	if !ok {
		return nil, false
	}
	return r.Instance.FindNeighbor(peer)
}

// Converged reports whether every neighbor of every router that should be
// adjacent is Full, and every other neighbor is in 2-Way.
func (s *Simulation) Converged() bool {
	for _, r := range s.Routers() {
		for _, iface := range r.Instance.Interfaces() {
			for _, n := range iface.Neighbors() {
				if n.State() == ospf.NeighborFull {
					continue
				}
				if n.State() == ospf.NeighborTwoWay && !iface.AdjacencyNeeded(n) {
					continue
				}
				return false
			}
		}
	}
	return true
}
