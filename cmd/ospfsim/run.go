package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inet-framework/inet-sub064/clock"
	"github.com/inet-framework/inet-sub064/config"
	"github.com/inet-framework/inet-sub064/events"
	"github.com/inet-framework/inet-sub064/ospf"
	"github.com/inet-framework/inet-sub064/sim"
)

type runOptions struct {
	*globalOptions
	duration    time.Duration
	realtime    bool
	metricsAddr string
	seed        int64
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := runOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the topology and print the resulting neighbors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "for", 5*time.Minute, "how long to run; 0 runs until interrupted in real time")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "run against the wall clock instead of virtual time")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (real time only)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "seed for packet loss and duplication")

	return cmd
}

// tracker logs when the whole topology first reaches, and later loses, a
// converged state.
type tracker struct {
	log       *slog.Logger
	sim       *sim.Simulation
	converged bool
}

func (t *tracker) update() {
	c := t.sim.Converged()
	if c == t.converged {
		return
	}
	t.converged = c

	if c {
		t.log.Info("topology converged", "elapsed", t.sim.Now().Sub(sim.Epoch))
	} else {
		t.log.Warn("topology no longer converged")
	}
}

func runSimulation(ctx context.Context, stdout, stderr io.Writer, opts runOptions) error {
	if opts.duration == 0 && !opts.realtime {
		return errors.New("--for must be positive in virtual time")
	}
	if opts.metricsAddr != "" && !opts.realtime {
		return errors.New("--metrics-addr needs --realtime")
	}

	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(stderr, level, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	feed := events.NewFeed[ospf.StateChange]()
	sub := feed.Subscribe()
	defer feed.Unsubscribe(sub)

	if !opts.realtime {
		fake := clock.NewFake(sim.Epoch)
		logger = slog.New(withClock(logger.Handler(), fake.Now))

		s, err := sim.New(c, sim.Options{
			Clock:   fake,
			Seed:    opts.seed,
			Logger:  logger,
			Changes: feed,
		})
		if err != nil {
			return err
		}

		t := &tracker{log: logger, sim: s}
		s.Start()

		for elapsed := time.Duration(0); elapsed < opts.duration; {
			step := min(time.Second, opts.duration-elapsed)
			if err := s.Run(step); err != nil {
				return err
			}
			elapsed += step

			if len(feed.Drain(sub)) > 0 {
				t.update()
			}
		}

		printReport(stdout, s)
		s.Stop()
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	loop := clock.NewLoop()
	s, err := sim.New(c, sim.Options{
		Clock:   loop,
		Seed:    opts.seed,
		Logger:  logger,
		Metrics: ospf.NewMetrics(reg),
		Changes: feed,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(ctx)
	})

	t := &tracker{log: logger, sim: s}
	g.Go(func() error {
		for {
			if _, ok := feed.Next(ctx, sub); !ok {
				return nil
			}
			loop.Post(t.update)
		}
	})

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", opts.metricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	loop.Post(s.Start)

	if err := g.Wait(); err != nil {
		return err
	}

	// The loop has exited, so nothing else touches the routers.
	printReport(stdout, s)
	s.Stop()

	return nil
}

func printReport(w io.Writer, s *sim.Simulation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTER\tINTERFACE\tSTATE\tNEIGHBOR\tADDRESS\tNBR STATE\tDR\tBDR")

	for _, r := range s.Routers() {
		for _, iface := range r.Instance.Interfaces() {
			neighbors := iface.Neighbors()
			if len(neighbors) == 0 {
				fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t%s\t%s\n", r.Name, iface.Name(), iface.State(), iface.DR().ID, iface.BDR().ID)
				continue
			}

			for _, n := range neighbors {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, iface.Name(), iface.State(), n.ID(), n.Addr(), n.State(), iface.DR().ID, iface.BDR().ID)
			}
		}
	}
	tw.Flush()

	st := s.Network().Stats()
	fmt.Fprintf(w, "\npackets: %d sent, %d delivered, %d lost, %d duplicated, %d malformed\n",
		st.Sent, st.Delivered, st.Lost, st.Duplicated, st.Malformed)
}
