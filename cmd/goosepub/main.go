// goosepub publishes the trip data set of one GOOSE control block.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slonegd/goose61850"
	"github.com/slonegd/goose61850/internal/cli"
	"github.com/slonegd/goose61850/publisher"
)

type flags struct {
	configFile string
	frames     int
	demo       bool
	startAt    int64
	dryRun     bool
	pcapOutput string
	metrics    string
	verbose    bool
}

func newCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "goosepub [interface]",
		Short: "Publish GOOSE frames on an Ethernet interface",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
		SilenceUsage: true,
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "TOML or YAML configuration file")
	fs.IntVarP(&f.frames, "frames", "n", 0, "number of frames to publish, 0 runs until interrupted")
	fs.BoolVar(&f.demo, "demo", true, "set trip before frame 4 and clear it before frame 8")
	fs.Int64Var(&f.startAt, "start-at", 0, "unix time in nanoseconds of the first frame")
	fs.BoolVar(&f.dryRun, "dry-run", false, "write frames to --pcap only")
	fs.StringVar(&f.pcapOutput, "pcap", "", "record sent frames to this pcap file")
	fs.StringVar(&f.metrics, "metrics", "", "listen address of the /metrics endpoint")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func run(cmd *cobra.Command, args []string, f flags) error {
	cfg, err := cli.LoadConfig(f.configFile)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	if len(args) == 1 {
		cfg.Interface = args[0]
	}
	if fs.Changed("frames") {
		cfg.Publisher.Frames = f.frames
	}
	if fs.Changed("dry-run") {
		cfg.Publisher.DryRun = f.dryRun
	}
	if fs.Changed("pcap") {
		cfg.Publisher.PcapOutput = f.pcapOutput
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Listen = f.metrics
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := cli.NewLogger(cfg.Log, f.verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	var opts []goose61850.Option
	opts = append(opts, goose61850.WithLogger(log))
	if f.demo {
		opts = append(opts, goose61850.WithTripSchedule(publisher.DemoTripSchedule()))
	}
	if f.startAt != 0 {
		opts = append(opts, goose61850.WithStartAt(time.Unix(0, f.startAt)))
	}
	pub, err := goose61850.NewPublisher(cfg, opts...)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return pub.Run(runCtx)
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return cli.ServeMetrics(runCtx, cfg.Metrics.Listen, log)
		})
	}

	log.Info("publishing",
		zap.String("interface", cfg.Interface),
		zap.String("goID", cfg.Publisher.GoID),
		zap.Int("frames", cfg.Publisher.Frames),
	)
	return cli.IgnoreCanceled(g.Wait())
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
