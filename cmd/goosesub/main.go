// goosesub prints every GOOSE frame received on an interface or read from a capture.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slonegd/goose61850"
	"github.com/slonegd/goose61850/config"
	"github.com/slonegd/goose61850/internal/cli"
	"github.com/slonegd/goose61850/subscriber"
)

type flags struct {
	configFile  string
	frames      int
	timeout     time.Duration
	promiscuous bool
	pcapInput   string
	pcapCapture string
	report      bool
	stats       bool
	metrics     string
	verbose     bool
}

func newCommand(out io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "goosesub [interface]",
		Short: "Receive and print GOOSE frames",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f, out)
		},
		SilenceUsage: true,
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "TOML or YAML configuration file")
	fs.IntVarP(&f.frames, "frames", "n", 0, "stop after this many frames, 0 runs until interrupted")
	fs.DurationVar(&f.timeout, "timeout", time.Second, "receive timeout")
	fs.BoolVar(&f.promiscuous, "promiscuous", false, "put the interface in promiscuous mode")
	fs.StringVarP(&f.pcapInput, "read", "r", "", "replay a pcap file instead of listening")
	fs.StringVarP(&f.pcapCapture, "write", "w", "", "record received frames to a pcap file")
	fs.BoolVar(&f.report, "report", true, "print every decoded frame")
	fs.BoolVar(&f.stats, "stats", false, "print inter-arrival statistics on exit")
	fs.StringVar(&f.metrics, "metrics", "", "listen address of the /metrics endpoint")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func run(cmd *cobra.Command, args []string, f flags, out io.Writer) error {
	cfg, err := cli.LoadConfig(f.configFile)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	if len(args) == 1 {
		cfg.Interface = args[0]
	}
	if fs.Changed("frames") {
		cfg.Subscriber.Frames = f.frames
	}
	if fs.Changed("timeout") {
		cfg.Subscriber.ReceiveTimeout = config.Duration(f.timeout)
	}
	if fs.Changed("promiscuous") {
		cfg.Subscriber.Promiscuous = f.promiscuous
	}
	if fs.Changed("read") {
		cfg.Subscriber.PcapInput = f.pcapInput
	}
	if fs.Changed("write") {
		cfg.Subscriber.PcapCapture = f.pcapCapture
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

	stats := subscriber.NewStats()
	opts := []goose61850.Option{
		goose61850.WithLogger(log),
		goose61850.WithStats(stats),
	}
	if f.report {
		opts = append(opts, goose61850.WithHandler(subscriber.ReportHandler(out)))
	}
	sub, err := goose61850.NewSubscriber(cfg, opts...)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return sub.Run(runCtx)
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return cli.ServeMetrics(runCtx, cfg.Metrics.Listen, log)
		})
	}

	log.Info("subscribing",
		zap.String("interface", cfg.Interface),
		zap.String("pcap", cfg.Subscriber.PcapInput),
	)
	err = cli.IgnoreCanceled(g.Wait())

	if f.stats {
		for _, s := range stats.Snapshot() {
			fmt.Fprintf(out, "%s: %d intervals, min %s, mean %s, p50 %s, p99 %s, max %s\n",
				s.GoID, s.Count, s.Min, s.Mean, s.P50, s.P99, s.Max)
		}
	}
	return err
}

func main() {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
