// Package config loads publisher and subscriber settings from TOML or YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"github.com/slonegd/goose61850/goose"
	"github.com/slonegd/goose61850/scheduler"
)

var ErrUnknownFormat = errors.New("unknown configuration format")

// Duration is a time.Duration written as "2ms", "1s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// Interface is the network interface name, e.g. "eth0".
	Interface  string           `toml:"interface" yaml:"interface"`
	Publisher  PublisherConfig  `toml:"publisher" yaml:"publisher"`
	Subscriber SubscriberConfig `toml:"subscriber" yaml:"subscriber"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
}

type PublisherConfig struct {
	Destination string `toml:"destination" yaml:"destination" validate:"mac"`
	Source      string `toml:"source" yaml:"source" validate:"mac"`
	AppID       uint16 `toml:"app_id" yaml:"appID"`
	GoCBRef     string `toml:"gocb_ref" yaml:"gocbRef" validate:"nonzero"`
	DatSet      string `toml:"dat_set" yaml:"datSet" validate:"nonzero"`
	GoID        string `toml:"go_id" yaml:"goID" validate:"nonzero"`
	// TimeAllowedToLive in milliseconds
	TimeAllowedToLive uint32 `toml:"time_allowed_to_live" yaml:"timeAllowedToLive" validate:"nonzero"`
	ConfRev           uint32 `toml:"conf_rev" yaml:"confRev"`
	Test              bool   `toml:"test" yaml:"test"`
	NdsCom            bool   `toml:"nds_com" yaml:"ndsCom"`

	Backoff []Duration `toml:"backoff" yaml:"backoff" validate:"nonzero"`
	Steady  Duration   `toml:"steady" yaml:"steady" validate:"min=1"`
	// Frames limits the run, 0 publishes until interrupted.
	Frames        int      `toml:"frames" yaml:"frames" validate:"min=0"`
	SpinThreshold Duration `toml:"spin_threshold" yaml:"spinThreshold" validate:"min=0"`
	// DryRun writes frames only to PcapOutput, without a socket.
	DryRun     bool   `toml:"dry_run" yaml:"dryRun"`
	PcapOutput string `toml:"pcap_output" yaml:"pcapOutput"`
}

type SubscriberConfig struct {
	ReceiveTimeout Duration `toml:"receive_timeout" yaml:"receiveTimeout" validate:"min=1"`
	MaxFrameSize   int      `toml:"max_frame_size" yaml:"maxFrameSize" validate:"min=64,max=65535"`
	Frames         int      `toml:"frames" yaml:"frames" validate:"min=0"`
	// Promiscuous also receives frames to multicast groups not joined.
	Promiscuous bool   `toml:"promiscuous" yaml:"promiscuous"`
	PcapCapture string `toml:"pcap_capture" yaml:"pcapCapture"`
	// PcapInput replays a capture instead of opening the interface.
	PcapInput string `toml:"pcap_input" yaml:"pcapInput"`
}

type LogConfig struct {
	Level      string `toml:"level" yaml:"level" validate:"regexp=^(debug|info|warn|error)$"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"maxSizeMB" validate:"min=0"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"maxAgeDays" validate:"min=0"`
	MaxBackups int    `toml:"max_backups" yaml:"maxBackups" validate:"min=0"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint, empty disables it.
	Listen string `toml:"listen" yaml:"listen"`
}

// Default is the demo publisher of the SEL-421 sample data set.
func Default() Config {
	sched := scheduler.DefaultConfig()
	backoff := make([]Duration, len(sched.Backoff))
	for i, d := range sched.Backoff {
		backoff[i] = Duration(d)
	}
	return Config{
		Publisher: PublisherConfig{
			Destination:       "01:0C:CD:01:00:01",
			Source:            "00:30:A7:22:9D:01",
			GoCBRef:           "SEL_421_SubCFG/LLN0$GO$PIOC",
			DatSet:            "SEL_421_SubCFG/LLN0$PIOC",
			GoID:              "SEL_421_Sub",
			TimeAllowedToLive: 2000,
			ConfRev:           1,
			Backoff:           backoff,
			Steady:            Duration(sched.Steady),
			Frames:            12,
			SpinThreshold:     Duration(time.Millisecond),
		},
		Subscriber: SubscriberConfig{
			ReceiveTimeout: Duration(time.Second),
			MaxFrameSize:   1518,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 28,
			MaxBackups: 3,
		},
	}
}

func newValidator() *validator.Validator {
	v := validator.NewValidator()
	_ = v.SetValidationFunc("mac", func(val interface{}, _ string) error {
		s, ok := val.(string)
		if !ok {
			return validator.ErrUnsupported
		}
		if _, err := goose.ParseMAC(s); err != nil {
			return err
		}
		return nil
	})
	return v
}

func (c *Config) Validate() error {
	if err := newValidator().Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Scheduler().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Scheduler returns the retransmission timing of the publisher section.
func (c *Config) Scheduler() scheduler.Config {
	backoff := make([]time.Duration, len(c.Publisher.Backoff))
	for i, d := range c.Publisher.Backoff {
		backoff[i] = d.Std()
	}
	return scheduler.Config{Backoff: backoff, Steady: c.Publisher.Steady.Std()}
}

// Template returns the PDU fields fixed for the lifetime of a publisher.
func (c *Config) Template() (goose.PDU, error) {
	dst, err := goose.ParseMAC(c.Publisher.Destination)
	if err != nil {
		return goose.PDU{}, fmt.Errorf("destination: %w", err)
	}
	src, err := goose.ParseMAC(c.Publisher.Source)
	if err != nil {
		return goose.PDU{}, fmt.Errorf("source: %w", err)
	}
	return goose.PDU{
		Destination: dst,
		Source:      src,
		APDU: goose.APDU{
			AppID:             c.Publisher.AppID,
			GoCBRef:           c.Publisher.GoCBRef,
			TimeAllowedToLive: c.Publisher.TimeAllowedToLive,
			DatSet:            c.Publisher.DatSet,
			GoID:              c.Publisher.GoID,
			Test:              c.Publisher.Test,
			ConfRev:           c.Publisher.ConfRev,
			NdsCom:            c.Publisher.NdsCom,
			NumDatSetEntries:  1,
		},
	}, nil
}

// Load reads path over Default and validates the result.
// The format follows the extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
