package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blip/mgmt"
	"github.com/srg/blip/pkg/config"
	"github.com/srg/blip/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Configure the adapter and run the peripheral server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML configuration file")
	serveCmd.Flags().String("name", "", "Advertising name (overrides config)")
	serveCmd.Flags().String("short-name", "", "Advertising short name (overrides config)")
	serveCmd.Flags().Uint16("index", 0, "Controller index (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ch, err := mgmt.Open(cfg.ControllerIndex, &mgmt.ChannelOptions{
		CommandTimeout: cfg.CommandTimeout(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open management channel: %w", err)
	}
	defer ch.Close()

	ch.OnEvent(mgmt.EvtNewSettings, func(f mgmt.Frame) {
		logger.WithField("index", f.Index).Debug("controller settings changed")
	})

	adapter := mgmt.NewAdapter(ch, logger)
	store := newMemoryStore()

	srv := server.New(&server.Options{
		ServiceName:          cfg.ServiceName,
		AdvertisingName:      cfg.AdvertisingName,
		AdvertisingShortName: cfg.AdvertisingShortName,
		MaxAsyncInitTimeout:  cfg.MaxAsyncInitTimeout(),
		PollInterval:         cfg.PollInterval(),
	}, store, &logNotifier{logger: logger}, func(ctx context.Context) error {
		return bringUpAdapter(adapter, cfg)
	}, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		srv.TriggerShutdown()
	}()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	info := ch.Info()
	printStatus("Serving %q on controller %d (%s)", cfg.AdvertisingName, cfg.ControllerIndex, info.Name)

	return srv.Wait()
}

// bringUpAdapter runs the canonical configuration sequence that leaves the
// adapter powered, connectable, and advertising. SetRawAdvertisingData
// leaves the adapter powered off on purpose, so the power-on step below is
// not optional.
func bringUpAdapter(adapter *mgmt.Adapter, cfg *config.Config) error {
	adv := mgmt.AdvertisingData{
		Instance: 1,
		Duration: cfg.AdvertisingDurationSec,
		Timeout:  cfg.AdvertisingTimeoutSec,
		AdvData:  advertisingElements(cfg.AdvertisingName),
	}

	steps := []struct {
		name string
		ok   func() bool
	}{
		{"power off", func() bool { return adapter.SetPowered(false) }},
		{"disable BR/EDR", func() bool { return adapter.SetBredr(false) }},
		{"enable secure connections", func() bool { return adapter.SetSecureConnections(mgmt.SecureConnectionsOn) }},
		{"enable bondable", func() bool { return adapter.SetBondable(true) }},
		{"enable connectable", func() bool { return adapter.SetConnectable(true) }},
		{"enable LE", func() bool { return adapter.SetLE(true) }},
		{"set name", func() bool {
			return adapter.SetName(cfg.AdvertisingName, cfg.AdvertisingShortName)
		}},
		{"set advertising data", func() bool { return adapter.SetRawAdvertisingData(adv) }},
		{"power on", func() bool { return adapter.SetPowered(true) }},
		{"enable advertising", func() bool { return adapter.SetAdvertising(mgmt.AdvertisingConnectable) }},
		{"set discoverable", func() bool {
			return adapter.SetDiscoverable(mgmt.DiscoverableGeneral, cfg.DiscoverableTimeoutSec)
		}},
	}

	for _, step := range steps {
		if !step.ok() {
			return fmt.Errorf("adapter configuration failed at %q", step.name)
		}
	}
	return nil
}

// advertisingElements builds a minimal advertising payload: the standard
// flags element plus the complete local name. The management layer treats
// this as an opaque blob.
func advertisingElements(name string) []byte {
	// flags: LE general discoverable, BR/EDR not supported
	b := []byte{0x02, 0x01, 0x06}
	if name != "" {
		if len(name) > 26 {
			name = name[:26]
		}
		b = append(b, byte(len(name)+1), 0x09)
		b = append(b, name...)
	}
	return b
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if name, _ := cmd.Flags().GetString("name"); name != "" {
		cfg.AdvertisingName = name
	}
	if short, _ := cmd.Flags().GetString("short-name"); short != "" {
		cfg.AdvertisingShortName = short
	}
	if cmd.Flags().Changed("index") {
		index, _ := cmd.Flags().GetUint16("index")
		cfg.ControllerIndex = index
	}
	return cfg, nil
}

func printStatus(format string, args ...any) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		color.New(color.FgGreen).Printf(format+"\n", args...)
		return
	}
	fmt.Printf(format+"\n", args...)
}

// logNotifier is a stand-in for the GATT/object-broker layer: it surfaces
// popped update records as log entries.
type logNotifier struct {
	logger *logrus.Logger
}

func (n *logNotifier) Notify(rec server.Record, value any) error {
	n.logger.WithFields(logrus.Fields{
		"path":      rec.ObjectPath,
		"interface": rec.InterfaceName,
		"value":     value,
	}).Info("data changed")
	return nil
}
