package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netboot-tools/pynetinstall/pkg/config"
	"github.com/netboot-tools/pynetinstall/pkg/logging"
	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
	"github.com/netboot-tools/pynetinstall/pkg/provider"
	"github.com/netboot-tools/pynetinstall/pkg/statusfeed"
	"github.com/netboot-tools/pynetinstall/pkg/tui"
)

const (
	exitOK        = 0
	exitAbort     = 1
	exitFatal     = 2
	exitInterrupt = 130
)

const defaultSocketPath = "/run/pynetinstall/watch.sock"

// errInterrupted marks a shutdown triggered by SIGINT (Ctrl+C),
// distinct both from the supervisor simply running out of work to do
// and from a SIGTERM-triggered shutdown, which reports as a clean
// exit instead.
var errInterrupted = errors.New("interrupted")

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		ifaceFlag   string
		loggingPath string
		verbosity   int
		oneshot     bool
		socketPath  string
	)

	root := &cobra.Command{
		Use:   "pynetinstall",
		Short: "Unattended netinstall server for Mikrotik RouterBOARD devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(configPath, ifaceFlag, loggingPath, verbosity, oneshot, socketPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "/etc/pynetinstall.ini", "path to INI config")
	root.Flags().StringVarP(&ifaceFlag, "interface", "i", "", "interface name or literal MAC (overrides config)")
	root.Flags().StringVarP(&loggingPath, "logging", "l", "", "path to a YAML logging config")
	root.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.Flags().BoolVarP(&oneshot, "oneshot", "1", false, "flash exactly one device then exit")
	root.Flags().StringVar(&socketPath, "socket", defaultSocketPath, "Unix socket the watch dashboard attaches to")

	watchSocket := defaultSocketPath
	watch := &cobra.Command{
		Use:   "watch",
		Short: "attach a live dashboard to a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(watchSocket)
		},
	}
	watch.Flags().StringVar(&watchSocket, "socket", defaultSocketPath, "Unix socket to attach to")
	root.AddCommand(watch)

	if err := root.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return exitOK
}

// exitCodeFor maps a run error to a process exit code: 0 clean, 1 an
// abort in oneshot mode, 2 fatal, 130 interrupted.
func exitCodeFor(err error) int {
	if errors.Is(err, errInterrupted) {
		return exitInterrupt
	}
	var fatal *netinstall.FatalError
	if asFatal(err, &fatal) {
		log.Printf("%v", fatal)
		return exitFatal
	}
	var abort *netinstall.AbortError
	if asAbort(err, &abort) {
		log.Printf("%v", abort)
		return exitAbort
	}
	log.Printf("%v", err)
	return exitFatal
}

func asFatal(err error, target **netinstall.FatalError) bool {
	fe, ok := err.(*netinstall.FatalError)
	if ok {
		*target = fe
	}
	return ok
}

func asAbort(err error, target **netinstall.AbortError) bool {
	ae, ok := err.(*netinstall.AbortError)
	if ok {
		*target = ae
	}
	return ok
}

func runSupervisor(configPath, ifaceFlag, loggingPath string, verbosity int, oneshot bool, socketPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return &netinstall.FatalError{Reason: "loading config", Err: err}
	}
	if oneshot {
		cfg.Oneshot = true
	}
	if ifaceFlag != "" {
		cfg.Interface = ifaceFlag
	}

	logCfg := config.DefaultLoggingConfig(verbosity)
	if loggingPath != "" {
		logCfg, err = config.LoadLoggingConfig(loggingPath)
		if err != nil {
			return &netinstall.FatalError{Reason: "loading logging config", Err: err}
		}
	}
	logger, err := logging.NewLoggerFromConfig("supervisor", logCfg)
	if err != nil {
		return &netinstall.FatalError{Reason: "initializing logger", Err: err}
	}
	defer logger.Close()

	if cfg.Plugin == "external" {
		provider.ConfigureExternal(provider.ExternalConfig{Command: cfg.ExternalCommand})
	} else {
		provider.Configure(provider.SimpleConfig{
			Firmware:           cfg.Firmware,
			Config:             cfg.InitialConfig,
			AdditionalPackages: cfg.AdditionalPackages,
		})
	}
	plugin, err := provider.Lookup(cfg.Plugin)
	if err != nil {
		return err
	}

	sel, err := netinstall.ParseInterfaceSelector(cfg.Interface)
	if err != nil {
		return &netinstall.FatalError{Reason: "parsing interface", Err: err}
	}
	transport, err := netinstall.Open(sel, netinstall.DefaultRecvTimeout)
	if err != nil {
		return &netinstall.FatalError{Reason: "opening transport", Err: err}
	}
	defer transport.Close()

	feed, err := statusfeed.Serve(socketPath)
	if err != nil {
		logger.Warnf("status feed unavailable: %v", err)
	} else {
		defer feed.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT (Ctrl+C) and SIGTERM both cancel ctx, which the supervisor
	// checks before each discovery; a session already in flight is not
	// interrupted and runs to its end first. SIGINT then reports via
	// exitInterrupt; SIGTERM reports through sup.Run's own return value,
	// i.e. a clean exit.
	interrupted := make(chan struct{})
	intCh := make(chan os.Signal, 1)
	termCh := make(chan os.Signal, 1)
	signal.Notify(intCh, os.Interrupt)
	signal.Notify(termCh, syscall.SIGTERM)
	go func() {
		select {
		case <-intCh:
			logger.Infof("received interrupt, shutting down")
			close(interrupted)
		case <-termCh:
			logger.Infof("received SIGTERM, shutting down")
		}
		cancel()
	}()

	sup := &netinstall.Supervisor{
		Transport: transport,
		Resolver:  provider.Resolver{Provider: plugin},
		Log:       logger,
		Oneshot:   cfg.Oneshot,
	}
	if feed != nil {
		sup.OnStatus = feed.Publish
	}

	runErr := sup.Run(ctx)
	select {
	case <-interrupted:
		return errInterrupted
	default:
		return runErr
	}
}

func runWatch(socketPath string) error {
	events, err := statusfeed.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return tui.Run(events)
}
