package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsclarke/netwatch/internal/agent"
	"github.com/rsclarke/netwatch/internal/auth"
	"github.com/rsclarke/netwatch/internal/capture"
	"github.com/rsclarke/netwatch/internal/config"
	"github.com/rsclarke/netwatch/internal/db"
	"github.com/rsclarke/netwatch/internal/deps"
	"github.com/rsclarke/netwatch/internal/discovery"
	"github.com/rsclarke/netwatch/internal/logging"
	"github.com/rsclarke/netwatch/internal/netif"
	"github.com/rsclarke/netwatch/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const ptrTimeout = 2 * time.Second

var runFlags struct {
	dbPath            string
	logPath           string
	captureDir        string
	captureFormat     string
	addressRange      string
	apiPort           int
	apiUsername       string
	apiPassword       string
	captureDuration   string
	discoveryInterval string
	discoveryTimeout  string
	maxPackets        int
	dnsServer         string
	interfaces        []string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring agent",
	Long: `Run the monitoring agent until interrupted.

Startup checks that tcpdump and nmap are installed and that at least one
usable interface exists. The agent then sweeps the address range once,
starts the query API and repeats capture and discovery on every interface,
sleeping for the discovery interval between cycles.

Settings are read from defaults, the config file, NETWATCH_* environment
variables and finally the flags below. Capturing requires root or the
CAP_NET_RAW and CAP_NET_ADMIN capabilities.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runFlags.dbPath, "db", "", "database path (env NETWATCH_DB)")
	f.StringVar(&runFlags.logPath, "log", "", "log file path (env NETWATCH_LOG)")
	f.StringVar(&runFlags.captureDir, "capture-dir", "", "directory for capture files (env NETWATCH_CAPTURE_DIR)")
	f.StringVar(&runFlags.captureFormat, "capture-format", "", "capture file format: text or pcap (env NETWATCH_CAPTURE_FORMAT)")
	f.StringVar(&runFlags.addressRange, "range", "", "address range to sweep (env NETWATCH_RANGE)")
	f.IntVar(&runFlags.apiPort, "api-port", 0, "API port to listen on (env NETWATCH_API_PORT)")
	f.StringVar(&runFlags.apiUsername, "api-username", "", "API username (env NETWATCH_API_USERNAME)")
	f.StringVar(&runFlags.apiPassword, "api-password", "", "API password, generated when empty (env NETWATCH_API_PASSWORD)")
	f.StringVar(&runFlags.captureDuration, "capture-duration", "", "capture duration per interface (env NETWATCH_CAPTURE_DURATION)")
	f.StringVar(&runFlags.discoveryInterval, "discovery-interval", "", "sleep between cycles (env NETWATCH_DISCOVERY_INTERVAL)")
	f.StringVar(&runFlags.discoveryTimeout, "discovery-timeout", "", "timeout of one sweep, defaults to the interval (env NETWATCH_DISCOVERY_TIMEOUT)")
	f.IntVar(&runFlags.maxPackets, "max-packets", 0, "packet cap per capture (env NETWATCH_MAX_PACKETS)")
	f.StringVar(&runFlags.dnsServer, "dns-server", "", "resolver for reverse lookups (env NETWATCH_DNS_SERVER)")
	f.StringSliceVar(&runFlags.interfaces, "interface", nil, "restrict monitoring to these interfaces (env NETWATCH_INTERFACES)")
}

// applyRunFlags overlays the flags that were set explicitly.
func applyRunFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	strs := map[string]struct {
		src string
		dst *string
	}{
		"db":             {runFlags.dbPath, &cfg.DBPath},
		"log":            {runFlags.logPath, &cfg.LogPath},
		"capture-dir":    {runFlags.captureDir, &cfg.CaptureDir},
		"capture-format": {runFlags.captureFormat, &cfg.CaptureFormat},
		"range":          {runFlags.addressRange, &cfg.AddressRange},
		"api-username":   {runFlags.apiUsername, &cfg.APIUsername},
		"api-password":   {runFlags.apiPassword, &cfg.APIPassword},
		"dns-server":     {runFlags.dnsServer, &cfg.DNSServer},
	}
	for name, v := range strs {
		if flags.Changed(name) {
			*v.dst = v.src
		}
	}

	if flags.Changed("api-port") {
		cfg.APIPort = runFlags.apiPort
	}
	if flags.Changed("max-packets") {
		cfg.MaxPackets = runFlags.maxPackets
	}
	if flags.Changed("interface") {
		cfg.Interfaces = runFlags.interfaces
	}

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"capture-duration", runFlags.captureDuration, &cfg.CaptureDuration},
		{"discovery-interval", runFlags.discoveryInterval, &cfg.DiscoveryInterval},
		{"discovery-timeout", runFlags.discoveryTimeout, &cfg.DiscoveryTimeout},
	}
	for _, d := range durations {
		if !flags.Changed(d.name) {
			continue
		}
		v, err := config.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("--%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyRunFlags(cfg, cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return fatal(err)
	}

	fileLogger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogPath})
	if err != nil {
		return fatal(fmt.Errorf("initializing logger: %w", err))
	}
	logging.Sync(logger)
	logger = fileLogger

	if err := startAgent(cmd.Context(), cfg); err != nil {
		return fatal(err)
	}
	return nil
}

// fatal logs err and flushes the logger. cobra skips PersistentPostRun when
// RunE fails.
func fatal(err error) error {
	logger.Error("fatal error", zap.Error(err))
	logging.Sync(logger)
	return err
}

func startAgent(parent context.Context, cfg *config.Config) error {
	results, err := deps.New().Check()
	for _, r := range results {
		if r.Err == nil {
			logger.Debug("dependency found", logging.Dependency(r.Name), logging.File(r.Path))
		}
	}
	if err != nil {
		return err
	}

	ifaces, err := netif.Discover(cfg.Interfaces)
	if err != nil {
		return err
	}
	logger.Info("monitoring interfaces", zap.Strings("interfaces", ifaces))

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.APIPassword == "" {
		password, err := auth.GeneratePassword()
		if err != nil {
			return fmt.Errorf("generate API password: %w", err)
		}
		cfg.APIPassword = password
		fmt.Println("=============================================================")
		fmt.Println("API PASSWORD GENERATED (save this, it will not be shown again):")
		fmt.Printf("%s:%s\n", cfg.APIUsername, password)
		fmt.Println("=============================================================")
	}

	var resolver discovery.HostnameResolver
	ptr, err := discovery.NewPTRResolver(cfg.DNSServer, ptrTimeout)
	if err != nil {
		logger.Warn("reverse lookups disabled", zap.Error(err))
	} else {
		resolver = ptr
	}

	apiSrv := &server.APIServer{
		DB:          database,
		Credentials: auth.NewCredentials(cfg.APIUsername, cfg.APIPassword),
		Logger:      logger.Named("api"),
	}
	managed := server.NewManagedServer("api", server.DefaultServerConfig(cfg.APIAddr(), apiSrv.Handler(), logger.Named("api")))

	a := &agent.Agent{
		Interfaces: ifaces,
		Capturer:   capture.New(cfg, database, deps.Path(results, deps.Tcpdump), logger.Named("capture")),
		Discoverer: discovery.New(cfg, database, deps.Path(results, deps.Nmap), resolver, logger.Named("discovery")),
		Server:     managed,
		Interval:   cfg.DiscoveryInterval,
		Logger:     logger.Named("agent"),
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
