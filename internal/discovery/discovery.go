// Package discovery sweeps an address range for live hosts and records them
// as devices.
package discovery

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rsclarke/netwatch/internal/config"
	"github.com/rsclarke/netwatch/internal/db"
	"github.com/rsclarke/netwatch/internal/logging"
	"github.com/rsclarke/netwatch/internal/models"
	"go.uber.org/zap"
)

const (
	killGrace     = 5 * time.Second
	lookupTimeout = 2 * time.Second
)

// HostnameResolver resolves an address to a host name.
type HostnameResolver interface {
	LookupHostname(ctx context.Context, ip string) (string, error)
}

// Discoverer sweeps interfaces with nmap and upserts the hosts it finds.
type Discoverer struct {
	DB       *sql.DB
	Logger   *zap.Logger
	Nmap     string
	Range    string
	Timeout  time.Duration
	Resolver HostnameResolver
	ARPTable func() (map[string]string, error)

	now func() time.Time
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func New(cfg *config.Config, database *sql.DB, nmap string, resolver HostnameResolver, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		DB:       database,
		Logger:   logger,
		Nmap:     nmap,
		Range:    cfg.AddressRange,
		Timeout:  cfg.SweepTimeout(),
		Resolver: resolver,
		ARPTable: ReadARPTable,
		now:      time.Now,
		run:      runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Sweep runs one host sweep over the configured range on iface, bounded by
// d.Timeout.
func (d *Discoverer) Sweep(ctx context.Context, iface string) ([]Host, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	return d.sweep(ctx, iface)
}

func (d *Discoverer) sweep(ctx context.Context, iface string) ([]Host, error) {
	out, err := d.run(ctx, d.Nmap, "-sn", "-n", "-e", iface, "-oX", "-", d.Range)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("sweep on %s timed out after %s", iface, d.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("sweep on %s: %w", iface, err)
	}
	return ParseNmapXML(out)
}

// Discover sweeps iface, upserts every responsive host and records the scan.
// It returns the number of devices stored. d.Timeout bounds the whole pass:
// hosts still waiting for a hostname lookup at the deadline are stored
// without one.
func (d *Discoverer) Discover(ctx context.Context, iface string) (int, error) {
	start := d.now()
	scan := models.ScanRecord{
		Timestamp: start.Format(models.TimestampLayout),
		Interface: iface,
	}

	pctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	n, err := d.discover(pctx, iface, start)
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	scan.DeviceCount = n
	scan.DurationMS = d.now().Sub(start).Milliseconds()
	if err != nil {
		scan.Error = err.Error()
	}
	if _, serr := db.InsertScan(d.DB, &scan); serr != nil {
		d.Logger.Warn("failed to record scan", logging.Interface(iface), zap.Error(serr))
	}
	return n, err
}

func (d *Discoverer) discover(ctx context.Context, iface string, start time.Time) (int, error) {
	hosts, err := d.sweep(ctx, iface)
	if err != nil {
		return 0, err
	}

	arp := map[string]string{}
	if d.ARPTable != nil {
		if table, err := d.ARPTable(); err == nil {
			arp = table
		} else {
			d.Logger.Debug("arp table unavailable", zap.Error(err))
		}
	}

	lastSeen := start.Format(models.TimestampLayout)
	stored, unresolved := 0, 0
	for _, h := range hosts {
		dev := models.DeviceRecord{
			Address:    h.Address,
			Hostname:   h.Hostname,
			MACAddress: h.MAC,
			Interface:  iface,
			LastSeen:   lastSeen,
		}
		if dev.Hostname == "" && d.Resolver != nil {
			if ctx.Err() != nil {
				unresolved++
			} else {
				dev.Hostname = d.lookupHostname(ctx, h.Address)
			}
		}
		if dev.MACAddress == "" {
			dev.MACAddress = arp[h.Address]
		}
		if dev.MACAddress == "" {
			dev.MACAddress = models.UnknownMAC
		}
		if err := db.UpsertDevice(d.DB, &dev); err != nil {
			return stored, err
		}
		d.Logger.Debug("device seen", logging.Addr(dev.Address), zap.String("mac", dev.MACAddress), zap.String("vendor", h.Vendor))
		stored++
	}
	if unresolved > 0 {
		d.Logger.Warn("sweep deadline reached before hostname lookups finished",
			logging.Interface(iface), logging.Count(unresolved))
	}
	return stored, nil
}

func (d *Discoverer) lookupHostname(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	name, err := d.Resolver.LookupHostname(ctx, ip)
	if err != nil {
		d.Logger.Debug("hostname unresolved", logging.Addr(ip), zap.Error(err))
		return ""
	}
	return name
}

// DiscoverAll runs Discover on every interface in order. Failures are logged
// per interface and never stop the remaining sweeps.
func (d *Discoverer) DiscoverAll(ctx context.Context, ifaces []string) int {
	total := 0
	for _, iface := range ifaces {
		if ctx.Err() != nil {
			return total
		}
		n, err := d.Discover(ctx, iface)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				d.Logger.Error("device discovery failed", logging.Interface(iface), logging.Range(d.Range), zap.Error(err))
			}
			continue
		}
		d.Logger.Info("device discovery complete", logging.Interface(iface), logging.Count(n))
	}
	return total
}
