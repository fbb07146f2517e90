package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rsclarke/netwatch/internal/config"
	"github.com/rsclarke/netwatch/internal/db"
	"github.com/rsclarke/netwatch/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sweepXML(hosts ...string) []byte {
	return []byte(`<?xml version="1.0"?><nmaprun scanner="nmap">` + strings.Join(hosts, "") + `</nmaprun>`)
}

func upHost(ip, mac, hostname string) string {
	s := `<host><status state="up" reason="arp-response"/><address addr="` + ip + `" addrtype="ipv4"/>`
	if mac != "" {
		s += `<address addr="` + mac + `" addrtype="mac" vendor="Acme"/>`
	}
	s += `<hostnames>`
	if hostname != "" {
		s += `<hostname name="` + hostname + `" type="PTR"/>`
	}
	return s + `</hostnames></host>`
}

type fakeResolver map[string]string

func (f fakeResolver) LookupHostname(_ context.Context, ip string) (string, error) {
	if name, ok := f[ip]; ok {
		return name, nil
	}
	return "", errNoPTR
}

func newTestDiscoverer(t *testing.T, run func(ctx context.Context, name string, args ...string) ([]byte, error)) (*Discoverer, *sql.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	cfg := config.Default()
	cfg.AddressRange = "10.0.0.0/24"
	cfg.DiscoveryInterval = 5 * time.Second

	d := New(cfg, database, "nmap", fakeResolver{}, zap.NewNop())
	d.ARPTable = func() (map[string]string, error) { return map[string]string{}, nil }
	d.run = run
	return d, database
}

func TestDiscoverUpsertsHosts(t *testing.T) {
	var gotArgs []string
	d, database := newTestDiscoverer(t, func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return sweepXML(
			upHost("10.0.0.1", "AA:BB:CC:DD:EE:01", "router.lan"),
			upHost("10.0.0.5", "", ""),
			upHost("10.0.0.9", "", ""),
		), nil
	})
	d.Resolver = fakeResolver{"10.0.0.5": "laptop.lan"}
	d.ARPTable = func() (map[string]string, error) {
		return map[string]string{"10.0.0.5": "aa:bb:cc:dd:ee:05"}, nil
	}

	n, err := d.Discover(context.Background(), "eth0")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("stored %d devices, want 3", n)
	}

	want := strings.Join([]string{"-sn", "-n", "-e", "eth0", "-oX", "-", "10.0.0.0/24"}, " ")
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("nmap args = %q, want %q", got, want)
	}

	tests := []struct {
		ip, hostname, mac string
	}{
		{"10.0.0.1", "router.lan", "aa:bb:cc:dd:ee:01"},
		{"10.0.0.5", "laptop.lan", "aa:bb:cc:dd:ee:05"},
		{"10.0.0.9", "", models.UnknownMAC},
	}
	for _, tt := range tests {
		dev, err := db.GetDevice(database, tt.ip)
		if err != nil || dev == nil {
			t.Fatalf("GetDevice(%s) = %v, %v", tt.ip, dev, err)
		}
		if dev.Hostname != tt.hostname || dev.MACAddress != tt.mac || dev.Interface != "eth0" {
			t.Errorf("device %s = %+v, want hostname %q mac %q", tt.ip, dev, tt.hostname, tt.mac)
		}
	}

	scans, err := db.ListScans(database, "eth0", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 1 || scans[0].DeviceCount != 3 || scans[0].Error != "" {
		t.Errorf("unexpected scans: %+v", scans)
	}
}

func TestRediscoveryKeepsOneRow(t *testing.T) {
	hostname := "first.lan"
	d, database := newTestDiscoverer(t, func(context.Context, string, ...string) ([]byte, error) {
		return sweepXML(upHost("10.0.0.5", "", hostname)), nil
	})

	if _, err := d.Discover(context.Background(), "eth0"); err != nil {
		t.Fatalf("first Discover failed: %v", err)
	}
	hostname = "second.lan"
	d.now = func() time.Time { return time.Now().Add(time.Minute) }
	if _, err := d.Discover(context.Background(), "eth0"); err != nil {
		t.Fatalf("second Discover failed: %v", err)
	}

	count, err := db.CountDevices(database)
	if err != nil {
		t.Fatalf("CountDevices failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 device row, got %d", count)
	}
	dev, err := db.GetDevice(database, "10.0.0.5")
	if err != nil || dev == nil {
		t.Fatalf("GetDevice = %v, %v", dev, err)
	}
	if dev.Hostname != "second.lan" {
		t.Errorf("hostname = %q, want second.lan", dev.Hostname)
	}
}

func TestDiscoverAllIsolatesFailures(t *testing.T) {
	d, database := newTestDiscoverer(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if args[3] == "eth1" {
			return nil, errors.New("exit status 1: eth1: interface not found")
		}
		return sweepXML(upHost("10.0.0."+strings.TrimPrefix(args[3], "eth"), "", "")), nil
	})

	total := d.DiscoverAll(context.Background(), []string{"eth0", "eth1", "eth2"})
	if total != 2 {
		t.Fatalf("DiscoverAll stored %d devices, want 2", total)
	}

	for _, ip := range []string{"10.0.0.0", "10.0.0.2"} {
		if dev, err := db.GetDevice(database, ip); err != nil || dev == nil {
			t.Errorf("device %s missing: %v", ip, err)
		}
	}

	scans, err := db.ListScans(database, "eth1", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 1 || !strings.Contains(scans[0].Error, "interface not found") {
		t.Errorf("expected failed eth1 scan to be recorded, got %+v", scans)
	}
}

func TestSweepTimeout(t *testing.T) {
	d, _ := newTestDiscoverer(t, func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d.Timeout = 100 * time.Millisecond

	_, err := d.Sweep(context.Background(), "eth0")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Sweep error = %v, want timeout", err)
	}
}

type blockingResolver struct{}

func (blockingResolver) LookupHostname(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestDiscoverTimeoutBoundsHostnameLookups(t *testing.T) {
	d, database := newTestDiscoverer(t, func(context.Context, string, ...string) ([]byte, error) {
		return sweepXML(
			upHost("10.0.0.1", "", ""),
			upHost("10.0.0.2", "", ""),
			upHost("10.0.0.3", "", "nas.lan"),
		), nil
	})
	d.Resolver = blockingResolver{}
	d.Timeout = 100 * time.Millisecond

	start := time.Now()
	n, err := d.Discover(context.Background(), "eth0")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if n != 3 {
		t.Errorf("stored %d devices, want 3", n)
	}
	if elapsed > time.Second {
		t.Errorf("Discover took %s with a %s timeout", elapsed, d.Timeout)
	}

	devices, err := db.ListDevices(database, "eth0")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	names := map[string]string{}
	for _, dev := range devices {
		names[dev.Address] = dev.Hostname
	}
	if names["10.0.0.1"] != "" || names["10.0.0.2"] != "" {
		t.Errorf("expected unresolved hostnames to be empty, got %v", names)
	}
	if names["10.0.0.3"] != "nas.lan" {
		t.Errorf("nmap hostname lost: %v", names)
	}

	scans, err := db.ListScans(database, "eth0", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 1 || scans[0].Error != "" || scans[0].DeviceCount != 3 {
		t.Errorf("unexpected scan record %+v", scans)
	}
}

func TestDiscoverRecordsTimedOutSweep(t *testing.T) {
	d, database := newTestDiscoverer(t, func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d.Timeout = 50 * time.Millisecond

	if _, err := d.Discover(context.Background(), "eth0"); err == nil {
		t.Fatal("expected timeout error")
	}
	scans, err := db.ListScans(database, "eth0", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 1 || !strings.Contains(scans[0].Error, "timed out") {
		t.Errorf("expected timed out scan to be recorded, got %+v", scans)
	}
}

func TestDiscoverLogsVendor(t *testing.T) {
	d, _ := newTestDiscoverer(t, func(context.Context, string, ...string) ([]byte, error) {
		return sweepXML(upHost("10.0.0.9", "AA:BB:CC:00:00:09", "")), nil
	})
	core, logs := observer.New(zapcore.DebugLevel)
	d.Logger = zap.New(core)

	if _, err := d.Discover(context.Background(), "eth0"); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	seen := logs.FilterMessage("device seen").All()
	if len(seen) != 1 {
		t.Fatalf("expected 1 device log, got %d", len(seen))
	}
	fields := seen[0].ContextMap()
	if fields["vendor"] != "Acme" || fields["mac"] != "aa:bb:cc:00:00:09" {
		t.Errorf("unexpected log fields %v", fields)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	d, database := newTestDiscoverer(t, func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := d.Discover(ctx, "eth0")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Discover error = %v, want context.Canceled", err)
	}
	scans, err := db.ListScans(database, "", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 0 {
		t.Errorf("cancelled sweep recorded a scan: %+v", scans)
	}
}

func TestSweepInvalidXML(t *testing.T) {
	d, _ := newTestDiscoverer(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Starting Nmap 7.94"), nil
	})

	if _, err := d.Sweep(context.Background(), "eth0"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseNmapXML(t *testing.T) {
	data := sweepXML(
		upHost("192.168.1.1", "00:11:22:33:44:55", "gw.home"),
		`<host><status state="down"/><address addr="192.168.1.2" addrtype="ipv4"/></host>`,
		`<host><status state="up"/><address addr="00:11:22:33:44:66" addrtype="mac"/></host>`,
		upHost("192.168.1.3", "", ""),
	)

	hosts, err := ParseNmapXML(data)
	if err != nil {
		t.Fatalf("ParseNmapXML failed: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d: %+v", len(hosts), hosts)
	}
	want := Host{Address: "192.168.1.1", MAC: "00:11:22:33:44:55", Vendor: "Acme", Hostname: "gw.home"}
	if hosts[0] != want {
		t.Errorf("hosts[0] = %+v, want %+v", hosts[0], want)
	}
	if hosts[1].Address != "192.168.1.3" || hosts[1].MAC != "" {
		t.Errorf("hosts[1] = %+v", hosts[1])
	}
}

func TestParseARPTable(t *testing.T) {
	input := `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         00:11:22:33:44:55     *        eth0
192.168.1.7      0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.9      0x1         0x2         AA:BB:CC:DD:EE:FF     *        wlan0
`
	table, err := ParseARPTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseARPTable failed: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(table), table)
	}
	if table["192.168.1.9"] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected mac for 192.168.1.9: %q", table["192.168.1.9"])
	}
	if _, ok := table["192.168.1.7"]; ok {
		t.Error("incomplete entry should be skipped")
	}
}

func ExampleParseNmapXML() {
	hosts, _ := ParseNmapXML(sweepXML(upHost("10.0.0.1", "", "router.lan")))
	for _, h := range hosts {
		fmt.Println(h.Address, h.Hostname)
	}
	// Output: 10.0.0.1 router.lan
}
