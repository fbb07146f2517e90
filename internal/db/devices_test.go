package db

import (
	"testing"

	"github.com/rsclarke/netwatch/internal/models"
)

func TestUpsertDeviceIsIdempotent(t *testing.T) {
	d := openTestDB(t)

	first := &models.DeviceRecord{
		Address:    "10.0.0.5",
		Hostname:   "printer.lan",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		Interface:  "eth0",
		LastSeen:   "2024-05-01 10:00:00.000000",
	}
	if err := UpsertDevice(d, first); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	second := &models.DeviceRecord{
		Address:   "10.0.0.5",
		Hostname:  "office-printer.lan",
		Interface: "wlan0",
		LastSeen:  "2024-05-01 10:01:00.000000",
	}
	if err := UpsertDevice(d, second); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	n, err := CountDevices(d)
	if err != nil {
		t.Fatalf("CountDevices failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 device row, got %d", n)
	}

	got, err := GetDevice(d, "10.0.0.5")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got == nil {
		t.Fatal("device not found")
	}
	if got.Hostname != "office-printer.lan" {
		t.Errorf("hostname = %q, want office-printer.lan", got.Hostname)
	}
	if got.MACAddress != models.UnknownMAC {
		t.Errorf("mac = %q, want %q", got.MACAddress, models.UnknownMAC)
	}
	if got.Interface != "wlan0" {
		t.Errorf("interface = %q, want wlan0", got.Interface)
	}
	if got.LastSeen != second.LastSeen {
		t.Errorf("last_seen = %q, want %q", got.LastSeen, second.LastSeen)
	}
}

func TestGetDeviceMissing(t *testing.T) {
	d := openTestDB(t)

	got, err := GetDevice(d, "10.9.9.9")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListDevicesFilter(t *testing.T) {
	d := openTestDB(t)

	devices := []models.DeviceRecord{
		{Address: "10.0.0.1", Interface: "eth0", LastSeen: "2024-05-01 10:00:00.000000"},
		{Address: "10.0.0.2", Interface: "eth0", LastSeen: "2024-05-01 10:02:00.000000"},
		{Address: "192.168.1.9", Interface: "wlan0", LastSeen: "2024-05-01 10:01:00.000000"},
	}
	for i := range devices {
		if err := UpsertDevice(d, &devices[i]); err != nil {
			t.Fatalf("UpsertDevice failed: %v", err)
		}
	}

	all, err := ListDevices(d, "")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(all))
	}
	if all[0].Address != "10.0.0.2" {
		t.Errorf("expected most recently seen first, got %s", all[0].Address)
	}

	eth0, err := ListDevices(d, "eth0")
	if err != nil {
		t.Fatalf("ListDevices(eth0) failed: %v", err)
	}
	if len(eth0) != 2 {
		t.Errorf("expected 2 eth0 devices, got %d", len(eth0))
	}

	none, err := ListDevices(d, "eth9")
	if err != nil {
		t.Fatalf("ListDevices(eth9) failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", none)
	}
}
