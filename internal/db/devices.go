package db

import (
	"database/sql"
	"fmt"

	"github.com/rsclarke/netwatch/internal/models"
)

// UpsertDevice inserts a device or refreshes the existing row for its address.
func UpsertDevice(d *sql.DB, dev *models.DeviceRecord) error {
	mac := dev.MACAddress
	if mac == "" {
		mac = models.UnknownMAC
	}
	_, err := d.Exec(`
		INSERT INTO devices (ip, hostname, mac, interface, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ip) DO UPDATE SET
			hostname = excluded.hostname,
			mac = excluded.mac,
			interface = excluded.interface,
			last_seen = excluded.last_seen
	`, dev.Address, dev.Hostname, mac, dev.Interface, dev.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", dev.Address, err)
	}
	return nil
}

// GetDevice returns the device stored for address, or nil if there is none.
func GetDevice(d *sql.DB, address string) (*models.DeviceRecord, error) {
	var dev models.DeviceRecord
	err := d.QueryRow(`
		SELECT ip, hostname, mac, interface, last_seen FROM devices WHERE ip = ?
	`, address).Scan(&dev.Address, &dev.Hostname, &dev.MACAddress, &dev.Interface, &dev.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &dev, nil
}

// ListDevices returns every device, most recently seen first. An empty iface
// matches every interface.
func ListDevices(d *sql.DB, iface string) ([]models.DeviceRecord, error) {
	rows, err := d.Query(`
		SELECT ip, hostname, mac, interface, last_seen
		FROM devices
		WHERE (? = '' OR interface = ?)
		ORDER BY last_seen DESC, ip
	`, iface, iface)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	devices := []models.DeviceRecord{}
	for rows.Next() {
		var dev models.DeviceRecord
		if err := rows.Scan(&dev.Address, &dev.Hostname, &dev.MACAddress, &dev.Interface, &dev.LastSeen); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, dev)
	}
	return devices, rows.Err()
}

// CountDevices returns the number of known devices.
func CountDevices(d *sql.DB) (int, error) {
	var n int
	if err := d.QueryRow("SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}
