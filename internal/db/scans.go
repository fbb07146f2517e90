package db

import (
	"database/sql"
	"fmt"

	"github.com/rsclarke/netwatch/internal/models"
)

// InsertScan records the outcome of a discovery sweep.
func InsertScan(d *sql.DB, scan *models.ScanRecord) (int64, error) {
	result, err := d.Exec(`
		INSERT INTO scans (timestamp, interface, device_count, duration_ms, error)
		VALUES (?, ?, ?, ?, ?)
	`, scan.Timestamp, scan.Interface, scan.DeviceCount, scan.DurationMS, scan.Error)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	return result.LastInsertId()
}

// ListScans returns at most limit sweep summaries, newest first.
func ListScans(d *sql.DB, iface string, limit int) ([]models.ScanRecord, error) {
	rows, err := d.Query(`
		SELECT id, timestamp, interface, device_count, duration_ms, error
		FROM scans
		WHERE (? = '' OR interface = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, iface, iface, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	scans := []models.ScanRecord{}
	for rows.Next() {
		var s models.ScanRecord
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.Interface, &s.DeviceCount, &s.DurationMS, &s.Error); err != nil {
			return nil, fmt.Errorf("scan scan record: %w", err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
