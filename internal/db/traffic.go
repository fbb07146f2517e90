package db

import (
	"database/sql"
	"fmt"

	"github.com/rsclarke/netwatch/internal/models"
)

const insertTrafficSQL = `
	INSERT INTO traffic (timestamp, interface, src_ip, dst_ip, protocol, payload, encrypted)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// InsertTraffic appends a single traffic record and returns its id.
func InsertTraffic(d *sql.DB, rec *models.TrafficRecord) (int64, error) {
	result, err := d.Exec(insertTrafficSQL,
		rec.Timestamp, rec.Interface, rec.SourceAddress, rec.DestinationAddress,
		rec.Protocol, rec.HasPayload, rec.IsEncrypted)
	if err != nil {
		return 0, fmt.Errorf("insert traffic: %w", err)
	}
	return result.LastInsertId()
}

// InsertTrafficBatch appends records in a single transaction.
// Either every record is stored or none is.
func InsertTrafficBatch(d *sql.DB, recs []models.TrafficRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := d.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertTrafficSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range recs {
		rec := &recs[i]
		if _, err := stmt.Exec(rec.Timestamp, rec.Interface, rec.SourceAddress, rec.DestinationAddress,
			rec.Protocol, rec.HasPayload, rec.IsEncrypted); err != nil {
			return 0, fmt.Errorf("insert traffic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(recs), nil
}

// ListTraffic returns at most limit records, newest first. An empty iface
// matches every interface. A limit outside 1..MaxRows is treated as MaxRows.
func ListTraffic(d *sql.DB, iface string, limit int) ([]models.TrafficRecord, error) {
	rows, err := d.Query(`
		SELECT id, timestamp, interface, src_ip, dst_ip, protocol, payload, encrypted
		FROM traffic
		WHERE (? = '' OR interface = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, iface, iface, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query traffic: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []models.TrafficRecord{}
	for rows.Next() {
		var r models.TrafficRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Interface, &r.SourceAddress, &r.DestinationAddress,
			&r.Protocol, &r.HasPayload, &r.IsEncrypted); err != nil {
			return nil, fmt.Errorf("scan traffic: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountTraffic returns the number of stored traffic records for iface, or
// for every interface when iface is empty.
func CountTraffic(d *sql.DB, iface string) (int, error) {
	var n int
	err := d.QueryRow("SELECT COUNT(*) FROM traffic WHERE (? = '' OR interface = ?)", iface, iface).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count traffic: %w", err)
	}
	return n, nil
}
