package db

import (
	"fmt"
	"testing"

	"github.com/rsclarke/netwatch/internal/models"
)

func trafficAt(iface string, second int) models.TrafficRecord {
	return models.TrafficRecord{
		Timestamp:          fmt.Sprintf("2024-05-01 10:00:%02d.000000", second),
		Interface:          iface,
		SourceAddress:      "10.0.0.5",
		DestinationAddress: "10.0.0.1",
		Protocol:           "TCP",
		HasPayload:         true,
		IsEncrypted:        second%2 == 0,
	}
}

func TestInsertTrafficAssignsIncreasingIDs(t *testing.T) {
	d := openTestDB(t)

	rec := trafficAt("eth0", 1)
	first, err := InsertTraffic(d, &rec)
	if err != nil {
		t.Fatalf("InsertTraffic failed: %v", err)
	}
	second, err := InsertTraffic(d, &rec)
	if err != nil {
		t.Fatalf("InsertTraffic failed: %v", err)
	}
	if second <= first {
		t.Errorf("expected increasing ids, got %d then %d", first, second)
	}
}

func TestInsertTrafficBatchAndList(t *testing.T) {
	d := openTestDB(t)

	recs := []models.TrafficRecord{
		trafficAt("eth0", 1),
		trafficAt("eth0", 3),
		trafficAt("wlan0", 2),
	}
	n, err := InsertTrafficBatch(d, recs)
	if err != nil {
		t.Fatalf("InsertTrafficBatch failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted %d, want 3", n)
	}

	all, err := ListTraffic(d, "", 0)
	if err != nil {
		t.Fatalf("ListTraffic failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Timestamp < all[i].Timestamp {
			t.Errorf("rows not newest first: %q before %q", all[i-1].Timestamp, all[i].Timestamp)
		}
	}
	if !all[0].HasPayload || all[0].Protocol != "TCP" {
		t.Errorf("unexpected first row: %+v", all[0])
	}

	eth0, err := ListTraffic(d, "eth0", 0)
	if err != nil {
		t.Fatalf("ListTraffic(eth0) failed: %v", err)
	}
	if len(eth0) != 2 {
		t.Fatalf("expected 2 eth0 rows, got %d", len(eth0))
	}
	for _, r := range eth0 {
		if r.Interface != "eth0" {
			t.Errorf("filter leaked interface %q", r.Interface)
		}
	}
}

func TestInsertTrafficBatchEmpty(t *testing.T) {
	d := openTestDB(t)

	n, err := InsertTrafficBatch(d, nil)
	if err != nil {
		t.Fatalf("InsertTrafficBatch failed: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted %d, want 0", n)
	}
}

func TestListTrafficLimit(t *testing.T) {
	d := openTestDB(t)

	recs := make([]models.TrafficRecord, 0, MaxRows+10)
	for i := 0; i < MaxRows+10; i++ {
		r := trafficAt("eth0", i%60)
		recs = append(recs, r)
	}
	if _, err := InsertTrafficBatch(d, recs); err != nil {
		t.Fatalf("InsertTrafficBatch failed: %v", err)
	}

	rows, err := ListTraffic(d, "", 0)
	if err != nil {
		t.Fatalf("ListTraffic failed: %v", err)
	}
	if len(rows) != MaxRows {
		t.Errorf("expected %d rows, got %d", MaxRows, len(rows))
	}

	rows, err = ListTraffic(d, "", 5)
	if err != nil {
		t.Fatalf("ListTraffic failed: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected 5 rows, got %d", len(rows))
	}
}

func TestListTrafficFilterIsParameterized(t *testing.T) {
	d := openTestDB(t)

	rec := trafficAt("eth0", 1)
	if _, err := InsertTraffic(d, &rec); err != nil {
		t.Fatalf("InsertTraffic failed: %v", err)
	}

	filters := []string{
		"eth0' OR '1'='1",
		"x'; DROP TABLE traffic; --",
		"nonexistent",
	}
	for _, f := range filters {
		t.Run(f, func(t *testing.T) {
			rows, err := ListTraffic(d, f, 0)
			if err != nil {
				t.Fatalf("ListTraffic(%q) failed: %v", f, err)
			}
			if len(rows) != 0 {
				t.Errorf("ListTraffic(%q) returned %d rows, want 0", f, len(rows))
			}
		})
	}

	n, err := CountTraffic(d, "")
	if err != nil {
		t.Fatalf("CountTraffic failed: %v", err)
	}
	if n != 1 {
		t.Errorf("traffic table altered: %d rows", n)
	}
}
