// Package models defines the database entity types.
package models

// TimestampLayout is the wall-clock layout used for every stored timestamp.
// It matches tcpdump's -tttt output and sorts lexicographically.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// UnknownMAC is stored when a device's hardware address cannot be resolved.
const UnknownMAC = "Unknown"

// TrafficRecord represents one classified packet summary observed on an interface.
type TrafficRecord struct {
	ID                 int64
	Timestamp          string
	Interface          string
	SourceAddress      string
	DestinationAddress string
	Protocol           string
	HasPayload         bool
	IsEncrypted        bool
}

// DeviceRecord represents a host found by a discovery sweep, keyed by address.
type DeviceRecord struct {
	Address    string
	Hostname   string
	MACAddress string
	Interface  string
	LastSeen   string
}

// ScanRecord captures the outcome of one discovery sweep on one interface.
type ScanRecord struct {
	ID          int64
	Timestamp   string
	Interface   string
	DeviceCount int
	DurationMS  int64
	Error       string
}
