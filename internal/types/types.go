// Package types defines the API response types.
package types

// TrafficRecord is a single traffic row as returned by GET /traffic.
type TrafficRecord struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Interface string `json:"interface"`
	SrcIP     string `json:"src_ip"`
	DstIP     string `json:"dst_ip"`
	Protocol  string `json:"protocol"`
	Payload   bool   `json:"payload"`
	Encrypted bool   `json:"encrypted"`
}

// DeviceRecord is a single device row as returned by GET /devices.
type DeviceRecord struct {
	IP        string `json:"ip"`
	Hostname  string `json:"hostname"`
	MAC       string `json:"mac"`
	Interface string `json:"interface"`
	LastSeen  string `json:"last_seen"`
}

// ScanRecord is a single discovery sweep summary as returned by GET /scans.
type ScanRecord struct {
	ID          int64  `json:"id"`
	Timestamp   string `json:"timestamp"`
	Interface   string `json:"interface"`
	DeviceCount int    `json:"device_count"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// ErrorResponse is the response body for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
