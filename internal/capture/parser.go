package capture

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rsclarke/netwatch/internal/models"
)

// EncryptedPort is the destination port that marks traffic as encrypted.
const EncryptedPort = "443"

// Parser converts one raw line of capture output into a traffic record.
// ok is false when the line does not carry both a source and a destination.
type Parser interface {
	ParseLine(line string) (rec models.TrafficRecord, ok bool)
}

// TextParser parses tcpdump -nn summaries, with or without -tttt timestamps.
type TextParser struct {
	Interface string
	// Fallback supplies the date for time-only stamps and the whole
	// timestamp for lines without one.
	Fallback time.Time
}

// ParseLine implements Parser.
func (p TextParser) ParseLine(line string) (models.TrafficRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return models.TrafficRecord{}, false
	}

	ts, fields := p.timestamp(fields)

	arrow := -1
	for i, f := range fields {
		if f == ">" {
			arrow = i
			break
		}
	}
	if arrow < 1 || arrow+1 >= len(fields) {
		return models.TrafficRecord{}, false
	}

	srcHost, srcPort := splitAddr(fields[arrow-1])
	dstHost, dstPort := splitAddr(strings.TrimSuffix(fields[arrow+1], ":"))
	if !validHost(srcHost) || !validHost(dstHost) {
		return models.TrafficRecord{}, false
	}

	var network string
	if arrow >= 2 {
		network = strings.TrimSuffix(fields[arrow-2], ",")
	}
	rest := fields[arrow+2:]

	return models.TrafficRecord{
		Timestamp:          ts,
		Interface:          p.Interface,
		SourceAddress:      srcHost,
		DestinationAddress: dstHost,
		Protocol:           classify(network, rest, srcPort != "" || dstPort != ""),
		HasPayload:         payloadLength(rest) > 0,
		IsEncrypted:        dstPort == EncryptedPort,
	}, true
}

func (p TextParser) timestamp(fields []string) (string, []string) {
	if len(fields) >= 2 {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05.999999", fields[0]+" "+fields[1], time.Local); err == nil {
			return t.Format(models.TimestampLayout), fields[2:]
		}
	}
	if t, err := time.Parse("15:04:05.999999", fields[0]); err == nil {
		d := p.Fallback
		stamp := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), d.Location())
		return stamp.Format(models.TimestampLayout), fields[1:]
	}
	return p.Fallback.Format(models.TimestampLayout), fields
}

// splitAddr strips the port from tcpdump's host.port form as well as the
// host:port and [v6]:port forms.
func splitAddr(addr string) (host, port string) {
	addr = strings.TrimSuffix(addr, ",")
	if addr == "" {
		return "", ""
	}
	if h, p, err := net.SplitHostPort(addr); err == nil {
		return h, p
	}
	if ip := net.ParseIP(addr); ip != nil {
		return addr, ""
	}
	i := strings.LastIndexByte(addr, '.')
	if i <= 0 {
		return addr, ""
	}
	h, p := addr[:i], addr[i+1:]
	if _, err := strconv.Atoi(p); err != nil {
		return addr, ""
	}
	if net.ParseIP(h) == nil {
		return addr, ""
	}
	return h, p
}

// validHost accepts IP literals and dotted host names. It rejects protocol
// tokens such as "IP" that sit next to the arrow on malformed lines.
func validHost(h string) bool {
	return net.ParseIP(h) != nil || strings.Contains(h, ".")
}

func classify(network string, rest []string, ported bool) string {
	if len(rest) > 0 {
		head := strings.TrimSuffix(rest[0], ",")
		switch {
		case head == "Flags":
			return "TCP"
		case strings.EqualFold(head, "UDP"):
			return "UDP"
		case head == "ICMP6":
			return "ICMP6"
		case head == "ICMP":
			return "ICMP"
		case strings.EqualFold(head, "igmp"):
			return "IGMP"
		}
	}
	switch network {
	case "IP", "IP6":
		// tcpdump prints "Flags [...]" for every TCP segment, so any other
		// ported IP packet is UDP with a decoded application summary.
		if ported {
			return "UDP"
		}
		return network
	case "ARP", "STP", "LLDP":
		return network
	}
	return "OTHER"
}

// payloadLength returns the value of the last "length N" pair, or 0.
func payloadLength(rest []string) int {
	n := 0
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] != "length" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimRight(rest[i+1], ",:)"))
		if err == nil {
			n = v
		}
	}
	return n
}

// ParseLines runs every line of r through p and returns the parsed records.
// Lines p rejects are skipped.
func ParseLines(r io.Reader, p Parser) ([]models.TrafficRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []models.TrafficRecord
	for scanner.Scan() {
		if rec, ok := p.ParseLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read capture: %w", err)
	}
	return records, nil
}
