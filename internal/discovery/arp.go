package discovery

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ARPTablePath is the kernel's neighbour table on Linux.
const ARPTablePath = "/proc/net/arp"

const incompleteMAC = "00:00:00:00:00:00"

// ReadARPTable returns address to MAC mappings from ARPTablePath.
func ReadARPTable() (map[string]string, error) {
	f, err := os.Open(ARPTablePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseARPTable(f)
}

// ParseARPTable parses the /proc/net/arp format. Incomplete entries are skipped.
func ParseARPTable(r io.Reader) (map[string]string, error) {
	table := make(map[string]string)
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mac := strings.ToLower(fields[3])
		if mac == incompleteMAC {
			continue
		}
		table[fields[0]] = mac
	}
	return table, scanner.Err()
}
