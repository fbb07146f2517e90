package discovery

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// nmapRun mirrors the subset of nmap's -oX output a ping sweep produces.
type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status    nmapStatus     `xml:"status"`
	Addresses []nmapAddress  `xml:"address"`
	Hostnames []nmapHostname `xml:"hostnames>hostname"`
}

type nmapStatus struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// Host is a responsive host reported by a sweep.
type Host struct {
	Address  string
	MAC      string
	Vendor   string
	Hostname string
}

// ParseNmapXML extracts the hosts nmap reported as up.
func ParseNmapXML(data []byte) ([]Host, error) {
	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse nmap xml: %w", err)
	}

	var hosts []Host
	for _, h := range run.Hosts {
		if h.Status.State != "" && h.Status.State != "up" {
			continue
		}
		var host Host
		for _, a := range h.Addresses {
			switch a.AddrType {
			case "ipv4", "ipv6":
				if host.Address == "" {
					host.Address = a.Addr
				}
			case "mac":
				host.MAC = strings.ToLower(a.Addr)
				host.Vendor = a.Vendor
			}
		}
		if host.Address == "" {
			continue
		}
		for _, hn := range h.Hostnames {
			if hn.Name != "" {
				host.Hostname = hn.Name
				break
			}
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}
