// Package netif enumerates the host interfaces eligible for monitoring.
package netif

import (
	"errors"
	"fmt"
	"net"
	"slices"
)

// ErrNoInterfaces is returned when no usable interface remains after filtering.
var ErrNoInterfaces = errors.New("no usable network interfaces found")

// Discover returns the names of every non-loopback interface that is up.
// When allow is non-empty only the named interfaces are kept.
func Discover(allow []string) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	return filter(ifaces, allow)
}

func filter(ifaces []net.Interface, allow []string) ([]string, error) {
	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Name == "lo" {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(allow) > 0 && !slices.Contains(allow, iface.Name) {
			continue
		}
		names = append(names, iface.Name)
	}
	if len(names) == 0 {
		return nil, ErrNoInterfaces
	}
	return names, nil
}
