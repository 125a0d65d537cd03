// Package netinfo inspects local network interfaces.
package netinfo

import (
	"fmt"
	"net"
	"strings"
)

// Interface is one IPv4 address on an up, non-loopback interface.
type Interface struct {
	Name    string `json:"name"`
	IP      string `json:"ip"`
	CIDR    string `json:"cidr"`
	MAC     string `json:"mac,omitempty"`
	Private bool   `json:"private"`
}

// BaseIP returns the three-octet prefix of the interface address.
func (i Interface) BaseIP() string {
	return BaseIPOf(i.IP)
}

// Interfaces lists the IPv4 addresses of up, non-loopback interfaces.
func Interfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var result []Interface
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		result = append(result, fromAddrs(iface.Name, iface.Flags, iface.HardwareAddr, addrs)...)
	}
	return result, nil
}

func fromAddrs(name string, flags net.Flags, mac net.HardwareAddr, addrs []net.Addr) []Interface {
	if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
		return nil
	}

	var result []Interface
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		network := &net.IPNet{IP: ip4.Mask(ipNet.Mask), Mask: ipNet.Mask}
		result = append(result, Interface{
			Name:    name,
			IP:      ip4.String(),
			CIDR:    network.String(),
			MAC:     mac.String(),
			Private: ip4.IsPrivate(),
		})
	}
	return result
}

// SuggestBaseIP returns the base address of the first private interface.
func SuggestBaseIP() (string, error) {
	ifaces, err := Interfaces()
	if err != nil {
		return "", err
	}
	return suggest(ifaces)
}

func suggest(ifaces []Interface) (string, error) {
	for _, iface := range ifaces {
		if iface.Private {
			return iface.BaseIP(), nil
		}
	}
	return "", fmt.Errorf("no private IPv4 interface found")
}

// BaseIPOf returns the first three octets of an IPv4 address, or "" when
// ip is not IPv4.
func BaseIPOf(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return ""
	}
	s := parsed.To4().String()
	return s[:strings.LastIndexByte(s, '.')]
}
