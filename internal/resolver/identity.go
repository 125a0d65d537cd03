package resolver

import (
	"slices"
	"strings"
)

// Evidence channel names recorded in DeviceIdentity.Sources.
const (
	SourceDNS  = "DNS"
	SourceMDNS = "mDNS"
	SourceSNMP = "SNMP"
	SourceARP  = "ARP"
	SourceOUI  = "OUI"
)

// Confidence weights per evidence channel.
const (
	weightDNS         = 30
	weightNameService = 25
	weightMAC         = 20
	weightVendor      = 10
	weightDescription = 15
	weightDeviceType  = 5
)

// UnknownDeviceType is used when no classification rule matched.
const UnknownDeviceType = "Unknown"

// DeviceIdentity is the fused identity of one host. Confidence is the sum of
// the weights of the channels that produced data.
type DeviceIdentity struct {
	IP          string   `json:"ip"`
	Hostname    string   `json:"hostname,omitempty"`
	MAC         string   `json:"macAddress,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	Description string   `json:"description,omitempty"`
	DeviceType  string   `json:"deviceType,omitempty"`
	Confidence  int      `json:"confidence"`
	Sources     []string `json:"sources"`
}

// Clone returns a copy that shares no memory with d.
func (d DeviceIdentity) Clone() DeviceIdentity {
	c := d
	c.Sources = append([]string{}, d.Sources...)
	return c
}

// emptyIdentity is the zero-confidence identity used for failed resolutions.
func emptyIdentity(ip string) DeviceIdentity {
	return DeviceIdentity{IP: ip, Sources: []string{}}
}

// add credits weight to the identity. A source is listed once even when it
// contributes more than one field.
func (d *DeviceIdentity) add(source string, weight int) {
	d.Confidence += weight
	if source != "" && !slices.Contains(d.Sources, source) {
		d.Sources = append(d.Sources, source)
	}
}

var hostnameTypes = []struct {
	keywords []string
	kind     string
}{
	{[]string{"router", "gateway"}, "Router"},
	{[]string{"printer", "print"}, "Printer"},
	{[]string{"camera", "cam"}, "Camera"},
	{[]string{"phone", "iphone", "android"}, "Phone"},
}

var vendorTypes = []struct {
	keywords []string
	kind     string
}{
	{[]string{"apple"}, "Apple Device"},
	{[]string{"samsung"}, "Samsung Device"},
	{[]string{"raspberry"}, "Raspberry Pi"},
	{[]string{"vmware", "virtualbox", "qemu", "hyper-v"}, "Virtual Machine"},
	{[]string{"epson", "brother", "canon"}, "Printer"},
	{[]string{"cisco", "tp-link", "netgear", "ubiquiti", "mikrotik", "d-link", "linksys", "asustek", "avm"}, "Network Device"},
}

func matchKeywords(value string, table []struct {
	keywords []string
	kind     string
}) string {
	v := strings.ToLower(value)
	if v == "" {
		return ""
	}
	for _, rule := range table {
		for _, kw := range rule.keywords {
			if strings.Contains(v, kw) {
				return rule.kind
			}
		}
	}
	return ""
}

// isGatewayAddress reports whether the host octet is .1 or .254.
func isGatewayAddress(ip string) bool {
	i := strings.LastIndexByte(ip, '.')
	if i < 0 {
		return false
	}
	octet := ip[i+1:]
	return octet == "1" || octet == "254"
}

// describe returns the heuristic description for ip, if any pattern applies.
func describe(ip string) string {
	if isGatewayAddress(ip) {
		return "Router/Gateway"
	}
	return ""
}

// classify resolves the device type: hostname keywords, then vendor keywords,
// then the address position, then Unknown.
func classify(hostname, vendor, ip string) string {
	if kind := matchKeywords(hostname, hostnameTypes); kind != "" {
		return kind
	}
	if kind := matchKeywords(vendor, vendorTypes); kind != "" {
		return kind
	}
	if isGatewayAddress(ip) {
		return "Router/Gateway"
	}
	return UnknownDeviceType
}
