package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		vendor   string
		ip       string
		want     string
	}{
		{"hostname router", "main-router.lan", "Apple", "192.168.1.20", "Router"},
		{"hostname gateway", "Gateway", "", "192.168.1.20", "Router"},
		{"hostname printer", "hp-print-02", "", "192.168.1.20", "Printer"},
		{"hostname camera", "frontdoor-cam", "", "192.168.1.20", "Camera"},
		{"hostname phone", "Johns-iPhone", "", "192.168.1.20", "Phone"},
		{"vendor apple", "macbook", "Apple", "192.168.1.20", "Apple Device"},
		{"vendor samsung", "", "Samsung Electronics", "192.168.1.20", "Samsung Device"},
		{"vendor network", "", "TP-Link", "192.168.1.20", "Network Device"},
		{"vendor raspberry", "", "Raspberry Pi Trading", "192.168.1.20", "Raspberry Pi"},
		{"position .1", "", "", "192.168.1.1", "Router/Gateway"},
		{"position .254", "", "Acme", "10.0.0.254", "Router/Gateway"},
		{"hostname beats position", "printer", "", "192.168.1.1", "Printer"},
		{"unknown", "nas", "Acme", "192.168.1.100", UnknownDeviceType},
		{"suffix only match", "", "", "192.168.1.11", UnknownDeviceType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.hostname, tt.vendor, tt.ip))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Router/Gateway", describe("192.168.0.1"))
	assert.Equal(t, "Router/Gateway", describe("172.16.0.254"))
	assert.Empty(t, describe("172.16.0.25"))
	assert.Empty(t, describe("not-an-ip"))
}

func TestFuse_NameServiceDescription(t *testing.T) {
	id := fuse("192.168.1.60", evidence{
		hostname: "media.lan",
		record:   NameRecord{Description: "Chromecast", Source: SourceMDNS},
	})
	assert.Equal(t, "Chromecast", id.Description)
	assert.Equal(t, weightDNS+weightDescription, id.Confidence)
	assert.Equal(t, []string{SourceDNS, SourceMDNS}, id.Sources)
}

func TestFuse_NameServiceListedOnce(t *testing.T) {
	id := fuse("192.168.1.61", evidence{
		record: NameRecord{Name: "core-switch", Description: "Cisco IOS Software", Source: SourceSNMP},
	})
	assert.Equal(t, "core-switch", id.Hostname)
	assert.Equal(t, weightNameService+weightDescription, id.Confidence)
	assert.Equal(t, []string{SourceSNMP}, id.Sources)
}

func TestFuse_DescriptionReplacesGatewayHeuristic(t *testing.T) {
	heuristic := fuse("192.168.1.1", evidence{})
	assert.Equal(t, "Router/Gateway", heuristic.Description)

	reported := fuse("192.168.1.1", evidence{
		record: NameRecord{Description: "RouterOS CRS125", Source: SourceSNMP},
	})
	assert.Equal(t, "RouterOS CRS125", reported.Description)
	assert.GreaterOrEqual(t, reported.Confidence, heuristic.Confidence)
	assert.Equal(t, []string{SourceSNMP}, reported.Sources)
}

func TestDeviceIdentity_Clone(t *testing.T) {
	orig := DeviceIdentity{IP: "10.0.0.1", Sources: []string{SourceDNS}}
	c := orig.Clone()
	c.Sources[0] = SourceARP
	assert.Equal(t, SourceDNS, orig.Sources[0])

	empty := DeviceIdentity{}.Clone()
	assert.NotNil(t, empty.Sources)
}
