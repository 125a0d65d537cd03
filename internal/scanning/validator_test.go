package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() ScanRequest {
	return ScanRequest{
		BaseIP:     "192.168.1",
		StartRange: 1,
		EndRange:   5,
		Ports:      []int{22, 80},
		TimeoutMS:  2000,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *ScanRequest)
		wantErr string
	}{
		{"valid", func(r *ScanRequest) {}, ""},
		{"missing base", func(r *ScanRequest) { r.BaseIP = "" }, "baseIp is required"},
		{"four octets", func(r *ScanRequest) { r.BaseIP = "192.168.1.0" }, "three dotted octets"},
		{"octet too large", func(r *ScanRequest) { r.BaseIP = "192.168.300" }, "three dotted octets"},
		{"letters", func(r *ScanRequest) { r.BaseIP = "abc.def.ghi" }, "three dotted octets"},
		{"start zero", func(r *ScanRequest) { r.StartRange = 0 }, "startRange must be at least 1"},
		{"end too large", func(r *ScanRequest) { r.EndRange = 255 }, "endRange must be at most 254"},
		{"start after end", func(r *ScanRequest) { r.StartRange, r.EndRange = 10, 5 }, "endRange must not be less than startRange"},
		{"no ports", func(r *ScanRequest) { r.Ports = nil }, "ports is required"},
		{"empty ports", func(r *ScanRequest) { r.Ports = []int{} }, "ports must contain at least one port"},
		{"port zero", func(r *ScanRequest) { r.Ports = []int{80, 0} }, "ports[1] must be between 1 and 65535"},
		{"port too large", func(r *ScanRequest) { r.Ports = []int{65536} }, "ports[0] must be between 1 and 65535"},
		{"timeout zero", func(r *ScanRequest) { r.TimeoutMS = 0 }, "timeoutMs must be at least 100"},
		{"timeout too large", func(r *ScanRequest) { r.TimeoutMS = 60000 }, "timeoutMs must be at most 30000"},
		{"concurrency too high", func(r *ScanRequest) { r.ConcurrencyLimit = 500 }, "concurrencyLimit must be at most 100"},
		{"single host range", func(r *ScanRequest) { r.StartRange, r.EndRange = 7, 7 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			res := Validate(req)
			if tt.wantErr == "" {
				assert.True(t, res.OK, "errors: %v", res.Errors)
				assert.Empty(t, res.Errors)
				return
			}
			require.False(t, res.OK)
			require.NotEmpty(t, res.Errors)
			assert.Contains(t, res.Errors[0], tt.wantErr)
		})
	}
}

func TestValidate_CollectsEveryError(t *testing.T) {
	res := Validate(ScanRequest{BaseIP: "x", StartRange: 0, EndRange: 300, Ports: []int{80}, TimeoutMS: 10})
	assert.False(t, res.OK)
	assert.Len(t, res.Errors, 4)
}

func TestValidate_Warnings(t *testing.T) {
	req := validRequest()
	assert.Empty(t, Validate(req).Warnings)

	req.BaseIP = "8.8.8"
	req.StartRange, req.EndRange = 1, 254
	req.Ports = make([]int, 25)
	for i := range req.Ports {
		req.Ports[i] = i + 1
	}
	req.TimeoutMS = 500

	res := Validate(req)
	require.True(t, res.OK)
	assert.Len(t, res.Warnings, 4)
}

func TestIsBaseIP(t *testing.T) {
	assert.True(t, IsBaseIP("10.0.0"))
	assert.True(t, IsBaseIP("172.16.5"))
	assert.False(t, IsBaseIP("10.0"))
	assert.False(t, IsBaseIP("10.0.0."))
	assert.False(t, IsBaseIP("1000.0.0"))
}
