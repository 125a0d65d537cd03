package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/lanscope/internal/probe"
)

func TestBuiltInProfiles(t *testing.T) {
	m := NewManager()

	tests := []struct {
		id    string
		ports []int
	}{
		{Quick, []int{22, 80, 443}},
		{Default, []int{20, 21, 22, 23, 25, 53, 80, 443, 445, 3389}},
		{Full, probe.KnownPorts()},
		{Web, []int{80, 443, 8080, 8443}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := m.GetByID(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.ports, p.Ports)
			assert.True(t, p.BuiltIn)
		})
	}
}

func TestGetAllOrdering(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create(&Profile{ID: "lab", Ports: []int{5000}, Priority: 40}))

	all := m.GetAll()
	require.Len(t, all, 5)

	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	// Equal priority falls back to name order.
	assert.Equal(t, []string{Default, "lab", Quick, Web, Full}, ids)
}

func TestGetByIDReturnsCopy(t *testing.T) {
	m := NewManager()

	p, err := m.GetByID("QUICK")
	require.NoError(t, err)
	p.Ports[0] = 1

	again, err := m.GetByID(Quick)
	require.NoError(t, err)
	assert.Equal(t, 22, again.Ports[0])

	_, err = m.GetByID("missing")
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	m := NewManager()

	assert.Error(t, m.Create(&Profile{ID: Web, Ports: []int{80}}), "built-ins are protected")
	assert.Error(t, m.Create(&Profile{ID: "", Ports: []int{80}}))
	assert.Error(t, m.Create(&Profile{ID: "db", Ports: nil}))
	assert.Error(t, m.Create(&Profile{ID: "db", Ports: []int{70000}}))
	assert.Error(t, m.Create(&Profile{ID: "a-b", Ports: []int{80}}))

	require.NoError(t, m.Create(&Profile{ID: "DB", Ports: []int{3306, 5432}}))
	p, err := m.GetByID("db")
	require.NoError(t, err)
	assert.Equal(t, "DB", p.Name)
	assert.False(t, p.BuiltIn)

	require.NoError(t, m.Create(&Profile{ID: "db", Name: "Databases", Ports: []int{27017}}))
	p, err = m.GetByID("db")
	require.NoError(t, err)
	assert.Equal(t, []int{27017}, p.Ports)
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []int
		wantErr bool
	}{
		{"single", "80", []int{80}, false},
		{"list", "443, 22,80", []int{22, 80, 443}, false},
		{"range", "8000-8003", []int{8000, 8001, 8002, 8003}, false},
		{"mixed with duplicates", "22,20-23,22", []int{20, 21, 22, 23}, false},
		{"trailing comma", "22,", []int{22}, false},
		{"bounds", "1,65535", []int{1, 65535}, false},
		{"zero", "0", nil, true},
		{"too high", "65536", nil, true},
		{"reversed range", "100-90", nil, true},
		{"bad range", "10-x", nil, true},
		{"not a number", "http", nil, true},
		{"empty", "", nil, true},
		{"only commas", ",,", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePorts(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	m := NewManager()

	ports, err := m.Resolve(" web ")
	require.NoError(t, err)
	assert.Equal(t, []int{80, 443, 8080, 8443}, ports)

	ports, err = m.Resolve("22,3389")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 3389}, ports)

	_, err = m.Resolve("")
	assert.Error(t, err)

	_, err = m.Resolve("nosuchprofile")
	assert.Error(t, err)
}
