// Package profiles provides named port sets for scanning. Built-in profiles
// cover the common cases and custom profiles can be registered from the
// configuration file.
package profiles

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/anstrom/lanscope/internal/probe"
)

const (
	minPort = 1
	maxPort = 65535
)

// Built-in profile IDs.
const (
	Quick   = "quick"
	Default = "default"
	Full    = "full"
	Web     = "web"
)

// Profile is a named port set.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Ports       []int  `json:"ports"`
	Priority    int    `json:"priority"`
	BuiltIn     bool   `json:"builtIn"`
}

func builtIns() []*Profile {
	return []*Profile{
		{
			ID:          Quick,
			Name:        "Quick",
			Description: "SSH and web only",
			Ports:       []int{22, 80, 443},
			Priority:    30,
		},
		{
			ID:          Default,
			Name:        "Default",
			Description: "Common infrastructure services",
			Ports:       []int{20, 21, 22, 23, 25, 53, 80, 443, 445, 3389},
			Priority:    40,
		},
		{
			ID:          Full,
			Name:        "Full",
			Description: "Every port in the service table",
			Ports:       probe.KnownPorts(),
			Priority:    10,
		},
		{
			ID:          Web,
			Name:        "Web",
			Description: "HTTP and HTTPS including alternate ports",
			Ports:       []int{80, 443, 8080, 8443},
			Priority:    20,
		},
	}
}

// Manager holds the built-in and custom profiles.
type Manager struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewManager creates a manager seeded with the built-in profiles.
func NewManager() *Manager {
	m := &Manager{profiles: make(map[string]*Profile)}
	for _, p := range builtIns() {
		p.BuiltIn = true
		m.profiles[p.ID] = p
	}
	return m
}

// GetAll returns all profiles, highest priority first.
func (m *Manager) GetAll() []*Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		all = append(all, clone(p))
	}
	slices.SortFunc(all, func(a, b *Profile) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		return strings.Compare(a.Name, b.Name)
	})
	return all
}

// GetByID returns a profile by ID.
func (m *Manager) GetByID(id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	return clone(p), nil
}

// Create registers a custom profile. Built-in profiles cannot be replaced.
func (m *Manager) Create(profile *Profile) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := strings.ToLower(profile.ID)
	if existing, ok := m.profiles[id]; ok && existing.BuiltIn {
		return fmt.Errorf("profile %s is built-in", profile.ID)
	}
	p := clone(profile)
	p.ID = id
	p.BuiltIn = false
	if p.Name == "" {
		p.Name = profile.ID
	}
	m.profiles[id] = p
	return nil
}

// Resolve turns a profile ID or a port list into ports. Profile IDs take
// precedence over port specifications.
func (m *Manager) Resolve(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("ports specification is required")
	}
	if p, err := m.GetByID(spec); err == nil {
		return p.Ports, nil
	}
	return ParsePorts(spec)
}

// ValidateProfile validates a profile definition.
func ValidateProfile(profile *Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile ID is required")
	}
	if strings.ContainsAny(profile.ID, ",- ") {
		return fmt.Errorf("profile ID %q must not contain commas, dashes or spaces", profile.ID)
	}
	if len(profile.Ports) == 0 {
		return fmt.Errorf("ports specification is required")
	}
	for _, port := range profile.Ports {
		if port < minPort || port > maxPort {
			return fmt.Errorf("port %d out of valid range (%d-%d)", port, minPort, maxPort)
		}
	}
	return nil
}

// ParsePorts parses "22,80,8000-8010" into a sorted, de-duplicated port list.
func ParsePorts(spec string) ([]int, error) {
	seen := make(map[int]bool)
	var result []int

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		for port := start; port <= end; port++ {
			if !seen[port] {
				seen[port] = true
				result = append(result, port)
			}
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no ports in %q", spec)
	}
	slices.Sort(result)
	return result, nil
}

func parsePart(part string) (start, end int, err error) {
	if lo, hi, isRange := strings.Cut(part, "-"); isRange {
		if start, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
			return 0, 0, fmt.Errorf("invalid port range format: %s", part)
		}
		if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return 0, 0, fmt.Errorf("invalid port range format: %s", part)
		}
		if start < minPort || end > maxPort || start > end {
			return 0, 0, fmt.Errorf("invalid port range: %s", part)
		}
		return start, end, nil
	}

	port, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port: %s", part)
	}
	if port < minPort || port > maxPort {
		return 0, 0, fmt.Errorf("port %d out of valid range (%d-%d)", port, minPort, maxPort)
	}
	return port, port, nil
}

func clone(p *Profile) *Profile {
	c := *p
	c.Ports = slices.Clone(p.Ports)
	return &c
}
