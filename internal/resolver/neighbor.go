package resolver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

const (
	defaultProcARP = "/proc/net/arp"
	incompleteFlag = "0x0"
	zeroMAC        = "00:00:00:00:00:00"
)

// CommandFunc runs an external command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ARPTable reads hardware addresses from the kernel neighbor table and falls
// back to the arp utility where the proc file does not exist.
type ARPTable struct {
	ProcPath string

	run CommandFunc
}

// NewARPTable creates the neighbor channel. A nil run uses os/exec.
func NewARPTable(procPath string, run CommandFunc) *ARPTable {
	if procPath == "" {
		procPath = defaultProcARP
	}
	if run == nil {
		run = runCommand
	}
	return &ARPTable{ProcPath: procPath, run: run}
}

// LookupMAC implements NeighborTable. A host missing from the table is an
// empty result, not an error.
func (a *ARPTable) LookupMAC(ctx context.Context, ip string) (string, error) {
	f, err := os.Open(a.ProcPath)
	if err == nil {
		defer f.Close()
		mac, perr := parseProcARP(f, ip)
		if perr != nil {
			return "", fmt.Errorf("failed to read %s: %w", a.ProcPath, perr)
		}
		if mac != "" {
			return mac, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to open %s: %w", a.ProcPath, err)
	}

	out, err := a.run(ctx, "arp", "-n", ip)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", nil
		}
		// arp exits non-zero for unknown hosts on several platforms.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil
		}
		return "", fmt.Errorf("arp lookup for %s: %w", ip, err)
	}
	return parseARPOutput(out, ip), nil
}

// parseProcARP scans the /proc/net/arp layout:
// IP address  HW type  Flags  HW address  Mask  Device
func parseProcARP(r io.Reader, ip string) (string, error) {
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != ip {
			continue
		}
		if fields[2] == incompleteFlag {
			return "", nil
		}
		mac := NormalizeMAC(fields[3])
		if mac == zeroMAC {
			return "", nil
		}
		return mac, nil
	}
	return "", scanner.Err()
}

var macPattern = regexp.MustCompile(`(?i)\b([0-9a-f]{1,2}[:-]){5}[0-9a-f]{1,2}\b`)

// parseARPOutput finds the hardware address on the line that mentions ip.
func parseARPOutput(out []byte, ip string) string {
	for _, line := range bytes.Split(out, []byte("\n")) {
		if !containsAddress(string(line), ip) {
			continue
		}
		if m := macPattern.Find(line); m != nil {
			if mac := NormalizeMAC(string(m)); mac != zeroMAC {
				return mac
			}
		}
	}
	return ""
}

func containsAddress(line, ip string) bool {
	for _, f := range strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '(' || r == ')'
	}) {
		if f == ip {
			return true
		}
	}
	return false
}

// NormalizeMAC returns mac as lowercase colon-separated two-digit octets.
// Input that is not a six-octet address is returned lowercased unchanged.
func NormalizeMAC(mac string) string {
	parts := strings.FieldsFunc(strings.ToLower(mac), func(r rune) bool {
		return r == ':' || r == '-'
	})
	if len(parts) != 6 {
		return strings.ToLower(mac)
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}
