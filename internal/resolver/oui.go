package resolver

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

//go:embed oui.txt
var ouiTable string

const maxVendorResponse = 512

// OUIVendor maps MAC prefixes to manufacturers from the embedded table and,
// when ExternalURL is set, an HTTP lookup service. External answers are cached.
type OUIVendor struct {
	ExternalURL string

	local  map[string]string
	cache  *lru.Cache[string, string]
	client *http.Client
}

// NewOUIVendor creates the vendor channel. An empty externalURL keeps lookups local.
func NewOUIVendor(externalURL string, cacheSize int, timeout time.Duration) *OUIVendor {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &OUIVendor{
		ExternalURL: externalURL,
		local:       parseOUITable(ouiTable),
		cache:       cache,
		client:      &http.Client{Timeout: timeout},
	}
}

func parseOUITable(table string) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(table))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prefix, vendor, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		out[strings.ToUpper(prefix)] = strings.TrimSpace(vendor)
	}
	return out
}

// ouiPrefix returns the six hex digit prefix of mac, upper case.
func ouiPrefix(mac string) (string, bool) {
	hex := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.':
			return -1
		}
		return r
	}, strings.ToUpper(mac))
	if len(hex) != 12 {
		return "", false
	}
	if _, err := strconv.ParseUint(hex, 16, 64); err != nil {
		return "", false
	}
	return hex[:6], true
}

// locallyAdministered reports whether the U/L bit of the first octet is set.
func locallyAdministered(prefix string) bool {
	b, err := strconv.ParseUint(prefix[:2], 16, 8)
	return err == nil && b&0x02 != 0
}

// Vendor implements VendorLookup.
func (o *OUIVendor) Vendor(ctx context.Context, mac string) (string, error) {
	prefix, ok := ouiPrefix(mac)
	if !ok {
		return "", fmt.Errorf("invalid MAC address %q", mac)
	}
	if vendor, ok := o.local[prefix]; ok {
		return vendor, nil
	}
	// Randomized and virtual addresses carry no registered vendor.
	if locallyAdministered(prefix) || o.ExternalURL == "" {
		return "", nil
	}
	if vendor, ok := o.cache.Get(prefix); ok {
		return vendor, nil
	}

	vendor, err := o.fetch(ctx, mac)
	if err != nil {
		return "", err
	}
	o.cache.Add(prefix, vendor)
	return vendor, nil
}

func (o *OUIVendor) fetch(ctx context.Context, mac string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.ExternalURL+url.PathEscape(mac), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build vendor request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vendor lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("vendor lookup returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVendorResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read vendor response: %w", err)
	}
	return firstLine(string(body), maxVendorResponse), nil
}
