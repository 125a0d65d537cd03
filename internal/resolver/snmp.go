package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	oidSysDescr = ".1.3.6.1.2.1.1.1.0"
	oidSysName  = ".1.3.6.1.2.1.1.5.0"

	maxDescriptionLen = 120
)

// SNMPGetFunc issues one GET for oids against ip.
type SNMPGetFunc func(ctx context.Context, ip string, oids []string) ([]gosnmp.SnmpPDU, error)

// SNMPService reads sysName and sysDescr over SNMP v2c.
type SNMPService struct {
	Community string
	Port      uint16
	Timeout   time.Duration

	get SNMPGetFunc
}

// NewSNMPService creates the SNMP channel. A nil get uses gosnmp.
func NewSNMPService(community string, port uint16, timeout time.Duration, get SNMPGetFunc) *SNMPService {
	s := &SNMPService{Community: community, Port: port, Timeout: timeout}
	if get == nil {
		get = s.gosnmpGet
	}
	s.get = get
	return s
}

func (s *SNMPService) gosnmpGet(ctx context.Context, ip string, oids []string) ([]gosnmp.SnmpPDU, error) {
	g := &gosnmp.GoSNMP{
		Target:    ip,
		Port:      s.Port,
		Community: s.Community,
		Version:   gosnmp.Version2c,
		Timeout:   s.Timeout,
		Retries:   0,
		Context:   ctx,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", ip, err)
	}
	defer g.Conn.Close()

	packet, err := g.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("snmp get %s: %w", ip, err)
	}
	return packet.Variables, nil
}

// Name implements NameService.
func (s *SNMPService) Name() string { return SourceSNMP }

// Lookup implements NameService.
func (s *SNMPService) Lookup(ctx context.Context, ip string) (NameRecord, error) {
	pdus, err := s.get(ctx, ip, []string{oidSysName, oidSysDescr})
	if err != nil {
		return NameRecord{}, err
	}
	return recordFromPDUs(pdus), nil
}

func recordFromPDUs(pdus []gosnmp.SnmpPDU) NameRecord {
	var rec NameRecord
	for _, pdu := range pdus {
		if pdu.Type != gosnmp.OctetString {
			continue
		}
		raw, ok := pdu.Value.([]byte)
		if !ok {
			continue
		}
		value := strings.TrimSpace(string(raw))
		switch pdu.Name {
		case oidSysName:
			rec.Name = value
		case oidSysDescr:
			rec.Description = firstLine(value, maxDescriptionLen)
		}
	}
	if rec.Name != "" || rec.Description != "" {
		rec.Source = SourceSNMP
	}
	return rec
}

func firstLine(s string, limit int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > limit {
		s = s[:limit]
	}
	return strings.TrimSpace(s)
}

// ChainNameService asks each service in order and returns the first record
// that carries a name.
type ChainNameService []NameService

// Name implements NameService.
func (c ChainNameService) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// Lookup implements NameService. An error is returned only when every
// service failed.
func (c ChainNameService) Lookup(ctx context.Context, ip string) (NameRecord, error) {
	var (
		fallback NameRecord
		lastErr  error
		failed   int
	)
	for _, s := range c {
		rec, err := s.Lookup(ctx, ip)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", s.Name(), err)
			failed++
			continue
		}
		if rec.Source == "" {
			rec.Source = s.Name()
		}
		if rec.Name != "" {
			return rec, nil
		}
		if fallback.Description == "" && rec.Description != "" {
			fallback = rec
		}
	}
	if len(c) > 0 && failed == len(c) {
		return NameRecord{}, lastErr
	}
	return fallback, nil
}
