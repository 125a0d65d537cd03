package probe

import "sort"

// UnknownService labels ports missing from the service table.
const UnknownService = "Unknown"

var serviceNames = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	80:    "HTTP",
	110:   "POP3",
	143:   "IMAP",
	443:   "HTTPS",
	445:   "SMB",
	993:   "IMAPS",
	995:   "POP3S",
	1433:  "SQL Server",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5984:  "CouchDB",
	27017: "MongoDB",
}

// ServiceName returns the well-known service for port, or "Unknown".
func ServiceName(port int) string {
	if name, ok := serviceNames[port]; ok {
		return name
	}
	return UnknownService
}

// ServiceMap labels every port in ports.
func ServiceMap(ports []int) map[int]string {
	m := make(map[int]string, len(ports))
	for _, p := range ports {
		m[p] = ServiceName(p)
	}
	return m
}

// KnownPorts returns every port in the service table in ascending order.
func KnownPorts() []int {
	ports := make([]int, 0, len(serviceNames))
	for p := range serviceNames {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
