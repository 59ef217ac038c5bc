// Package dnsecho is an example abyss.Handler: a minimal authoritative DNS
// responder answering A/AAAA queries from a static zone file, optionally
// forwarding A/AAAA names the zone lacks to a single upstream resolver;
// other query types are answered with NOTIMP. It exists to
// demonstrate that the Handler contract is sufficient to build a real
// protocol server, not to be a production-grade resolver.
package dnsecho

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Zone is a flat, in-memory A/AAAA record set loaded from a text file.
type Zone struct {
	records map[string][]net.IP
}

// LoadZoneFile parses lines of the form "name ttl type addr", e.g.:
//
//	example.com 300 A 93.184.216.34
//	example.com 300 AAAA 2606:2800:220:1:248:1893:25c8:1946
//
// Blank lines and lines starting with # are ignored.
func LoadZoneFile(path string) (*Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dnsecho: open zone file: %w", err)
	}
	defer f.Close()

	z := &Zone{records: make(map[string][]net.IP)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("dnsecho: zone file line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		name := strings.ToLower(strings.TrimSuffix(fields[0], "."))
		if _, err := strconv.Atoi(fields[1]); err != nil {
			return nil, fmt.Errorf("dnsecho: zone file line %d: invalid ttl %q", lineNo, fields[1])
		}
		ip := net.ParseIP(fields[3])
		if ip == nil {
			return nil, fmt.Errorf("dnsecho: zone file line %d: invalid address %q", lineNo, fields[3])
		}
		z.records[name] = append(z.records[name], ip)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dnsecho: read zone file: %w", err)
	}
	return z, nil
}

// NewZone builds a Zone directly from a map, useful for tests.
func NewZone(records map[string][]net.IP) *Zone {
	return &Zone{records: records}
}

// Lookup returns every address of the given family (4 or 6) for name.
func (z *Zone) Lookup(name string, family int) []net.IP {
	var out []net.IP
	for _, ip := range z.records[strings.ToLower(strings.TrimSuffix(name, "."))] {
		if family == 4 && ip.To4() != nil {
			out = append(out, ip)
		}
		if family == 6 && ip.To4() == nil && ip.To16() != nil {
			out = append(out, ip)
		}
	}
	return out
}
