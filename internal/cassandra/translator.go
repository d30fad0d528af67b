package cassandra

import (
	"fmt"
	"net"
	"strings"

	"github.com/gocql/gocql"
)

type hostPort struct {
	ip   net.IP
	port int
}

// NewTranslator rewrites the addresses nodes advertise into ones this host
// can reach. Addresses missing from the table pass through unchanged.
func NewTranslator(table map[string]string) (gocql.AddressTranslator, error) {
	const op = "cassandra.NewTranslator"

	resolved := make(map[string]hostPort, len(table))
	for from, to := range table {
		ip := net.ParseIP(strings.TrimSpace(from))
		if ip == nil {
			return nil, fmt.Errorf("%s: invalid address %q", op, from)
		}

		addr, err := net.ResolveTCPAddr("tcp", strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, to, err)
		}

		resolved[ip.String()] = hostPort{ip: addr.IP, port: addr.Port}
	}

	return gocql.AddressTranslatorFunc(func(addr net.IP, port int) (net.IP, int) {
		if hp, ok := resolved[addr.String()]; ok {
			return hp.ip, hp.port
		}
		return addr, port
	}), nil
}

// ParseTranslations reads "ip=host:port" pairs separated by commas.
func ParseTranslations(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("invalid address translation %q", pair)
		}
		out[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return out, nil
}
