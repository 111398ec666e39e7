// Package mdns finds IIOD servers announced over multicast DNS.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the DNS-SD service type announced by iiod.
const Service = "_iio._tcp"

// Host represents a discovered IIOD-capable device
type Host struct {
	Instance  string // Advertised name: "iiod on pluto"
	Hostname  string // DNS hostname: "pluto.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns host:port for the first IPv4 address, falling back to IPv6
// and then to the hostname.
func (h Host) Addr() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	if len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(h.Port))
}

// Browse performs a blocking mDNS browse for _iio._tcp.local services for at
// most window, or until ctx is done. It returns deduplicated hosts sorted by
// hostname.
func Browse(ctx context.Context, window time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	return browse(ctx, window, func(ctx context.Context, entries chan *zeroconf.ServiceEntry) error {
		return resolver.Browse(ctx, Service, "local.", entries)
	})
}

// browse runs one lookup and gathers what it reports until it closes
// entries or the window ends.
func browse(ctx context.Context, window time.Duration, run func(context.Context, chan *zeroconf.ServiceEntry) error) ([]Host, error) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Host, 1)
	go func() { done <- collect(ctx, entries) }()

	if err := run(ctx, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	return <-done, nil
}

// collect drains entries until the channel closes or ctx is done.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Host {
	seen := make(map[string]Host)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sorted(seen)
			}
			if e == nil {
				continue
			}
			addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
			addrs = append(addrs, e.AddrIPv4...)
			addrs = append(addrs, e.AddrIPv6...)

			key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
			seen[key] = Host{
				Instance:  cleanInstance(e.Instance),
				Hostname:  e.HostName,
				Addresses: addrs,
				Port:      e.Port,
				TXT:       append([]string{}, e.Text...),
			}
		case <-ctx.Done():
			return sorted(seen)
		}
	}
}

func sorted(m map[string]Host) []Host {
	out := make([]Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
