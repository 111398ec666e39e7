package iiod

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/connectionmgr"
)

// ParseURI turns a network context URI into a dialable address.
//
//	ip:192.168.2.1        -> 192.168.2.1:30431
//	ip:pluto.local:1234   -> pluto.local:1234
//	ip:[fe80::1]          -> [fe80::1]:30431
//
// Other schemes (usb:, local:, serial:) need a local libiio and are not
// served by this backend.
func ParseURI(uri string) (string, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok {
		return "", fmt.Errorf("uri %q has no scheme: %w", uri, iio.ErrParse)
	}
	if scheme != "ip" {
		return "", fmt.Errorf("uri scheme %q: %w", scheme, iio.ErrNotImplemented)
	}
	if rest == "" {
		return "", fmt.Errorf("uri %q has no host: %w", uri, iio.ErrParse)
	}

	if host, port, err := net.SplitHostPort(rest); err == nil {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", fmt.Errorf("uri %q port: %w", uri, iio.ErrParse)
		}
		return net.JoinHostPort(host, port), nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
	if strings.Count(host, ":") == 1 {
		// host:port with a bad port, or a stray colon.
		return "", fmt.Errorf("uri %q: %w", uri, iio.ErrParse)
	}
	return net.JoinHostPort(host, strconv.Itoa(connectionmgr.DefaultPort)), nil
}

// URIFor builds the context URI of a host and port.
func URIFor(host string, port int) string {
	if port == 0 || port == connectionmgr.DefaultPort {
		if strings.Contains(host, ":") {
			return "ip:[" + host + "]"
		}
		return "ip:" + host
	}
	return "ip:" + net.JoinHostPort(host, strconv.Itoa(port))
}
