package mdns

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance, host string, port int, v4 ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, Service, "local.")
	e.HostName = host
	e.Port = port
	for _, a := range v4 {
		e.AddrIPv4 = append(e.AddrIPv4, net.ParseIP(a))
	}
	return e
}

func TestCollectDeduplicatesAndSorts(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry, 4)
	entries <- entry(`iiod\ on\ pluto2`, "pluto2.local.", 30431, "192.168.3.1")
	entries <- entry(`iiod\ on\ pluto`, "pluto.local.", 30431, "192.168.2.1")
	entries <- nil
	entries <- entry(`iiod\ on\ pluto`, "pluto.local.", 30431, "192.168.2.1")
	close(entries)

	hosts := collect(context.Background(), entries)
	require.Len(t, hosts, 2)
	assert.Equal(t, "pluto.local.", hosts[0].Hostname)
	assert.Equal(t, "iiod on pluto", hosts[0].Instance)
	assert.Equal(t, "192.168.2.1:30431", hosts[0].Addr())
	assert.Equal(t, "pluto2.local.", hosts[1].Hostname)
}

func TestCollectStopsOnContext(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Empty(t, collect(ctx, entries))
}

func TestBrowseGathersEntries(t *testing.T) {
	hosts, err := browse(context.Background(), time.Second, func(_ context.Context, entries chan *zeroconf.ServiceEntry) error {
		go func() {
			entries <- entry(`iiod\ on\ pluto`, "pluto.local.", 30431, "192.168.2.1")
			close(entries)
		}()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "192.168.2.1:30431", hosts[0].Addr())
}

func TestBrowseErrorReleasesCollector(t *testing.T) {
	before := runtime.NumGoroutine()
	_, err := browse(context.Background(), 20*time.Millisecond, func(context.Context, chan *zeroconf.ServiceEntry) error {
		return errors.New("no multicast interface")
	})
	assert.ErrorContains(t, err, "no multicast interface")
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, 2*time.Second, 10*time.Millisecond)
}

func TestHostAddr(t *testing.T) {
	v6 := Host{Hostname: "pluto.local.", Port: 30431, Addresses: []net.IP{net.ParseIP("fe80::1")}}
	assert.Equal(t, "[fe80::1]:30431", v6.Addr())

	mixed := Host{Hostname: "pluto.local.", Port: 1234, Addresses: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("10.0.0.7")}}
	assert.Equal(t, "10.0.0.7:1234", mixed.Addr())

	bare := Host{Hostname: "pluto.local.", Port: 30431}
	assert.Equal(t, "pluto.local:30431", bare.Addr())
}
