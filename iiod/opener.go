package iiod

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/connectionmgr"
	"github.com/rjboer/GoPluto/internal/logging"
	"github.com/rjboer/GoPluto/internal/mdns"
)

// Options tune how an Opener connects and discovers servers.
type Options struct {
	// Timeout bounds each socket operation. Zero keeps the manager default.
	Timeout time.Duration
	// Retries is the number of extra dial attempts.
	Retries uint64
	// Discovery is the mDNS browse window used by Scan.
	Discovery time.Duration
	// Fallback receives attribute writes the server refuses, and reads too
	// when it implements FileReader. May be nil.
	Fallback FileWriter
	Logger   logging.Logger
}

// Opener opens IIOD contexts by URI and finds them with mDNS.
type Opener struct {
	opts   Options
	log    logging.Logger
	browse func(ctx context.Context, window time.Duration) ([]mdns.Host, error)
}

var _ iio.Opener = (*Opener)(nil)

func NewOpener(opts Options) *Opener {
	if opts.Discovery == 0 {
		opts.Discovery = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Opener{opts: opts, log: log, browse: mdns.Browse}
}

// Open dials the server behind uri and loads its context description.
func (o *Opener) Open(ctx context.Context, uri string) (iio.ContextHandle, error) {
	addr, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	m := o.manager(addr)
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	c, err := NewContext(uri, m, o.opts.Fallback, o.log)
	if err != nil {
		m.Close()
		return nil, err
	}
	return c, nil
}

// Scan browses for announced servers and describes each one. A server that
// cannot be probed is still listed under its announced instance name.
func (o *Opener) Scan(ctx context.Context) ([]iio.ContextInfo, error) {
	hosts, err := o.browse(ctx, o.opts.Discovery)
	if err != nil {
		return nil, err
	}
	infos := make([]iio.ContextInfo, 0, len(hosts))
	for _, h := range hosts {
		host, port, err := net.SplitHostPort(h.Addr())
		if err != nil {
			continue
		}
		p, _ := strconv.Atoi(port)
		uri := URIFor(host, p)

		desc, err := o.describe(ctx, uri)
		if err != nil {
			o.log.Debug("probe failed", logging.F("uri", uri), logging.F("err", err))
			desc = h.Instance
		}
		infos = append(infos, iio.ContextInfo{URI: uri, Description: desc})
	}
	return infos, nil
}

func (o *Opener) describe(ctx context.Context, uri string) (string, error) {
	h, err := o.Open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer h.Close()
	return h.Description(), nil
}

func (o *Opener) manager(addr string) *connectionmgr.Manager {
	m := connectionmgr.New(addr)
	if o.opts.Timeout > 0 {
		m.SetTimeout(o.opts.Timeout)
	}
	m.Retries = o.opts.Retries
	m.SetLogger(o.log.With(logging.F("iiod", addr)))
	return m
}
