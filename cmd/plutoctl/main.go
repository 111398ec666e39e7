// Command plutoctl inspects and drives an ADALM-Pluto over the network.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/iiod"
	"github.com/rjboer/GoPluto/internal/config"
	"github.com/rjboer/GoPluto/internal/logging"
	"github.com/rjboer/GoPluto/internal/sysfs"
	"github.com/rjboer/GoPluto/pluto"
)

var cli struct {
	Config    string `help:"HCL config file. Defaults to the first of /etc/plutoctl, ~/.config/plutoctl and ./config.hcl." type:"path"`
	URI       string `help:"Context URI, e.g. ip:192.168.2.1. Scans with mDNS when empty." short:"u"`
	Verbose   bool   `help:"Debug logging." short:"v"`
	LogFormat string `help:"Log format: text, json or logfmt."`

	Scan     scanCmd     `cmd:"" help:"List IIOD servers announced with mDNS."`
	Info     infoCmd     `cmd:"" help:"Print the context, its devices and channels."`
	Rate     rateCmd     `cmd:"" help:"Print or set the baseband sample rate."`
	LO       loCmd       `cmd:"" name:"lo" help:"Print or set the local oscillators."`
	Gain     gainCmd     `cmd:"" help:"Print or set the hardware gains."`
	RX       rxCmd       `cmd:"" name:"rx" help:"Capture samples and print a summary."`
	TXMute   txMuteCmd   `cmd:"" name:"tx-mute" help:"Silence the transmitter."`
	ToneFile toneFileCmd `cmd:"" name:"tone-file" help:"Transmit IQ samples from a file until interrupted."`
}

// app carries what every command needs.
type app struct {
	ctx    context.Context
	cfg    config.Config
	log    logging.Logger
	out    io.Writer
	opener iio.Opener
}

func (a *app) openContext() (*iio.Context, error) {
	if a.cfg.URI != "" {
		return iio.Open(a.ctx, a.opener, a.cfg.URI)
	}
	return iio.OpenByName(a.ctx, a.opener, a.cfg.Name)
}

// openPluto opens the radio; mutate may adjust the options first.
func (a *app) openPluto(mutate func(*pluto.Options)) (*pluto.Pluto, error) {
	opts := a.cfg.PlutoOptions(a.log)
	if mutate != nil {
		mutate(&opts)
	}
	p, err := pluto.Open(a.ctx, a.opener, opts)
	if err != nil {
		return nil, err
	}
	if err := a.cfg.Apply(p); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("plutoctl"),
		kong.Description("Control and stream samples from an AD936x radio over IIOD."),
		kong.UsageOnError(),
	)

	path := cli.Config
	if path == "" {
		path = config.FindFile()
	}
	cfg, err := config.Load(path)
	kctx.FatalIfErrorf(err)
	if cli.URI != "" {
		cfg.URI = cli.URI
	}
	if cli.Verbose {
		cfg.Log.Level = "debug"
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	log, err := cfg.Logger(os.Stderr)
	kctx.FatalIfErrorf(err)
	logging.SetDefault(log)
	if path != "" {
		log.Debug("config loaded", logging.F("path", path))
	}

	var fallback iiod.FileWriter
	if sc, ok := cfg.SSHConfig(); ok {
		fs, err := sysfs.New(sc, log)
		kctx.FatalIfErrorf(err)
		defer fs.Close()
		fallback = fs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		ctx:    ctx,
		cfg:    cfg,
		log:    log,
		out:    os.Stdout,
		opener: iiod.NewOpener(cfg.OpenerOptions(fallback, log)),
	}
	err = kctx.Run(a)
	if err != nil {
		log.Error("command failed", logging.F("cmd", kctx.Command()), logging.F("err", err))
		stop()
		os.Exit(1)
	}
}
