package sysfs

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/rjboer/GoPluto/iiod"
)

var (
	_ iiod.FileWriter = (*Client)(nil)
	_ iiod.FileReader = (*Client)(nil)
)

// startServer runs an SSH server that records exec commands. "cat" commands
// print content; commands mentioning "missing" exit with status 1.
func startServer(t *testing.T, content string) (string, int, <-chan string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "root" && string(pass) == "analog" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan string, 16)
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg, content, cmds)
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p, cmds
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig, content string, cmds chan<- string) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var p struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &p); err != nil {
					req.Reply(false, nil)
					return
				}
				req.Reply(true, nil)
				cmds <- p.Command

				status := uint32(0)
				switch {
				case strings.Contains(p.Command, "missing"):
					io.WriteString(ch.Stderr(), "No such file or directory\n")
					status = 1
				case strings.HasPrefix(p.Command, "cat "):
					io.WriteString(ch, content)
				}
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Password: "analog"}, nil)
	assert.Error(t, err)
	_, err = New(Config{Host: "192.168.2.1"}, nil)
	assert.Error(t, err)

	c, err := New(Config{Host: "192.168.2.1", Password: "analog"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/sys/bus/iio/devices/iio:device0/in_voltage0_hardwaregain", c.Path("iio:device0", "in_voltage0_hardwaregain"))
	assert.NoError(t, c.Close())
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, `'$(reboot)'`, shellQuote("$(reboot)"))
}

func TestWriteAndReadOverSSH(t *testing.T) {
	host, port, cmds := startServer(t, "30720000\n")
	c, err := New(Config{Host: host, Port: port, Password: "analog"}, nil)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.WriteFile(ctx, "iio:device0", "in_voltage_sampling_frequency", "3000000"))
	assert.Equal(t, `printf %s '3000000' > '/sys/bus/iio/devices/iio:device0/in_voltage_sampling_frequency'`, <-cmds)

	v, err := c.ReadFile(ctx, "iio:device0", "in_voltage_sampling_frequency")
	require.NoError(t, err)
	assert.Equal(t, "30720000", v)
	assert.Equal(t, `cat '/sys/bus/iio/devices/iio:device0/in_voltage_sampling_frequency'`, <-cmds)

	_, err = c.ReadFile(ctx, "iio:device0", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file")
}

func TestWrongPassword(t *testing.T) {
	host, port, _ := startServer(t, "")
	c, err := New(Config{Host: host, Port: port, Password: "wrong"}, nil)
	require.NoError(t, err)

	err = c.WriteFile(context.Background(), "iio:device0", "x", "1")
	assert.Error(t, err)
}
