// Package sysfs reads and writes IIO attribute files on the radio over SSH.
// It backs the network backend when IIOD refuses attribute writes, as the
// v0.25 server on older Pluto firmware does for some attributes.
package sysfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rjboer/GoPluto/internal/logging"
)

// DefaultRoot is the sysfs directory holding IIO devices.
const DefaultRoot = "/sys/bus/iio/devices"

// Config describes the SSH login to the radio. Pluto firmware ships with
// root/analog.
type Config struct {
	Host     string
	User     string
	Password string
	KeyPath  string
	Port     int
	Root     string
	Timeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.User == "" {
		c.User = "root"
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Client runs attribute reads and writes as shell commands over one SSH
// connection, dialled lazily.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	client *ssh.Client
	log    logging.Logger
}

// New validates cfg and prepares a client. No connection is made yet.
func New(cfg Config, log logging.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("ssh host is required for sysfs access")
	}
	if cfg.Password == "" && cfg.KeyPath == "" {
		return nil, errors.New("no ssh password or key configured")
	}
	cfg.applyDefaults()
	if log == nil {
		log = logging.Default()
	}
	return &Client{cfg: cfg, log: log.With(logging.F("ssh", cfg.Host))}, nil
}

// WriteFile writes value to file in the directory of device.
func (c *Client) WriteFile(ctx context.Context, device, file, value string) error {
	target := c.Path(device, file)
	// printf keeps the value away from shell interpretation.
	cmd := fmt.Sprintf("printf %%s %s > %s", shellQuote(value), shellQuote(target))
	if _, err := c.run(ctx, cmd); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	c.log.Debug("sysfs write", logging.F("path", target), logging.F("value", value))
	return nil
}

// ReadFile returns the content of file in the directory of device without
// its trailing newline.
func (c *Client) ReadFile(ctx context.Context, device, file string) (string, error) {
	target := c.Path(device, file)
	out, err := c.run(ctx, "cat "+shellQuote(target))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", target, err)
	}
	return strings.TrimRight(out, "\n"), nil
}

// Path is the remote path of an attribute file.
func (c *Client) Path(device, file string) string {
	return path.Join(c.cfg.Root, device, file)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) run(ctx context.Context, cmd string) (string, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	auth := []ssh.AuthMethod{}
	if c.cfg.Password != "" {
		auth = append(auth, ssh.Password(c.cfg.Password))
	}
	if c.cfg.KeyPath != "" {
		key, err := os.ReadFile(c.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	config := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.Timeout,
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	c.client = ssh.NewClient(clientConn, chans, reqs)
	c.log.Debug("ssh connected")
	return c.client, nil
}

// shellQuote wraps a value in single quotes with embedded quotes escaped.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
