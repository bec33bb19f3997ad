// Package tunnel establishes and supervises local-forwarded SSH tunnels
// through a bastion host.
package tunnel

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Backend selects how the forward is carried.
type Backend string

const (
	// BackendExec runs the system ssh client.
	BackendExec Backend = "exec"
	// BackendNative forwards in-process with golang.org/x/crypto/ssh.
	BackendNative Backend = "native"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendExec:
		return BackendExec, nil
	case BackendNative:
		return BackendNative, nil
	default:
		return "", fmt.Errorf("unknown ssh backend %q (want exec or native)", s)
	}
}

const DefaultSSHPort = 22

// Bastion is the SSH jump host a tunnel goes through.
type Bastion struct {
	User     string
	Password string
	Host     string
	Port     int
}

// ParseURL parses [ssh://][user[:password]@]host[:port].
func ParseURL(raw string) (Bastion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Bastion{}, errors.New("empty ssh tunnel url")
	}
	if !strings.Contains(raw, "://") {
		raw = "ssh://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Bastion{}, fmt.Errorf("invalid ssh tunnel url: %w", err)
	}
	if u.Scheme != "ssh" {
		return Bastion{}, fmt.Errorf("invalid ssh tunnel url: unsupported scheme %q", u.Scheme)
	}
	b := Bastion{Host: u.Hostname(), Port: DefaultSSHPort}
	if b.Host == "" {
		return Bastion{}, errors.New("invalid ssh tunnel url: missing host")
	}
	if u.User != nil {
		b.User = u.User.Username()
		b.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Bastion{}, fmt.Errorf("invalid ssh tunnel url: bad port %q", p)
		}
		b.Port = n
	}
	return b, nil
}

// Address returns host:port of the bastion.
func (b Bastion) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// String never includes the password.
func (b Bastion) String() string {
	if b.User == "" {
		return b.Address()
	}
	return b.User + "@" + b.Address()
}

// Validate rejects bastions ssh would misread, such as a host that looks
// like an option.
func (b Bastion) Validate() error {
	if b.Host == "" {
		return errors.New("tunnel: bastion host is required")
	}
	if strings.HasPrefix(b.Host, "-") || strings.HasPrefix(b.User, "-") {
		return fmt.Errorf("tunnel: invalid bastion %q", b.String())
	}
	return nil
}

// Spec is everything needed to open one tunnel.
type Spec struct {
	Bastion      Bastion
	RemoteHost   string
	RemotePort   int
	LocalPort    int // 0 lets the supervisor allocate one
	IdentityFile string
}

func (s Spec) Validate() error {
	if err := s.Bastion.Validate(); err != nil {
		return err
	}
	if s.RemoteHost == "" {
		return errors.New("tunnel: remote host is required")
	}
	if s.RemotePort <= 0 || s.RemotePort > 65535 {
		return fmt.Errorf("tunnel: invalid remote port %d", s.RemotePort)
	}
	if s.LocalPort < 0 || s.LocalPort > 65535 {
		return fmt.Errorf("tunnel: invalid local port %d", s.LocalPort)
	}
	return nil
}

// RemoteAddress is the database endpoint as seen from the bastion.
func (s Spec) RemoteAddress() string {
	return net.JoinHostPort(s.RemoteHost, strconv.Itoa(s.RemotePort))
}
